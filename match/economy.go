package match

import (
	"fmt"
	"math"
	"strings"
)

// BonusKind names a purchasable upgrade
type BonusKind string

const (
	BonusClick BonusKind = "click" // attack power
	BonusGold  BonusKind = "gold"  // accrual multiplier
)

// Bonus describes one upgrade track
type Bonus struct {
	Kind     BonusKind `json:"kind"`
	Name     string    `json:"name"`
	BaseCost int       `json:"cost"`
	MaxLevel int       `json:"max"`
	Preview  string    `json:"preview"`
}

// CostAt returns the price of going from level to level+1
func (b Bonus) CostAt(level int) int {
	return b.BaseCost * (level + 1)
}

// BonusCatalog is the full list of purchasable upgrades
var BonusCatalog = []Bonus{
	{Kind: BonusClick, Name: "Click Power", BaseCost: 10, MaxLevel: 5, Preview: "+1 attack power per level"},
	{Kind: BonusGold, Name: "Gold Generation", BaseCost: 15, MaxLevel: 5, Preview: "+20% star income per level"},
}

// LookupBonus finds a catalog entry by kind
func LookupBonus(kind BonusKind) (Bonus, bool) {
	for _, b := range BonusCatalog {
		if b.Kind == kind {
			return b, true
		}
	}
	return Bonus{}, false
}

// ParseBonus accepts the wire names and a few aliases
func ParseBonus(s string) (BonusKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "click", "clickpower", "click_power":
		return BonusClick, nil
	case "gold", "goldgeneration", "gold_generation":
		return BonusGold, nil
	}
	return "", fmt.Errorf("unknown bonus %q", s)
}

// GoldStep is the accrual multiplier gained per gold level
const GoldStep = 0.2

// FactionState is the economy of one side
type FactionState struct {
	Resources  int `json:"res" msgpack:"res"`
	ClickLevel int `json:"click" msgpack:"click"`
	GoldLevel  int `json:"gold" msgpack:"gold"`
}

// ClickPower is the largest attack the faction may make
func (f FactionState) ClickPower() int {
	return 1 + f.ClickLevel
}

// Multiplier scales star income
func (f FactionState) Multiplier() float64 {
	return 1 + GoldStep*float64(f.GoldLevel)
}

// Level returns the current level of a bonus track
func (f FactionState) Level(kind BonusKind) int {
	switch kind {
	case BonusClick:
		return f.ClickLevel
	case BonusGold:
		return f.GoldLevel
	}
	return 0
}

// Gain is one accrual: owned stars times yield times the multiplier, rounded
func (f FactionState) Gain(owned, yield int) int {
	if owned <= 0 || yield <= 0 {
		return 0
	}
	return int(math.RoundToEven(float64(owned*yield) * f.Multiplier()))
}

// Buy applies a purchase of kind. On rejection the state is unchanged.
func (f *FactionState) Buy(kind BonusKind) error {
	b, ok := LookupBonus(kind)
	if !ok {
		return reject(CodeUnknownBonus, string(kind))
	}
	level := f.Level(kind)
	if level >= b.MaxLevel {
		return reject(CodeBonusMaxed, fmt.Sprintf("%s already at level %d", kind, level))
	}
	cost := b.CostAt(level)
	if f.Resources < cost {
		return reject(CodeInsufficientGold, fmt.Sprintf("%s costs %d, have %d", kind, cost, f.Resources))
	}
	f.Resources -= cost
	switch kind {
	case BonusClick:
		f.ClickLevel++
	case BonusGold:
		f.GoldLevel++
	}
	return nil
}
