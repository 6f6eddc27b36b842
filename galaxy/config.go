package galaxy

import (
	"fmt"
	"strings"
)

// Star attribute limits
const (
	MinStarSize = 1
	MaxStarSize = 5
	MinStarHP   = 1
	MaxStarHP   = 20
)

// Tier is a map complexity preset
type Tier int

const (
	TierSmall  Tier = 0
	TierNormal Tier = 1
	TierBig    Tier = 2
	TierVast   Tier = 3
)

// Constellations returns how many constellations the tier asks for
func (t Tier) Constellations() int {
	switch t {
	case TierSmall:
		return 3
	case TierBig:
		return 7
	case TierVast:
		return 10
	default:
		return 5
	}
}

func (t Tier) String() string {
	switch t {
	case TierSmall:
		return "small"
	case TierNormal:
		return "normal"
	case TierBig:
		return "big"
	case TierVast:
		return "vast"
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// Valid reports whether t is one of the four presets
func (t Tier) Valid() bool {
	return t >= TierSmall && t <= TierVast
}

// ParseTier parses a tier name, case-insensitively
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small":
		return TierSmall, nil
	case "normal", "":
		return TierNormal, nil
	case "big":
		return TierBig, nil
	case "vast":
		return TierVast, nil
	}
	return TierNormal, fmt.Errorf("unknown tier %q", s)
}

// Weighted star count: cumulative percentage thresholds and their counts.
var starCountTable = []struct {
	below float64
	count int
}{
	{20, 3},
	{50, 4},
	{80, 5},
	{90, 6},
	{95, 7},
	{98, 8},
	{99, 9},
	{100, 10},
}

// StarCountForRoll maps a roll in [0, 100) to a star count
func StarCountForRoll(roll float64) int {
	for _, row := range starCountTable {
		if roll < row.below {
			return row.count
		}
	}
	return starCountTable[len(starCountTable)-1].count
}

// Config holds every generation constant. DefaultConfig matches the live game.
type Config struct {
	Width  float64
	Height float64

	// Constellation center sampling
	InitialRadius  float64
	RadiusShrink   float64
	LocalAttempts  int
	MaxCenterTries int
	NeighborLimit  int
	SpreadFactor   float64

	// Star sampling
	InitialSpacing    float64
	SpacingShrink     float64
	StarLocalAttempts int // failures before spacing shrinks
	MaxStarTries      int
	PrimaryMinSize    int
	PrimaryMaxSize    int
}

// DefaultConfig returns the standard generation settings
func DefaultConfig() Config {
	return Config{
		Width:          1920,
		Height:         1080,
		InitialRadius:  300,
		RadiusShrink:   0.75,
		LocalAttempts:  10,
		MaxCenterTries: 1000,
		NeighborLimit:  5,
		SpreadFactor:   0.25,
		InitialSpacing:    20,
		SpacingShrink:     0.75,
		StarLocalAttempts: 10,
		MaxStarTries:      100,
		PrimaryMinSize:    3,
		PrimaryMaxSize:    5,
	}
}

// Validate checks that the settings can drive a generation run
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("map bounds must be positive, got %gx%g", c.Width, c.Height)
	case c.InitialRadius <= 0:
		return fmt.Errorf("initial radius must be positive, got %g", c.InitialRadius)
	case c.RadiusShrink <= 0 || c.RadiusShrink >= 1:
		return fmt.Errorf("radius shrink must be in (0,1), got %g", c.RadiusShrink)
	case c.SpacingShrink <= 0 || c.SpacingShrink >= 1:
		return fmt.Errorf("spacing shrink must be in (0,1), got %g", c.SpacingShrink)
	case c.LocalAttempts < 1 || c.StarLocalAttempts < 1 || c.MaxCenterTries < 1 || c.MaxStarTries < 1:
		return fmt.Errorf("attempt caps must be at least 1")
	case c.NeighborLimit < 1:
		return fmt.Errorf("neighbor limit must be at least 1, got %d", c.NeighborLimit)
	case c.PrimaryMinSize < MinStarSize || c.PrimaryMaxSize > MaxStarSize || c.PrimaryMinSize > c.PrimaryMaxSize:
		return fmt.Errorf("primary star size range [%d,%d] out of bounds", c.PrimaryMinSize, c.PrimaryMaxSize)
	}
	return nil
}

// Sentinel is the fallback nearest-constellation distance
func (c Config) Sentinel() float64 {
	return c.InitialRadius * 2
}
