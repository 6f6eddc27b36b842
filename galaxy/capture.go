package galaxy

import (
	"fmt"

	"starfall-server/geom"
)

// Faction is one of the two sides contesting the map
type Faction int

const (
	FactionA Faction = 0 // host seat, drawn blue
	FactionB Faction = 1 // second seat, drawn red
)

// Factions lists both sides in a fixed order
var Factions = [2]Faction{FactionA, FactionB}

// Valid reports whether f is FactionA or FactionB
func (f Faction) Valid() bool {
	return f == FactionA || f == FactionB
}

// Opponent returns the other faction
func (f Faction) Opponent() Faction {
	if f == FactionA {
		return FactionB
	}
	return FactionA
}

// Owned returns the owner state a faction reaches on capture
func (f Faction) Owned() OwnerState {
	if f == FactionA {
		return OwnedByA
	}
	return OwnedByB
}

func (f Faction) String() string {
	switch f {
	case FactionA:
		return "A"
	case FactionB:
		return "B"
	}
	return fmt.Sprintf("Faction(%d)", int(f))
}

// OwnerState is the derived ownership of a star or constellation
type OwnerState int

const (
	Neutral OwnerState = iota
	OwnedByA
	OwnedByB
)

func (s OwnerState) String() string {
	switch s {
	case OwnedByA:
		return "A"
	case OwnedByB:
		return "B"
	}
	return "neutral"
}

// Faction returns the owning faction, false for Neutral
func (s OwnerState) Faction() (Faction, bool) {
	switch s {
	case OwnedByA:
		return FactionA, true
	case OwnedByB:
		return FactionB, true
	}
	return 0, false
}

// DeriveState is the one ownership rule. A is checked first; the tug-of-war
// update keeps one of the counters at zero, so the order never matters in
// practice.
func DeriveState(damageA, damageB, maxHP int) OwnerState {
	if damageA >= maxHP {
		return OwnedByA
	}
	if damageB >= maxHP {
		return OwnedByB
	}
	return Neutral
}

// ConstellationState derives a constellation's owner from its members: the
// shared non-neutral state when every member agrees, Neutral otherwise
// (including an empty constellation).
func ConstellationState(members []*Star) OwnerState {
	if len(members) == 0 {
		return Neutral
	}
	first := members[0].State()
	if first == Neutral {
		return Neutral
	}
	for _, s := range members[1:] {
		if s.State() != first {
			return Neutral
		}
	}
	return first
}

// ApplyDamage applies an attack of amount by attacker. An attack first
// drains the opponent's progress; whatever exceeds the opponent's counter is
// lost rather than credited to the attacker. Returns false (no change) for a
// non-positive amount or an unknown faction.
func (s *Star) ApplyDamage(attacker Faction, amount int) bool {
	if amount <= 0 || !attacker.Valid() {
		return false
	}
	own, opp := s.counters(attacker)
	if *opp > 0 {
		*opp -= amount
		if *opp < 0 {
			*opp = 0
		}
		return true
	}
	*own += amount
	return true
}

func (s *Star) counters(f Faction) (own, opp *int) {
	if f == FactionA {
		return &s.DamageA, &s.DamageB
	}
	return &s.DamageB, &s.DamageA
}

// Progress returns the leading faction's capture ratio in [0, 1]
func (s *Star) Progress() float64 {
	if s.MaxHP <= 0 {
		return 0
	}
	lead := s.DamageA
	if s.DamageB > lead {
		lead = s.DamageB
	}
	return geom.Clamp(float64(lead)/float64(s.MaxHP), 0, 1)
}
