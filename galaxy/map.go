package galaxy

import (
	"math"

	"starfall-server/geom"
)

// Unassigned marks a star that belongs to no constellation
const Unassigned = -1

// Star is a capturable node. Only the authority mutates DamageA/DamageB.
type Star struct {
	ID              int
	Coordinates     geom.Point
	Size            int
	MaxHP           int
	DamageA         int
	DamageB         int
	ConstellationID int
}

// NewStar creates an unassigned star with size clamped to [MinStarSize,
// MaxStarSize] and maxHP clamped to [MinStarHP, MaxStarHP]
func NewStar(id int, pos geom.Point, size, maxHP int) *Star {
	return &Star{
		ID:              id,
		Coordinates:     pos,
		Size:            clampInt(size, MinStarSize, MaxStarSize),
		MaxHP:           clampInt(maxHP, MinStarHP, MaxStarHP),
		ConstellationID: Unassigned,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// State derives the star's current owner
func (s *Star) State() OwnerState {
	return DeriveState(s.DamageA, s.DamageB, s.MaxHP)
}

// Constellation is a fixed group of stars around a center
type Constellation struct {
	ID          int
	Center      geom.Point
	StarIDs     []int
	NeighborIDs []int

	stars []*Star
}

// NewConstellation creates an empty constellation
func NewConstellation(id int, center geom.Point) *Constellation {
	return &Constellation{ID: id, Center: center}
}

// AddStar makes s a member. A star already assigned elsewhere is refused so
// memberships stay disjoint.
func (c *Constellation) AddStar(s *Star) bool {
	if s.ConstellationID != Unassigned && s.ConstellationID != c.ID {
		return false
	}
	for _, id := range c.StarIDs {
		if id == s.ID {
			return false
		}
	}
	s.ConstellationID = c.ID
	c.StarIDs = append(c.StarIDs, s.ID)
	c.stars = append(c.stars, s)
	return true
}

// Stars returns the member stars in insertion order
func (c *Constellation) Stars() []*Star {
	out := make([]*Star, len(c.stars))
	copy(out, c.stars)
	return out
}

// Size returns the number of member stars
func (c *Constellation) Size() int {
	return len(c.stars)
}

// State derives the constellation's owner from its members
func (c *Constellation) State() OwnerState {
	return ConstellationState(c.stars)
}

// Map is the aggregate root holding every constellation and star of a match.
// It is not safe for concurrent mutation; the match authority is its only
// writer.
type Map struct {
	constellations []*Constellation
	byID           map[int]*Constellation
	stars          map[int]*Star
	starOrder      []*Star
	sentinel       float64
}

// NewMap creates an empty map. sentinel is returned by
// DistanceToClosestConstellation when there is no other constellation.
func NewMap(sentinel float64) *Map {
	return &Map{
		byID:     make(map[int]*Constellation),
		stars:    make(map[int]*Star),
		sentinel: sentinel,
	}
}

// AddConstellation adds c and indexes its stars. Adding the same id twice is a
// no-op and returns false.
func (m *Map) AddConstellation(c *Constellation) bool {
	if _, ok := m.byID[c.ID]; ok {
		return false
	}
	m.constellations = append(m.constellations, c)
	m.byID[c.ID] = c
	for _, s := range c.stars {
		m.stars[s.ID] = s
		m.starOrder = append(m.starOrder, s)
	}
	return true
}

// AddStar assigns s to the constellation with the given id and indexes it.
// Fails for an unknown constellation or a star that is already a member
// somewhere.
func (m *Map) AddStar(constellationID int, s *Star) bool {
	c, ok := m.byID[constellationID]
	if !ok {
		return false
	}
	if _, dup := m.stars[s.ID]; dup {
		return false
	}
	if !c.AddStar(s) {
		return false
	}
	m.stars[s.ID] = s
	m.starOrder = append(m.starOrder, s)
	return true
}

// Constellation returns the constellation with the given id
func (m *Map) Constellation(id int) (*Constellation, bool) {
	c, ok := m.byID[id]
	return c, ok
}

// Star returns the star with the given id
func (m *Map) Star(id int) (*Star, bool) {
	s, ok := m.stars[id]
	return s, ok
}

// Constellations returns all constellations in insertion order
func (m *Map) Constellations() []*Constellation {
	out := make([]*Constellation, len(m.constellations))
	copy(out, m.constellations)
	return out
}

// Stars returns every star in the order it was indexed
func (m *Map) Stars() []*Star {
	out := make([]*Star, len(m.starOrder))
	copy(out, m.starOrder)
	return out
}

// Len returns the number of constellations
func (m *Map) Len() int {
	return len(m.constellations)
}

// StarCount returns the number of stars
func (m *Map) StarCount() int {
	return len(m.starOrder)
}

// Clear drops every constellation and star
func (m *Map) Clear() {
	m.constellations = nil
	m.byID = make(map[int]*Constellation)
	m.stars = make(map[int]*Star)
	m.starOrder = nil
}

// FindClosestStar returns the star nearest to p by linear scan. Ties keep the
// first star found.
func (m *Map) FindClosestStar(p geom.Point) (*Star, bool) {
	var closest *Star
	best := math.MaxFloat64
	for _, c := range m.constellations {
		for _, s := range c.stars {
			if d := geom.Distance(p, s.Coordinates); d < best {
				best = d
				closest = s
			}
		}
	}
	return closest, closest != nil
}

// DistanceToClosestConstellation returns the distance from center to the
// nearest constellation center other than excludeID, or the sentinel when
// there is none.
func (m *Map) DistanceToClosestConstellation(center geom.Point, excludeID int) float64 {
	best := math.MaxFloat64
	for _, c := range m.constellations {
		if c.ID == excludeID {
			continue
		}
		if d := geom.Distance(center, c.Center); d < best {
			best = d
		}
	}
	if best == math.MaxFloat64 {
		return m.sentinel
	}
	return best
}
