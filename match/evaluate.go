package match

import "starfall-server/galaxy"

// Counts tallies star ownership across the map
type Counts struct {
	A       int `json:"a" msgpack:"a"`
	B       int `json:"b" msgpack:"b"`
	Neutral int `json:"n" msgpack:"n"`
}

// Total returns the number of stars counted
func (c Counts) Total() int {
	return c.A + c.B + c.Neutral
}

// Owned returns how many stars f holds
func (c Counts) Owned(f galaxy.Faction) int {
	if f == galaxy.FactionA {
		return c.A
	}
	return c.B
}

// Tally counts every star by its derived owner
func Tally(m *galaxy.Map) Counts {
	var c Counts
	if m == nil {
		return c
	}
	for _, s := range m.Stars() {
		switch s.State() {
		case galaxy.OwnedByA:
			c.A++
		case galaxy.OwnedByB:
			c.B++
		default:
			c.Neutral++
		}
	}
	return c
}

// Winner applies the terminal conditions in order: total capture by one
// side, then elimination of A, then elimination of B.
func Winner(c Counts) (galaxy.Faction, bool) {
	if c.Neutral == 0 && c.Total() > 0 && (c.A == 0) != (c.B == 0) {
		if c.A > 0 {
			return galaxy.FactionA, true
		}
		return galaxy.FactionB, true
	}
	for _, f := range [2]galaxy.Faction{galaxy.FactionB, galaxy.FactionA} {
		if c.Owned(f.Opponent()) == 0 && c.Owned(f) > 0 {
			return f, true
		}
	}
	return 0, false
}
