package replica

import (
	"sync"

	"starfall-server/galaxy"
	"starfall-server/match"
)

type starEntry struct {
	view    match.StarView
	version uint64
}

type factionEntry struct {
	state        match.FactionState
	resVersion   uint64
	bonusVersion map[match.BonusKind]uint64
}

// Cache is a read-only copy of the authority's state. It changes only
// through Apply; there is no way to mutate it locally.
type Cache struct {
	mu sync.RWMutex

	mapVersion     uint64
	meta           match.Snapshot // header fields only
	stars          map[int]*starEntry
	order          []int
	constellations []match.ConstellationView
	consIndex      map[int]int
	links          []galaxy.Link
	factions       [2]factionEntry

	ended  bool
	winner galaxy.Faction

	applied int
	ignored int
}

// NewCache creates an empty cache
func NewCache() *Cache {
	c := &Cache{
		stars:     make(map[int]*starEntry),
		consIndex: make(map[int]int),
	}
	for i := range c.factions {
		c.factions[i].bonusVersion = make(map[match.BonusKind]uint64)
	}
	return c
}

// Apply applies one notification atomically. Notifications that are not
// newer than what the cache holds for the entity are ignored; Apply
// reports whether n changed the cache.
func (c *Cache) Apply(n match.Notification) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok := c.apply(n)
	if ok {
		c.applied++
	} else {
		c.ignored++
	}
	return ok
}

func (c *Cache) apply(n match.Notification) bool {
	switch v := n.(type) {
	case match.MapPublished:
		return c.applyMap(v)
	case match.StarChanged:
		e, ok := c.stars[v.Star.ID]
		if !ok || v.Version <= e.version {
			return false
		}
		e.view = v.Star
		e.version = v.Version
		return true
	case match.ResourceUpdated:
		if !v.Faction.Valid() {
			return false
		}
		f := &c.factions[v.Faction]
		if v.Version <= f.resVersion {
			return false
		}
		f.state.Resources = v.Total
		f.resVersion = v.Version
		return true
	case match.BonusUpdated:
		if !v.Faction.Valid() {
			return false
		}
		f := &c.factions[v.Faction]
		if v.Version <= f.bonusVersion[v.Bonus] {
			return false
		}
		switch v.Bonus {
		case match.BonusClick:
			f.state.ClickLevel = v.Level
		case match.BonusGold:
			f.state.GoldLevel = v.Level
		default:
			return false
		}
		f.bonusVersion[v.Bonus] = v.Version
		return true
	case match.MatchEnded:
		if c.ended || v.Version <= c.mapVersion {
			return false
		}
		c.ended = true
		c.winner = v.Winner
		return true
	}
	return false
}

func (c *Cache) applyMap(mp match.MapPublished) bool {
	if mp.Version <= c.mapVersion {
		return false
	}
	v := mp.Version
	snap := mp.Snapshot

	c.mapVersion = v
	c.meta = snap
	c.meta.Stars = nil
	c.meta.Constellations = nil
	c.meta.Links = nil
	c.links = append([]galaxy.Link(nil), snap.Links...)

	c.stars = make(map[int]*starEntry, len(snap.Stars))
	c.order = c.order[:0]
	for _, s := range snap.Stars {
		c.stars[s.ID] = &starEntry{view: s, version: v}
		c.order = append(c.order, s.ID)
	}

	c.constellations = make([]match.ConstellationView, len(snap.Constellations))
	c.consIndex = make(map[int]int, len(snap.Constellations))
	for i, cv := range snap.Constellations {
		cv.StarIDs = append([]int(nil), cv.StarIDs...)
		cv.NeighborIDs = append([]int(nil), cv.NeighborIDs...)
		c.constellations[i] = cv
		c.consIndex[cv.ID] = i
	}

	for i := range c.factions {
		c.factions[i].state = snap.Factions[i]
		c.factions[i].resVersion = v
		for _, b := range match.BonusCatalog {
			c.factions[i].bonusVersion[b.Kind] = v
		}
	}

	c.ended = snap.Winner != nil
	if c.ended {
		c.winner = *snap.Winner
	}
	return true
}

// HasMap reports whether a map snapshot has been applied
func (c *Cache) HasMap() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mapVersion > 0
}

// MapVersion returns the version of the applied map snapshot
func (c *Cache) MapVersion() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mapVersion
}

// Fingerprint returns the authority's fingerprint of the applied map
func (c *Cache) Fingerprint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.Fingerprint
}

// MatchID returns the id of the replicated match
func (c *Cache) MatchID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.MatchID
}

// Star returns the replicated star with the given id
func (c *Cache) Star(id int) (match.StarView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.stars[id]
	if !ok {
		return match.StarView{}, false
	}
	return e.view, true
}

// Stars returns every replicated star in snapshot order
func (c *Cache) Stars() []match.StarView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]match.StarView, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.stars[id].view)
	}
	return out
}

// Constellations returns the static constellation views
func (c *Cache) Constellations() []match.ConstellationView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]match.ConstellationView, len(c.constellations))
	copy(out, c.constellations)
	return out
}

// Links returns the undirected constellation links published with the map
func (c *Cache) Links() []galaxy.Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]galaxy.Link(nil), c.links...)
}

// StarState derives a star's owner with the same rule the authority uses
func (c *Cache) StarState(id int) galaxy.OwnerState {
	s, ok := c.Star(id)
	if !ok {
		return galaxy.Neutral
	}
	return s.State()
}

// ConstellationState derives a constellation's owner from its replicated
// members
func (c *Cache) ConstellationState(id int) galaxy.OwnerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.consIndex[id]
	if !ok {
		return galaxy.Neutral
	}
	members := make([]*galaxy.Star, 0, len(c.constellations[i].StarIDs))
	for _, sid := range c.constellations[i].StarIDs {
		if e, ok := c.stars[sid]; ok {
			members = append(members, e.view.Star())
		}
	}
	return galaxy.ConstellationState(members)
}

// Map rebuilds a detached galaxy.Map from the cache. Changing it does not
// change the cache.
func (c *Cache) Map() *galaxy.Map {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := galaxy.NewMap(0)
	for _, cv := range c.constellations {
		con := galaxy.NewConstellation(cv.ID, cv.Center)
		con.NeighborIDs = append([]int(nil), cv.NeighborIDs...)
		m.AddConstellation(con)
		for _, sid := range cv.StarIDs {
			if e, ok := c.stars[sid]; ok {
				s := e.view.Star()
				s.ConstellationID = galaxy.Unassigned
				m.AddStar(cv.ID, s)
			}
		}
	}
	return m
}

// Counts tallies ownership of the replicated stars
func (c *Cache) Counts() match.Counts {
	return match.Tally(c.Map())
}

// Faction returns the replicated economy of f
func (c *Cache) Faction(f galaxy.Faction) match.FactionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !f.Valid() {
		return match.FactionState{}
	}
	return c.factions[f].state
}

// Winner returns the winner once MatchEnded has been applied
func (c *Cache) Winner() (galaxy.Faction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.winner, c.ended
}

// Stats returns how many notifications were applied and ignored
func (c *Cache) Stats() (applied, ignored int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.applied, c.ignored
}

// Verify recomputes the map fingerprint from the replicated layout and
// compares it with the one the authority published
func (c *Cache) Verify() bool {
	if !c.HasMap() {
		return false
	}
	return galaxy.Fingerprint(c.Map()) == c.Fingerprint()
}
