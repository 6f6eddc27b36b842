package galaxy

import (
	crand "crypto/rand"
	"encoding/binary"
	"log"
	"math"
	"math/rand"

	"starfall-server/geom"
)

// Placement records an accepted constellation center and the exclusion radius
// that was in effect when it was accepted.
type Placement struct {
	ConstellationID int
	Center          geom.Point
	Radius          float64
}

// Result describes one generation run
type Result struct {
	Tier       Tier
	Seed       int64
	Requested  int
	Placements []Placement
	Skipped    int // centers or stars dropped after exhausting their caps
}

// NewSeed draws a non-zero seed from crypto/rand
func NewSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		log.Printf("galaxy: crypto seed unavailable, falling back: %v", err)
		return rand.Int63() | 1
	}
	seed := int64(binary.LittleEndian.Uint64(b[:]) &^ (1 << 63))
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Generator builds maps from a Config and a seeded random source
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// NewGenerator creates a generator. Seed 0 draws a fresh seed.
func NewGenerator(cfg Config, seed int64) (*Generator, int64) {
	if seed == 0 {
		seed = NewSeed()
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}, seed
}

// Generate clears m and fills it with a freshly generated galaxy for tier,
// then resolves constellation neighbors. An invalid config is the only
// error; shortfalls produce a smaller map and a warning.
func Generate(m *Map, cfg Config, tier Tier, seed int64) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if !tier.Valid() {
		log.Printf("galaxy: warning: unknown tier %d, using %s", int(tier), TierNormal)
		tier = TierNormal
	}
	g, seed := NewGenerator(cfg, seed)
	res := Result{Tier: tier, Seed: seed, Requested: tier.Constellations()}

	m.Clear()
	m.sentinel = cfg.Sentinel()

	res.Placements = g.placeCenters(res.Requested)
	res.Skipped = res.Requested - len(res.Placements)
	for _, p := range res.Placements {
		m.AddConstellation(NewConstellation(p.ConstellationID, p.Center))
	}

	nextStarID := 0
	for _, c := range m.Constellations() {
		spread := m.DistanceToClosestConstellation(c.Center, c.ID) * cfg.SpreadFactor
		want := StarCountForRoll(g.rng.Float64() * 100)
		placed := g.placeStars(m, c, spread, want, &nextStarID)
		if placed < want {
			res.Skipped += want - placed
			log.Printf("galaxy: warning: constellation %d placed %d/%d stars", c.ID, placed, want)
		}
	}

	ResolveNeighbors(m, cfg.NeighborLimit)

	log.Printf("galaxy: generated %d/%d constellations, %d stars (tier=%s seed=%d)",
		m.Len(), res.Requested, m.StarCount(), tier, seed)
	return res, nil
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// intn returns a uniform integer in [lo, hi]
func (g *Generator) intn(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

// placeCenters rejection-samples up to count centers. The exclusion radius
// only ever shrinks over the whole run.
func (g *Generator) placeCenters(count int) []Placement {
	bounds := geom.Centered(g.cfg.Width, g.cfg.Height)
	radius := g.cfg.InitialRadius
	placements := make([]Placement, 0, count)

	for i := 0; i < count; i++ {
		accepted := false
		var candidate geom.Point
		local, total := 0, 0
		for !accepted && total < g.cfg.MaxCenterTries {
			candidate = geom.Pt(
				g.uniform(bounds.MinX, bounds.MaxX),
				g.uniform(bounds.MinY, bounds.MaxY),
			)
			accepted = true
			for _, p := range placements {
				if geom.Distance(candidate, p.Center) < radius {
					accepted = false
					break
				}
			}
			if accepted {
				break
			}
			local++
			total++
			if local >= g.cfg.LocalAttempts {
				radius *= g.cfg.RadiusShrink
				local = 0
			}
		}
		if !accepted {
			log.Printf("galaxy: warning: skipped constellation %d/%d after %d attempts", i+1, count, total)
			continue
		}
		placements = append(placements, Placement{
			ConstellationID: len(placements),
			Center:          candidate,
			Radius:          radius,
		})
	}
	return placements
}

// placeStars puts the primary star on the center and polar-samples the rest
// inside spread. Returns how many stars were placed.
func (g *Generator) placeStars(m *Map, c *Constellation, spread float64, want int, nextID *int) int {
	add := func(pos geom.Point, size int) {
		s := NewStar(*nextID, pos, size, g.intn(MinStarHP, MaxStarHP))
		*nextID++
		m.AddStar(c.ID, s)
	}

	add(c.Center, g.intn(g.cfg.PrimaryMinSize, g.cfg.PrimaryMaxSize))
	positions := []geom.Point{c.Center}
	spacing := g.cfg.InitialSpacing

	for n := 1; n < want; n++ {
		local, total := 0, 0
		for total < g.cfg.MaxStarTries {
			dist := g.uniform(0, spread)
			angle := g.uniform(0, 2*math.Pi)
			candidate := c.Center.Add(geom.Polar(angle, dist))

			ok := true
			for _, p := range positions {
				if geom.Distance(candidate, p) < spacing {
					ok = false
					break
				}
			}
			if ok {
				add(candidate, g.intn(MinStarSize, MaxStarSize))
				positions = append(positions, candidate)
				break
			}
			local++
			total++
			if local >= g.cfg.StarLocalAttempts {
				spacing *= g.cfg.SpacingShrink
				local = 0
			}
		}
	}
	return len(positions)
}
