package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"starfall-server/galaxy"
)

// Phase represents the lifecycle of a match
type Phase int

const (
	PhaseLobby   Phase = 0 // no map yet
	PhasePlaying Phase = 1
	PhaseEnded   Phase = 2
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhasePlaying:
		return "playing"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Role is the seat a request comes from
type Role int

const (
	RoleSpectator Role = 0
	RoleHost      Role = 1 // faction A, may generate
	RoleGuest     Role = 2 // faction B
)

// RoleFor returns the seat that plays f
func RoleFor(f galaxy.Faction) Role {
	switch f {
	case galaxy.FactionA:
		return RoleHost
	case galaxy.FactionB:
		return RoleGuest
	}
	return RoleSpectator
}

// Faction returns the faction the role plays, false for spectators
func (r Role) Faction() (galaxy.Faction, bool) {
	switch r {
	case RoleHost:
		return galaxy.FactionA, true
	case RoleGuest:
		return galaxy.FactionB, true
	}
	return 0, false
}

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	}
	return "spectator"
}

// Attack asks the authority to damage a star on behalf of Faction
type Attack struct {
	Origin  Role
	StarID  int
	Faction galaxy.Faction
	Power   int
}

// Generate asks the authority to build a new map
type Generate struct {
	Origin Role
	Tier   galaxy.Tier
	Seed   int64
}

// Purchase asks the authority to buy the next level of a bonus
type Purchase struct {
	Origin  Role
	Faction galaxy.Faction
	Bonus   BonusKind
}

type snapshotRequest struct {
	reply chan<- Snapshot
}

type subscribeRequest struct {
	sub   Subscriber
	reply chan<- func()
}

// ErrStopped is returned by blocking calls once the authority loop has exited
var ErrStopped = errors.New("match stopped")

// Match is the single authority for one game. Everything below the
// channels is owned by the Run goroutine and touched nowhere else.
type Match struct {
	ID string

	cfg      Config
	inbox    chan any
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	bus      *Bus
	rec      Recorder
	now      func() time.Time

	gmap        *galaxy.Map
	phase       Phase
	winner      galaxy.Faction
	version     uint64
	factions    [2]FactionState
	tier        galaxy.Tier
	seed        int64
	fingerprint string
	startedAt   time.Time
	rejected    int
}

// New creates a match in the lobby phase. rec may be nil.
func New(id string, cfg Config, rec Recorder) *Match {
	cfg = cfg.withDefaults()
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Match{
		ID:    id,
		cfg:   cfg,
		inbox: make(chan any, cfg.InboxSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		bus:   NewBus(),
		rec:   rec,
		now:   time.Now,
		gmap:  galaxy.NewMap(cfg.Galaxy.Sentinel()),
	}
}

// Bus returns the match's notification bus
func (m *Match) Bus() *Bus {
	return m.bus
}

// Done is closed when the authority loop exits
func (m *Match) Done() <-chan struct{} {
	return m.done
}

// Stop terminates the authority loop
func (m *Match) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
}

// Run is the authority loop: commands in arrival order plus both evaluators.
// It returns when ctx is cancelled or Stop is called.
func (m *Match) Run(ctx context.Context) {
	defer close(m.done)

	win := time.NewTicker(m.cfg.WinInterval)
	defer win.Stop()
	econ := time.NewTicker(m.cfg.EconomyInterval)
	defer econ.Stop()

	log.Printf("match %s: authority started", m.ID)
	defer log.Printf("match %s: authority stopped", m.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.quit:
			return
		case cmd := <-m.inbox:
			m.dispatch(cmd)
		case <-win.C:
			m.evaluateWin()
		case <-econ.C:
			m.accrue()
		}
	}
}

// Submit enqueues a command. It blocks only while the inbox is full and
// returns false once the loop has exited.
func (m *Match) Submit(cmd any) bool {
	select {
	case m.inbox <- cmd:
		return true
	case <-m.done:
		return false
	case <-m.quit:
		return false
	}
}

// RequestAttack forwards an attack by attacker's own seat
func (m *Match) RequestAttack(starID int, attacker galaxy.Faction, power int) {
	m.Submit(Attack{Origin: RoleFor(attacker), StarID: starID, Faction: attacker, Power: power})
}

// RequestGenerateMap forwards a host generation request
func (m *Match) RequestGenerateMap(tier galaxy.Tier, seed int64) {
	m.Submit(Generate{Origin: RoleHost, Tier: tier, Seed: seed})
}

// RequestPurchase forwards a bonus purchase by f's own seat
func (m *Match) RequestPurchase(f galaxy.Faction, kind BonusKind) {
	m.Submit(Purchase{Origin: RoleFor(f), Faction: f, Bonus: kind})
}

// Snapshot returns the current replicated state
func (m *Match) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !m.Submit(snapshotRequest{reply: reply}) {
		return Snapshot{}, ErrStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-m.done:
		return Snapshot{}, ErrStopped
	}
}

// Subscribe registers sub with the bus from inside the loop, so a late
// subscriber gets the current map before any later change.
func (m *Match) Subscribe(ctx context.Context, sub Subscriber) (func(), error) {
	reply := make(chan func(), 1)
	if !m.Submit(subscribeRequest{sub: sub, reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case unsub := <-reply:
		return unsub, nil
	case <-ctx.Done():
		go func() {
			select {
			case unsub := <-reply:
				unsub()
			case <-m.done:
			}
		}()
		return nil, ctx.Err()
	case <-m.done:
		return nil, ErrStopped
	}
}

func (m *Match) dispatch(cmd any) {
	var err error
	switch c := cmd.(type) {
	case Attack:
		err = m.handleAttack(c)
	case Generate:
		err = m.handleGenerate(c)
	case Purchase:
		err = m.handlePurchase(c)
	case snapshotRequest:
		c.reply <- m.snapshot()
	case subscribeRequest:
		unsub := m.bus.Subscribe(c.sub)
		if m.phase != PhaseLobby {
			c.sub.Notify(MapPublished{Version: m.version, Snapshot: m.snapshot()})
		}
		c.reply <- unsub
	default:
		err = fmt.Errorf("unknown command %T", cmd)
	}
	if err != nil {
		m.rejected++
		log.Printf("match %s: rejected %T: %v", m.ID, cmd, err)
	}
}

func (m *Match) next() uint64 {
	m.version++
	return m.version
}

func (m *Match) record(kind, detail string) {
	m.rec.RecordEvent(Event{MatchID: m.ID, Version: m.version, Kind: kind, Detail: detail, At: m.now()})
}

func (m *Match) handleGenerate(c Generate) error {
	if m.phase == PhaseEnded {
		return reject(CodeMatchEnded, "cannot regenerate a finished match")
	}
	if c.Origin != RoleHost {
		return reject(CodeNotAuthority, fmt.Sprintf("%s may not generate the map", c.Origin))
	}
	res, err := galaxy.Generate(m.gmap, m.cfg.Galaxy, c.Tier, c.Seed)
	if err != nil {
		return reject(CodeGeneration, err.Error())
	}

	m.tier = res.Tier
	m.seed = res.Seed
	m.fingerprint = galaxy.Fingerprint(m.gmap)
	m.factions = [2]FactionState{}
	m.phase = PhasePlaying
	m.startedAt = m.now()

	v := m.next()
	m.bus.Publish(MapPublished{Version: v, Snapshot: m.snapshot()})
	m.record("generate", fmt.Sprintf("tier=%s seed=%d constellations=%d stars=%d fp=%s",
		res.Tier, res.Seed, m.gmap.Len(), m.gmap.StarCount(), m.fingerprint))
	return nil
}

func (m *Match) handleAttack(c Attack) error {
	switch m.phase {
	case PhaseEnded:
		return reject(CodeMatchEnded, fmt.Sprintf("attack on star %d", c.StarID))
	case PhaseLobby:
		return reject(CodeNoMap, fmt.Sprintf("attack on star %d", c.StarID))
	}
	if f, ok := c.Origin.Faction(); !ok || f != c.Faction {
		return reject(CodeNotAuthority, fmt.Sprintf("%s may not attack for %s", c.Origin, c.Faction))
	}
	if c.Power <= 0 {
		return reject(CodeInvalidPower, fmt.Sprintf("power %d", c.Power))
	}
	star, ok := m.gmap.Star(c.StarID)
	if !ok {
		return reject(CodeUnknownStar, fmt.Sprintf("star %d", c.StarID))
	}
	if limit := m.factions[c.Faction].ClickPower(); m.cfg.EnforceClickPower && c.Power > limit {
		return reject(CodePowerExceeded, fmt.Sprintf("power %d above click power %d", c.Power, limit))
	}

	before := star.State()
	star.ApplyDamage(c.Faction, c.Power)
	v := m.next()
	m.bus.Publish(StarChanged{Version: v, Star: ViewOf(star)})

	if after := star.State(); after != before {
		log.Printf("match %s: star %d %s -> %s", m.ID, star.ID, before, after)
		kind := "capture"
		if after != c.Faction.Owned() {
			kind = "neutralize"
		}
		m.record(kind, fmt.Sprintf("star=%d from=%s to=%s by=%s", star.ID, before, after, c.Faction))
	}
	return nil
}

func (m *Match) handlePurchase(c Purchase) error {
	switch m.phase {
	case PhaseEnded:
		return reject(CodeMatchEnded, fmt.Sprintf("purchase of %s", c.Bonus))
	case PhaseLobby:
		return reject(CodeNoMap, fmt.Sprintf("purchase of %s", c.Bonus))
	}
	if f, ok := c.Origin.Faction(); !ok || f != c.Faction {
		return reject(CodeNotAuthority, fmt.Sprintf("%s may not buy for %s", c.Origin, c.Faction))
	}
	st := &m.factions[c.Faction]
	if err := st.Buy(c.Bonus); err != nil {
		return err
	}

	m.bus.Publish(ResourceUpdated{Version: m.next(), Faction: c.Faction, Total: st.Resources})
	m.bus.Publish(BonusUpdated{Version: m.next(), Faction: c.Faction, Bonus: c.Bonus, Level: st.Level(c.Bonus)})
	log.Printf("match %s: %s bought %s level %d", m.ID, c.Faction, c.Bonus, st.Level(c.Bonus))
	m.record("purchase", fmt.Sprintf("faction=%s bonus=%s level=%d", c.Faction, c.Bonus, st.Level(c.Bonus)))
	return nil
}

// evaluateWin runs every WinInterval. After the first decision it is a no-op.
func (m *Match) evaluateWin() {
	if m.phase != PhasePlaying {
		return
	}
	counts := Tally(m.gmap)
	winner, ok := Winner(counts)
	if !ok {
		return
	}

	m.phase = PhaseEnded
	m.winner = winner
	m.bus.Publish(MatchEnded{Version: m.next(), Winner: winner, Counts: counts})
	log.Printf("match %s: %s wins (a=%d b=%d neutral=%d)", m.ID, winner, counts.A, counts.B, counts.Neutral)

	m.record("ended", fmt.Sprintf("winner=%s", winner))
	m.rec.RecordResult(Result{
		MatchID:        m.ID,
		Tier:           m.tier.String(),
		Seed:           m.seed,
		Fingerprint:    m.fingerprint,
		Winner:         winner,
		Counts:         counts,
		Constellations: m.gmap.Len(),
		StartedAt:      m.startedAt,
		EndedAt:        m.now(),
	})
}

// accrue runs every EconomyInterval and pays both factions
func (m *Match) accrue() {
	if m.phase != PhasePlaying {
		return
	}
	counts := Tally(m.gmap)
	for _, f := range galaxy.Factions {
		st := &m.factions[f]
		gain := st.Gain(counts.Owned(f), m.cfg.Yield)
		st.Resources += gain
		m.bus.Publish(ResourceUpdated{Version: m.next(), Faction: f, Total: st.Resources, Gain: gain})
	}
}

func (m *Match) snapshot() Snapshot {
	s := Snapshot{
		Version:  m.version,
		MatchID:  m.ID,
		Phase:    m.phase,
		Width:    m.cfg.Galaxy.Width,
		Height:   m.cfg.Galaxy.Height,
		Factions: m.factions,
	}
	if m.phase == PhaseLobby {
		return s
	}
	s.Tier = m.tier.String()
	s.Seed = m.seed
	s.Fingerprint = m.fingerprint

	stars := m.gmap.Stars()
	s.Stars = make([]StarView, len(stars))
	for i, star := range stars {
		s.Stars[i] = ViewOf(star)
	}
	cons := m.gmap.Constellations()
	s.Constellations = make([]ConstellationView, len(cons))
	for i, c := range cons {
		s.Constellations[i] = ConstellationView{
			ID:          c.ID,
			Center:      c.Center,
			StarIDs:     append([]int(nil), c.StarIDs...),
			NeighborIDs: append([]int(nil), c.NeighborIDs...),
		}
	}
	s.Links = galaxy.UndirectedEdges(m.gmap)
	if m.phase == PhaseEnded {
		w := m.winner
		s.Winner = &w
	}
	return s
}
