package server

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"starfall-server/galaxy"
	"starfall-server/match"
	"starfall-server/protocol"
)

const maxSessionNameLen = 30

// Session is one running match and the clients attached to it
type Session struct {
	ID        string
	Name      string
	Match     *match.Match
	CreatedAt time.Time

	passHash string
	cancel   context.CancelFunc
	frames   protocol.FrameCache

	mu      sync.Mutex
	seats   map[string]*Client // seat A / B -> holder
	members map[*Client]string // client -> seat
}

// Locked reports whether joining needs a password
func (s *Session) Locked() bool {
	return s.passHash != ""
}

// PlayerCount returns how many clients are attached, spectators included
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// assign gives c the first free player seat, or a spectator seat
func (s *Session) assign(c *Client) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seat, ok := s.members[c]; ok {
		return seat
	}
	seat := protocol.SeatSpectator
	for _, candidate := range []string{protocol.SeatA, protocol.SeatB} {
		if s.seats[candidate] == nil {
			seat = candidate
			s.seats[candidate] = c
			break
		}
	}
	s.members[c] = seat
	return seat
}

// claim binds c to a specific player seat, used when a seat token is
// presented. It fails if another client holds the seat.
func (s *Session) claim(c *Client, seat string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder := s.seats[seat]; holder != nil && holder != c {
		return false
	}
	if prev, ok := s.members[c]; ok && prev != seat && s.seats[prev] == c {
		delete(s.seats, prev)
	}
	s.seats[seat] = c
	s.members[c] = seat
	return true
}

// release detaches c and returns how many clients remain
func (s *Session) release(c *Client) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seat, ok := s.members[c]; ok {
		if s.seats[seat] == c {
			delete(s.seats, seat)
		}
		delete(s.members, c)
	}
	return len(s.members)
}

func (s *Session) stop() {
	s.cancel()
	s.Match.Stop()
}

// SessionManager handles creation and lookup of sessions
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	cfg         match.Config
	rec         match.Recorder
	maxSessions int
}

// NewSessionManager creates a SessionManager; rec may be nil
func NewSessionManager(cfg match.Config, rec match.Recorder, maxSessions int) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		cfg:         cfg,
		rec:         rec,
		maxSessions: maxSessions,
	}
}

// CreateSession starts a new match. Returns nil if the limit is reached.
func (sm *SessionManager) CreateSession(name, passHash string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.maxSessions {
		return nil
	}
	if name == "" {
		name = "Contested Sector"
	}
	if len(name) > maxSessionNameLen {
		name = name[:maxSessionNameLen]
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:        id,
		Name:      name,
		Match:     match.New(id, sm.cfg, sm.rec),
		CreatedAt: time.Now(),
		passHash:  passHash,
		cancel:    cancel,
		seats:     make(map[string]*Client),
		members:   make(map[*Client]string),
	}
	sm.sessions[id] = sess
	go sess.Match.Run(ctx)
	log.Printf("session %s: created %q", id, name)
	return sess
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Release detaches c from a session and stops the match once nobody is
// left
func (sm *SessionManager) Release(sessionID string, c *Client) {
	sm.mu.RLock()
	sess, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if !ok {
		return
	}
	if sess.release(c) > 0 {
		return
	}

	sm.mu.Lock()
	if sm.sessions[sessionID] == sess {
		delete(sm.sessions, sessionID)
	}
	sm.mu.Unlock()
	sess.stop()
	log.Printf("session %s: empty, stopped", sessionID)
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ListSessions returns info about all active sessions, oldest first
func (sm *SessionManager) ListSessions(ctx context.Context) []protocol.SessionInfo {
	sm.mu.RLock()
	all := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		all = append(all, sess)
	}
	sm.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	list := make([]protocol.SessionInfo, 0, len(all))
	for _, sess := range all {
		phase := "stopped"
		if snap, err := sess.Match.Snapshot(ctx); err == nil {
			phase = snap.Phase.String()
		}
		list = append(list, protocol.SessionInfo{
			ID:      sess.ID,
			Name:    sess.Name,
			Players: sess.PlayerCount(),
			Subs:    sess.Match.Bus().Len(),
			Phase:   phase,
			Locked:  sess.Locked(),
		})
	}
	return list
}

// StopAll stops every match and waits for the loops to exit, used on
// shutdown
func (sm *SessionManager) StopAll() {
	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()
	for _, sess := range all {
		sess.stop()
	}
	for _, sess := range all {
		<-sess.Match.Done()
	}
}

// roleOf maps a wire seat to the authority role and the faction it plays
func roleOf(seat string) (match.Role, galaxy.Faction) {
	switch seat {
	case protocol.SeatA:
		return match.RoleHost, galaxy.FactionA
	case protocol.SeatB:
		return match.RoleGuest, galaxy.FactionB
	}
	return match.RoleSpectator, galaxy.FactionA
}
