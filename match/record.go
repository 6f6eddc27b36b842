package match

import (
	"time"

	"starfall-server/galaxy"
)

// Event is one line of the match event log
type Event struct {
	MatchID string
	Version uint64
	Kind    string
	Detail  string
	At      time.Time
}

// Result is the history row written when a match ends
type Result struct {
	MatchID        string
	Tier           string
	Seed           int64
	Fingerprint    string
	Winner         galaxy.Faction
	Counts         Counts
	Constellations int
	StartedAt      time.Time
	EndedAt        time.Time
}

// Duration returns how long the match was in play
func (r Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Recorder persists match bookkeeping. Calls come from the authority
// goroutine, so implementations must return quickly.
type Recorder interface {
	RecordEvent(e Event)
	RecordResult(r Result)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(Event)   {}
func (nopRecorder) RecordResult(Result) {}
