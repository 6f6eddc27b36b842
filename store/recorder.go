package store

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"starfall-server/match"
)

const (
	recorderBuffer = 1024
	flushSize      = 50
	flushInterval  = 5 * time.Second
)

// Recorder persists match events and results with batched background
// writes. It implements match.Recorder and never blocks the caller.
type Recorder struct {
	db      *DB
	events  chan match.Event
	results chan match.Result
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	dropped atomic.Int64
}

// NewRecorder creates and starts the background writer
func NewRecorder(db *DB) *Recorder {
	r := &Recorder{
		db:      db,
		events:  make(chan match.Event, recorderBuffer),
		results: make(chan match.Result, 64),
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writer()
	return r
}

// RecordEvent enqueues an event; it is dropped if the buffer is full
func (r *Recorder) RecordEvent(e match.Event) {
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
	}
}

// RecordResult enqueues a finished match; it is dropped if the buffer is full
func (r *Recorder) RecordResult(res match.Result) {
	select {
	case r.results <- res:
	default:
		r.dropped.Add(1)
		log.Printf("store: result for match %s dropped", res.MatchID)
	}
}

// Dropped returns how many records were lost to a full buffer
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Stop flushes what is buffered and shuts the writer down. Records
// submitted after Stop are dropped.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		close(r.stop)
		r.wg.Wait()
	})
}

func (r *Recorder) writer() {
	defer r.wg.Done()

	batch := make([]match.Event, 0, 64)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-r.events:
			batch = append(batch, e)
			if len(batch) >= flushSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case res := <-r.results:
			// events of the match go first so the log is complete when the
			// result shows up
			r.flush(batch)
			batch = batch[:0]
			r.writeResult(res)
		case <-ticker.C:
			r.flush(batch)
			batch = batch[:0]
		case <-r.stop:
			for {
				select {
				case e := <-r.events:
					batch = append(batch, e)
					continue
				case res := <-r.results:
					r.flush(batch)
					batch = batch[:0]
					r.writeResult(res)
					continue
				default:
				}
				break
			}
			r.flush(batch)
			return
		}
	}
}

func (r *Recorder) flush(events []match.Event) {
	if r.db == nil || len(events) == 0 {
		return
	}
	if err := r.db.insertEvents(events); err != nil {
		log.Printf("store: flush %d events: %v", len(events), err)
	}
}

func (r *Recorder) writeResult(res match.Result) {
	if r.db == nil {
		return
	}
	if err := r.db.InsertResult(res); err != nil {
		log.Printf("store: record match %s: %v", res.MatchID, err)
		return
	}
	log.Printf("store: recorded match %s, winner %s", res.MatchID, res.Winner)
}
