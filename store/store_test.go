package store

import (
	"path/filepath"
	"testing"
	"time"

	"starfall-server/galaxy"
	"starfall-server/match"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func result(id string, winner galaxy.Faction, ended time.Time) match.Result {
	return match.Result{
		MatchID:        id,
		Tier:           "small",
		Seed:           7,
		Fingerprint:    "fp-" + id,
		Winner:         winner,
		Counts:         match.Counts{A: 5, B: 0, Neutral: 3},
		Constellations: 3,
		StartedAt:      ended.Add(-90 * time.Second),
		EndedAt:        ended,
	}
}

func TestInsertAndListResults(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := db.InsertResult(result("one", galaxy.FactionA, base)); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertResult(result("two", galaxy.FactionB, base.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	// duplicate ids are ignored
	if err := db.InsertResult(result("one", galaxy.FactionB, base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	rows, err := db.RecentMatches(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(rows))
	}
	if rows[0].MatchID != "two" || rows[1].MatchID != "one" {
		t.Errorf("expected newest first, got %s, %s", rows[0].MatchID, rows[1].MatchID)
	}
	one := rows[1]
	if one.Winner != "A" || one.StarsA != 5 || one.StarsNeutral != 3 || one.Constellations != 3 {
		t.Errorf("unexpected row %+v", one)
	}
	if one.Duration != 90 {
		t.Errorf("expected 90s duration, got %v", one.Duration)
	}
	if !one.EndedAt.Equal(base) {
		t.Errorf("expected ended_at %v, got %v", base, one.EndedAt)
	}

	limited, _ := db.RecentMatches(1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}

func TestMatchByID(t *testing.T) {
	db := openTestDB(t)
	db.InsertResult(result("x", galaxy.FactionB, time.Now()))

	row, err := db.MatchByID("x")
	if err != nil || row == nil {
		t.Fatalf("expected row, got %v %v", row, err)
	}
	if row.Fingerprint != "fp-x" || row.Seed != 7 {
		t.Errorf("unexpected row %+v", row)
	}
	missing, err := db.MatchByID("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown match, got %v %v", missing, err)
	}
}

func TestWinCounts(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	db.InsertResult(result("a1", galaxy.FactionA, now))
	db.InsertResult(result("a2", galaxy.FactionA, now))
	db.InsertResult(result("b1", galaxy.FactionB, now))

	wins, err := db.WinCounts()
	if err != nil {
		t.Fatal(err)
	}
	if wins[galaxy.FactionA] != 2 || wins[galaxy.FactionB] != 1 {
		t.Errorf("expected A=2 B=1, got %v", wins)
	}
}

func TestRecorderFlushesOnStop(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db)

	at := time.Now()
	rec.RecordEvent(match.Event{MatchID: "m", Version: 1, Kind: "generate", Detail: "small seed 7", At: at})
	rec.RecordEvent(match.Event{MatchID: "m", Version: 4, Kind: "capture", Detail: "star 2 by A", At: at})
	rec.RecordEvent(match.Event{MatchID: "other", Version: 1, Kind: "generate", At: at})
	rec.RecordResult(result("m", galaxy.FactionA, at))
	rec.Stop()
	rec.Stop()

	events, err := db.Events("m")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != "generate" || events[1].Kind != "capture" || events[1].Version != 4 {
		t.Errorf("unexpected events %+v", events)
	}
	if events[1].Detail != "star 2 by A" {
		t.Errorf("expected detail preserved, got %q", events[1].Detail)
	}

	row, _ := db.MatchByID("m")
	if row == nil {
		t.Fatal("expected result row after stop")
	}
	if rec.Dropped() != 0 {
		t.Errorf("expected nothing dropped, got %d", rec.Dropped())
	}
}

func TestRecorderWithoutDB(t *testing.T) {
	rec := NewRecorder(nil)
	rec.RecordEvent(match.Event{MatchID: "m", Kind: "generate"})
	rec.RecordResult(match.Result{MatchID: "m"})
	rec.Stop()
}

func TestRecorderDropsWhenFull(t *testing.T) {
	// no writer goroutine, so the buffer fills
	rec := &Recorder{
		events:  make(chan match.Event, 1),
		results: make(chan match.Result, 1),
	}
	rec.RecordEvent(match.Event{})
	rec.RecordEvent(match.Event{})
	rec.RecordResult(match.Result{})
	rec.RecordResult(match.Result{})
	if rec.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", rec.Dropped())
	}
}
