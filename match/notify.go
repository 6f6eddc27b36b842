package match

import (
	"starfall-server/galaxy"
	"starfall-server/geom"
)

// Notification is a change pushed from the authority. Version is the match
// sequence number at the moment of the change.
type Notification interface {
	Seq() uint64
}

// StarView is the replicated form of a star
type StarView struct {
	ID              int        `json:"id" msgpack:"id"`
	Pos             geom.Point `json:"pos" msgpack:"pos"`
	Size            int        `json:"size" msgpack:"size"`
	MaxHP           int        `json:"hp" msgpack:"hp"`
	DamageA         int        `json:"da" msgpack:"da"`
	DamageB         int        `json:"db" msgpack:"db"`
	ConstellationID int        `json:"c" msgpack:"c"`
}

// ViewOf copies the replicated fields of s
func ViewOf(s *galaxy.Star) StarView {
	return StarView{
		ID:              s.ID,
		Pos:             s.Coordinates,
		Size:            s.Size,
		MaxHP:           s.MaxHP,
		DamageA:         s.DamageA,
		DamageB:         s.DamageB,
		ConstellationID: s.ConstellationID,
	}
}

// Star rebuilds a detached star from the view
func (v StarView) Star() *galaxy.Star {
	return &galaxy.Star{
		ID:              v.ID,
		Coordinates:     v.Pos,
		Size:            v.Size,
		MaxHP:           v.MaxHP,
		DamageA:         v.DamageA,
		DamageB:         v.DamageB,
		ConstellationID: v.ConstellationID,
	}
}

// State derives the owner of the viewed star
func (v StarView) State() galaxy.OwnerState {
	return galaxy.DeriveState(v.DamageA, v.DamageB, v.MaxHP)
}

// ConstellationView is the static replicated form of a constellation
type ConstellationView struct {
	ID          int        `json:"id" msgpack:"id"`
	Center      geom.Point `json:"center" msgpack:"center"`
	StarIDs     []int      `json:"stars" msgpack:"stars"`
	NeighborIDs []int      `json:"nb" msgpack:"nb"`
}

// Snapshot is the full replicated state of a match
type Snapshot struct {
	Version        uint64              `json:"v" msgpack:"v"`
	MatchID        string              `json:"mid" msgpack:"mid"`
	Phase          Phase               `json:"phase" msgpack:"phase"`
	Tier           string              `json:"tier" msgpack:"tier"`
	Seed           int64               `json:"seed" msgpack:"seed"`
	Fingerprint    string              `json:"fp" msgpack:"fp"`
	Width          float64             `json:"w" msgpack:"w"`
	Height         float64             `json:"h" msgpack:"h"`
	Stars          []StarView          `json:"stars" msgpack:"stars"`
	Constellations []ConstellationView `json:"cons" msgpack:"cons"`
	Links          []galaxy.Link       `json:"links" msgpack:"links"`
	Factions       [2]FactionState     `json:"factions" msgpack:"factions"`
	Winner         *galaxy.Faction     `json:"winner,omitempty" msgpack:"winner,omitempty"`
}

// StarChanged carries the new counters of one star
type StarChanged struct {
	Version uint64   `json:"v" msgpack:"v"`
	Star    StarView `json:"star" msgpack:"star"`
}

// MapPublished carries a whole map, once per generation or on subscribe
type MapPublished struct {
	Version  uint64   `json:"v" msgpack:"v"`
	Snapshot Snapshot `json:"snap" msgpack:"snap"`
}

// ResourceUpdated carries a faction's new resource total
type ResourceUpdated struct {
	Version uint64         `json:"v" msgpack:"v"`
	Faction galaxy.Faction `json:"f" msgpack:"f"`
	Total   int            `json:"total" msgpack:"total"`
	Gain    int            `json:"gain" msgpack:"gain"`
}

// BonusUpdated carries a faction's new upgrade level
type BonusUpdated struct {
	Version uint64         `json:"v" msgpack:"v"`
	Faction galaxy.Faction `json:"f" msgpack:"f"`
	Bonus   BonusKind      `json:"bonus" msgpack:"bonus"`
	Level   int            `json:"level" msgpack:"level"`
}

// MatchEnded is published exactly once per match
type MatchEnded struct {
	Version uint64         `json:"v" msgpack:"v"`
	Winner  galaxy.Faction `json:"winner" msgpack:"winner"`
	Counts  Counts         `json:"counts" msgpack:"counts"`
}

func (n StarChanged) Seq() uint64     { return n.Version }
func (n MapPublished) Seq() uint64    { return n.Version }
func (n ResourceUpdated) Seq() uint64 { return n.Version }
func (n BonusUpdated) Seq() uint64    { return n.Version }
func (n MatchEnded) Seq() uint64      { return n.Version }
