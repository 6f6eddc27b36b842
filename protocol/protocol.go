package protocol

import "encoding/json"

// Client -> Server message types
const (
	MsgCreate   = "create"   // create a match and take seat A
	MsgJoin     = "join"     // join a match by id
	MsgLeave    = "leave"
	MsgAttack   = "attack"
	MsgBuy      = "buy"
	MsgGenerate = "generate" // host only
	MsgList     = "list"     // list matches
	MsgCheck    = "check"    // check if a match exists
	MsgAuth     = "auth"     // rebind a seat token after reconnect
)

// Server -> Client message types
const (
	MsgCreated  = "created"
	MsgJoined   = "joined"
	MsgMap      = "map" // JSON fallback; normally sent as a binary frame
	MsgStar     = "star"
	MsgRes      = "res"
	MsgBonus    = "bonus"
	MsgEnded    = "ended"
	MsgSessions = "sessions"
	MsgChecked  = "checked"
	MsgError    = "error"
)

// Seat names on the wire
const (
	SeatA         = "A"
	SeatB         = "B"
	SeatSpectator = "spectator"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope holds an incoming message with its payload left raw until the type is known
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg is sent to open a new match
type CreateMsg struct {
	Name string `json:"name"`
	Tier string `json:"tier,omitempty"`
	Seed int64  `json:"seed,omitempty"`
	Pass string `json:"pass,omitempty"`
}

// JoinMsg is sent to take a seat in an existing match
type JoinMsg struct {
	Name string `json:"name,omitempty"`
	SID  string `json:"sid"`
	Pass string `json:"pass,omitempty"`
}

// AttackMsg is one click on a star
type AttackMsg struct {
	Star  int `json:"star"`
	Power int `json:"p"`
}

// BuyMsg purchases the next level of a bonus
type BuyMsg struct {
	Bonus string `json:"bonus"`
}

// GenerateMsg asks the host's match to build a new map
type GenerateMsg struct {
	Tier string `json:"tier,omitempty"`
	Seed int64  `json:"seed,omitempty"`
}

// CheckMsg is sent by client to check if a match exists
type CheckMsg struct {
	SID string `json:"sid"`
}

// AuthMsg carries a seat token from an earlier join
type AuthMsg struct {
	Token string `json:"token"`
}

// CreatedMsg confirms a new match
type CreatedMsg struct {
	SID  string `json:"sid"`
	Name string `json:"name"`
}

// JoinedMsg tells the client which seat it holds
type JoinedMsg struct {
	SID   string `json:"sid"`
	Seat  string `json:"seat"`
	Host  bool   `json:"host,omitempty"`
	Token string `json:"token,omitempty"`
}

// SessionInfo is used in the match list
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
	Subs    int    `json:"subs"` // connections receiving updates
	Phase   string `json:"phase"`
	Locked  bool   `json:"locked,omitempty"`
}

// CheckedMsg is the response to a match check
type CheckedMsg struct {
	SID     string `json:"sid"`
	Exists  bool   `json:"exists"`
	Name    string `json:"name,omitempty"`
	Players int    `json:"players,omitempty"`
	Locked  bool   `json:"locked,omitempty"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}
