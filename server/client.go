package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"starfall-server/galaxy"
	"starfall-server/match"
	"starfall-server/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
	maxNameLen     = 16
	subscribeWait  = 2 * time.Second
)

// Client represents a WebSocket connection. Match notifications reach it
// through a feed and are queued without blocking, so a slow connection
// loses messages instead of stalling the match.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	limiter    *rate.Limiter
	dropped    int

	// Session state, owned by the ReadPump goroutine
	name      string
	sessionID string
	seat      string
	unsub     func()
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
		limiter:    rate.NewLimiter(rate.Limit(hub.opts.MessagesPerSec), hub.opts.MessageBurst),
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.handleLeave()
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.dropped++
			if c.dropped > c.hub.opts.MaxDropped {
				log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
				break
			}
			continue
		}
		c.dropped = 0
		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(protocol.Envelope{T: protocol.MsgError, Data: protocol.ErrorMsg{Msg: msg}})
}

// feed delivers one session's notifications to a client. It runs on the
// authority goroutine: maps go out as binary frames shared by every
// connection of the session, the rest as JSON envelopes.
type feed struct {
	client *Client
	frames *protocol.FrameCache
}

func (f feed) Notify(n match.Notification) {
	c := f.client
	if mp, ok := n.(match.MapPublished); ok {
		frame, err := f.frames.Frame(mp)
		if err != nil {
			log.Printf("encode map for %s: %v", c.remoteAddr, err)
			return
		}
		c.SendBinary(frame)
		return
	}
	if env, ok := protocol.FromNotification(n); ok {
		c.SendJSON(env)
	}
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env protocol.InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case protocol.MsgList:
		c.handleList()
	case protocol.MsgCreate:
		c.handleCreate(env.D)
	case protocol.MsgJoin:
		c.handleJoin(env.D)
	case protocol.MsgLeave:
		c.handleLeave()
	case protocol.MsgCheck:
		c.handleCheck(env.D)
	case protocol.MsgAuth:
		c.handleAuth(env.D)
	case protocol.MsgAttack:
		c.handleAttack(env.D)
	case protocol.MsgBuy:
		c.handleBuy(env.D)
	case protocol.MsgGenerate:
		c.handleGenerate(env.D)
	}
}

func (c *Client) handleList() {
	ctx, cancel := context.WithTimeout(context.Background(), subscribeWait)
	defer cancel()
	sessions := c.hub.sessions.ListSessions(ctx)
	c.SendJSON(protocol.Envelope{T: protocol.MsgSessions, Data: sessions})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg protocol.CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	tier, err := galaxy.ParseTier(msg.Tier)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	hash, err := c.hub.auth.HashPassword(msg.Pass)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.setName(msg.Name)

	sess := c.hub.sessions.CreateSession(msg.Name, hash)
	if sess == nil {
		c.sendError("too many active sessions")
		return
	}
	c.SendJSON(protocol.Envelope{T: protocol.MsgCreated, Data: protocol.CreatedMsg{SID: sess.ID, Name: sess.Name}})

	if !c.enter(sess, func() (string, bool) { return sess.assign(c), true }) {
		return
	}
	sess.Match.RequestGenerateMap(tier, msg.Seed)
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg protocol.JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.sendError("session not found")
		return
	}
	if !c.hub.auth.CheckPassword(sess.passHash, msg.Pass) {
		c.sendError("wrong password")
		return
	}
	c.setName(msg.Name)
	c.enter(sess, func() (string, bool) { return sess.assign(c), true })
}

func (c *Client) handleAuth(data json.RawMessage) {
	var msg protocol.AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	claims, err := c.hub.auth.ValidateSeat(msg.Token)
	if err != nil {
		c.sendError("invalid token")
		return
	}
	sess := c.hub.sessions.GetSession(claims.SID)
	if sess == nil {
		c.sendError("session not found")
		return
	}
	if !c.enter(sess, func() (string, bool) { return claims.Seat, sess.claim(c, claims.Seat) }) {
		c.sendError("seat taken")
	}
}

// enter leaves any other session, binds a seat with bind, tells the client
// and subscribes it to the match. A late subscriber gets the current map
// right after joined.
func (c *Client) enter(sess *Session, bind func() (string, bool)) bool {
	if c.sessionID != "" && c.sessionID != sess.ID {
		c.handleLeave()
	}
	seat, ok := bind()
	if !ok {
		return false
	}
	c.sessionID = sess.ID
	c.seat = seat

	joined := protocol.JoinedMsg{SID: sess.ID, Seat: seat, Host: seat == protocol.SeatA}
	if seat != protocol.SeatSpectator {
		token, err := c.hub.auth.IssueSeat(sess.ID, seat)
		if err != nil {
			log.Printf("session %s: token for seat %s: %v", sess.ID, seat, err)
		}
		joined.Token = token
	}
	c.SendJSON(protocol.Envelope{T: protocol.MsgJoined, Data: joined})
	log.Printf("session %s: %q took seat %s", sess.ID, c.name, seat)

	if c.unsub != nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), subscribeWait)
	defer cancel()
	unsub, err := sess.Match.Subscribe(ctx, feed{client: c, frames: &sess.frames})
	if err != nil {
		log.Printf("session %s: subscribe: %v", sess.ID, err)
		c.sendError("match unavailable")
		c.handleLeave()
		return false
	}
	c.unsub = unsub
	return true
}

func (c *Client) handleCheck(data json.RawMessage) {
	var msg protocol.CheckMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.SendJSON(protocol.Envelope{T: protocol.MsgChecked, Data: protocol.CheckedMsg{SID: msg.SID, Exists: false}})
		return
	}
	c.SendJSON(protocol.Envelope{T: protocol.MsgChecked, Data: protocol.CheckedMsg{
		SID:     msg.SID,
		Exists:  true,
		Name:    sess.Name,
		Players: sess.PlayerCount(),
		Locked:  sess.Locked(),
	}})
}

func (c *Client) handleLeave() {
	if c.sessionID == "" {
		return
	}
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.hub.sessions.Release(c.sessionID, c)
	c.sessionID = ""
	c.seat = ""
}

// session returns the client's live session
func (c *Client) session() *Session {
	if c.sessionID == "" {
		return nil
	}
	return c.hub.sessions.GetSession(c.sessionID)
}

func (c *Client) handleAttack(data json.RawMessage) {
	sess := c.session()
	if sess == nil {
		return
	}
	var msg protocol.AttackMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	role, faction := roleOf(c.seat)
	sess.Match.Submit(match.Attack{Origin: role, StarID: msg.Star, Faction: faction, Power: msg.Power})
}

func (c *Client) handleBuy(data json.RawMessage) {
	sess := c.session()
	if sess == nil {
		return
	}
	var msg protocol.BuyMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	kind, err := match.ParseBonus(msg.Bonus)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	role, faction := roleOf(c.seat)
	sess.Match.Submit(match.Purchase{Origin: role, Faction: faction, Bonus: kind})
}

func (c *Client) handleGenerate(data json.RawMessage) {
	sess := c.session()
	if sess == nil {
		return
	}
	var msg protocol.GenerateMsg
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
	}
	tier, err := galaxy.ParseTier(msg.Tier)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	role, _ := roleOf(c.seat)
	sess.Match.Submit(match.Generate{Origin: role, Tier: tier, Seed: msg.Seed})
}

func (c *Client) setName(name string) {
	if name == "" {
		name = "Commander"
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	c.name = name
}
