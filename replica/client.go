package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"starfall-server/match"
	"starfall-server/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = protocol.MaxFrameBytes
	sendBufSize    = 64
)

// ErrClosed is returned when sending on a closed client
var ErrClosed = errors.New("replica: client closed")

// Client is a remote participant. It keeps a Cache in sync with the
// authority and forwards mutation requests; it never applies them itself.
type Client struct {
	conn  *websocket.Conn
	cache *Cache
	send  chan []byte
	quit  chan struct{}
	once  sync.Once

	mu    sync.RWMutex
	sid   string
	seat  string
	host  bool
	token string
	await []*Readiness

	// Optional hooks, set before Run
	OnNotify  func(n match.Notification, applied bool)
	OnMessage func(env protocol.InEnvelope)
}

// Dial connects to the authority's websocket endpoint
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newClient(conn), nil
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:  conn,
		cache: NewCache(),
		send:  make(chan []byte, sendBufSize),
		quit:  make(chan struct{}),
	}
}

// Cache returns the replicated state
func (c *Client) Cache() *Cache {
	return c.cache
}

// Seat returns the seat assigned by the last joined message
func (c *Client) Seat() (sid, seat string, host bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sid, c.seat, c.host
}

// Token returns the seat token from the last joined message
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Run pumps messages until the connection drops or ctx is done
func (c *Client) Run(ctx context.Context) error {
	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.quit:
		}
	}()
	return c.readPump()
}

func (c *Client) readPump() error {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.quit:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if msgType == websocket.BinaryMessage {
			mp, err := protocol.DecodeMapFrame(message)
			if err != nil {
				log.Printf("replica: %v", err)
				continue
			}
			c.apply(mp)
			continue
		}
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		log.Printf("replica: %v", err)
		return
	}
	n, ok, err := protocol.ToNotification(env)
	if err != nil {
		log.Printf("replica: bad %s payload: %v", env.T, err)
		return
	}
	if ok {
		c.apply(n)
		return
	}

	switch env.T {
	case protocol.MsgJoined:
		if joined, err := protocol.DecodePayload[protocol.JoinedMsg](env); err == nil {
			c.mu.Lock()
			c.sid, c.seat, c.host = joined.SID, joined.Seat, joined.Host
			if joined.Token != "" {
				c.token = joined.Token
			}
			c.mu.Unlock()
		}
	case protocol.MsgError:
		if e, err := protocol.DecodePayload[protocol.ErrorMsg](env); err == nil {
			log.Printf("replica: server error: %s", e.Msg)
		}
	}
	if c.OnMessage != nil {
		c.OnMessage(env)
	}
}

func (c *Client) apply(n match.Notification) {
	applied := c.cache.Apply(n)
	if _, ok := n.(match.MapPublished); ok && applied {
		c.mu.Lock()
		waiting := c.await
		c.await = nil
		c.mu.Unlock()
		for _, r := range waiting {
			r.Signal()
		}
	}
	if c.OnNotify != nil {
		c.OnNotify(n, applied)
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.quit)
		// Give the write pump a moment to send the close frame
		time.AfterFunc(100*time.Millisecond, func() { c.conn.Close() })
	})
	return nil
}

func (c *Client) sendMsg(t string, data any) error {
	raw, err := json.Marshal(protocol.Envelope{T: t, Data: data})
	if err != nil {
		return err
	}
	select {
	case c.send <- raw:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

// Create opens a new match; the server answers with created and joined
func (c *Client) Create(name, tier string, seed int64, pass string) error {
	return c.sendMsg(protocol.MsgCreate, protocol.CreateMsg{Name: name, Tier: tier, Seed: seed, Pass: pass})
}

// Join takes a seat in an existing match
func (c *Client) Join(sid, pass string) error {
	return c.sendMsg(protocol.MsgJoin, protocol.JoinMsg{SID: sid, Pass: pass})
}

// Auth rebinds a seat from an earlier token
func (c *Client) Auth(token string) error {
	return c.sendMsg(protocol.MsgAuth, protocol.AuthMsg{Token: token})
}

// Attack forwards an attack to the authority
func (c *Client) Attack(starID, power int) error {
	return c.sendMsg(protocol.MsgAttack, protocol.AttackMsg{Star: starID, Power: power})
}

// Buy forwards a bonus purchase to the authority
func (c *Client) Buy(bonus match.BonusKind) error {
	return c.sendMsg(protocol.MsgBuy, protocol.BuyMsg{Bonus: string(bonus)})
}

// Generate asks for a new map; only the host's request is honoured
func (c *Client) Generate(tier string, seed int64) error {
	return c.sendMsg(protocol.MsgGenerate, protocol.GenerateMsg{Tier: tier, Seed: seed})
}

// List asks for the open matches
func (c *Client) List() error {
	return c.sendMsg(protocol.MsgList, nil)
}

// Leave gives up the current seat
func (c *Client) Leave() error {
	return c.sendMsg(protocol.MsgLeave, nil)
}

// AwaitMap returns a Readiness that settles once the first map has been
// replicated, or times out. It is signalled as soon as a map applies; the
// poll only covers a map that arrived before the call.
func (c *Client) AwaitMap(timeout time.Duration) *Readiness {
	r := NewReadiness(c.cache.HasMap, timeout, 250*time.Millisecond)
	c.mu.Lock()
	c.await = append(c.await, r)
	c.mu.Unlock()
	return r
}
