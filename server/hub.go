package server

import (
	"context"
	"sync"

	"starfall-server/match"
	"starfall-server/store"
)

// Hub manages all connected clients and routes them to sessions
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	sessions   *SessionManager
	opts       Options
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	auth *Auth
	db   *store.DB // may be nil
}

// NewHub creates a Hub. db and rec may be nil.
func NewHub(opts Options, db *store.DB, rec match.Recorder) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		sessions:   NewSessionManager(opts.Match, rec, opts.MaxSessions),
		opts:       opts,
		ipConns:    make(map[string]int),
		auth:       NewAuth(opts.JWTSecret, opts.TokenTTL, opts.BcryptCost),
		db:         db,
	}
}

// Done is closed once Run has returned and every match has stopped
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Sessions returns the session manager
func (h *Hub) Sessions() *SessionManager {
	return h.sessions
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= h.opts.MaxTotalConns {
		return false
	}
	if h.ipConns[ip] >= h.opts.MaxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events until ctx is done, then stops
// every match
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.sessions.StopAll()
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
