package server

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"starfall-server/galaxy"
	"starfall-server/store"
)

const (
	qrSize        = 256
	maxHistoryRow = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// matchDetail is one history row with its event log
type matchDetail struct {
	Match  *store.MatchRow  `json:"match"`
	Events []store.EventRow `json:"events"`
}

// joinURL is the link encoded in a match's QR code
func (h *Hub) joinURL(r *http.Request, sid string) string {
	base := h.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?sid=" + url.QueryEscape(sid)
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.add(client)

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("GET /qr/{sid}", func(w http.ResponseWriter, r *http.Request) {
		sid := r.PathValue("sid")
		if hub.sessions.GetSession(sid) == nil {
			http.NotFound(w, r)
			return
		}
		png, err := qrcode.Encode(hub.joinURL(r, sid), qrcode.Medium, qrSize)
		if err != nil {
			log.Printf("qr %s: %v", sid, err)
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	mux.HandleFunc("GET /api/matches", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxHistoryRow)
		}
		rows, err := hub.db.RecentMatches(limit)
		if err != nil {
			log.Printf("api matches: %v", err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.HandleFunc("GET /api/matches/{id}", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			http.NotFound(w, r)
			return
		}
		id := r.PathValue("id")
		row, err := hub.db.MatchByID(id)
		if err != nil {
			log.Printf("api match %s: %v", id, err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		if row == nil {
			http.NotFound(w, r)
			return
		}
		events, err := hub.db.Events(id)
		if err != nil {
			log.Printf("api match %s events: %v", id, err)
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []store.EventRow{}
		}
		writeJSON(w, http.StatusOK, matchDetail{Match: row, Events: events})
	})

	mux.HandleFunc("GET /api/wins", func(w http.ResponseWriter, r *http.Request) {
		var wins map[galaxy.Faction]int
		if hub.db != nil {
			var err error
			if wins, err = hub.db.WinCounts(); err != nil {
				log.Printf("api wins: %v", err)
				http.Error(w, "database error", http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"a": wins[galaxy.FactionA],
			"b": wins[galaxy.FactionB],
		})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"clients":  hub.ClientCount(),
			"sessions": hub.sessions.Count(),
		})
	})

	return mux
}
