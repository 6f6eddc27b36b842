package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"starfall-server/galaxy"
	"starfall-server/match"
	"starfall-server/protocol"
	"starfall-server/store"
)

// ---------- helpers ----------

// wsMsg is one received message; binary map frames are decoded into Map
type wsMsg struct {
	T   string
	D   json.RawMessage
	Map *match.MapPublished
}

// startTestServer spins up an httptest.Server with a Hub and returns the
// hub, the server and its WebSocket URL
func startTestServer(t *testing.T, opts Options, db *store.DB) (*Hub, *httptest.Server, string) {
	t.Helper()
	if opts.Match.WinInterval == 0 {
		opts.Match = quietMatch()
	}
	opts.BcryptCost = bcrypt.MinCost

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(opts, db, nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMsg reads one message from the WebSocket.
func readMsg(t *testing.T, conn *websocket.Conn) wsMsg {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if msgType == websocket.BinaryMessage {
		mp, err := protocol.DecodeMapFrame(raw)
		if err != nil {
			t.Fatalf("decode map frame: %v", err)
		}
		return wsMsg{T: protocol.MsgMap, Map: &mp}
	}
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return wsMsg{T: env.T, D: env.D}
}

// expect reads one message and fails unless it has type want
func expect(t *testing.T, conn *websocket.Conn, want string) wsMsg {
	t.Helper()
	m := readMsg(t, conn)
	if m.T != want {
		t.Fatalf("expected %s, got %s (%s)", want, m.T, m.D)
	}
	return m
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, _ := json.Marshal(protocol.Envelope{T: msgType, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func decode[T any](t *testing.T, m wsMsg) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(m.D, &out); err != nil {
		t.Fatalf("decode %s: %v", m.T, err)
	}
	return out
}

// createMatch creates a match as seat A and returns the joined message and
// the generated map
func createMatch(t *testing.T, conn *websocket.Conn, pass string) (protocol.JoinedMsg, match.MapPublished) {
	t.Helper()
	sendMsg(t, conn, protocol.MsgCreate, protocol.CreateMsg{Name: "host", Tier: "small", Seed: 7, Pass: pass})
	created := decode[protocol.CreatedMsg](t, expect(t, conn, protocol.MsgCreated))
	joined := decode[protocol.JoinedMsg](t, expect(t, conn, protocol.MsgJoined))
	if joined.SID != created.SID {
		t.Fatalf("expected joined sid %s, got %s", created.SID, joined.SID)
	}
	mp := expect(t, conn, protocol.MsgMap)
	return joined, *mp.Map
}

func joinMatch(t *testing.T, conn *websocket.Conn, sid, pass string) (protocol.JoinedMsg, match.MapPublished) {
	t.Helper()
	sendMsg(t, conn, protocol.MsgJoin, protocol.JoinMsg{Name: "guest", SID: sid, Pass: pass})
	joined := decode[protocol.JoinedMsg](t, expect(t, conn, protocol.MsgJoined))
	mp := expect(t, conn, protocol.MsgMap)
	return joined, *mp.Map
}

// ---------- tests ----------

func TestCreateAssignsHostSeat(t *testing.T) {
	_, _, wsURL := startTestServer(t, Options{}, nil)
	conn := dialWS(t, wsURL)

	joined, mp := createMatch(t, conn, "")
	if joined.Seat != protocol.SeatA || !joined.Host || joined.Token == "" {
		t.Errorf("expected host seat A with token, got %+v", joined)
	}
	if mp.Snapshot.MatchID != joined.SID || mp.Snapshot.Seed != 7 || mp.Snapshot.Tier != "small" {
		t.Errorf("unexpected snapshot header %+v", mp.Snapshot)
	}
	if len(mp.Snapshot.Constellations) != galaxy.TierSmall.Constellations() {
		t.Errorf("expected %d constellations, got %d", galaxy.TierSmall.Constellations(), len(mp.Snapshot.Constellations))
	}
}

func TestSeatsAndLateJoinMap(t *testing.T) {
	_, _, wsURL := startTestServer(t, Options{}, nil)
	host := dialWS(t, wsURL)
	guest := dialWS(t, wsURL)
	watcher := dialWS(t, wsURL)

	hj, hostMap := createMatch(t, host, "")
	gj, guestMap := joinMatch(t, guest, hj.SID, "")
	wj, watchMap := joinMatch(t, watcher, hj.SID, "")

	if gj.Seat != protocol.SeatB || gj.Host || gj.Token == "" {
		t.Errorf("expected seat B with token, got %+v", gj)
	}
	if wj.Seat != protocol.SeatSpectator || wj.Token != "" {
		t.Errorf("expected tokenless spectator, got %+v", wj)
	}
	for _, mp := range []match.MapPublished{guestMap, watchMap} {
		if mp.Snapshot.Fingerprint != hostMap.Snapshot.Fingerprint {
			t.Errorf("expected late joiners to get the same map, got fp %s want %s",
				mp.Snapshot.Fingerprint, hostMap.Snapshot.Fingerprint)
		}
	}
}

func TestMapFrameSharedAcrossConnections(t *testing.T) {
	hub, _, wsURL := startTestServer(t, Options{}, nil)
	hj, hostMap := createMatch(t, dialWS(t, wsURL), "")
	_, guestMap := joinMatch(t, dialWS(t, wsURL), hj.SID, "")

	// no state changed between the two maps, so the guest's catch-up reuses
	// the host's frame
	if guestMap.Version != hostMap.Version {
		t.Fatalf("expected catch-up at version %d, got %d", hostMap.Version, guestMap.Version)
	}
	frames := &hub.sessions.GetSession(hj.SID).frames
	a, err := frames.Frame(hostMap)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := frames.Frame(guestMap)
	if &a[0] != &b[0] {
		t.Error("expected one cached frame per version")
	}
	decoded, err := protocol.DecodeMapFrame(a)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Snapshot.Fingerprint != hostMap.Snapshot.Fingerprint {
		t.Errorf("expected cached frame for this map, got fp %s", decoded.Snapshot.Fingerprint)
	}
}

func TestAttackReplicatesToEveryone(t *testing.T) {
	_, _, wsURL := startTestServer(t, Options{}, nil)
	host := dialWS(t, wsURL)
	guest := dialWS(t, wsURL)

	hj, mp := createMatch(t, host, "")
	joinMatch(t, guest, hj.SID, "")

	star := mp.Snapshot.Stars[0]
	sendMsg(t, guest, protocol.MsgAttack, protocol.AttackMsg{Star: star.ID, Power: 1})

	for _, conn := range []*websocket.Conn{host, guest} {
		sc := decode[match.StarChanged](t, expect(t, conn, protocol.MsgStar))
		if sc.Star.ID != star.ID || sc.Star.DamageB != 1 || sc.Star.DamageA != 0 {
			t.Errorf("expected star %d with db=1, got %+v", star.ID, sc.Star)
		}
		if sc.Version <= mp.Version {
			t.Errorf("expected version after %d, got %d", mp.Version, sc.Version)
		}
	}
}

func TestSpectatorAttackRejected(t *testing.T) {
	hub, _, wsURL := startTestServer(t, Options{}, nil)
	host := dialWS(t, wsURL)
	watcher := dialWS(t, wsURL)

	hj, mp := createMatch(t, host, "")
	joinMatch(t, dialWS(t, wsURL), hj.SID, "") // seat B
	if wj, _ := joinMatch(t, watcher, hj.SID, ""); wj.Seat != protocol.SeatSpectator {
		t.Fatalf("expected spectator, got %s", wj.Seat)
	}

	star := mp.Snapshot.Stars[0]
	sendMsg(t, watcher, protocol.MsgAttack, protocol.AttackMsg{Star: star.ID, Power: 1})
	sendMsg(t, watcher, protocol.MsgBuy, protocol.BuyMsg{Bonus: "click"})
	sendMsg(t, watcher, protocol.MsgGenerate, protocol.GenerateMsg{Tier: "vast"})

	// a round trip through the client proves the commands were handled
	sendMsg(t, watcher, protocol.MsgCheck, protocol.CheckMsg{SID: hj.SID})
	expect(t, watcher, protocol.MsgChecked)

	snap, err := hub.sessions.GetSession(hj.SID).Match.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != mp.Version {
		t.Errorf("expected version to stay %d, got %d", mp.Version, snap.Version)
	}
	if snap.Stars[0].DamageA != 0 || snap.Stars[0].DamageB != 0 {
		t.Errorf("expected star untouched, got %+v", snap.Stars[0])
	}
	if snap.Fingerprint != mp.Snapshot.Fingerprint {
		t.Error("expected spectator generate to be ignored")
	}
}

func TestGuestCannotGenerate(t *testing.T) {
	hub, _, wsURL := startTestServer(t, Options{}, nil)
	host := dialWS(t, wsURL)
	guest := dialWS(t, wsURL)

	hj, mp := createMatch(t, host, "")
	joinMatch(t, guest, hj.SID, "")

	sendMsg(t, guest, protocol.MsgGenerate, protocol.GenerateMsg{Tier: "vast", Seed: 3})
	sendMsg(t, guest, protocol.MsgCheck, protocol.CheckMsg{SID: hj.SID})
	expect(t, guest, protocol.MsgChecked)

	snap, _ := hub.sessions.GetSession(hj.SID).Match.Snapshot(context.Background())
	if snap.Fingerprint != mp.Snapshot.Fingerprint {
		t.Error("expected guest generate to be rejected")
	}

	// the host may regenerate
	sendMsg(t, host, protocol.MsgGenerate, protocol.GenerateMsg{Tier: "big", Seed: 3})
	next := expect(t, host, protocol.MsgMap)
	if next.Map.Snapshot.Tier != "big" || len(next.Map.Snapshot.Constellations) != galaxy.TierBig.Constellations() {
		t.Errorf("expected a big map, got %s with %d constellations",
			next.Map.Snapshot.Tier, len(next.Map.Snapshot.Constellations))
	}
	expect(t, guest, protocol.MsgMap)
}

func TestBuyRejectsUnknownBonus(t *testing.T) {
	_, _, wsURL := startTestServer(t, Options{}, nil)
	host := dialWS(t, wsURL)
	createMatch(t, host, "")

	sendMsg(t, host, protocol.MsgBuy, protocol.BuyMsg{Bonus: "warp"})
	e := decode[protocol.ErrorMsg](t, expect(t, host, protocol.MsgError))
	if e.Msg == "" {
		t.Error("expected an error message")
	}
}

func TestPasswordProtectedJoin(t *testing.T) {
	_, _, wsURL := startTestServer(t, Options{}, nil)
	host := dialWS(t, wsURL)
	hj, _ := createMatch(t, host, "orion")

	guest := dialWS(t, wsURL)
	sendMsg(t, guest, protocol.MsgJoin, protocol.JoinMsg{SID: hj.SID, Pass: "wrong"})
	e := decode[protocol.ErrorMsg](t, expect(t, guest, protocol.MsgError))
	if e.Msg != "wrong password" {
		t.Errorf("expected wrong password, got %q", e.Msg)
	}

	gj, _ := joinMatch(t, guest, hj.SID, "orion")
	if gj.Seat != protocol.SeatB {
		t.Errorf("expected seat B, got %s", gj.Seat)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	_, _, wsURL := startTestServer(t, Options{}, nil)
	conn := dialWS(t, wsURL)
	sendMsg(t, conn, protocol.MsgJoin, protocol.JoinMsg{SID: "nope"})
	e := decode[protocol.ErrorMsg](t, expect(t, conn, protocol.MsgError))
	if e.Msg != "session not found" {
		t.Errorf("expected session not found, got %q", e.Msg)
	}
}

func TestAuthRebindsSeat(t *testing.T) {
	hub, _, wsURL := startTestServer(t, Options{}, nil)
	host := dialWS(t, wsURL)
	hj, _ := createMatch(t, host, "")

	guest := dialWS(t, wsURL)
	gj, _ := joinMatch(t, guest, hj.SID, "")
	guest.Close()

	sess := hub.sessions.GetSession(hj.SID)
	deadline := time.Now().Add(2 * time.Second)
	for sess.PlayerCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("guest never released its seat")
		}
		time.Sleep(10 * time.Millisecond)
	}

	back := dialWS(t, wsURL)
	sendMsg(t, back, protocol.MsgAuth, protocol.AuthMsg{Token: gj.Token})
	rj := decode[protocol.JoinedMsg](t, expect(t, back, protocol.MsgJoined))
	if rj.Seat != protocol.SeatB || rj.SID != hj.SID {
		t.Errorf("expected seat B back, got %+v", rj)
	}
	expect(t, back, protocol.MsgMap)

	// the host's token cannot take a held seat
	thief := dialWS(t, wsURL)
	sendMsg(t, thief, protocol.MsgAuth, protocol.AuthMsg{Token: hj.Token})
	e := decode[protocol.ErrorMsg](t, expect(t, thief, protocol.MsgError))
	if e.Msg != "seat taken" {
		t.Errorf("expected seat taken, got %q", e.Msg)
	}

	sendMsg(t, thief, protocol.MsgAuth, protocol.AuthMsg{Token: "junk"})
	e = decode[protocol.ErrorMsg](t, expect(t, thief, protocol.MsgError))
	if e.Msg != "invalid token" {
		t.Errorf("expected invalid token, got %q", e.Msg)
	}
}

func TestListAndCheck(t *testing.T) {
	_, _, wsURL := startTestServer(t, Options{}, nil)
	host := dialWS(t, wsURL)
	hj, _ := createMatch(t, host, "pw")

	other := dialWS(t, wsURL)
	sendMsg(t, other, protocol.MsgList, nil)
	list := decode[[]protocol.SessionInfo](t, expect(t, other, protocol.MsgSessions))
	if len(list) != 1 || list[0].ID != hj.SID || list[0].Players != 1 || !list[0].Locked {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Subs != 1 {
		t.Errorf("expected 1 subscribed connection, got %d", list[0].Subs)
	}
	if list[0].Phase != match.PhasePlaying.String() {
		t.Errorf("expected playing, got %s", list[0].Phase)
	}

	sendMsg(t, other, protocol.MsgCheck, protocol.CheckMsg{SID: "missing"})
	if c := decode[protocol.CheckedMsg](t, expect(t, other, protocol.MsgChecked)); c.Exists {
		t.Error("expected missing session")
	}
}

func TestMatchEndsOverTheWire(t *testing.T) {
	cfg := quietMatch()
	cfg.WinInterval = 20 * time.Millisecond
	_, _, wsURL := startTestServer(t, Options{Match: cfg}, nil)
	host := dialWS(t, wsURL)
	_, mp := createMatch(t, host, "")

	star := mp.Snapshot.Stars[0]
	for i := 0; i < star.MaxHP; i++ {
		sendMsg(t, host, protocol.MsgAttack, protocol.AttackMsg{Star: star.ID, Power: 1})
	}
	for {
		m := readMsg(t, host)
		if m.T != protocol.MsgEnded {
			continue
		}
		ended := decode[match.MatchEnded](t, m)
		if ended.Winner != galaxy.FactionA || ended.Counts.A != 1 {
			t.Errorf("expected A to win holding 1 star, got %+v", ended)
		}
		return
	}
}

func TestRateLimitDisconnects(t *testing.T) {
	_, _, wsURL := startTestServer(t, Options{MessagesPerSec: 1, MessageBurst: 1, MaxDropped: 3}, nil)
	conn := dialWS(t, wsURL)

	for i := 0; i < 10; i++ {
		raw, _ := json.Marshal(protocol.Envelope{T: protocol.MsgList})
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				t.Fatal("expected server to close the connection")
			}
			return
		}
	}
}

func TestConnectionLimitPerIP(t *testing.T) {
	hub, _, wsURL := startTestServer(t, Options{MaxConnsPerIP: 1}, nil)
	dialWS(t, wsURL)
	deadline := time.Now().Add(2 * time.Second)
	for hub.TotalConns() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("first connection never tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Error("expected second connection to be refused")
	} else if resp != nil && resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHealthAndQR(t *testing.T) {
	hub, srv, wsURL := startTestServer(t, Options{}, nil)
	hj, _ := createMatch(t, dialWS(t, wsURL), "")

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]any
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" || health["sessions"] != float64(1) {
		t.Errorf("unexpected health %v", health)
	}

	resp, err = http.Get(srv.URL + "/qr/" + hj.SID)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("expected png, got %s", resp.Header.Get("Content-Type"))
	}
	if len(body) < 8 || string(body[1:4]) != "PNG" {
		t.Error("expected png signature")
	}

	resp, _ = http.Get(srv.URL + "/qr/unknown")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown match, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/qr/x", nil)
	req.Host = "galaxy.test"
	if got := hub.joinURL(req, "abc"); got != "http://galaxy.test/?sid=abc" {
		t.Errorf("unexpected join url %s", got)
	}
}

func TestMatchHistoryAPI(t *testing.T) {
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	now := time.Now()
	db.InsertResult(match.Result{MatchID: "done", Tier: "small", Winner: galaxy.FactionB, StartedAt: now.Add(-time.Minute), EndedAt: now})

	_, srv, _ := startTestServer(t, Options{}, db)
	resp, err := http.Get(srv.URL + "/api/matches?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rows []store.MatchRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].MatchID != "done" || rows[0].Winner != "B" {
		t.Errorf("unexpected rows %+v", rows)
	}

	bad, _ := http.Get(srv.URL + "/api/matches?limit=x")
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", bad.StatusCode)
	}
}

func TestMatchDetailAndWins(t *testing.T) {
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "detail.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	now := time.Now()
	rec := store.NewRecorder(db)
	rec.RecordEvent(match.Event{MatchID: "done", Version: 1, Kind: "generate", At: now.Add(-time.Minute)})
	rec.RecordEvent(match.Event{MatchID: "done", Version: 6, Kind: "capture", Detail: "star=0", At: now})
	rec.RecordResult(match.Result{MatchID: "done", Tier: "small", Winner: galaxy.FactionB, StartedAt: now.Add(-time.Minute), EndedAt: now})
	rec.Stop()

	_, srv, _ := startTestServer(t, Options{}, db)
	resp, err := http.Get(srv.URL + "/api/matches/done")
	if err != nil {
		t.Fatal(err)
	}
	var detail struct {
		Match  store.MatchRow   `json:"match"`
		Events []store.EventRow `json:"events"`
	}
	err = json.NewDecoder(resp.Body).Decode(&detail)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if detail.Match.MatchID != "done" || detail.Match.Winner != "B" {
		t.Errorf("unexpected match %+v", detail.Match)
	}
	if len(detail.Events) != 2 || detail.Events[1].Kind != "capture" || detail.Events[1].Version != 6 {
		t.Errorf("unexpected events %+v", detail.Events)
	}

	missing, _ := http.Get(srv.URL + "/api/matches/nope")
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", missing.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/wins")
	if err != nil {
		t.Fatal(err)
	}
	var wins map[string]int
	json.NewDecoder(resp.Body).Decode(&wins)
	resp.Body.Close()
	if wins["a"] != 0 || wins["b"] != 1 {
		t.Errorf("expected a=0 b=1, got %v", wins)
	}
}

func TestMatchHistoryWithoutDB(t *testing.T) {
	_, srv, _ := startTestServer(t, Options{}, nil)
	resp, err := http.Get(srv.URL + "/api/matches")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("expected empty list, got %s", body)
	}

	resp, err = http.Get(srv.URL + "/api/wins")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != `{"a":0,"b":0}` {
		t.Errorf("expected zero wins, got %s", body)
	}
}
