package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wricardo/chess-relay/game/chess"
	"github.com/wricardo/chess-relay/game/relay"
	"github.com/wricardo/chess-relay/game/session"
	"github.com/wricardo/chess-relay/transport/websocket"
)

// MockSessionStore implements SessionStore for testing
type MockSessionStore struct {
	sessions []session.Session
}

func (m *MockSessionStore) Get(id string) (session.Session, error) {
	for _, s := range m.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return session.Session{}, session.ErrSessionNotFound
}

func (m *MockSessionStore) List() []session.Session {
	out := make([]session.Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

func (m *MockSessionStore) Count() int {
	return len(m.sessions)
}

func fixtureSessions() *MockSessionStore {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &MockSessionStore{sessions: []session.Session{
		{ID: "AAAAAAA", FirstParticipant: "alice", ActiveSide: chess.FirstSide, BoardState: chess.StartingPosition,
			CreatedAt: base, LastActivityAt: base.Add(3 * time.Minute)},
		{ID: "BBBBBBB", FirstParticipant: "carol", SecondParticipant: "dave", Joined: true, ActiveSide: chess.SecondSide,
			BoardState: "secret", MoveCount: 5, CreatedAt: base.Add(time.Minute), LastActivityAt: base.Add(time.Minute)},
		{ID: "CCCCCCC", FirstParticipant: "erin", ActiveSide: chess.FirstSide,
			CreatedAt: base.Add(2 * time.Minute), LastActivityAt: base.Add(2 * time.Minute)},
	}}
}

func newTestServer(store SessionStore) *Server {
	hub := websocket.NewHub(zap.NewNop(), nil)
	return NewServer(store, hub, zap.NewNop())
}

func doRequest(t *testing.T, handler http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

type listResponse struct {
	Count    int              `json:"count"`
	Total    int              `json:"total"`
	Sessions []SessionListing `json:"sessions"`
	Sort     string           `json:"sort"`
	Order    string           `json:"order"`
}

func TestHandleListSessions(t *testing.T) {
	server := newTestServer(fixtureSessions())

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"default is most recent activity first", "", []string{"alice", "erin", "carol"}},
		{"created ascending", "?sort=created&order=asc", []string{"alice", "carol", "erin"}},
		{"created descending", "?sort=created", []string{"erin", "carol", "alice"}},
		{"limit", "?sort=created&order=asc&limit=2", []string{"alice", "carol"}},
		{"ignored limit", "?limit=abc", []string{"alice", "erin", "carol"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, "GET", "/api/sessions"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)

			var resp listResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, 3, resp.Total)
			assert.Equal(t, len(tt.want), resp.Count)

			var creators []string
			for _, s := range resp.Sessions {
				creators = append(creators, s.FirstSide)
			}
			assert.Equal(t, tt.want, creators)
		})
	}
}

func TestHandleListSessions_OmitsSessionCodes(t *testing.T) {
	store := fixtureSessions()
	server := newTestServer(store)

	w := doRequest(t, server, "GET", "/api/sessions")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	for _, sess := range store.sessions {
		assert.NotContains(t, body, sess.ID, "a listed code could be joined or moved in by anyone")
	}

	var raw struct {
		Sessions []map[string]any `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	require.Len(t, raw.Sessions, 3)
	for _, entry := range raw.Sessions {
		assert.NotContains(t, entry, "id")
	}
}

func TestHandleListSessions_BadQuery(t *testing.T) {
	server := newTestServer(fixtureSessions())

	w := doRequest(t, server, "GET", "/api/sessions?sort=rating")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, server, "GET", "/api/sessions?order=sideways")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetSession(t *testing.T) {
	server := newTestServer(fixtureSessions())

	w := doRequest(t, server, "GET", "/api/sessions/BBBBBBB")
	require.Equal(t, http.StatusOK, w.Code)

	var summary SessionSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, "BBBBBBB", summary.ID)
	assert.Equal(t, "carol", summary.FirstSide)
	assert.Equal(t, "dave", summary.SecondSide)
	assert.True(t, summary.Full)
	assert.Equal(t, chess.SecondSide, summary.ActiveSide)
	assert.Equal(t, 5, summary.MoveCount)
	assert.NotContains(t, w.Body.String(), "secret", "board state is not exposed")
}

func TestHandleGetSession_NotFound(t *testing.T) {
	server := newTestServer(fixtureSessions())

	w := doRequest(t, server, "GET", "/api/sessions/NOPE")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "session not found", body["error"])
}

func TestHandleStats(t *testing.T) {
	server := newTestServer(fixtureSessions())

	w := doRequest(t, server, "GET", "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats Stats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, Stats{Sessions: 3}, stats)
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(&MockSessionStore{})

	w := doRequest(t, server, "GET", "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestOriginAllowList(t *testing.T) {
	hub := websocket.NewHub(zap.NewNop(), []string{"https://chess.example"})
	server := NewServer(fixtureSessions(), hub, zap.NewNop())

	request := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/stats", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)
		return w
	}

	w := request("https://chess.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://chess.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = request("https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = request("")
	assert.Equal(t, http.StatusOK, w.Code, "non-browser clients send no Origin")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	// health checks stay outside the allow-list
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	hw := httptest.NewRecorder()
	server.ServeHTTP(hw, req)
	assert.Equal(t, http.StatusOK, hw.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(&MockSessionStore{})

	w := doRequest(t, server, "POST", "/api/sessions")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleMountsExtraRoutes(t *testing.T) {
	server := newTestServer(&MockSessionStore{})
	server.Handle("/extra", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := doRequest(t, server, "GET", "/extra")
	assert.Equal(t, http.StatusTeapot, w.Code)
}

// relayStack runs the full production wiring behind an httptest server.
type relayStack struct {
	registry *session.Manager
	hub      *websocket.Hub
	url      string
}

func newRelayStack(t *testing.T) *relayStack {
	t.Helper()
	logger := zap.NewNop()
	registry := session.NewManager()
	hub := websocket.NewHub(logger, nil)
	dispatcher := relay.NewDispatcher(registry, hub, logger)
	go hub.Run(dispatcher)
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(NewServer(registry, hub, logger))
	t.Cleanup(srv.Close)

	return &relayStack{
		registry: registry,
		hub:      hub,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (s *relayStack) connect(t *testing.T) *gorillaws.Conn {
	t.Helper()
	conn, _, err := gorillaws.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *gorillaws.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(websocket.Envelope{Event: event, Data: data}))
}

func expect(t *testing.T, conn *gorillaws.Conn, event string, into any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env websocket.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, event, env.Event, "payload: %s", env.Data)
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
}

func expectSilence(t *testing.T, conn *gorillaws.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", data)
}

func TestRelayScenario(t *testing.T) {
	stack := newRelayStack(t)
	alice := stack.connect(t)
	bob := stack.connect(t)

	send(t, alice, relay.EventCreateSession, relay.CreateSessionRequest{ParticipantID: "alice"})
	var created relay.SessionCreated
	expect(t, alice, relay.EventSessionCreated, &created)
	require.Len(t, created.SessionID, session.IDLength)

	send(t, bob, relay.EventJoinSession, relay.JoinSessionRequest{SessionID: created.SessionID, ParticipantID: "bob"})

	wantStarted := relay.SessionStarted{
		Participants: relay.Participants{FirstSide: "alice", SecondSide: "bob"},
		BoardState:   chess.StartingPosition,
		ActiveSide:   chess.FirstSide,
	}
	for _, conn := range []*gorillaws.Conn{alice, bob} {
		var started relay.SessionStarted
		expect(t, conn, relay.EventSessionStarted, &started)
		assert.Equal(t, wantStarted, started)
	}

	const fen = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	send(t, alice, relay.EventSubmitMove, map[string]any{
		"sessionId":  created.SessionID,
		"from":       "e2",
		"to":         "e4",
		"boardState": fen,
		"activeSide": "second-side",
	})

	for _, conn := range []*gorillaws.Conn{alice, bob} {
		var applied relay.MoveApplied
		expect(t, conn, relay.EventMoveApplied, &applied)
		assert.Equal(t, relay.MoveApplied{BoardState: fen, ActiveSide: chess.SecondSide}, applied)
	}

	stored, err := stack.registry.Get(created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, fen, stored.BoardState)
	assert.Equal(t, chess.SecondSide, stored.ActiveSide)
}

func TestRelayJoinErrorsGoToRequesterOnly(t *testing.T) {
	stack := newRelayStack(t)
	alice := stack.connect(t)
	bob := stack.connect(t)
	mallory := stack.connect(t)

	send(t, mallory, relay.EventJoinSession, relay.JoinSessionRequest{SessionID: "XXXXXXX", ParticipantID: "mallory"})
	var notFound relay.ErrorMessage
	expect(t, mallory, relay.EventError, &notFound)
	assert.Equal(t, "session not found", notFound.Message)

	send(t, alice, relay.EventCreateSession, relay.CreateSessionRequest{ParticipantID: "alice"})
	var created relay.SessionCreated
	expect(t, alice, relay.EventSessionCreated, &created)

	send(t, bob, relay.EventJoinSession, relay.JoinSessionRequest{SessionID: created.SessionID, ParticipantID: "bob"})
	expect(t, alice, relay.EventSessionStarted, nil)
	expect(t, bob, relay.EventSessionStarted, nil)

	send(t, mallory, relay.EventJoinSession, relay.JoinSessionRequest{SessionID: created.SessionID, ParticipantID: "mallory"})
	var full relay.ErrorMessage
	expect(t, mallory, relay.EventError, &full)
	assert.Equal(t, "session is already full", full.Message)

	expectSilence(t, alice)
	expectSilence(t, bob)
}

func TestRelayUnknownSessionMoveIsSilent(t *testing.T) {
	stack := newRelayStack(t)
	alice := stack.connect(t)

	send(t, alice, relay.EventSubmitMove, relay.SubmitMoveRequest{
		SessionID:  "GHOSTXX",
		BoardState: "fen",
		ActiveSide: chess.SecondSide,
	})

	expectSilence(t, alice)
	assert.Zero(t, stack.registry.Count())
}

func TestRelayDisconnectLeavesRoom(t *testing.T) {
	stack := newRelayStack(t)
	alice := stack.connect(t)
	bob := stack.connect(t)

	send(t, alice, relay.EventCreateSession, relay.CreateSessionRequest{ParticipantID: "alice"})
	var created relay.SessionCreated
	expect(t, alice, relay.EventSessionCreated, &created)
	send(t, bob, relay.EventJoinSession, relay.JoinSessionRequest{SessionID: created.SessionID, ParticipantID: "bob"})
	expect(t, alice, relay.EventSessionStarted, nil)
	expect(t, bob, relay.EventSessionStarted, nil)
	require.Equal(t, 2, stack.hub.RoomSize(created.SessionID))

	bob.Close()

	require.Eventually(t, func() bool {
		return stack.hub.RoomSize(created.SessionID) == 1
	}, time.Second, 10*time.Millisecond)

	// The session itself survives the disconnect.
	_, err := stack.registry.Get(created.SessionID)
	assert.NoError(t, err)

	send(t, alice, relay.EventSubmitMove, relay.SubmitMoveRequest{
		SessionID:  created.SessionID,
		BoardState: "fen",
		ActiveSide: chess.SecondSide,
	})
	expect(t, alice, relay.EventMoveApplied, nil)
}
