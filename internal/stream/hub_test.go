package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facesignal/internal/expression"
	"github.com/dudu/facesignal/internal/posture"
	"github.com/dudu/facesignal/internal/session"
)

type envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	ClientID  string          `json:"client_id"`
	Timestamp int64           `json:"timestamp"`
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWelcomeCarriesStatus(t *testing.T) {
	hub := NewHub(WithStatus(func() Status {
		return Status{Ready: true, State: "running", SessionID: "abc", Stats: session.Stats{Delivered: 3}}
	}))
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv, "?clientId=dashboard")
	env := read(t, conn)

	assert.Equal(t, TypeWelcome, env.Type)
	assert.Equal(t, "dashboard", env.ClientID)

	var st Status
	require.NoError(t, json.Unmarshal(env.Payload, &st))
	assert.Equal(t, "running", st.State)
	assert.Equal(t, uint64(3), st.Stats.Delivered)
}

func TestPublishReachesEveryClient(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	a := dial(t, srv, "")
	b := dial(t, srv, "")
	read(t, a)
	read(t, b)
	require.Equal(t, 2, hub.Clients())

	hub.Publish(Report{
		SessionID:   "s-1",
		Expressions: expression.Result{Blink: true, MouthRatio: 0.6, MouthOpen: true},
		Posture:     posture.Result{Level: posture.LevelMild, Slouching: true, Score: 40, ForwardHead: true},
	})

	for _, conn := range []*websocket.Conn{a, b} {
		env := read(t, conn)
		require.Equal(t, TypeReport, env.Type)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(env.Payload, &raw))
		assert.Equal(t, "s-1", raw["session_id"])
		assert.EqualValues(t, 1, raw["frame"])

		pose := raw["posture"].(map[string]any)
		assert.Equal(t, "MILD", pose["slouch_level"])
		assert.Equal(t, true, pose["forward_head_posture"])

		expr := raw["expressions"].(map[string]any)
		assert.Equal(t, true, expr["blink"])
	}
}

func TestFrameNumbersIncrease(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv, "")
	read(t, conn)

	hub.Publish(Report{})
	hub.Publish(Report{})
	hub.Publish(Report{Frame: 42})

	var frames []float64
	for range 3 {
		var r map[string]any
		require.NoError(t, json.Unmarshal(read(t, conn).Payload, &r))
		frames = append(frames, r["frame"].(float64))
	}
	assert.Equal(t, []float64{1, 2, 42}, frames)
}

func TestPingPong(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv, "?clientId=c1")
	read(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: TypePing}))
	env := read(t, conn)
	assert.Equal(t, TypePong, env.Type)
	assert.Equal(t, "c1", env.ClientID)
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv, "")
	read(t, conn)

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Zero(t, hub.Clients())

	// Publishing after close is a no-op.
	assert.NotPanics(t, func() { hub.Publish(Report{}) })
}

func TestHealth(t *testing.T) {
	ready := false
	hub := NewHub(WithStatus(func() Status { return Status{Ready: ready, State: "uninitialized"} }))

	rec := httptest.NewRecorder()
	hub.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	ready = true
	rec = httptest.NewRecorder()
	hub.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var st Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.True(t, st.Ready)
	assert.Zero(t, st.Clients)
}
