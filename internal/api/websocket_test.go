package api_test

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
	"github.com/vmihailenco/msgpack/v5"

	"arena-brawl/internal/api"
	"arena-brawl/internal/config"
	"arena-brawl/internal/game"
	"arena-brawl/internal/store"
)

func newWSServer(t *testing.T, engine api.EngineInterface, origins ...string) (*api.Server, string) {
	t.Helper()
	cfg := config.DefaultServer()
	if len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	return newWSServerConfig(t, engine, cfg)
}

func newWSServerConfig(t *testing.T, engine api.EngineInterface, cfg config.ServerConfig) (*api.Server, string) {
	t.Helper()
	cfg.BroadcastInterval = 10 * time.Millisecond

	s := api.NewServer(engine, api.ServerOptions{
		Config:          cfg,
		RateLimitConfig: testRateLimit,
		DisableLogging:  true,
	})
	s.StartWorkers()
	t.Cleanup(s.Stop)

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readUntil reads JSON messages until one carries event.
func readUntil(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		require.Equal(t, websocket.TextMessage, kind)

		var env envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Event == event {
			return env.Data
		}
	}
}

// TestWebSocketBroadcastsState tests the periodic game:state message
func TestWebSocketBroadcastsState(t *testing.T) {
	engine := NewMockEngine()
	engine.AddPlayer("ann", false, "")
	_, url := newWSServer(t, engine)
	conn := dial(t, url)

	var snap struct {
		MatchID string `json:"matchId"`
		Players []struct {
			Name string `json:"name"`
		} `json:"players"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, conn, api.EventGameState), &snap))
	assert.Equal(t, "match-1", snap.MatchID)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "ann", snap.Players[0].Name)
}

func TestWebSocketMsgpackFormat(t *testing.T) {
	engine := NewMockEngine()
	engine.AddPlayer("ann", false, "")
	_, url := newWSServer(t, engine)
	conn := dial(t, url+"?format=msgpack")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)

	var env struct {
		Event string `msgpack:"event"`
		Data  struct {
			Players []struct {
				Name string `msgpack:"name"`
			} `msgpack:"players"`
		} `msgpack:"data"`
	}
	require.NoError(t, msgpack.Unmarshal(data, &env))
	assert.Equal(t, api.EventGameState, env.Event)
	require.Len(t, env.Data.Players, 1)
	assert.Equal(t, "ann", env.Data.Players[0].Name)

	for _, f := range []map[string]interface{}{
		{"type": "join", "name": "bob"},
		{"type": "input", "player": 1, "left": true},
	} {
		frame, err := msgpack.Marshal(f)
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	}

	require.Eventually(t, func() bool {
		s, ok := engine.input(1)
		return ok && s.Left
	}, 2*time.Second, 5*time.Millisecond)
}

// TestWebSocketInputFrames tests that input frames reach the engine and
// bad frames get an error reply
func TestWebSocketInputFrames(t *testing.T) {
	engine := NewMockEngine()
	engine.AddPlayer("ann", false, "")
	_, url := newWSServer(t, engine)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","name":" bob "}`)))
	var joined struct {
		Slot int    `json:"slot"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, conn, api.EventJoined), &joined))
	assert.Equal(t, 1, joined.Slot)
	assert.Equal(t, "bob", joined.Name)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"input","player":1,"right":true,"jump":true}`)))
	require.Eventually(t, func() bool {
		s, ok := engine.input(1)
		return ok && s == game.InputState{Right: true, Jump: true}
	}, 2*time.Second, 5*time.Millisecond)

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"another player", `{"type":"input","player":0,"left":true}`, "player not controlled by this connection"},
		{"unknown player", `{"type":"input","player":5}`, "player not controlled by this connection"},
		{"second join", `{"type":"join","name":"carl"}`, "connection already joined a player"},
		{"unknown type", `{"type":"chat"}`, "unknown frame type"},
		{"malformed", `{"type":`, "malformed frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))

			var body struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(readUntil(t, conn, api.EventError), &body))
			assert.Equal(t, tt.want, body.Error)
		})
	}
}

func TestWebSocketJoinValidation(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"blank name", `{"type":"join","name":"  "}`, "name is required"},
		{"long name", `{"type":"join","name":"` + strings.Repeat("x", 100) + `"}`, "name longer than"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMockEngine()
			_, url := newWSServer(t, engine)
			conn := dial(t, url)

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			var body struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(readUntil(t, conn, api.EventError), &body))
			assert.Contains(t, body.Error, tt.want)
			assert.Empty(t, engine.Snapshot().Players)
		})
	}
}

func TestWebSocketInputBeforeJoin(t *testing.T) {
	_, url := newWSServer(t, NewMockEngine())
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"input","player":-1,"left":true}`)))
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, conn, api.EventError), &body))
	assert.Equal(t, "player not controlled by this connection", body.Error)
}

func TestWebSocketPlayerLeavesWithConnection(t *testing.T) {
	engine := NewMockEngine()
	s, url := newWSServer(t, engine)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","name":"ann"}`)))
	readUntil(t, conn, api.EventJoined)
	require.Len(t, engine.Snapshot().Players, 1)

	conn.Close()
	require.Eventually(t, func() bool {
		return s.Hub().ClientCount() == 0 && len(engine.Snapshot().Players) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

// TestWebSocketAdminDrivesAnyPlayer tests that only an admin connection may
// send input for players it did not join
func TestWebSocketAdminDrivesAnyPlayer(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   bool
	}{
		{"admin token", http.Header{"Authorization": []string{"Bearer s3cret"}}, true},
		{"wrong token", http.Header{"Authorization": []string{"Bearer nope"}}, false},
		{"anonymous", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMockEngine()
			engine.AddPlayer("ann", false, "")
			cfg := config.DefaultServer()
			cfg.AdminToken = "s3cret"
			_, url := newWSServerConfig(t, engine, cfg)

			conn, _, err := websocket.DefaultDialer.Dial(url, tt.header)
			require.NoError(t, err)
			t.Cleanup(func() { conn.Close() })

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"input","player":0,"left":true}`)))
			if tt.want {
				require.Eventually(t, func() bool {
					s, ok := engine.input(0)
					return ok && s.Left
				}, 2*time.Second, 5*time.Millisecond)
				return
			}
			var body struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(readUntil(t, conn, api.EventError), &body))
			assert.Equal(t, "player not controlled by this connection", body.Error)
			_, ok := engine.input(0)
			assert.False(t, ok)
		})
	}
}

func TestWebSocketRelaysEvents(t *testing.T) {
	engine := NewMockEngine()
	s, url := newWSServer(t, engine)
	conn := dial(t, url)

	// The first state message proves the client is registered.
	readUntil(t, conn, api.EventGameState)

	cb := s.Callbacks()
	cb.OnEvents("match-1", []game.Event{
		{Kind: game.EventFired, Player: 0, Other: game.NoPlayer, Tick: 7},
		{Kind: game.EventDamaged, Player: 1, Other: 0, Tick: 7, Amount: 10},
	})

	var batch struct {
		MatchID string `json:"matchId"`
		Events  []struct {
			Kind   string  `json:"kind"`
			Tick   uint64  `json:"tick"`
			Amount float64 `json:"amount"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, conn, api.EventGameLog), &batch))
	assert.Equal(t, "match-1", batch.MatchID)
	require.Len(t, batch.Events, 2)
	assert.Equal(t, "fired", batch.Events[0].Kind)
	assert.Equal(t, 10.0, batch.Events[1].Amount)

	cb.OnMatchEnd(store.MatchResult{ID: "match-1", WinnerSlot: 1, Reason: game.ReasonMoney})
	var result store.MatchResult
	require.NoError(t, json.Unmarshal(readUntil(t, conn, api.EventGameOver), &result))
	assert.Equal(t, game.ReasonMoney, result.Reason)
}

func TestWebSocketRejectsOrigin(t *testing.T) {
	_, url := newWSServer(t, NewMockEngine(), "https://arena.example")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://arena.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestWebSocketClientCount(t *testing.T) {
	s, url := newWSServer(t, NewMockEngine())

	conn := dial(t, url)
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}
