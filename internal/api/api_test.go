package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/bcrypt"

	"arena-brawl/internal/api"
	"arena-brawl/internal/config"
	"arena-brawl/internal/game"
	"arena-brawl/internal/game/geom"
	"arena-brawl/internal/store"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// MockEngine implements api.EngineInterface for testing
type MockEngine struct {
	mu sync.Mutex

	players    []game.PlayerSnapshot
	maxPlayers int
	state      game.MatchState
	settings   config.GameSettings
	inputs     map[int]game.InputState
	weapons    map[int]game.WeaponKind
	backlog    bool
	resets     []*config.GameSettings
	difficulty string
	history    []store.MatchResult
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		maxPlayers: 4,
		settings:   config.DefaultGame(),
		inputs:     make(map[int]game.InputState),
		weapons:    make(map[int]game.WeaponKind),
		difficulty: "normal",
	}
}

func (m *MockEngine) Snapshot() *game.GameSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &game.GameSnapshot{
		MatchID:     "match-1",
		State:       m.state,
		Players:     append([]game.PlayerSnapshot(nil), m.players...),
		PlayerCount: len(m.players),
		AliveCount:  len(m.players),
		Pickups:     []game.PickupSnapshot{{Weapon: game.WeaponGun, Position: geom.V(-11, 5, 0)}},
		Trophy:      &game.TrophySnapshot{Position: geom.V(0, 8, 0), Carrier: game.NoPlayer},
	}
	return snap
}

func (m *MockEngine) MatchStats() game.MatchStats {
	return game.MatchStats{MatchID: "match-1", State: m.State()}
}

func (m *MockEngine) State() game.MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockEngine) MatchID() string { return "match-1" }

func (m *MockEngine) Leaderboard(n int) []game.LeaderboardEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []game.LeaderboardEntry
	for i, p := range m.players {
		if i == n {
			break
		}
		out = append(out, game.LeaderboardEntry{Slot: p.Slot, Name: p.Name, Rank: i + 1})
	}
	return out
}

func (m *MockEngine) Settings() config.GameSettings { return m.settings }
func (m *MockEngine) Level() game.Level             { return game.DefaultArena() }
func (m *MockEngine) Limits() config.ResourceLimits { return config.DefaultLimits() }

func (m *MockEngine) AddPlayer(name string, ai bool, difficulty string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Simulate player limit
	if len(m.players) >= m.maxPlayers {
		return 0, game.ErrPlayerLimit
	}
	slot := len(m.players)
	m.players = append(m.players, game.PlayerSnapshot{
		Slot:      slot,
		Name:      name,
		AI:        ai,
		Position:  geom.V(-5+float64(slot)*3.5, 1, 0),
		Health:    100,
		MaxHealth: 100,
	})
	return slot, nil
}

func (m *MockEngine) RemovePlayer(slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot >= len(m.players) {
		return game.ErrUnknownPlayer
	}
	m.players = append(m.players[:slot], m.players[slot+1:]...)
	return nil
}

func (m *MockEngine) SetInput(slot int, state game.InputState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot >= len(m.players) {
		return game.ErrUnknownPlayer
	}
	if m.backlog {
		return game.ErrInputBacklog
	}
	m.inputs[slot] = state
	return nil
}

func (m *MockEngine) input(slot int) (game.InputState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.inputs[slot]
	return s, ok
}

func (m *MockEngine) Equip(slot int, kind game.WeaponKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot >= len(m.players) {
		return game.ErrUnknownPlayer
	}
	m.weapons[slot] = kind
	return nil
}

func (m *MockEngine) transition(from []game.MatchState, to game.MatchState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range from {
		if m.state == s {
			m.state = to
			return true
		}
	}
	return false
}

func (m *MockEngine) StartMatch() bool {
	return m.transition([]game.MatchState{game.MatchWaiting}, game.MatchPlaying)
}

func (m *MockEngine) Pause() bool {
	return m.transition([]game.MatchState{game.MatchPlaying}, game.MatchPaused)
}

func (m *MockEngine) Resume() bool {
	return m.transition([]game.MatchState{game.MatchPaused}, game.MatchPlaying)
}

func (m *MockEngine) EndMatch() *game.Winner {
	if !m.transition([]game.MatchState{game.MatchPlaying, game.MatchPaused}, game.MatchEnded) {
		return nil
	}
	return &game.Winner{Index: game.NoPlayer, Reason: game.ReasonAborted}
}

func (m *MockEngine) Reset(settings *config.GameSettings) error {
	if settings != nil {
		if err := settings.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, settings)
	m.state = game.MatchWaiting
	return nil
}

func (m *MockEngine) AIStatus() []game.AIStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []game.AIStatus
	for _, p := range m.players {
		if p.AI {
			out = append(out, game.AIStatus{Slot: p.Slot, Difficulty: m.difficulty})
		}
	}
	return out
}

func (m *MockEngine) SetAIDifficulty(name string) bool {
	if _, ok := m.settings.AI.Difficulties[name]; !ok {
		return false
	}
	m.mu.Lock()
	m.difficulty = name
	m.mu.Unlock()
	return true
}

func (m *MockEngine) RecentEvents(n int) []game.LogEntry {
	return []game.LogEntry{{Kind: "player_joined", MatchID: "match-1"}}
}

func (m *MockEngine) EventLogStats() map[string]interface{} {
	return map[string]interface{}{"total": uint64(1), "dropped": uint64(0)}
}

func (m *MockEngine) History(ctx context.Context, limit int) ([]store.MatchResult, error) {
	return m.history, nil
}

func (m *MockEngine) Result(ctx context.Context, id string) (store.MatchResult, error) {
	for _, r := range m.history {
		if r.ID == id {
			return r, nil
		}
	}
	return store.MatchResult{}, store.ErrNotFound
}

// ============================================================================
// Helpers
// ============================================================================

var testRateLimit = &api.RateLimitConfig{
	RequestsPerSecond: 1000, // High limit for tests
	Burst:             1000,
	CleanupInterval:   time.Hour,
}

func newTestServer(t *testing.T, engine api.EngineInterface, mutate ...func(*api.RouterConfig)) *httptest.Server {
	t.Helper()
	cfg := api.RouterConfig{
		Engine:          engine,
		RateLimitConfig: testRateLimit,
		DisableLogging:  true, // Quiet logs in tests
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	ts := httptest.NewServer(api.NewRouter(cfg))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// ============================================================================
// Router Purity Tests
// ============================================================================

// TestNewRouterHasNoSideEffects verifies that NewRouter opens no listeners
// and needs no running workers to serve.
func TestNewRouterHasNoSideEffects(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{
		Engine:          NewMockEngine(),
		RateLimitConfig: testRateLimit,
		DisableLogging:  true,
	})
	require.NotNil(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================================================
// API Endpoint Tests
// ============================================================================

// TestAPIGetState tests the game state endpoint in both encodings
func TestAPIGetState(t *testing.T) {
	engine := NewMockEngine()
	engine.AddPlayer("Player1", false, "")
	engine.AddPlayer("Player2", true, "")
	ts := newTestServer(t, engine)

	t.Run("json", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/api/state", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var result map[string]interface{}
		decode(t, resp, &result)
		players, ok := result["players"].([]interface{})
		require.True(t, ok, "Response should contain players array")
		assert.Len(t, players, 2)
		assert.Equal(t, "waiting", result["state"])
		assert.Equal(t, "gun", result["pickups"].([]interface{})[0].(map[string]interface{})["weapon"])
	})

	t.Run("msgpack", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/api/state?format=msgpack", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/msgpack", resp.Header.Get("Content-Type"))

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var snap struct {
			MatchID string `msgpack:"matchId"`
			Players []struct {
				Name string `msgpack:"name"`
				AI   bool   `msgpack:"ai"`
			} `msgpack:"players"`
		}
		require.NoError(t, msgpack.Unmarshal(body, &snap))
		assert.Equal(t, "match-1", snap.MatchID)
		require.Len(t, snap.Players, 2)
		assert.Equal(t, "Player1", snap.Players[0].Name)
		assert.True(t, snap.Players[1].AI)
	})
}

// TestAPIPlayerJoin tests the player join endpoint
func TestAPIPlayerJoin(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"human", `{"name":"ann"}`, http.StatusCreated},
		{"bot with difficulty", `{"name":"bot","ai":true,"difficulty":"hard"}`, http.StatusCreated},
		{"empty name", `{"name":"  "}`, http.StatusBadRequest},
		{"long name", `{"name":"` + strings.Repeat("x", 33) + `"}`, http.StatusBadRequest},
		{"difficulty for a human", `{"name":"ann","difficulty":"hard"}`, http.StatusBadRequest},
		{"unknown difficulty", `{"name":"bot","ai":true,"difficulty":"nightmare"}`, http.StatusBadRequest},
		{"unknown field", `{"name":"ann","color":"red"}`, http.StatusBadRequest},
		{"malformed", `{"name":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, NewMockEngine())
			resp := do(t, http.MethodPost, ts.URL+"/api/players", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestAPIPlayerJoinReturnsSlot(t *testing.T) {
	engine := NewMockEngine()
	engine.maxPlayers = 1
	ts := newTestServer(t, engine)

	resp := do(t, http.MethodPost, ts.URL+"/api/players", `{"name":"ann"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/api/players/0", resp.Header.Get("Location"))

	var body struct {
		Slot int    `json:"slot"`
		Name string `json:"name"`
	}
	decode(t, resp, &body)
	assert.Equal(t, 0, body.Slot)
	assert.Equal(t, "ann", body.Name)

	resp = do(t, http.MethodPost, ts.URL+"/api/players", `{"name":"bob"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "player limit")
}

func TestAPIPlayerInput(t *testing.T) {
	engine := NewMockEngine()
	engine.AddPlayer("ann", false, "")
	ts := newTestServer(t, engine)

	resp := do(t, http.MethodPost, ts.URL+"/api/players/0/input", `{"right":true,"attack":true}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	got, ok := engine.input(0)
	require.True(t, ok)
	assert.Equal(t, game.InputState{Right: true, Attack: true}, got)

	body, err := msgpack.Marshal(game.InputState{Jump: true})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/players/0/input", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/msgpack")
	mresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	mresp.Body.Close()
	require.Equal(t, http.StatusAccepted, mresp.StatusCode)
	got, _ = engine.input(0)
	assert.Equal(t, game.InputState{Jump: true}, got)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"unknown player", "/api/players/7/input", `{"left":true}`, http.StatusNotFound},
		{"bad slot", "/api/players/abc/input", `{"left":true}`, http.StatusBadRequest},
		{"negative slot", "/api/players/-1/input", `{"left":true}`, http.StatusBadRequest},
		{"empty body", "/api/players/0/input", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	engine.mu.Lock()
	engine.backlog = true
	engine.mu.Unlock()
	resp = do(t, http.MethodPost, ts.URL+"/api/players/0/input", `{"left":true}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestAPIPlayerWeaponAndLeave(t *testing.T) {
	engine := NewMockEngine()
	engine.AddPlayer("ann", false, "")
	ts := newTestServer(t, engine)

	resp := do(t, http.MethodPost, ts.URL+"/api/players/0/weapon", `{"weapon":"laser"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/players/0/weapon", `{"weapon":"shotgun"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, game.WeaponShotgun, engine.weapons[0])

	resp = do(t, http.MethodDelete, ts.URL+"/api/players/0", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodDelete, ts.URL+"/api/players/0", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestAPIMatchControl tests state transitions and conflicts
func TestAPIMatchControl(t *testing.T) {
	engine := NewMockEngine()
	ts := newTestServer(t, engine)

	steps := []struct {
		path       string
		wantStatus int
		wantState  game.MatchState
	}{
		{"/api/match/pause", http.StatusConflict, game.MatchWaiting},
		{"/api/match/start", http.StatusOK, game.MatchPlaying},
		{"/api/match/start", http.StatusConflict, game.MatchPlaying},
		{"/api/match/pause", http.StatusOK, game.MatchPaused},
		{"/api/match/resume", http.StatusOK, game.MatchPlaying},
		{"/api/match/end", http.StatusOK, game.MatchEnded},
		{"/api/match/end", http.StatusConflict, game.MatchEnded},
		{"/api/match/reset", http.StatusOK, game.MatchWaiting},
	}

	for _, step := range steps {
		resp := do(t, http.MethodPost, ts.URL+step.path, "")
		assert.Equal(t, step.wantStatus, resp.StatusCode, step.path)
		assert.Equal(t, step.wantState, engine.State(), step.path)
	}
	require.Len(t, engine.resets, 1)
	assert.Nil(t, engine.resets[0], "an empty body keeps the settings")
}

func TestAPIMatchResetWithSettings(t *testing.T) {
	engine := NewMockEngine()
	ts := newTestServer(t, engine)

	resp := do(t, http.MethodPost, ts.URL+"/api/match/reset", `{"match":{"victory_conditions":["bogus"]}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, engine.resets)

	resp = do(t, http.MethodPost, ts.URL+"/api/match/reset", `{"match":{"win_money":500}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, engine.resets, 1)
	require.NotNil(t, engine.resets[0])
	assert.Equal(t, 500.0, engine.resets[0].Match.WinMoney)
	assert.Equal(t, config.DefaultGame().Combat.MaxHealth, engine.resets[0].Combat.MaxHealth, "merged over defaults")
}

func TestAPIListings(t *testing.T) {
	engine := NewMockEngine()
	for _, name := range []string{"ann", "bob", "cat"} {
		engine.AddPlayer(name, false, "")
	}
	engine.AddPlayer("bot", true, "")
	engine.history = []store.MatchResult{{ID: "m1", Reason: game.ReasonMoney}}
	ts := newTestServer(t, engine)

	var board []game.LeaderboardEntry
	decode(t, do(t, http.MethodGet, ts.URL+"/api/leaderboard?limit=2", ""), &board)
	assert.Len(t, board, 2)

	resp := do(t, http.MethodGet, ts.URL+"/api/leaderboard?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var events []game.LogEntry
	decode(t, do(t, http.MethodGet, ts.URL+"/api/events", ""), &events)
	require.Len(t, events, 1)
	assert.Equal(t, "player_joined", events[0].Kind)

	var history []store.MatchResult
	decode(t, do(t, http.MethodGet, ts.URL+"/api/history", ""), &history)
	require.Len(t, history, 1)

	resp = do(t, http.MethodGet, ts.URL+"/api/history/m1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, http.MethodGet, ts.URL+"/api/history/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var weapons map[string]config.WeaponSettings
	decode(t, do(t, http.MethodGet, ts.URL+"/api/weapons", ""), &weapons)
	assert.Contains(t, weapons, "minigun")

	var ai []game.AIStatus
	decode(t, do(t, http.MethodGet, ts.URL+"/api/ai", ""), &ai)
	require.Len(t, ai, 1)
	assert.Equal(t, 3, ai[0].Slot)

	resp = do(t, http.MethodPut, ts.URL+"/api/ai/difficulty", `{"difficulty":"nightmare"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, http.MethodPut, ts.URL+"/api/ai/difficulty", `{"difficulty":"expert"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &ai)
	assert.Equal(t, "expert", ai[0].Difficulty)
}

func TestAPIMinimap(t *testing.T) {
	engine := NewMockEngine()
	engine.AddPlayer("ann", false, "")
	engine.players[0].Dead = true
	engine.AddPlayer("bob", false, "")
	engine.players[1].HasTrophy = true
	ts := newTestServer(t, engine)

	resp := do(t, http.MethodGet, ts.URL+"/api/minimap.png?width=120&height=60", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 60, img.Bounds().Dy())

	for _, q := range []string{"width=0", "width=abc", "height=99999"} {
		resp := do(t, http.MethodGet, ts.URL+"/api/minimap.png?"+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

// ============================================================================
// Middleware Tests
// ============================================================================

// TestAPIRateLimit tests that bursts beyond the limit get 429
func TestAPIRateLimit(t *testing.T) {
	ts := newTestServer(t, NewMockEngine(), func(c *api.RouterConfig) {
		c.RateLimitConfig = &api.RateLimitConfig{
			RequestsPerSecond: 0.001,
			Burst:             2,
			CleanupInterval:   time.Hour,
		}
	})

	for i := 0; i < 2; i++ {
		resp := do(t, http.MethodGet, ts.URL+"/api/stats", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := do(t, http.MethodGet, ts.URL+"/api/stats", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	resp = do(t, http.MethodGet, ts.URL+"/api/stats", "", "X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "limits are per client IP")
}

func TestAPICORS(t *testing.T) {
	ts := newTestServer(t, NewMockEngine(), func(c *api.RouterConfig) {
		c.CORSOrigins = []string{"https://arena.example"}
	})

	resp := do(t, http.MethodOptions, ts.URL+"/api/state", "",
		"Origin", "https://arena.example",
		"Access-Control-Request-Method", "GET")
	assert.Equal(t, "https://arena.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = do(t, http.MethodGet, ts.URL+"/api/state", "", "Origin", "https://evil.example")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

// TestAPIAdminAuth tests token and session protection of match control
func TestAPIAdminAuth(t *testing.T) {
	sessions := api.NewSessionManager("s3cret")
	t.Cleanup(sessions.Stop)
	engine := NewMockEngine()
	ts := newTestServer(t, engine, func(c *api.RouterConfig) { c.Sessions = sessions })

	resp := do(t, http.MethodPost, ts.URL+"/api/match/start", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, game.MatchWaiting, engine.State())

	resp = do(t, http.MethodPost, ts.URL+"/api/match/start", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/match/start", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Public routes stay open.
	resp = do(t, http.MethodGet, ts.URL+"/api/state", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/admin/login", `{"token":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/admin/login", `{"token":"s3cret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == api.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	withCookie := func(value string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/match/pause", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: api.SessionCookieName, Value: value})
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, withCookie(cookie.Value+"x").StatusCode, "tampered cookie")
	assert.Equal(t, http.StatusOK, withCookie(cookie.Value).StatusCode)
	assert.Equal(t, game.MatchPaused, engine.State())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/admin/logout", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	lresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	lresp.Body.Close()
	assert.Equal(t, http.StatusNoContent, lresp.StatusCode)

	assert.Equal(t, http.StatusUnauthorized, withCookie(cookie.Value).StatusCode, "session closed")
}

func TestSessionManagerBcryptToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	sessions := api.NewSessionManager(string(hash))
	t.Cleanup(sessions.Stop)
	require.True(t, sessions.Enabled())

	_, err = sessions.Login(string(hash), "127.0.0.1")
	assert.ErrorIs(t, err, api.ErrBadToken, "the hash itself is not the token")

	s, err := sessions.Login("s3cret", "127.0.0.1")
	require.NoError(t, err)
	assert.NotNil(t, sessions.GetSession(s.ID))

	req := httptest.NewRequest(http.MethodPost, "/api/match/start", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	assert.True(t, sessions.Authorized(req))
}

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "https://anything.example", true},
		{"no origin header", []string{"https://arena.example"}, "", true},
		{"exact", []string{"https://arena.example"}, "https://arena.example", true},
		{"trailing slash in config", []string{"https://arena.example/"}, "https://arena.example", true},
		{"other host", []string{"https://arena.example"}, "https://evil.example", false},
		{"subdomain pattern", []string{"https://*.arena.example"}, "https://eu.arena.example", true},
		{"subdomain pattern wrong scheme", []string{"https://*.arena.example"}, "http://eu.arena.example", false},
		{"suffix lookalike", []string{"https://*.arena.example"}, "https://evilarena.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, api.NewOriginPolicy(tt.origins).Allowed(tt.origin))
		})
	}
}

func TestWebSocketRateLimiter(t *testing.T) {
	wrl := api.NewWebSocketRateLimiter(2)
	assert.True(t, wrl.Allow("10.0.0.1"))
	assert.True(t, wrl.Allow("10.0.0.1"))
	assert.False(t, wrl.Allow("10.0.0.1"))
	assert.True(t, wrl.Allow("10.0.0.2"))

	wrl.Release("10.0.0.1")
	assert.Equal(t, 1, wrl.GetConnectionCount("10.0.0.1"))
	assert.True(t, wrl.Allow("10.0.0.1"))
	assert.Equal(t, uint64(1), wrl.GetStats()["rejected"])
}
