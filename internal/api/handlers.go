package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vmihailenco/msgpack/v5"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game"
	"arena-brawl/internal/store"
)

const (
	// maxBodyBytes bounds request bodies; settings documents are the largest.
	maxBodyBytes = 64 << 10

	maxNameLength = 32

	defaultListLimit = 10
	maxListLimit     = 200

	contentTypeMsgpack = "application/msgpack"
)

// Handler methods for routerHandlers

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"match":  h.engine.MatchID(),
		"state":  h.engine.State(),
	})
}

// handleGetState returns the latest snapshot, as JSON or msgpack.
func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	if wantsMsgpack(r) {
		writeMsgpack(w, snap)
		return
	}
	writeJSON(w, snap)
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"match":    h.engine.MatchStats(),
		"eventLog": h.engine.EventLogStats(),
	})
}

func (h *routerHandlers) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries := h.engine.Leaderboard(limit)
	if entries == nil {
		entries = []game.LeaderboardEntry{}
	}
	writeJSON(w, entries)
}

func (h *routerHandlers) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"game":   h.engine.Settings(),
		"limits": h.engine.Limits(),
	})
}

func (h *routerHandlers) handleGetWeapons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Settings().Weapons)
}

func (h *routerHandlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	events := h.engine.RecentEvents(limit)
	if events == nil {
		events = []game.LogEntry{}
	}
	writeJSON(w, events)
}

func (h *routerHandlers) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.storeTimeout)
	defer cancel()

	results, err := h.engine.History(ctx, limit)
	if err != nil {
		log.Printf("⚠️ Match history query failed: %v", err)
		writeError(w, "History unavailable", http.StatusServiceUnavailable)
		return
	}
	if results == nil {
		results = []store.MatchResult{}
	}
	writeJSON(w, results)
}

func (h *routerHandlers) handleGetResult(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.storeTimeout)
	defer cancel()

	result, err := h.engine.Result(ctx, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "Match not found", http.StatusNotFound)
	case err != nil:
		log.Printf("⚠️ Match result query failed: %v", err)
		writeError(w, "History unavailable", http.StatusServiceUnavailable)
	default:
		writeJSON(w, result)
	}
}

// =============================================================================
// PLAYERS
// =============================================================================

type joinRequest struct {
	Name       string `json:"name"`
	AI         bool   `json:"ai"`
	Difficulty string `json:"difficulty"`
}

func (req *joinRequest) validate() error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return errors.New("name is required")
	}
	if len(req.Name) > maxNameLength {
		return fmt.Errorf("name longer than %d bytes", maxNameLength)
	}
	if req.Difficulty != "" && !req.AI {
		return errors.New("difficulty only applies to AI players")
	}
	return nil
}

func (h *routerHandlers) handlePlayerJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Difficulty != "" {
		if _, ok := h.engine.Settings().AI.Difficulties[req.Difficulty]; !ok {
			writeError(w, "Unknown difficulty", http.StatusBadRequest)
			return
		}
	}

	slot, err := h.engine.AddPlayer(req.Name, req.AI, req.Difficulty)
	if errors.Is(err, game.ErrPlayerLimit) {
		writeError(w, "Player limit reached", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/players/%d", slot))
	writeJSONStatus(w, http.StatusCreated, map[string]interface{}{
		"slot": slot,
		"name": req.Name,
		"ai":   req.AI,
	})
}

func (h *routerHandlers) handlePlayerLeave(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	if err := h.engine.RemovePlayer(slot); err != nil {
		writePlayerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePlayerInput queues one input frame. Accepts JSON or msgpack bodies.
func (h *routerHandlers) handlePlayerInput(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}

	var state game.InputState
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), contentTypeMsgpack) {
		err = msgpack.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&state)
	} else {
		err = decodeBody(r, &state)
	}
	if err != nil {
		writeError(w, "Invalid input frame", http.StatusBadRequest)
		return
	}

	if err := h.engine.SetInput(slot, state); err != nil {
		writePlayerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *routerHandlers) handlePlayerWeapon(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Weapon string `json:"weapon"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	kind, ok := game.ParseWeaponKind(req.Weapon)
	if !ok {
		writeError(w, "Unknown weapon", http.StatusBadRequest)
		return
	}

	if err := h.engine.Equip(slot, kind); err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"slot": slot, "weapon": kind})
}

func writePlayerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrUnknownPlayer):
		writeError(w, "Player not found", http.StatusNotFound)
	case errors.Is(err, game.ErrInputBacklog):
		w.Header().Set("Retry-After", "1")
		writeError(w, err.Error(), http.StatusTooManyRequests)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// =============================================================================
// MATCH CONTROL
// =============================================================================

func (h *routerHandlers) handleMatchStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, "start", h.engine.StartMatch)
}

func (h *routerHandlers) handleMatchPause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, "pause", h.engine.Pause)
}

func (h *routerHandlers) handleMatchResume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, "resume", h.engine.Resume)
}

func (h *routerHandlers) transition(w http.ResponseWriter, name string, fn func() bool) {
	if !fn() {
		writeError(w, fmt.Sprintf("cannot %s a match that is %s", name, h.engine.State()), http.StatusConflict)
		return
	}
	log.Printf("🎮 Match %s: %s", h.engine.MatchID(), name)
	writeJSON(w, map[string]interface{}{"state": h.engine.State()})
}

func (h *routerHandlers) handleMatchEnd(w http.ResponseWriter, r *http.Request) {
	winner := h.engine.EndMatch()
	if winner == nil {
		writeError(w, "no match in progress", http.StatusConflict)
		return
	}
	log.Printf("🏁 Match %s ended by admin", h.engine.MatchID())
	writeJSON(w, map[string]interface{}{"state": h.engine.State(), "winner": winner})
}

// handleMatchReset starts a new match. An optional JSON settings body is
// merged over the defaults and replaces the current settings.
func (h *routerHandlers) handleMatchReset(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var settings *config.GameSettings
	if len(strings.TrimSpace(string(body))) > 0 {
		parsed, err := config.ParseSettings(body, ".json")
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		settings = &parsed
	}

	if err := h.engine.Reset(settings); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalidSettings) {
			status = http.StatusBadRequest
		}
		writeError(w, err.Error(), status)
		return
	}
	log.Printf("🔄 Match reset, new match %s", h.engine.MatchID())
	writeJSON(w, map[string]interface{}{"matchId": h.engine.MatchID(), "state": h.engine.State()})
}

// =============================================================================
// AI
// =============================================================================

func (h *routerHandlers) handleGetAI(w http.ResponseWriter, r *http.Request) {
	status := h.engine.AIStatus()
	if status == nil {
		status = []game.AIStatus{}
	}
	writeJSON(w, status)
}

func (h *routerHandlers) handleSetAIDifficulty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Difficulty string `json:"difficulty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !h.engine.SetAIDifficulty(req.Difficulty) {
		writeError(w, "Unknown difficulty", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.engine.AIStatus())
}

// Helper functions (package-level for reuse)

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func slotParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil || slot < 0 {
		writeError(w, "Invalid player slot", http.StatusBadRequest)
		return 0, false
	}
	return slot, true
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func wantsMsgpack(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return f == "msgpack"
	}
	return strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeMsgpack(w http.ResponseWriter, data interface{}) {
	b, err := msgpack.Marshal(data)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.Write(b)
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorBody{Error: message})
}
