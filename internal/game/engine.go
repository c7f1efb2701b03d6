package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"arena-brawl/internal/config"
	"arena-brawl/internal/store"
)

// ErrInputBacklog is returned when the input inbox is full.
var ErrInputBacklog = errors.New("input backlog full")

// inboxCapacity bounds input frames queued between two ticks.
const inboxCapacity = 1024

// EngineOptions configures an Engine.
type EngineOptions struct {
	Settings     config.GameSettings
	Limits       config.ResourceLimits
	Level        Level
	TickRate     int
	Seed         int64
	Clock        Clock
	Store        store.MatchStore // optional
	StoreTimeout time.Duration
	EventLogPath string // "" keeps the event log in memory
}

// TickStats describes one engine tick for metrics.
type TickStats struct {
	Tick        uint64
	Duration    time.Duration
	Players     int
	Alive       int
	Projectiles int
	Events      []Event
}

// EngineCallbacks are invoked from the tick goroutine after the engine
// lock is released. They must not block.
type EngineCallbacks struct {
	OnTick     func(TickStats)
	OnEvents   func(matchID string, events []Event)
	OnMatchEnd func(result store.MatchResult)
}

// Engine runs a World on a fixed ticker and serves it to concurrent readers.
// Mutation goes through the engine lock; input frames from the network go
// through a lock-free inbox drained at the start of each tick.
type Engine struct {
	mu    sync.RWMutex
	world *World
	opts  EngineOptions

	tickRate int
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	loopDone chan struct{}

	inbox        *Inbox[InputCommand]
	latched      map[int]latchedInput // per-tick scratch, reused
	snapshotPool *SnapshotPool
	eventLog     *EventLog
	leaderboard  *Leaderboard
	store        store.MatchStore

	callbacks EngineCallbacks
	saves     sync.WaitGroup
}

// NewEngine creates an engine around a fresh world.
func NewEngine(opts EngineOptions) *Engine {
	if opts.TickRate <= 0 {
		opts.TickRate = 60
	}
	if opts.Limits.MaxPlayers <= 0 {
		opts.Limits = config.DefaultLimits()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}

	return &Engine{
		world: NewWorld(WorldOptions{
			Settings: opts.Settings,
			Limits:   opts.Limits,
			Level:    opts.Level,
			Clock:    opts.Clock,
			Seed:     opts.Seed,
		}),
		opts:         opts,
		tickRate:     opts.TickRate,
		inbox:        NewInbox[InputCommand](inboxCapacity),
		latched:      make(map[int]latchedInput),
		snapshotPool: NewSnapshotPool(opts.Limits),
		eventLog:     NewEventLog(opts.Limits.EventsPerSecond),
		leaderboard:  NewLeaderboard(),
		store:        opts.Store,
	}
}

// SetCallbacks installs event callbacks. Call before Start.
func (e *Engine) SetCallbacks(cb EngineCallbacks) {
	e.mu.Lock()
	e.callbacks = cb
	e.mu.Unlock()
}

// Start begins the event log and the game loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	if err := e.eventLog.Start(e.opts.EventLogPath); err != nil {
		e.mu.Unlock()
		return err
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.loopDone = make(chan struct{})
	e.ticker = time.NewTicker(time.Second / time.Duration(e.tickRate))
	ticker, stop, done := e.ticker, e.stopChan, e.loopDone
	e.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ticker.C:
				e.Step()
			case <-stop:
				return
			}
		}
	}()

	log.Printf("🎮 Game engine started at %d TPS", e.tickRate)
	return nil
}

// Stop stops the loop, waits for pending saves and flushes the event log.
// It is safe to call more than once and on an engine that never started.
func (e *Engine) Stop() {
	e.mu.Lock()
	var done chan struct{}
	if e.running {
		e.running = false
		e.ticker.Stop()
		close(e.stopChan)
		done = e.loopDone
	}
	e.mu.Unlock()

	if done != nil {
		<-done
		log.Println("🛑 Game engine stopped")
	}
	e.saves.Wait()
	e.eventLog.Stop()
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Step runs one tick synchronously. The ticker calls it; tests and the
// headless runner call it directly.
func (e *Engine) Step() TickResult {
	start := time.Now()

	e.mu.Lock()
	w := e.world
	e.drainInput(w)
	res := w.Tick()
	e.releaseInput(w)

	snap := e.snapshotPool.AcquireWrite(w.clock.Now())
	w.FillSnapshot(snap)
	e.snapshotPool.PublishWrite()

	for _, row := range w.Standings() {
		e.leaderboard.Update(row)
	}

	matchID := w.rules.ID
	var result *store.MatchResult
	if res.Winner != nil {
		r := e.buildResult(res.Winner)
		result = &r
	}
	stats := TickStats{
		Tick:        res.Tick,
		Players:     snap.PlayerCount,
		Alive:       snap.AliveCount,
		Projectiles: len(snap.Projectiles),
		Events:      res.Events,
	}
	cb := e.callbacks
	e.mu.Unlock()

	if len(res.Events) > 0 {
		e.eventLog.Append(matchID, res.Events)
		if cb.OnEvents != nil {
			cb.OnEvents(matchID, res.Events)
		}
	}
	if result != nil {
		e.finish(*result, cb)
	}

	stats.Duration = time.Since(start)
	if cb.OnTick != nil {
		cb.OnTick(stats)
	}
	return res
}

// latchedInput is what one tick saw of a player's frames: the newest frame
// and the frame the tick applies, which also holds any press seen since
// the previous tick.
type latchedInput struct {
	last, applied InputState
}

// drainInput applies queued frames. A press released before the tick
// still counts for it. Caller holds e.mu.
func (e *Engine) drainInput(w *World) {
	e.inbox.Drain(func(cmd InputCommand) {
		l, seen := e.latched[cmd.Player]
		if seen {
			l.applied = l.applied.Latch(cmd.State)
		} else {
			l.applied = cmd.State
		}
		l.last = cmd.State
		e.latched[cmd.Player] = l
	})
	for slot, l := range e.latched {
		// Players may have left since the frame was queued.
		_ = w.SetInput(slot, l.applied)
	}
}

// releaseInput restores the newest frame where a latched press was
// already released, then clears the scratch map. Caller holds e.mu.
func (e *Engine) releaseInput(w *World) {
	for slot, l := range e.latched {
		if l.applied != l.last {
			_ = w.SetInput(slot, l.last)
		}
	}
	clear(e.latched)
}

// buildResult snapshots the final standings. Caller holds e.mu.
func (e *Engine) buildResult(w *Winner) store.MatchResult {
	rules := e.world.rules
	r := store.MatchResult{
		ID:         rules.ID,
		WinnerSlot: w.Index,
		WinnerName: w.Name,
		Reason:     w.Reason,
		EndedAt:    w.DeclaredAt,
		Duration:   rules.Elapsed(),
	}
	r.StartedAt = r.EndedAt.Add(-r.Duration)
	for _, p := range e.world.players {
		r.Players = append(r.Players, store.PlayerResult{
			Slot:   p.Slot,
			Name:   p.Name,
			AI:     p.AI,
			Money:  p.Money,
			Kills:  rules.Kills(p.Slot),
			Deaths: rules.Deaths(p.Slot),
		})
	}
	return r
}

// finish persists a result in the background and notifies observers.
func (e *Engine) finish(r store.MatchResult, cb EngineCallbacks) {
	log.Printf("🏁 Match %s finished: %s (winner %d)", r.ID, r.Reason, r.WinnerSlot)
	if cb.OnMatchEnd != nil {
		cb.OnMatchEnd(r)
	}
	if e.store == nil {
		return
	}
	e.saves.Add(1)
	go func() {
		defer e.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.StoreTimeout)
		defer cancel()
		if err := e.store.SaveResult(ctx, r); err != nil {
			log.Printf("⚠️ Failed to save match %s: %v", r.ID, err)
		}
	}()
}

// =============================================================================
// PARTICIPANTS AND INPUT
// =============================================================================

// AddPlayer joins a participant and returns its slot.
func (e *Engine) AddPlayer(name string, ai bool, difficulty string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.world.AddPlayer(name, ai, difficulty)
	if err != nil {
		return NoPlayer, err
	}
	e.leaderboard.Update(LeaderboardEntry{Slot: p.Slot, Name: p.Name})
	return p.Slot, nil
}

// RemovePlayer takes a participant out of the match.
func (e *Engine) RemovePlayer(slot int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.world.RemovePlayer(slot); err != nil {
		return err
	}
	e.leaderboard.Remove(slot)
	return nil
}

// SetInput queues an input frame for the next tick. Safe to call from any
// goroutine without taking the engine lock for long.
func (e *Engine) SetInput(slot int, state InputState) error {
	e.mu.RLock()
	known := e.world.Player(slot) != nil
	e.mu.RUnlock()
	if !known {
		return fmt.Errorf("input for slot %d: %w", slot, ErrUnknownPlayer)
	}
	if !e.inbox.TryPush(InputCommand{Player: slot, State: state}) {
		return ErrInputBacklog
	}
	return nil
}

// Equip hands a player a fresh weapon.
func (e *Engine) Equip(slot int, kind WeaponKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Equip(slot, kind)
}

// =============================================================================
// MATCH CONTROL
// =============================================================================

func (e *Engine) StartMatch() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.StartMatch()
}

func (e *Engine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Pause()
}

func (e *Engine) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Resume()
}

// EndMatch aborts the match. The result is recorded like any other.
func (e *Engine) EndMatch() *Winner {
	e.mu.Lock()
	w := e.world.EndMatch()
	var r store.MatchResult
	if w != nil {
		r = e.buildResult(w)
	}
	cb := e.callbacks
	e.mu.Unlock()

	if w != nil {
		e.finish(r, cb)
	}
	return w
}

// Reset starts over in the waiting state. With non-nil settings the world
// is rebuilt with them and the same participants rejoin; settings never
// change mid-match.
func (e *Engine) Reset(settings *config.GameSettings) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if settings == nil {
		e.world.Reset()
		e.leaderboard.Clear()
		for _, row := range e.world.Standings() {
			e.leaderboard.Update(row)
		}
		return nil
	}

	if err := settings.Validate(); err != nil {
		return err
	}
	old := e.world
	e.opts.Settings = *settings
	e.world = NewWorld(WorldOptions{
		Settings: *settings,
		Limits:   e.opts.Limits,
		Level:    e.opts.Level,
		Clock:    e.opts.Clock,
		Seed:     e.opts.Seed,
	})
	e.leaderboard.Clear()
	for _, p := range old.players {
		difficulty := ""
		if ai := old.ai.Controller(p.Slot); ai != nil {
			difficulty = ai.Difficulty()
		}
		np, err := e.world.AddPlayer(p.Name, p.AI, difficulty)
		if err != nil {
			return err
		}
		e.leaderboard.Update(LeaderboardEntry{Slot: np.Slot, Name: np.Name})
	}
	log.Printf("🔄 Match reset with new settings (%s)", e.world.rules.ID)
	return nil
}

// =============================================================================
// READ SIDE
// =============================================================================

// Snapshot returns a private copy of the latest published snapshot, or a
// fresh one before the first tick.
func (e *Engine) Snapshot() *GameSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if snap := e.snapshotPool.AcquireRead(); snap != nil {
		return snap.Clone()
	}
	return e.world.Snapshot()
}

// MatchStats reports the current standings.
func (e *Engine) MatchStats() MatchStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world.MatchStats()
}

// State returns the match state.
func (e *Engine) State() MatchState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world.rules.State()
}

// MatchID returns the current match id.
func (e *Engine) MatchID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world.rules.ID
}

// Leaderboard returns the top n players.
func (e *Engine) Leaderboard(n int) []LeaderboardEntry {
	return e.leaderboard.Top(n)
}

// AIStatus reports every AI controller.
func (e *Engine) AIStatus() []AIStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world.ai.Status()
}

// SetAIDifficulty applies a difficulty preset to every AI.
func (e *Engine) SetAIDifficulty(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.ai.SetGlobalDifficulty(name)
}

// Settings returns the active game settings.
func (e *Engine) Settings() config.GameSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts.Settings
}

// Level returns the level the engine runs on.
func (e *Engine) Level() Level { return e.opts.Level }

// Limits returns the resource limits.
func (e *Engine) Limits() config.ResourceLimits { return e.opts.Limits }

// TickRate returns the configured ticks per second.
func (e *Engine) TickRate() int { return e.tickRate }

// RecentEvents returns up to n logged events, newest last.
func (e *Engine) RecentEvents(n int) []LogEntry {
	return e.eventLog.Recent(n)
}

// EventLogStats returns event log statistics for monitoring.
func (e *Engine) EventLogStats() map[string]interface{} {
	return e.eventLog.GetStats()
}

// InputDropped returns how many input frames were rejected as backlog.
func (e *Engine) InputDropped() uint64 {
	return e.inbox.Dropped()
}

// History returns recently finished matches, empty without a store.
func (e *Engine) History(ctx context.Context, limit int) ([]store.MatchResult, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.Recent(ctx, limit)
}

// Result returns one finished match.
func (e *Engine) Result(ctx context.Context, id string) (store.MatchResult, error) {
	if e.store == nil {
		return store.MatchResult{}, fmt.Errorf("get %s: %w", id, store.ErrNotFound)
	}
	return e.store.Get(ctx, id)
}
