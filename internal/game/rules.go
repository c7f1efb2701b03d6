package game

import (
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

// MatchState is the lifecycle state of a match.
type MatchState uint8

const (
	MatchWaiting MatchState = iota
	MatchPlaying
	MatchPaused
	MatchEnded
)

func (s MatchState) String() string {
	switch s {
	case MatchWaiting:
		return "waiting"
	case MatchPlaying:
		return "playing"
	case MatchPaused:
		return "paused"
	case MatchEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (s MatchState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// VictoryCondition is a set of configured win rules.
type VictoryCondition uint8

const (
	VictoryMoney VictoryCondition = 1 << iota
	VictoryElimination
	VictoryTime
	VictoryKills
)

// Has reports whether c includes all of o.
func (c VictoryCondition) Has(o VictoryCondition) bool {
	return c&o == o
}

func (c VictoryCondition) String() string {
	var parts []string
	for _, v := range []struct {
		bit  VictoryCondition
		name string
	}{
		{VictoryMoney, config.VictoryMoney},
		{VictoryElimination, config.VictoryElimination},
		{VictoryTime, config.VictoryTime},
		{VictoryKills, config.VictoryKills},
	} {
		if c.Has(v.bit) {
			parts = append(parts, v.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseVictoryConditions converts settings names to a condition set.
// Unknown names are ignored; settings validation rejects them earlier.
func ParseVictoryConditions(names []string) VictoryCondition {
	var c VictoryCondition
	for _, n := range names {
		switch n {
		case config.VictoryMoney:
			c |= VictoryMoney
		case config.VictoryElimination:
			c |= VictoryElimination
		case config.VictoryTime:
			c |= VictoryTime
		case config.VictoryKills:
			c |= VictoryKills
		}
	}
	return c
}

// Victory reasons reported in Winner.Reason.
const (
	ReasonMoney       = "money"
	ReasonElimination = "elimination"
	ReasonDraw        = "draw"
	ReasonTime        = "time"
	ReasonKills       = "kills"
	ReasonAborted     = "aborted"
)

// WinnerStats is the winner's standing when the match ended.
type WinnerStats struct {
	Money  float64 `json:"money"`
	Kills  int     `json:"kills"`
	Deaths int     `json:"deaths"`
	Health float64 `json:"health"`
}

// Winner describes how a match ended. Index is NoPlayer for draws and
// aborted matches.
type Winner struct {
	Index      int         `json:"index"`
	Name       string      `json:"name,omitempty"`
	Reason     string      `json:"reason"`
	Stats      WinnerStats `json:"stats"`
	DeclaredAt time.Time   `json:"declaredAt"`
}

type respawnEntry struct {
	slot int
	due  time.Time
}

// MatchRules is the match state machine:
// waiting → playing ⇄ paused → ended, with ended terminal until Reset.
// One instance per match; nothing in it is global.
type MatchRules struct {
	ID string

	state        MatchState
	conditions   VictoryCondition
	winMoney     float64
	killLimit    int
	duration     time.Duration
	respawnDelay time.Duration

	startedAt time.Time
	pausedAt  time.Time
	endedAt   time.Time

	kills    map[int]int
	deaths   map[int]int
	respawns []respawnEntry // sorted by due
	winner   *Winner

	clock Clock
}

// NewMatchRules creates rules in the waiting state.
func NewMatchRules(match config.MatchSettings, respawnDelay time.Duration, clock Clock) *MatchRules {
	r := &MatchRules{
		conditions:   ParseVictoryConditions(match.VictoryConditions),
		winMoney:     match.WinMoney,
		killLimit:    match.KillLimit,
		duration:     match.Duration.Duration(),
		respawnDelay: respawnDelay,
		clock:        clock,
	}
	r.Reset()
	return r
}

// State returns the current match state.
func (r *MatchRules) State() MatchState { return r.state }

// Winner returns the declared result, nil while the match is undecided.
func (r *MatchRules) Winner() *Winner { return r.winner }

// Conditions returns the configured victory conditions.
func (r *MatchRules) Conditions() VictoryCondition { return r.conditions }

// StartMatch stamps the start time, clears counters and moves to playing.
// Only valid from waiting.
func (r *MatchRules) StartMatch(players []*Player) bool {
	if r.state != MatchWaiting {
		return false
	}
	r.startedAt = r.clock.Now()
	r.kills = make(map[int]int, len(players))
	r.deaths = make(map[int]int, len(players))
	for _, p := range players {
		r.kills[p.Slot] = 0
		r.deaths[p.Slot] = 0
	}
	r.respawns = r.respawns[:0]
	r.winner = nil
	r.state = MatchPlaying
	log.Printf("🎮 Match %s started (%s)", r.ID, r.conditions)
	return true
}

// Elapsed returns playing time, excluding pauses.
func (r *MatchRules) Elapsed() time.Duration {
	if r.startedAt.IsZero() {
		return 0
	}
	end := r.clock.Now()
	switch r.state {
	case MatchPaused:
		end = r.pausedAt
	case MatchEnded:
		end = r.endedAt
	}
	return end.Sub(r.startedAt)
}

// Remaining returns the time left under a time limit, 0 without one.
func (r *MatchRules) Remaining() time.Duration {
	if r.duration <= 0 {
		return 0
	}
	if d := r.duration - r.Elapsed(); d > 0 {
		return d
	}
	return 0
}

// CheckVictory evaluates the configured conditions in fixed order: money,
// elimination, time, kills. The first satisfied condition ends the match.
// Returns nil unless the match is playing and a condition was met.
func (r *MatchRules) CheckVictory(players []*Player) *Winner {
	if r.state != MatchPlaying || len(players) == 0 {
		return nil
	}

	if r.conditions.Has(VictoryMoney) {
		for _, p := range players {
			if p.Money >= r.winMoney {
				return r.declare(p, ReasonMoney)
			}
		}
	}

	// A lone participant is not "last standing".
	if r.conditions.Has(VictoryElimination) && len(players) > 1 {
		var alive []*Player
		for _, p := range players {
			if p.Alive() && p.vit.Health > 0 {
				alive = append(alive, p)
			}
		}
		switch len(alive) {
		case 0:
			return r.declare(nil, ReasonDraw)
		case 1:
			return r.declare(alive[0], ReasonElimination)
		}
	}

	if r.duration > 0 && r.Elapsed() >= r.duration {
		lead := players[0]
		for _, p := range players[1:] {
			if p.Money > lead.Money {
				lead = p
			}
		}
		return r.declare(lead, ReasonTime)
	}

	if r.conditions.Has(VictoryKills) {
		for _, p := range players {
			if r.kills[p.Slot] >= r.killLimit {
				return r.declare(p, ReasonKills)
			}
		}
	}

	return nil
}

func (r *MatchRules) declare(p *Player, reason string) *Winner {
	now := r.clock.Now()
	w := &Winner{Index: NoPlayer, Reason: reason, DeclaredAt: now}
	if p != nil {
		w.Index = p.Slot
		w.Name = p.Name
		w.Stats = WinnerStats{
			Money:  p.Money,
			Kills:  r.kills[p.Slot],
			Deaths: r.deaths[p.Slot],
			Health: p.vit.Health,
		}
	}
	r.winner = w
	r.state = MatchEnded
	r.endedAt = now
	log.Printf("🏆 Match %s winner: %d (%s)", r.ID, w.Index, reason)
	return w
}

// HandlePlayerDeath marks c dead, updates counters and queues exactly one
// respawn. A killer of NoPlayer (or the victim itself) earns no kill.
// Returns false if c was already dead.
func (r *MatchRules) HandlePlayerDeath(c Combatant, killer int) bool {
	v := c.Vitals()
	if v.Dead {
		return false
	}
	v.Dead = true
	v.Health = 0
	v.Invulnerable = false
	v.InvulnerableUntil = time.Time{}

	slot := c.ID()
	r.deaths[slot]++
	if killer >= 0 && killer != slot {
		r.kills[killer]++
	}

	r.schedule(respawnEntry{slot: slot, due: r.clock.Now().Add(r.respawnDelay)})
	return true
}

func (r *MatchRules) schedule(e respawnEntry) {
	i := sort.Search(len(r.respawns), func(i int) bool { return r.respawns[i].due.After(e.due) })
	r.respawns = append(r.respawns, respawnEntry{})
	copy(r.respawns[i+1:], r.respawns[i:])
	r.respawns[i] = e
}

// PendingRespawns returns the number of queued respawns.
func (r *MatchRules) PendingRespawns() int { return len(r.respawns) }

// RespawnDue returns when slot will respawn, false if it is not queued.
func (r *MatchRules) RespawnDue(slot int) (time.Time, bool) {
	for _, e := range r.respawns {
		if e.slot == slot {
			return e.due, true
		}
	}
	return time.Time{}, false
}

// UpdateRespawns pops every due entry and revives its player at spawn
// point slot % len(spawns). lookup may return nil for players that left;
// their entries are dropped. Returns the revived players.
func (r *MatchRules) UpdateRespawns(lookup func(slot int) *Player, spawns []geom.Vec3) []*Player {
	now := r.clock.Now()
	n := 0
	for n < len(r.respawns) && !r.respawns[n].due.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}

	due := make([]respawnEntry, n)
	copy(due, r.respawns[:n])
	r.respawns = append(r.respawns[:0], r.respawns[n:]...)

	revived := make([]*Player, 0, n)
	for _, e := range due {
		p := lookup(e.slot)
		if p == nil {
			continue
		}
		Respawn(p, SpawnFor(e.slot, spawns, p.Spawn))
		revived = append(revived, p)
	}
	return revived
}

// SpawnFor picks spawn point slot % len(spawns), falling back to fallback
// when the level has none.
func SpawnFor(slot int, spawns []geom.Vec3, fallback geom.Vec3) geom.Vec3 {
	if len(spawns) == 0 {
		return fallback
	}
	if slot < 0 {
		slot = -slot
	}
	return spawns[slot%len(spawns)]
}

// Pause freezes the match clock. Only valid while playing.
func (r *MatchRules) Pause() bool {
	if r.state != MatchPlaying {
		return false
	}
	r.pausedAt = r.clock.Now()
	r.state = MatchPaused
	log.Printf("⏸️ Match %s paused", r.ID)
	return true
}

// Resume continues a paused match. The start time and every queued respawn
// shift by the paused duration.
func (r *MatchRules) Resume() bool {
	if r.state != MatchPaused {
		return false
	}
	paused := r.clock.Now().Sub(r.pausedAt)
	r.startedAt = r.startedAt.Add(paused)
	for i := range r.respawns {
		r.respawns[i].due = r.respawns[i].due.Add(paused)
	}
	r.pausedAt = time.Time{}
	r.state = MatchPlaying
	log.Printf("▶️ Match %s resumed after %s", r.ID, paused.Round(time.Millisecond))
	return true
}

// EndMatch ends the match without a winner. No-op once ended.
func (r *MatchRules) EndMatch() *Winner {
	if r.state == MatchEnded {
		return nil
	}
	if r.state == MatchPaused && !r.startedAt.IsZero() {
		r.startedAt = r.startedAt.Add(r.clock.Now().Sub(r.pausedAt))
	}
	return r.declare(nil, ReasonAborted)
}

// Reset returns to waiting with a fresh match ID and empty counters.
func (r *MatchRules) Reset() {
	r.ID = uuid.NewString()
	r.state = MatchWaiting
	r.startedAt = time.Time{}
	r.pausedAt = time.Time{}
	r.endedAt = time.Time{}
	r.kills = make(map[int]int)
	r.deaths = make(map[int]int)
	r.respawns = nil
	r.winner = nil
}

// Kills returns the kill count of slot.
func (r *MatchRules) Kills(slot int) int { return r.kills[slot] }

// Deaths returns the death count of slot.
func (r *MatchRules) Deaths(slot int) int { return r.deaths[slot] }

// PlayerStats is one row of MatchStats.
type PlayerStats struct {
	Slot   int     `json:"slot"`
	Name   string  `json:"name"`
	AI     bool    `json:"ai"`
	Health float64 `json:"health"`
	Money  float64 `json:"money"`
	Kills  int     `json:"kills"`
	Deaths int     `json:"deaths"`
	Alive  bool    `json:"alive"`
}

// MatchStats summarizes a match.
type MatchStats struct {
	MatchID    string        `json:"matchId"`
	State      MatchState    `json:"state"`
	Conditions string        `json:"conditions"`
	Elapsed    time.Duration `json:"elapsedNs"`
	Remaining  time.Duration `json:"remainingNs"`
	Players    []PlayerStats `json:"players"`
	Winner     *Winner       `json:"winner,omitempty"`
}

// MatchStats reports per-player standings.
func (r *MatchRules) MatchStats(players []*Player) MatchStats {
	stats := MatchStats{
		MatchID:    r.ID,
		State:      r.state,
		Conditions: r.conditions.String(),
		Elapsed:    r.Elapsed(),
		Remaining:  r.Remaining(),
		Players:    make([]PlayerStats, 0, len(players)),
		Winner:     r.winner,
	}
	for _, p := range players {
		stats.Players = append(stats.Players, PlayerStats{
			Slot:   p.Slot,
			Name:   p.Name,
			AI:     p.AI,
			Health: p.vit.Health,
			Money:  p.Money,
			Kills:  r.kills[p.Slot],
			Deaths: r.deaths[p.Slot],
			Alive:  p.Alive(),
		})
	}
	return stats
}
