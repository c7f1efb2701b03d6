package game

import (
	"encoding/json"
	"strconv"
	"time"

	"arena-brawl/internal/game/geom"
)

// EventKind enum for event classification
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventFired
	EventDamaged
	EventEliminated
	EventRespawned
	EventMoneyGained
	EventTrophyPickedUp
	EventTrophyDropped
	EventWeaponPickedUp
	EventWeaponDropped
	EventJumped
	EventVictory
	EventMatchState
	EventPlayerJoined
	EventPlayerLeft

	eventKindCount // keep last
)

// String returns human-readable event kind
func (k EventKind) String() string {
	switch k {
	case EventFired:
		return "fired"
	case EventDamaged:
		return "damaged"
	case EventEliminated:
		return "eliminated"
	case EventRespawned:
		return "respawned"
	case EventMoneyGained:
		return "money_gained"
	case EventTrophyPickedUp:
		return "trophy_picked_up"
	case EventTrophyDropped:
		return "trophy_dropped"
	case EventWeaponPickedUp:
		return "weapon_picked_up"
	case EventWeaponDropped:
		return "weapon_dropped"
	case EventJumped:
		return "jumped"
	case EventVictory:
		return "victory"
	case EventMatchState:
		return "match_state"
	case EventPlayerJoined:
		return "player_joined"
	case EventPlayerLeft:
		return "player_left"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name so feeds stay readable.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// EventKinds lists every known kind (used for metric label sets).
func EventKinds() []EventKind {
	kinds := make([]EventKind, 0, eventKindCount-1)
	for k := EventFired; k < eventKindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// NoPlayer marks an absent player reference in events and results.
const NoPlayer = -1

// Event is a fire-and-forget notification produced during a tick. Events
// are collected per tick and handed to observers once, after the tick.
type Event struct {
	Kind     EventKind  `json:"kind" msgpack:"kind"`
	Tick     uint64     `json:"tick" msgpack:"tick"`
	Time     time.Time  `json:"time" msgpack:"time"`
	Player   int        `json:"player" msgpack:"player"` // subject
	Other    int        `json:"other" msgpack:"other"`   // attacker, killer or source; NoPlayer if none
	Weapon   WeaponKind `json:"weapon,omitempty" msgpack:"weapon,omitempty"`
	Amount   float64    `json:"amount,omitempty" msgpack:"amount,omitempty"`
	Position geom.Vec3  `json:"position" msgpack:"position"`
	Reason   string     `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// EventSink receives events as they happen inside a tick.
type EventSink interface {
	Emit(Event)
}

// EventBuffer collects the events of one tick. Drain hands them off and
// resets the buffer; nothing else reads it.
type EventBuffer struct {
	tick   uint64
	now    time.Time
	events []Event
}

// Begin stamps subsequent events with tick and now.
func (b *EventBuffer) Begin(tick uint64, now time.Time) {
	b.tick = tick
	b.now = now
}

func (b *EventBuffer) Emit(e Event) {
	e.Tick = b.tick
	if e.Time.IsZero() {
		e.Time = b.now
	}
	b.events = append(b.events, e)
}

// Drain returns the collected events and empties the buffer.
func (b *EventBuffer) Drain() []Event {
	out := b.events
	b.events = nil
	return out
}

// Len returns the number of pending events.
func (b *EventBuffer) Len() int {
	return len(b.events)
}

func emit(sink EventSink, e Event) {
	if sink != nil {
		sink.Emit(e)
	}
}

// =============================================================================
// EVENT LOG ENVELOPE
// =============================================================================

// EventVersion for backwards compatibility of the persisted log
const EventVersion uint8 = 1

// LogEntry is the persisted form of an Event in the NDJSON event log.
type LogEntry struct {
	Version   uint8           `json:"version"`   // Schema version
	Kind      string          `json:"kind"`      // Event kind name
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence, assigned by the log
	TickNum   uint64          `json:"tickNum"`   // Game tick this occurred in
	MatchID   string          `json:"matchId"`   // Match the event belongs to
	PlayerID  string          `json:"playerId"`  // Source player (for rate limiting)
	Payload   json.RawMessage `json:"payload"`   // JSON-encoded Event
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewLogEntry wraps a core event for the event log.
func NewLogEntry(matchID string, e Event) LogEntry {
	playerID := ""
	if e.Player != NoPlayer {
		playerID = strconv.Itoa(e.Player)
	}
	return LogEntry{
		Version:   EventVersion,
		Kind:      e.Kind.String(),
		Timestamp: e.Time.UnixNano(),
		TickNum:   e.Tick,
		MatchID:   matchID,
		PlayerID:  playerID,
		Payload:   EncodePayload(e),
	}
}
