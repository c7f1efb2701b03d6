package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogRejectsBeforeStart(t *testing.T) {
	el := NewEventLog(0)
	assert.False(t, el.Emit(LogEntry{Kind: "fired"}))
	assert.Empty(t, el.Recent(10))
	el.Stop()
}

func TestEventLogRecent(t *testing.T) {
	el := NewEventLog(0)
	require.NoError(t, el.Start(""))
	defer el.Stop()

	n := el.Append("m1", []Event{
		{Kind: EventFired, Player: 0, Other: NoPlayer, Tick: 3},
		{Kind: EventDamaged, Player: 1, Other: 0, Tick: 3},
		{Kind: EventVictory, Player: NoPlayer, Other: NoPlayer, Tick: 4},
	})
	require.Equal(t, 3, n)

	recent := el.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "damaged", recent[0].Kind)
	assert.Equal(t, "victory", recent[1].Kind)
	assert.Equal(t, "", recent[1].PlayerID)
	assert.Equal(t, "m1", recent[1].MatchID)
	assert.Equal(t, uint64(4), recent[1].TickNum)
	assert.Greater(t, recent[1].Sequence, recent[0].Sequence)

	assert.Len(t, el.Recent(0), 3, "n <= 0 returns everything kept")
	assert.Equal(t, uint64(3), el.GetTotalCount())
}

func TestEventLogHistoryWraps(t *testing.T) {
	el := NewEventLog(100000)
	require.NoError(t, el.Start(""))
	defer el.Stop()

	for i := 0; i < HistorySize+10; i++ {
		require.True(t, el.Emit(LogEntry{Kind: "jumped", TickNum: uint64(i)}), "entry %d", i)
	}

	recent := el.Recent(HistorySize + 50)
	require.Len(t, recent, HistorySize)
	assert.Equal(t, uint64(10), recent[0].TickNum)
	assert.Equal(t, uint64(HistorySize+9), recent[HistorySize-1].TickNum)
}

// TestEventLogRateLimit tests that a burst beyond the limiter is dropped
// and counted.
func TestEventLogRateLimit(t *testing.T) {
	el := NewEventLog(10) // burst of one
	require.NoError(t, el.Start(""))
	defer el.Stop()

	assert.True(t, el.Emit(LogEntry{Kind: "fired"}))
	assert.False(t, el.Emit(LogEntry{Kind: "fired"}))
	assert.False(t, el.Emit(LogEntry{Kind: "fired"}))

	assert.Equal(t, uint64(2), el.GetDroppedCount())
	stats := el.GetStats()
	assert.Equal(t, uint64(1), stats["total"])
	assert.Equal(t, true, stats["running"])
}

func TestEventLogPerPlayerLimit(t *testing.T) {
	el := NewEventLog(100000)
	require.NoError(t, el.Start(""))
	defer el.Stop()

	accepted := 0
	for i := 0; i < 100; i++ {
		if el.Emit(LogEntry{Kind: "fired", PlayerID: "7"}) {
			accepted++
		}
	}
	// The burst, plus whatever refilled while the loop ran.
	assert.GreaterOrEqual(t, accepted, MaxEventsPerPlayer/10)
	assert.Less(t, accepted, 100)
	assert.True(t, el.Emit(LogEntry{Kind: "fired", PlayerID: "8"}), "other players are unaffected")
}

func TestEventLogWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	el := NewEventLog(0)
	require.NoError(t, el.Start(path))

	el.Append("m1", []Event{
		{Kind: EventEliminated, Player: 1, Other: 0},
		{Kind: EventVictory, Player: 0, Other: NoPlayer, Reason: ReasonElimination},
	})
	el.Stop() // flushes

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var kinds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		kinds = append(kinds, entry.Kind)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(entry.Payload, &payload))
		assert.Equal(t, entry.Kind, payload["kind"])
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"eliminated", "victory"}, kinds)
}

func TestEventLogStartFailsOnBadPath(t *testing.T) {
	el := NewEventLog(0)
	err := el.Start(filepath.Join(t.TempDir(), "missing", "events.ndjson"))
	assert.Error(t, err)
	assert.False(t, el.Emit(LogEntry{Kind: "fired"}))
}

// =============================================================================
// INBOX
// =============================================================================

func TestInboxOrderAndCapacity(t *testing.T) {
	q := NewInbox[int](3)
	assert.Equal(t, 4, q.Cap(), "rounded up to a power of two")

	for i := 0; i < 4; i++ {
		require.True(t, q.TryPush(i))
	}
	assert.False(t, q.TryPush(99))
	assert.Equal(t, uint64(1), q.Dropped())

	var got []int
	assert.Equal(t, 4, q.Drain(func(v int) { got = append(got, v) }))
	assert.Equal(t, []int{0, 1, 2, 3}, got)

	_, ok := q.TryPop()
	assert.False(t, ok)

	require.True(t, q.TryPush(4), "slots are reused after draining")
	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 4, v)
}

func TestInboxConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 500
	q := NewInbox[int](producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.TryPush(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool, producers*perProducer)
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	q.Drain(func(v int) {
		seen[v] = true
		p, i := v/perProducer, v%perProducer
		assert.Greater(t, i, last[p], "per-producer order is kept")
		last[p] = i
	})
	assert.Len(t, seen, producers*perProducer)
	assert.Zero(t, q.Dropped())
}

// =============================================================================
// LEADERBOARD
// =============================================================================

func TestLeaderboardRanksByMoneyThenKills(t *testing.T) {
	lb := NewLeaderboard()
	lb.Update(LeaderboardEntry{Slot: 0, Name: "ann", Money: 100, Kills: 1})
	lb.Update(LeaderboardEntry{Slot: 1, Name: "bob", Money: 100, Kills: 3})
	lb.Update(LeaderboardEntry{Slot: 2, Name: "cat", Money: 900})

	top := lb.Top(10)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"cat", "bob", "ann"}, []string{top[0].Name, top[1].Name, top[2].Name})
	assert.Equal(t, 3, top[2].Rank)
	assert.Equal(t, 2, lb.Rank(1))

	lb.Update(LeaderboardEntry{Slot: 0, Name: "ann", Money: 1000})
	assert.Equal(t, 1, lb.Rank(0))
	assert.Equal(t, 3, lb.Length(), "updates replace")

	lb.Remove(2)
	assert.Zero(t, lb.Rank(2))
	lb.Clear()
	assert.Empty(t, lb.Top(10))
}
