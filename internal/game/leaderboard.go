package game

import (
	"math"
	"strconv"
	"sync"

	"arena-brawl/internal/game/spatial"
)

// Leaderboard ranks players by money, then kills, using a skip list.
// It is safe for concurrent use: the engine writes after each tick while
// HTTP handlers read.
//
// Operations:
//   - Update: O(log n)
//   - Rank: O(log n)
//   - Top: O(log n + k)
type Leaderboard struct {
	skipList *spatial.SkipList

	mu    sync.RWMutex
	stats map[string]LeaderboardEntry
}

// LeaderboardEntry represents a player in the leaderboard
type LeaderboardEntry struct {
	Slot   int     `json:"slot"`
	Name   string  `json:"name"`
	Money  float64 `json:"money"`
	Kills  int     `json:"kills"`
	Deaths int     `json:"deaths"`
	Rank   int     `json:"rank"`
}

// NewLeaderboard creates a new leaderboard
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		skipList: spatial.NewSkipList(1),
		stats:    make(map[string]LeaderboardEntry),
	}
}

// rankScore orders by whole money first and kills second.
func rankScore(money float64, kills int) float64 {
	return math.Floor(money)*1000 + float64(min(kills, 999))
}

// Update records a player's standing.
// O(log n) time complexity
func (lb *Leaderboard) Update(e LeaderboardEntry) {
	key := strconv.Itoa(e.Slot)
	lb.mu.Lock()
	lb.stats[key] = e
	lb.mu.Unlock()
	lb.skipList.Insert(key, rankScore(e.Money, e.Kills))
}

// Remove drops a player from the leaderboard.
func (lb *Leaderboard) Remove(slot int) {
	key := strconv.Itoa(slot)
	lb.mu.Lock()
	delete(lb.stats, key)
	lb.mu.Unlock()
	lb.skipList.Remove(key)
}

// Rank returns a player's rank (1-indexed, 1 = top), 0 if unknown.
func (lb *Leaderboard) Rank(slot int) int {
	return lb.skipList.GetRank(strconv.Itoa(slot))
}

// Top returns the top n players.
func (lb *Leaderboard) Top(n int) []LeaderboardEntry {
	entries := lb.skipList.GetRange(1, n)

	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LeaderboardEntry, 0, len(entries))
	for i, e := range entries {
		entry, ok := lb.stats[e.Key]
		if !ok {
			continue
		}
		entry.Rank = i + 1
		result = append(result, entry)
	}
	return result
}

// Length returns the number of ranked players.
func (lb *Leaderboard) Length() int {
	return lb.skipList.Length()
}

// Clear removes all players from the leaderboard
func (lb *Leaderboard) Clear() {
	lb.mu.Lock()
	lb.stats = make(map[string]LeaderboardEntry)
	lb.mu.Unlock()
	lb.skipList.Clear()
}
