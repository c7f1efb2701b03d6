package spatial

// This file implements a concurrent skip list with augmented span counts
// for O(log n) rank queries, the structure Redis uses for sorted sets.
// Entries are ordered by score (highest first), ties broken by key.

import (
	"math/rand"
	"sync"
)

const (
	maxLevel         = 32   // Max skip list height (supports 2^32 elements)
	levelProbability = 0.25 // P=0.25 gives optimal balance
)

// SkipListEntry represents a scored entry in the leaderboard
type SkipListEntry struct {
	Key   string
	Score float64
}

// before reports whether a ranks ahead of b.
func (a SkipListEntry) before(b SkipListEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Key < b.Key
}

type skipNode struct {
	entry SkipListEntry
	next  []*skipNode // forward pointers, one per level
	span  []int       // nodes skipped by each forward pointer
}

// SkipList is a concurrent skip list with O(log n) rank queries.
// A key index keeps score updates O(log n) as well.
type SkipList struct {
	mu     sync.RWMutex
	head   *skipNode
	level  int
	length int
	scores map[string]float64
	rng    *rand.Rand
}

// NewSkipList creates an empty skip list. seed drives node heights only.
func NewSkipList(seed int64) *SkipList {
	return &SkipList{
		head: &skipNode{
			next: make([]*skipNode, maxLevel),
			span: make([]int, maxLevel),
		},
		level:  1,
		scores: make(map[string]float64),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (sl *SkipList) randomLevel() int {
	level := 1
	for level < maxLevel && sl.rng.Float64() < levelProbability {
		level++
	}
	return level
}

// Insert adds an entry or moves an existing key to its new score.
// Time complexity: O(log n) average
func (sl *SkipList) Insert(key string, score float64) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if old, ok := sl.scores[key]; ok {
		if old == score {
			return
		}
		sl.delete(SkipListEntry{Key: key, Score: old})
	}
	sl.insert(SkipListEntry{Key: key, Score: score})
	sl.scores[key] = score
}

func (sl *SkipList) insert(e SkipListEntry) {
	var update [maxLevel]*skipNode
	var rank [maxLevel]int

	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		if i < sl.level-1 {
			rank[i] = rank[i+1]
		}
		for x.next[i] != nil && x.next[i].entry.before(e) {
			rank[i] += x.span[i]
			x = x.next[i]
		}
		update[i] = x
	}

	newLevel := sl.randomLevel()
	if newLevel > sl.level {
		for i := sl.level; i < newLevel; i++ {
			rank[i] = 0
			update[i] = sl.head
			update[i].span[i] = sl.length
		}
		sl.level = newLevel
	}

	node := &skipNode{
		entry: e,
		next:  make([]*skipNode, newLevel),
		span:  make([]int, newLevel),
	}
	for i := 0; i < newLevel; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
		node.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = (rank[0] - rank[i]) + 1
	}
	for i := newLevel; i < sl.level; i++ {
		update[i].span[i]++
	}
	sl.length++
}

// Remove removes an entry by key
// Time complexity: O(log n) average
func (sl *SkipList) Remove(key string) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	score, ok := sl.scores[key]
	if !ok {
		return false
	}
	sl.delete(SkipListEntry{Key: key, Score: score})
	delete(sl.scores, key)
	return true
}

func (sl *SkipList) delete(e SkipListEntry) {
	var update [maxLevel]*skipNode
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && x.next[i].entry.before(e) {
			x = x.next[i]
		}
		update[i] = x
	}

	node := x.next[0]
	if node == nil || node.entry != e {
		return
	}
	for i := 0; i < sl.level; i++ {
		if update[i].next[i] == node {
			update[i].span[i] += node.span[i] - 1
			update[i].next[i] = node.next[i]
		} else {
			update[i].span[i]--
		}
	}
	for sl.level > 1 && sl.head.next[sl.level-1] == nil {
		sl.level--
	}
	sl.length--
}

// GetRank returns the rank of a key (1-indexed, 1 = highest score)
// Returns 0 if key not found
// Time complexity: O(log n)
func (sl *SkipList) GetRank(key string) int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	score, ok := sl.scores[key]
	if !ok {
		return 0
	}
	e := SkipListEntry{Key: key, Score: score}

	rank := 0
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && !e.before(x.next[i].entry) {
			rank += x.span[i]
			x = x.next[i]
		}
		if x != sl.head && x.entry == e {
			return rank
		}
	}
	return 0
}

// GetByRank returns the entry at a given rank (1-indexed)
// Time complexity: O(log n)
func (sl *SkipList) GetByRank(rank int) (SkipListEntry, bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if rank <= 0 || rank > sl.length {
		return SkipListEntry{}, false
	}

	traversed := 0
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] <= rank {
			traversed += x.span[i]
			x = x.next[i]
		}
		if traversed == rank {
			return x.entry, true
		}
	}
	return SkipListEntry{}, false
}

// GetRange returns entries in rank range [start, end] (1-indexed, inclusive)
// Time complexity: O(log n + k) where k is range size
func (sl *SkipList) GetRange(start, end int) []SkipListEntry {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if start <= 0 {
		start = 1
	}
	if end > sl.length {
		end = sl.length
	}
	if start > end {
		return nil
	}

	result := make([]SkipListEntry, 0, end-start+1)

	traversed := 0
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] < start {
			traversed += x.span[i]
			x = x.next[i]
		}
	}

	x = x.next[0]
	for x != nil && traversed < end {
		traversed++
		result = append(result, x.entry)
		x = x.next[0]
	}
	return result
}

// GetScore returns the score for a key
func (sl *SkipList) GetScore(key string) (float64, bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	score, ok := sl.scores[key]
	return score, ok
}

// Length returns the number of entries
func (sl *SkipList) Length() int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.length
}

// Clear removes all entries
func (sl *SkipList) Clear() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	for i := range sl.head.next {
		sl.head.next[i] = nil
		sl.head.span[i] = 0
	}
	sl.level = 1
	sl.length = 0
	sl.scores = make(map[string]float64)
}

// ForEach iterates over all entries in rank order (highest score first)
// Time complexity: O(n)
func (sl *SkipList) ForEach(fn func(rank int, entry SkipListEntry) bool) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	rank := 0
	for x := sl.head.next[0]; x != nil; x = x.next[0] {
		rank++
		if !fn(rank, x.entry) {
			return
		}
	}
}
