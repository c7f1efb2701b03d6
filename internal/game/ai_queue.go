package game

import (
	"container/heap"
	"time"

	"arena-brawl/internal/game/geom"
)

// ActionKind is what a scheduled AI action does when it comes due.
type ActionKind uint8

const (
	ActionMove ActionKind = iota
	ActionStop
	ActionJump
	ActionAttack
)

func (k ActionKind) String() string {
	switch k {
	case ActionMove:
		return "move"
	case ActionStop:
		return "stop"
	case ActionJump:
		return "jump"
	case ActionAttack:
		return "attack"
	default:
		return "unknown"
	}
}

// aiAction is one delayed action. Direction is used by moves, Aim by attacks.
type aiAction struct {
	Kind      ActionKind
	Due       time.Time
	Direction float64
	Aim       geom.Vec3

	seq uint64 // FIFO among equal due times
}

// actionHeap implements heap.Interface ordered by due time.
type actionHeap []aiAction

func (h actionHeap) Len() int { return len(h) }
func (h actionHeap) Less(i, j int) bool {
	if !h[i].Due.Equal(h[j].Due) {
		return h[i].Due.Before(h[j].Due)
	}
	return h[i].seq < h[j].seq
}
func (h actionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *actionHeap) Push(x any)   { *h = append(*h, x.(aiAction)) }
func (h *actionHeap) Pop() any {
	old := *h
	n := len(old)
	a := old[n-1]
	*h = old[:n-1]
	return a
}

// actionQueue is a min-priority queue of scheduled actions. Each action is
// returned at most once; actions overdue by more than the staleness bound
// are dropped without being returned.
type actionQueue struct {
	h          actionHeap
	seq        uint64
	staleAfter time.Duration
}

func newActionQueue(staleAfter time.Duration) *actionQueue {
	return &actionQueue{staleAfter: staleAfter}
}

// Schedule queues a at its due time.
func (q *actionQueue) Schedule(a aiAction) {
	q.seq++
	a.seq = q.seq
	heap.Push(&q.h, a)
}

// PopDue removes and returns the next action due at now. Stale actions are
// discarded along the way.
func (q *actionQueue) PopDue(now time.Time) (aiAction, bool) {
	for q.h.Len() > 0 {
		next := q.h[0]
		if next.Due.After(now) {
			return aiAction{}, false
		}
		heap.Pop(&q.h)
		if q.staleAfter > 0 && now.Sub(next.Due) > q.staleAfter {
			continue
		}
		return next, true
	}
	return aiAction{}, false
}

// Len returns the number of queued actions.
func (q *actionQueue) Len() int { return q.h.Len() }

// Clear drops every queued action.
func (q *actionQueue) Clear() { q.h = q.h[:0] }
