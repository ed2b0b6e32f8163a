// Package queue holds admitted orders in Lamport total order.
//
// The head is the minimum entry by (FusedTS, ClientID). Only the head may
// be started or completed; callers check IsHead before acting.
//
// Note: Queue is not goroutine-safe. The broker's session serializes every
// access together with the clock and the broadcast that follows a change.
package queue

import (
	"container/heap"
	"sort"

	"github.com/smartkitchen/smk/pkg/model"
)

// Queue is a min-heap of entries. The zero value is an empty queue.
type Queue struct {
	h entryHeap
}

// Push inserts e. O(log n).
func (q *Queue) Push(e model.Entry) {
	heap.Push(&q.h, e)
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (model.Entry, bool) {
	if len(q.h) == 0 {
		return model.Entry{}, false
	}
	return q.h[0], true
}

// Pop removes and returns the head. O(log n).
func (q *Queue) Pop() (model.Entry, bool) {
	if len(q.h) == 0 {
		return model.Entry{}, false
	}
	return heap.Pop(&q.h).(model.Entry), true
}

// IsHead reports whether e has the same order key as the current head.
func (q *Queue) IsHead(e model.Entry) bool {
	head, ok := q.Peek()
	return ok && head.SameKey(e)
}

// Len returns the number of queued entries.
func (q *Queue) Len() int { return len(q.h) }

// Snapshot returns every entry in total order. The queue is not modified.
func (q *Queue) Snapshot() []model.Entry {
	out := make([]model.Entry, len(q.h))
	copy(out, q.h)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Clear drops every entry.
func (q *Queue) Clear() { q.h = nil }

type entryHeap []model.Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].Less(h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(model.Entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
