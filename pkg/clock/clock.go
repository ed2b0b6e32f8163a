// Package clock implements a Lamport logical clock.
//
// From Lamport (1978), two implementation rules govern the clock:
//
//	IR1 (internal event): Before any internal event, increment the clock.
//	IR2 (message receipt): On receiving a message with timestamp t,
//	     set the clock to max(own, t) + 1.
//
// The total order function TotalOrderLess breaks ties deterministically
// using client IDs, giving every participant the same ordering without
// coordination.
//
// Clock is goroutine-safe. The broker shares a single instance across every
// connection goroutine, so both rules are applied with a compare-and-swap
// retry loop rather than a plain read-modify-write.
package clock

import "sync/atomic"

// Clock is a Lamport logical clock. The zero value starts at 0.
type Clock struct {
	ts atomic.Int64
}

// Tick implements IR1: increment the clock before an internal event.
// Returns the new timestamp.
func (c *Clock) Tick() int64 {
	return c.ts.Add(1)
}

// Receive implements IR2: on receiving a message with timestamp received,
// set the clock to max(own, received) + 1. Returns the new timestamp.
func (c *Clock) Receive(received int64) int64 {
	for {
		cur := c.ts.Load()
		next := cur
		if received > next {
			next = received
		}
		next++
		if c.ts.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Value returns the current clock value without advancing it. Use it for
// display only; ordering decisions must use the value returned by Tick or
// Receive at the moment of the event.
func (c *Clock) Value() int64 { return c.ts.Load() }

// TotalOrderLess defines a deterministic total order over events.
// Given two events with timestamps tsA and tsB from clients idA and idB,
// event A is "less" (has priority) if:
//
//	tsA < tsB, or
//	tsA == tsB and idA < idB (lexicographic)
func TotalOrderLess(tsA int64, idA string, tsB int64, idB string) bool {
	if tsA != tsB {
		return tsA < tsB
	}
	return idA < idB
}
