// Package model defines the core domain types for smk.
//
// smk coordinates kitchen orders between many clients and one server using
// Lamport clocks (1978): every event gets a logical timestamp, messages
// carry timestamps, and on receipt the clock advances to
// max(own, received) + 1. The server fuses each order's sender timestamp
// into its own clock at admission; ties on the fused timestamp are broken
// by client ID, giving every peer the same total order of the queue.
package model

import (
	"time"

	"github.com/smartkitchen/smk/pkg/clock"
)

// Kind enumerates the wire message tags.
type Kind string

const (
	KindOrder Kind = "ORDER"
	KindReady Kind = "READY"
	KindStart Kind = "START"
	KindDone  Kind = "DONE"
	KindLog   Kind = "LOG"

	// Reserved for a mutual-exclusion extension. Decoded, never dispatched.
	KindRequest Kind = "REQUEST"
	KindReply   Kind = "REPLY"
	KindRelease Kind = "RELEASE"
)

var knownKinds = map[Kind]bool{
	KindOrder: true, KindReady: true, KindStart: true, KindDone: true,
	KindLog: true, KindRequest: true, KindReply: true, KindRelease: true,
}

// ParseKind returns the Kind named by s, or "" if s is not a known tag.
func ParseKind(s string) Kind {
	if k := Kind(s); knownKinds[k] {
		return k
	}
	return ""
}

// Notes attached by the server to the messages it emits.
const (
	NoteQueued     = "queued"
	NoteProcessing = "processing"
	NoteDone       = "done"
)

// Message is a single wire event. Optional fields use their zero value to
// mean "absent": empty strings and zero timestamps are omitted on the wire,
// so a legitimately-zero timestamp cannot be told apart from a missing one.
type Message struct {
	Kind     Kind   `json:"type"`
	ClientID string `json:"client,omitempty"`
	Dish     string `json:"dish,omitempty"`
	SenderTS int64  `json:"ts,omitempty"`
	FusedTS  int64  `json:"lamport,omitempty"`
	Note     string `json:"text,omitempty"`
}

// Entry is one admitted order in the server queue.
type Entry struct {
	ClientID string `json:"client"`
	Dish     string `json:"dish"`
	SenderTS int64  `json:"ts_client"`
	FusedTS  int64  `json:"lamport"`
}

// Less orders entries by (FusedTS, ClientID).
func (e Entry) Less(other Entry) bool {
	return clock.TotalOrderLess(e.FusedTS, e.ClientID, other.FusedTS, other.ClientID)
}

// SameKey reports whether e and other occupy the same position in the
// total order. Two entries with the same key are indistinguishable to the
// head-only processing check.
func (e Entry) SameKey(other Entry) bool {
	return e.FusedTS == other.FusedTS && e.ClientID == other.ClientID
}

// Message builds a server message of the given kind describing e, stamped
// with the server's Lamport value ts.
func (e Entry) Message(kind Kind, ts int64, note string) Message {
	return Message{
		Kind:     kind,
		ClientID: e.ClientID,
		Dish:     e.Dish,
		SenderTS: e.SenderTS,
		FusedTS:  ts,
		Note:     note,
	}
}

// Event is a single entry in the server's append-only journal.
type Event struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	ClientID  string    `json:"client"`
	Dish      string    `json:"dish"`
	SenderTS  int64     `json:"ts_client"`
	LamportTS int64     `json:"lamport_ts"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
