package broker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smartkitchen/smk/pkg/clock"
	"github.com/smartkitchen/smk/pkg/model"
	"github.com/smartkitchen/smk/pkg/queue"
)

var (
	// ErrEmptyQueue is returned by processing commands when nothing is queued.
	ErrEmptyQueue = errors.New("broker: queue is empty")
	// ErrNotHead is returned when a processing command targets an entry
	// that is not the head of the queue.
	ErrNotHead = errors.New("broker: entry is not the head of the queue")
)

// Journal records what the session did. *store.Store satisfies it.
type Journal interface {
	Append(e *model.Event) (int64, error)
}

// Session is the server-side state shared by every connection: the Lamport
// clock, the order queue and the broadcast registry.
//
// Admission, processing commands and the broadcasts that follow them run
// under one mutex, so the queue and the clock are always observed in a
// consistent state and every peer receives START/DONE in the same order.
type Session struct {
	clock    *clock.Clock
	registry *Registry
	journal  Journal
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	queue     queue.Queue
	completed []time.Time
}

// NewSession creates a session around clk. journal and logger may be nil.
func NewSession(clk *clock.Clock, journal Journal, logger *slog.Logger) *Session {
	if clk == nil {
		clk = &clock.Clock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		clock:    clk,
		registry: &Registry{},
		journal:  journal,
		log:      logger,
		now:      time.Now,
	}
}

// Clock returns the server clock.
func (s *Session) Clock() *clock.Clock { return s.clock }

// Registry returns the broadcast registry.
func (s *Session) Registry() *Registry { return s.registry }

// Admit applies the receive rule to senderTS and queues the order under the
// fused timestamp.
func (s *Session) Admit(clientID, dish string, senderTS int64) model.Entry {
	s.mu.Lock()
	fused := s.clock.Receive(senderTS)
	e := model.Entry{ClientID: clientID, Dish: dish, SenderTS: senderTS, FusedTS: fused}
	s.queue.Push(e)
	depth := s.queue.Len()
	s.mu.Unlock()

	s.log.Info("order admitted", "client", clientID, "dish", dish,
		"ts_client", senderTS, "lamport", fused, "depth", depth)
	s.record(model.KindOrder, e, fused, model.NoteQueued)
	return e
}

// Start broadcasts START for target if it is the head. The entry stays
// queued; starting it again repeats the broadcast with a new timestamp.
func (s *Session) Start(target model.Entry) (model.Message, error) {
	_, m, err := s.process(model.KindStart, &target)
	return m, err
}

// End removes target if it is the head and broadcasts DONE.
func (s *Session) End(target model.Entry) (model.Entry, model.Message, error) {
	return s.process(model.KindDone, &target)
}

// StartHead starts whatever is currently at the head.
func (s *Session) StartHead() (model.Message, error) {
	_, m, err := s.process(model.KindStart, nil)
	return m, err
}

// EndHead completes whatever is currently at the head.
func (s *Session) EndHead() (model.Entry, model.Message, error) {
	return s.process(model.KindDone, nil)
}

// process implements the head-only discipline. A nil target means the
// current head. Rejections leave the queue and the clock untouched.
func (s *Session) process(kind model.Kind, target *model.Entry) (model.Entry, model.Message, error) {
	s.mu.Lock()
	head, ok := s.queue.Peek()
	if !ok {
		s.mu.Unlock()
		s.log.Warn("processing command on empty queue", "kind", kind)
		return model.Entry{}, model.Message{}, ErrEmptyQueue
	}
	if target != nil && !head.SameKey(*target) {
		s.mu.Unlock()
		s.log.Warn("processing command on non-head entry, ignoring", "kind", kind,
			"client", target.ClientID, "lamport", target.FusedTS,
			"head_client", head.ClientID, "head_lamport", head.FusedTS)
		return model.Entry{}, model.Message{}, ErrNotHead
	}

	ts := s.clock.Tick()
	note := model.NoteProcessing
	if kind == model.KindDone {
		s.queue.Pop()
		now := s.now()
		s.pruneCompleted(now)
		s.completed = append(s.completed, now)
		note = model.NoteDone
	}
	m := head.Message(kind, ts, note)
	sent := s.broadcastLocked(m)
	s.mu.Unlock()

	s.log.Info("head "+string(kind), "client", head.ClientID, "dish", head.Dish,
		"lamport", head.FusedTS, "server_lamport", ts, "peers", sent)
	s.record(kind, head, ts, note)
	return head, m, nil
}

// Broadcast sends m to every registered peer, best-effort. Returns the
// number of peers that accepted it.
func (s *Session) Broadcast(m model.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcastLocked(m)
}

func (s *Session) broadcastLocked(m model.Message) int {
	sent := 0
	for _, p := range s.registry.Snapshot() {
		if err := p.Send(m); err != nil {
			s.log.Warn("broadcast to peer failed", "peer", p.ID(), "kind", m.Kind, "err", err)
			continue
		}
		sent++
	}
	s.log.Debug("broadcast", "kind", m.Kind, "lamport", m.FusedTS, "peers", sent)
	return sent
}

// Clear drops every queued entry without broadcasting. Returns how many
// entries were dropped.
func (s *Session) Clear() int {
	s.mu.Lock()
	n := s.queue.Len()
	s.queue.Clear()
	s.mu.Unlock()
	s.log.Info("queue cleared", "dropped", n)
	return n
}

// View is a consistent snapshot of the session for display.
type View struct {
	Clock          int64         `json:"clock"`
	Head           *model.Entry  `json:"head,omitempty"`
	Entries        []model.Entry `json:"entries"`
	Peers          int           `json:"peers"`
	DoneLastMinute int           `json:"done_last_minute"`
}

// Snapshot returns the queue in total order together with the clock.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneCompleted(s.now())
	v := View{
		Clock:          s.clock.Value(),
		Entries:        s.queue.Snapshot(),
		Peers:          s.registry.Len(),
		DoneLastMinute: len(s.completed),
	}
	if len(v.Entries) > 0 {
		head := v.Entries[0]
		v.Head = &head
	}
	return v
}

// pruneCompleted drops DONE times older than a minute before now.
// Callers hold s.mu.
func (s *Session) pruneCompleted(now time.Time) {
	cutoff := now.Add(-time.Minute)
	keep := s.completed[:0]
	for _, t := range s.completed {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	s.completed = keep
}

func (s *Session) record(kind model.Kind, e model.Entry, lamport int64, note string) {
	if s.journal == nil {
		return
	}
	_, err := s.journal.Append(&model.Event{
		Kind:      kind,
		ClientID:  e.ClientID,
		Dish:      e.Dish,
		SenderTS:  e.SenderTS,
		LamportTS: lamport,
		Note:      note,
	})
	if err != nil {
		s.log.Error("journal append failed", "kind", kind, "client", e.ClientID, "err", err)
	}
}
