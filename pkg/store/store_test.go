package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smartkitchen/smk/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func appendEvent(t *testing.T, s *Store, kind model.Kind, client string, lamport int64) int64 {
	t.Helper()
	id, err := s.Append(&model.Event{
		Kind:      kind,
		ClientID:  client,
		Dish:      "dish-" + client,
		SenderTS:  1,
		LamportTS: lamport,
	})
	if err != nil {
		t.Fatalf("Append(%s, %s, %d): %v", kind, client, lamport, err)
	}
	return id
}

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	e := &model.Event{Kind: model.KindOrder, ClientID: "c1", Dish: "Pizza", SenderTS: 1, LamportTS: 2, Note: "queued"}
	id, err := s.Append(e)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id <= 0 || e.ID != id {
		t.Fatalf("id = %d, e.ID = %d; want equal and positive", id, e.ID)
	}
	if e.CreatedAt.IsZero() {
		t.Fatal("Append should stamp CreatedAt")
	}

	events, err := s.List(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got := events[0]
	if got.Kind != model.KindOrder || got.ClientID != "c1" || got.Dish != "Pizza" ||
		got.SenderTS != 1 || got.LamportTS != 2 || got.Note != "queued" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestAppend_KeepsGivenCreatedAt(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appendAt := &model.Event{Kind: model.KindDone, ClientID: "c1", LamportTS: 5, CreatedAt: at}
	if _, err := s.Append(appendAt); err != nil {
		t.Fatal(err)
	}
	events, _ := s.List(0, 10)
	if !events[0].CreatedAt.Equal(at) {
		t.Fatalf("CreatedAt = %v, want %v", events[0].CreatedAt, at)
	}
}

func TestList_TotalOrderWithClientTieBreak(t *testing.T) {
	s := newTestStore(t)
	appendEvent(t, s, model.KindOrder, "b", 2)
	appendEvent(t, s, model.KindOrder, "a", 2)
	appendEvent(t, s, model.KindOrder, "c", 1)

	events, err := s.List(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "a", "b"}
	for i, e := range events {
		if e.ClientID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, e.ClientID, want[i])
		}
	}
}

func TestList_SinceAndLimit(t *testing.T) {
	s := newTestStore(t)
	for i := int64(1); i <= 10; i++ {
		appendEvent(t, s, model.KindOrder, "c1", i)
	}

	events, err := s.List(5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].LamportTS != 5 || events[2].LamportTS != 7 {
		t.Fatalf("got lamport %d..%d, want 5..7", events[0].LamportTS, events[2].LamportTS)
	}
}

func TestList_DefaultLimit(t *testing.T) {
	s := newTestStore(t)
	for i := int64(1); i <= 120; i++ {
		appendEvent(t, s, model.KindOrder, "c1", i)
	}
	events, err := s.List(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 100 {
		t.Fatalf("default limit: got %d, want 100", len(events))
	}
}

func TestListForClient(t *testing.T) {
	s := newTestStore(t)
	appendEvent(t, s, model.KindOrder, "alice", 2)
	appendEvent(t, s, model.KindOrder, "bob", 3)
	appendEvent(t, s, model.KindDone, "alice", 6)

	events, err := s.ListForClient("alice", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events for alice, want 2", len(events))
	}
	if events[0].Kind != model.KindOrder || events[1].Kind != model.KindDone {
		t.Fatalf("kinds = %s, %s; want ORDER, DONE", events[0].Kind, events[1].Kind)
	}

	events, err = s.ListForClient("alice", 3, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("since 3: got %d events, want 1", len(events))
	}
}

func TestListByKind(t *testing.T) {
	s := newTestStore(t)
	appendEvent(t, s, model.KindOrder, "a", 2)
	appendEvent(t, s, model.KindStart, "a", 3)
	appendEvent(t, s, model.KindDone, "a", 4)
	appendEvent(t, s, model.KindOrder, "b", 5)

	events, err := s.ListByKind(model.KindOrder, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d ORDER events, want 2", len(events))
	}
}

func TestListForClientKind_LimitAppliesAfterFilter(t *testing.T) {
	s := newTestStore(t)
	for ts := int64(2); ts < 8; ts++ {
		appendEvent(t, s, model.KindOrder, "alice", ts)
	}
	appendEvent(t, s, model.KindDone, "alice", 8)
	appendEvent(t, s, model.KindDone, "bob", 9)
	appendEvent(t, s, model.KindDone, "alice", 10)

	events, err := s.ListForClientKind("alice", model.KindDone, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d DONE events for alice, want 2", len(events))
	}
	if events[0].LamportTS != 8 || events[1].LamportTS != 10 {
		t.Fatalf("lamport = %d, %d; want 8, 10", events[0].LamportTS, events[1].LamportTS)
	}
}

func TestCountAndMaxLamport(t *testing.T) {
	s := newTestStore(t)
	if s.Count() != 0 || s.MaxLamport() != 0 {
		t.Fatal("empty journal should report zero count and lamport")
	}
	appendEvent(t, s, model.KindOrder, "a", 4)
	appendEvent(t, s, model.KindOrder, "b", 9)
	appendEvent(t, s, model.KindOrder, "c", 7)

	if c := s.Count(); c != 3 {
		t.Fatalf("Count = %d, want 3", c)
	}
	if m := s.MaxLamport(); m != 9 {
		t.Fatalf("MaxLamport = %d, want 9", m)
	}
}

func TestAppend_ConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	const writers, each = 8, 20

	var wg sync.WaitGroup
	errs := make(chan error, writers*each)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := s.Append(&model.Event{
					Kind:      model.KindOrder,
					ClientID:  fmt.Sprintf("w%d", w),
					LamportTS: int64(w*each + i + 1),
				})
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Append: %v", err)
	}
	if c := s.Count(); c != writers*each {
		t.Fatalf("Count = %d, want %d", c, writers*each)
	}
}

func TestReopenKeepsJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	appendEvent(t, s, model.KindOrder, "c1", 2)
	s.Close()

	s2, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if c := s2.Count(); c != 1 {
		t.Fatalf("after reopen Count = %d, want 1", c)
	}
}
