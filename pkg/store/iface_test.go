package store

import (
	"path/filepath"
	"testing"

	"github.com/smartkitchen/smk/pkg/model"
)

// TestStoreImplementsInterface verifies at runtime that *Store satisfies
// StoreInterface by calling every method on a real store.
func TestStoreImplementsInterface(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Use the interface type to verify all methods are callable.
	var iface StoreInterface = s

	id, err := iface.Append(&model.Event{Kind: model.KindOrder, ClientID: "c1", Dish: "Pizza", SenderTS: 1, LamportTS: 2})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id <= 0 {
		t.Errorf("expected positive id, got %d", id)
	}

	if evs, err := iface.List(0, 10); err != nil || len(evs) != 1 {
		t.Errorf("List: %d events, err=%v", len(evs), err)
	}
	if evs, err := iface.ListForClient("c1", 0, 10); err != nil || len(evs) != 1 {
		t.Errorf("ListForClient: %d events, err=%v", len(evs), err)
	}
	if evs, err := iface.ListByKind(model.KindDone, 0, 10); err != nil || len(evs) != 0 {
		t.Errorf("ListByKind(DONE): %d events, err=%v", len(evs), err)
	}
	if evs, err := iface.ListForClientKind("c1", model.KindOrder, 0, 10); err != nil || len(evs) != 1 {
		t.Errorf("ListForClientKind(c1, ORDER): %d events, err=%v", len(evs), err)
	}
	if c := iface.Count(); c != 1 {
		t.Errorf("Count: got %d, want 1", c)
	}
	if m := iface.MaxLamport(); m != 2 {
		t.Errorf("MaxLamport: got %d, want 2", m)
	}
	if err := iface.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
