// iface.go defines the StoreInterface for dependency injection and testing.
//
// The concrete *Store type satisfies this interface. The broker only needs
// Append and declares its own narrower interface; the CLI's log command
// accepts StoreInterface so tests can substitute a fake.
package store

import "github.com/smartkitchen/smk/pkg/model"

// StoreInterface defines the full set of store operations.
// The concrete *Store type implements this interface.
type StoreInterface interface {
	// Close closes the database connection.
	Close() error

	// Append adds an event to the journal. Returns the row ID.
	Append(e *model.Event) (int64, error)

	// List returns events with lamport_ts >= sinceTS in total order.
	List(sinceTS int64, limit int) ([]model.Event, error)

	// ListForClient returns events concerning one client.
	ListForClient(clientID string, sinceTS int64, limit int) ([]model.Event, error)

	// ListByKind returns events of one kind.
	ListByKind(kind model.Kind, sinceTS int64, limit int) ([]model.Event, error)

	// ListForClientKind returns events of one kind concerning one client.
	ListForClientKind(clientID string, kind model.Kind, sinceTS int64, limit int) ([]model.Event, error)

	// Count returns the total number of events in the journal.
	Count() int64

	// MaxLamport returns the highest journaled Lamport timestamp, or 0.
	MaxLamport() int64
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
