package backend

import (
	"context"

	firebase "firebase.google.com/go/v4"

	"fintrack/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// ChangeHandler receives change notices written by other instances.
type ChangeHandler func(ctx context.Context, c store.Change) error

// BackendResult contains the store and the optional extras some backends bring.
type BackendResult struct {
	Store store.Store

	// Ready checks that the backing service is reachable. Nil means always ready.
	Ready func(ctx context.Context) error

	// LocalChanges receives notices for writes made elsewhere so local watchers re-read.
	// Nil when the backend already observes remote writes on its own.
	LocalChanges store.ChangePublisher

	// ConsumeRemote blocks delivering remote change notices to handler until ctx
	// ends. Nil when the backend has no change transport.
	ConsumeRemote func(ctx context.Context, handler ChangeHandler) error

	// App is the Firebase app the backend created, if any, for reuse by identity.
	App *firebase.App

	Cleanup CleanupFunc
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory specific
	SeedFile string

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string

	// Firestore specific
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	FirebaseCredentialsJSON string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	SQLiteBackend    BackendType = "sqlite"
	FirestoreBackend BackendType = "firestore"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, FirestoreBackend:
		return true
	default:
		return false
	}
}

