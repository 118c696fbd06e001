package backend

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/firebaseapp"
	"fintrack/internal/log"
	"fintrack/internal/store/firestore"
	"fintrack/internal/store/memory"
	"fintrack/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case FirestoreBackend:
		return f.createFirestoreBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var (
		st  *memory.Store
		err error
	)
	if config.SeedFile != "" {
		st, err = memory.NewFromFile(config.SeedFile, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed file: %w", err)
		}
	} else {
		st = memory.New(f.logger)
	}

	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)

	return &BackendResult{
		Store:   st,
		Cleanup: st.Close,
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	// AMQP is optional; without it writes are only visible to this process
	var client *amqp.Client
	if config.AMQPURL != "" {
		c, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change fan-out",
				log.FieldError, err)
		} else {
			client = c
			f.logger.InfoContext(ctx, "Initialized AMQP client", "exchange", config.AMQPExchange)
		}
	}

	opts := []sqlite.Option{sqlite.WithLogger(f.logger)}
	if client != nil {
		opts = append(opts, sqlite.WithPublisher(client))
	}
	st, err := sqlite.New(config.SQLiteDBPath, opts...)
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	result := &BackendResult{
		Store:   st,
		Ready:   st.Ping,
		Cleanup: st.Close,
	}

	if client != nil {
		bus := st.Broadcaster()
		result.LocalChanges = bus
		result.ConsumeRemote = func(ctx context.Context, handler ChangeHandler) error {
			return client.ConsumeChanges(ctx, func(ctx context.Context, msg *amqp.ChangeMessage) error {
				// our own writes already reached the local broadcaster
				if msg.Origin == client.Origin() {
					return nil
				}
				return handler(ctx, msg.Change())
			})
		}
		result.Cleanup = func() error {
			return errors.Join(client.Close(), st.Close())
		}
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", client != nil)

	return result, nil
}

func (f *DefaultFactory) createFirestoreBackend(ctx context.Context, config Config) (*BackendResult, error) {
	app, err := firebaseapp.New(ctx, config.Firebase())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	st, err := firestore.New(ctx, app, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firestore store: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Firestore backend", "project_id", config.FirebaseProjectID)

	// Listeners see every write, ours included, so no LocalChanges publisher is needed.
	return &BackendResult{
		Store: st,
		Ready: st.Ping,
		ConsumeRemote: func(ctx context.Context, handler ChangeHandler) error {
			return st.ConsumeChanges(ctx, handler)
		},
		App:     app,
		Cleanup: st.Close,
	}, nil
}
