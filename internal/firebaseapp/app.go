// Package firebaseapp builds the Firebase Admin app shared by the Firestore
// store and the token verifier.
package firebaseapp

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

type Config struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
}

var ErrNoProject = errors.New("firebase project id is required")

// ClientOptions picks explicit credentials when given. Without any, the SDK
// falls back to application default credentials (or the emulators when their
// *_EMULATOR_HOST variables are set).
func (c Config) ClientOptions() []option.ClientOption {
	switch {
	case c.CredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(c.CredentialsJSON))}
	case c.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}
	default:
		return nil
	}
}

func New(ctx context.Context, cfg Config) (*firebase.App, error) {
	if cfg.ProjectID == "" {
		return nil, ErrNoProject
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}
