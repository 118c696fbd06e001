package backend

import (
	"errors"
	"fmt"

	"fintrack/internal/config"
	"fintrack/internal/firebaseapp"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:     backendType,
		SeedFile: appConfig.SeedFile,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,

		FirebaseProjectID:       appConfig.FirebaseProjectID,
		FirebaseCredentialsFile: appConfig.FirebaseCredentialsFile,
		FirebaseCredentialsJSON: appConfig.FirebaseCredentialsJSON,
	}, nil
}

// Firebase returns the Firebase app settings.
func (c Config) Firebase() firebaseapp.Config {
	return firebaseapp.Config{
		ProjectID:       c.FirebaseProjectID,
		CredentialsFile: c.FirebaseCredentialsFile,
		CredentialsJSON: c.FirebaseCredentialsJSON,
	}
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
		if c.AMQPURL != "" && c.AMQPExchange == "" {
			return errors.New("AMQP exchange is required when AMQP URL is set")
		}
	case FirestoreBackend:
		if c.FirebaseProjectID == "" {
			return firebaseapp.ErrNoProject
		}
	case MemoryBackend:
		// seed file is optional
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, FirestoreBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
