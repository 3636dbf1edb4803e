package credstore

import (
	"context"
	"fmt"
	"os"

	"github.com/dmaguire/sigenflux/internal/tokenmanager"
)

// EnvStore provides read-only access to a credential record stored in an
// environment variable. Suitable only when an external process keeps the
// record fresh; Save always fails.
type EnvStore struct {
	envKey string
}

// Compile-time check to ensure EnvStore implements tokenmanager.Store
var _ tokenmanager.Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
// Returns error if the variable name is empty or not set in the environment.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	if _, exists := os.LookupEnv(envKey); !exists {
		return nil, fmt.Errorf("environment variable %s not set", envKey)
	}

	return &EnvStore{
		envKey: envKey,
	}, nil
}

// Load returns the credential record from the environment variable, or
// (nil, nil) when it is empty or structurally invalid.
func (e *EnvStore) Load(ctx context.Context) (*tokenmanager.CredentialSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := os.Getenv(e.envKey)
	if raw == "" {
		return nil, nil
	}
	return decodeRecord([]byte(raw))
}

// Save is not supported for environment variables (they are read-only).
func (e *EnvStore) Save(ctx context.Context, cs tokenmanager.CredentialSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable storage is read-only")
}
