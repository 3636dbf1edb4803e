package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/dmaguire/sigenflux/internal/tokenmanager"
)

// KeyringStore keeps the credential record in OS-native secure storage.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements tokenmanager.Store
var _ tokenmanager.Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore using the given service and user
// identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Load returns the credential record from the system keyring, or (nil, nil)
// when no record exists yet.
func (k *KeyringStore) Load(ctx context.Context) (*tokenmanager.CredentialSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return decodeRecord([]byte(raw))
}

// Save persists the record to the system keyring, overwriting any existing
// value.
func (k *KeyringStore) Save(ctx context.Context, cs tokenmanager.CredentialSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeRecord(cs)
	if err != nil {
		return err
	}
	return keyring.Set(k.service, k.user, string(data))
}
