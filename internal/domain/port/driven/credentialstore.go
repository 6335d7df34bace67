package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/storepanel/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// STOREPANEL_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set STOREPANEL_SECRET_KEY")

// CredentialStore defines the driven port for the single durable credential slot.
// The adapter layer is responsible for encryption/decryption; this interface
// operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// Load returns the persisted credential. A zero Credential and nil error
	// mean nothing is stored. Returns ErrEncryptionKeyNotSet if the adapter
	// was constructed without an encryption key.
	Load(ctx context.Context) (model.Credential, error)

	// Save replaces the persisted credential.
	Save(ctx context.Context, cred model.Credential) error

	// Clear removes the persisted credential. Clearing an empty slot is not an error.
	Clear(ctx context.Context) error
}
