package tokenmanager

import (
	"context"
	"time"
)

// SafetyMargin is subtracted from a credential's nominal expiry so renewal
// happens before the issuer actually rejects the token.
const SafetyMargin = 300 * time.Second

// CredentialSet is one issued token pair. It is never mutated in place:
// refresh and re-authentication always produce a replacement.
type CredentialSet struct {
	// AccessToken is the opaque bearer string attached to API calls.
	AccessToken string
	// RefreshToken is optional; empty when the issuer did not return one.
	RefreshToken string
	// ExpiresIn is the validity window in seconds as declared at issuance.
	// Zero means unknown lifetime, which makes the set immediately non-usable.
	ExpiresIn int64
	// RetrievedAt is the epoch second the set was obtained.
	RetrievedAt int64
}

// ExpiryInstant returns the nominal expiry time (retrieved_at + expires_in).
func (c CredentialSet) ExpiryInstant() time.Time {
	return time.Unix(c.RetrievedAt+c.ExpiresIn, 0)
}

// UsableAt reports whether the set can still authorize calls at the given
// time, i.e. now is before expiry minus the safety margin. A zero or negative
// margin-adjusted remaining lifetime is always expired.
func (c CredentialSet) UsableAt(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return now.Before(c.ExpiryInstant().Add(-SafetyMargin))
}

// Store reads and writes the persisted credential set.
//
// Load returns (nil, nil) when no credential is stored or the stored record
// is structurally incomplete; both are equivalent to "no credential".
// Save overwrites the stored record wholesale.
type Store interface {
	Load(ctx context.Context) (*CredentialSet, error)
	Save(ctx context.Context, cs CredentialSet) error
}
