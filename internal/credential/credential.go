package credential

import (
	"context"
	"errors"
	"time"
)

// ErrNoCredential means no currently valid credential exists for a provider
// reference. Callers treat this as a normal, recoverable action failure: the
// user has to re-authenticate, the engine keeps going.
var ErrNoCredential = errors.New("no valid credential")

// Credential is an OAuth (or equivalent) access token plus its refresh and
// expiry metadata. Owned by the Manager; mutated in place on refresh.
type Credential struct {
	ID           string
	Provider     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    time.Time // zero means no expiry
	Valid        bool
}

// Expired reports whether the credential is past its expiry at t.
func (c *Credential) Expired(t time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(t)
}

// ExpiringWithin reports whether the credential expires inside the window.
func (c *Credential) ExpiringWithin(t time.Time, window time.Duration) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(t.Add(window))
}

// Store is the credential persistence contract. The engine treats it as an
// external collaborator.
type Store interface {
	// Get returns the current valid credential for a provider reference,
	// or nil when none is stored.
	Get(ctx context.Context, providerRef string) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
	MarkInvalid(ctx context.Context, id string) error
	// ListExpiring returns valid credentials whose expiry is before the
	// given time. Used by the maintenance jobs.
	ListExpiring(ctx context.Context, before time.Time) ([]*Credential, error)
}

// Refresher performs a provider-specific token refresh, updating the
// credential in place on success.
type Refresher interface {
	Refresh(ctx context.Context, cred *Credential) error
}
