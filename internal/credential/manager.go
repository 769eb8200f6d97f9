package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultLookahead is how close to expiry a credential may get before a
// read triggers an in-place refresh.
const DefaultLookahead = 5 * time.Minute

// Manager owns credential reads: it hands out valid credentials, refreshing
// or invalidating them transparently. The store is shared across concurrent
// runs, so the read-refresh-write sequence is serialized per credential.
type Manager struct {
	store      Store
	refreshers map[string]Refresher // provider → refresher
	lookahead  time.Duration
	logger     *zap.SugaredLogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // credential id → lock
}

// NewManager creates a credential manager with the default 5 minute
// refresh lookahead.
func NewManager(store Store, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		store:      store,
		refreshers: make(map[string]Refresher),
		lookahead:  DefaultLookahead,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// SetLookahead overrides the refresh lookahead window.
func (m *Manager) SetLookahead(d time.Duration) { m.lookahead = d }

// RegisterRefresher installs the provider-specific refresh call.
func (m *Manager) RegisterRefresher(provider string, r Refresher) {
	m.refreshers[provider] = r
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// GetValid returns a currently valid credential for a provider reference,
// refreshing it first when its expiry is inside the lookahead window.
// A missing, invalid, or unrefreshable credential yields ErrNoCredential.
func (m *Manager) GetValid(ctx context.Context, providerRef string) (*Credential, error) {
	cred, err := m.store.Get(ctx, providerRef)
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", providerRef, err)
	}
	if cred == nil || !cred.Valid {
		return nil, ErrNoCredential
	}

	if !cred.ExpiringWithin(time.Now(), m.lookahead) {
		return cred, nil
	}

	// Refresh under the per-credential lock so two concurrent readers do
	// not both hit the provider's token endpoint.
	lock := m.lockFor(cred.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read: another reader may have refreshed while we waited.
	cred, err = m.store.Get(ctx, providerRef)
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", providerRef, err)
	}
	if cred == nil || !cred.Valid {
		return nil, ErrNoCredential
	}
	if !cred.ExpiringWithin(time.Now(), m.lookahead) {
		return cred, nil
	}

	if err := m.refresh(ctx, cred); err != nil {
		m.logger.Warnw("Credential refresh failed",
			"credential_id", cred.ID,
			"provider", cred.Provider,
			"error", err,
		)
		return nil, ErrNoCredential
	}
	return cred, nil
}

// refresh runs the provider refresh call and persists the outcome. A failed
// refresh marks the credential invalid rather than surfacing the error.
func (m *Manager) refresh(ctx context.Context, cred *Credential) error {
	r, ok := m.refreshers[cred.Provider]
	if !ok || cred.RefreshToken == "" {
		if markErr := m.store.MarkInvalid(ctx, cred.ID); markErr != nil {
			m.logger.Warnw("Failed to mark credential invalid", "credential_id", cred.ID, "error", markErr)
		}
		cred.Valid = false
		return fmt.Errorf("no refresher for provider %s", cred.Provider)
	}

	if err := r.Refresh(ctx, cred); err != nil {
		cred.Valid = false
		if markErr := m.store.MarkInvalid(ctx, cred.ID); markErr != nil {
			m.logger.Warnw("Failed to mark credential invalid", "credential_id", cred.ID, "error", markErr)
		}
		return fmt.Errorf("refresh %s credential: %w", cred.Provider, err)
	}

	cred.Valid = true
	if err := m.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("save refreshed credential: %w", err)
	}

	m.logger.Infow("Refreshed credential",
		"credential_id", cred.ID,
		"provider", cred.Provider,
		"expires_at", cred.ExpiresAt,
	)
	return nil
}

// Invalidate explicitly revokes a credential. Idempotent.
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return m.store.MarkInvalid(ctx, id)
}

// CleanupExpired marks credentials that are already past expiry as invalid.
// Returns the number of credentials cleaned up.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now()
	expired, err := m.store.ListExpiring(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired credentials: %w", err)
	}

	count := 0
	for _, cred := range expired {
		if err := m.store.MarkInvalid(ctx, cred.ID); err != nil {
			m.logger.Warnw("Failed to invalidate expired credential", "credential_id", cred.ID, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// RefreshExpiring proactively refreshes valid credentials expiring within
// the lookahead window, independent of any in-flight run. Returns the number
// of credentials successfully refreshed.
func (m *Manager) RefreshExpiring(ctx context.Context, lookahead time.Duration) (int, error) {
	expiring, err := m.store.ListExpiring(ctx, time.Now().Add(lookahead))
	if err != nil {
		return 0, fmt.Errorf("list expiring credentials: %w", err)
	}

	refreshed := 0
	for _, cred := range expiring {
		if cred.RefreshToken == "" {
			continue
		}
		lock := m.lockFor(cred.ID)
		lock.Lock()
		err := m.refresh(ctx, cred)
		lock.Unlock()
		if err != nil {
			m.logger.Warnw("Proactive refresh failed",
				"credential_id", cred.ID,
				"provider", cred.Provider,
				"error", err,
			)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}
