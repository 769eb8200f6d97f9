package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubRefresher counts refreshes and renews the credential for an hour.
type stubRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (r *stubRefresher) Refresh(_ context.Context, cred *Credential) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return r.err
	}
	cred.AccessToken = "refreshed-token"
	cred.ExpiresAt = time.Now().Add(time.Hour)
	return nil
}

func (r *stubRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *stubRefresher) {
	t.Helper()
	store := NewMemoryStore()
	m := NewManager(store, zap.NewNop().Sugar())
	refresher := &stubRefresher{}
	m.RegisterRefresher("slack", refresher)
	return m, store, refresher
}

func slackCredential(expiresIn time.Duration) *Credential {
	return &Credential{
		ID:           "cred-1",
		Provider:     "slack",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(expiresIn),
		Valid:        true,
	}
}

func TestGetValidRefreshesInsideLookahead(t *testing.T) {
	m, store, refresher := newTestManager(t)
	store.Put("slack-team", slackCredential(2*time.Minute))

	cred, err := m.GetValid(context.Background(), "slack-team")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", cred.AccessToken)
	assert.Equal(t, 1, refresher.callCount())
	assert.True(t, cred.ExpiresAt.After(time.Now().Add(30*time.Minute)))
}

func TestGetValidLeavesFreshCredentialAlone(t *testing.T) {
	m, store, refresher := newTestManager(t)
	store.Put("slack-team", slackCredential(time.Hour))

	cred, err := m.GetValid(context.Background(), "slack-team")
	require.NoError(t, err)
	assert.Equal(t, "stale-token", cred.AccessToken)
	assert.Equal(t, 0, refresher.callCount())
}

func TestGetValidMissingCredential(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.GetValid(context.Background(), "slack-team")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCredential))
}

func TestGetValidRefreshFailureMarksInvalid(t *testing.T) {
	m, store, refresher := newTestManager(t)
	refresher.err = errors.New("token endpoint said no")
	store.Put("slack-team", slackCredential(time.Minute))

	_, err := m.GetValid(context.Background(), "slack-team")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCredential))

	// Invalid now; subsequent lookups fail without another refresh.
	_, err = m.GetValid(context.Background(), "slack-team")
	assert.True(t, errors.Is(err, ErrNoCredential))
	assert.Equal(t, 1, refresher.callCount())
}

func TestGetValidNoRefresherForProvider(t *testing.T) {
	m, store, _ := newTestManager(t)
	cred := slackCredential(time.Minute)
	cred.Provider = "github"
	store.Put("github-acct", cred)

	_, err := m.GetValid(context.Background(), "github-acct")
	assert.True(t, errors.Is(err, ErrNoCredential))
}

func TestGetValidConcurrentSingleRefresh(t *testing.T) {
	m, store, refresher := newTestManager(t)
	refresher.delay = 20 * time.Millisecond
	store.Put("slack-team", slackCredential(2*time.Minute))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.GetValid(context.Background(), "slack-team")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, refresher.callCount(), "concurrent readers must share one refresh")
}

func TestInvalidateIsIdempotent(t *testing.T) {
	m, store, _ := newTestManager(t)
	store.Put("slack-team", slackCredential(time.Hour))

	require.NoError(t, m.Invalidate(context.Background(), "cred-1"))
	require.NoError(t, m.Invalidate(context.Background(), "cred-1"))

	_, err := m.GetValid(context.Background(), "slack-team")
	assert.True(t, errors.Is(err, ErrNoCredential))
}

func TestCleanupExpired(t *testing.T) {
	m, store, _ := newTestManager(t)
	store.Put("old", &Credential{ID: "old", Provider: "slack", ExpiresAt: time.Now().Add(-time.Hour), Valid: true})
	store.Put("fresh", slackCredential(time.Hour))

	removed, err := m.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.GetValid(context.Background(), "old")
	assert.True(t, errors.Is(err, ErrNoCredential))

	_, err = m.GetValid(context.Background(), "fresh")
	assert.NoError(t, err)
}

func TestRefreshExpiring(t *testing.T) {
	m, store, refresher := newTestManager(t)
	store.Put("soon", slackCredential(30*time.Minute))

	far := slackCredential(3 * time.Hour)
	far.ID = "cred-2"
	store.Put("far", far)

	noRefresh := slackCredential(10 * time.Minute)
	noRefresh.ID = "cred-3"
	noRefresh.RefreshToken = ""
	store.Put("norefresh", noRefresh)

	refreshed, err := m.RefreshExpiring(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 1, refresher.callCount())
}
