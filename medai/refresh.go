package medai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/burkido/medai-client-go/session"
)

const (
	refreshTokenPath = "/auth/refresh-token"

	// DefaultRefreshTimeout bounds the refresh network call so waiters are
	// never left suspended on a hung connection.
	DefaultRefreshTimeout = 30 * time.Second
)

// flight is one in-progress refresh call. Waiters hold a pointer to it and
// block on done; accessToken and err are valid only after done is closed.
// Each refresh cycle gets a fresh flight, so a late reader of an old flight
// still sees that flight's result.
type flight struct {
	done        chan struct{}
	accessToken string
	err         error
}

// Coordinator serializes token refresh for one session. It guarantees at
// most one refresh call in flight, shares the result with every concurrent
// caller, and allows at most one failed attempt per session: after a failed
// refresh the session is torn down and no further refresh happens until a
// new login re-arms the guard. A successful refresh re-arms the guard
// itself, so the cap applies to consecutive failures, not the whole session.
type Coordinator struct {
	store      session.Store
	httpClient *resty.Client // bare client; requests here bypass the interceptor
	timeout    time.Duration
	onInvalid  func()

	mu        sync.Mutex
	attempted bool
	inflight  *flight
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRefreshTimeout overrides the timeout applied to the refresh call.
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithSessionInvalidCallback registers a callback fired once per terminal
// refresh failure, after the session store has been cleared. The caller
// typically navigates the user back to login.
func WithSessionInvalidCallback(fn func()) CoordinatorOption {
	return func(c *Coordinator) {
		c.onInvalid = fn
	}
}

// NewCoordinator creates a Coordinator that refreshes against baseURL and
// persists results in store.
func NewCoordinator(store session.Store, baseURL string, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:   store,
		timeout: DefaultRefreshTimeout,
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh obtains a new access token using the stored refresh token and
// returns it. If a refresh is already in flight the caller joins it as a
// waiter and receives the shared result; no second network call is made.
// Fails fast without a network call when no refresh token is stored or a
// refresh already failed for this session.
//
// On success the session store holds the new token pair before any caller
// observes the result. On failure the store is cleared, the
// session-invalidated callback fires, and every waiter gets the same error.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		return c.wait(ctx, f)
	}
	if c.attempted {
		c.mu.Unlock()
		return "", ErrRefreshExhausted
	}
	sess, err := c.store.Get()
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("reading session: %w", err)
	}
	if sess == nil || sess.RefreshToken == "" {
		c.mu.Unlock()
		return "", ErrNoSession
	}
	f := &flight{done: make(chan struct{})}
	c.inflight = f
	c.attempted = true
	c.mu.Unlock()

	token, err := c.doRefresh(sess)

	c.mu.Lock()
	if err != nil {
		if cerr := c.store.Clear(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to clear session after refresh failure")
		}
		f.err = err
	} else {
		f.accessToken = token.AccessToken
		c.attempted = false
	}
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)

	if err != nil {
		log.Warn().Err(err).Msg("token refresh failed, session invalidated")
		if c.onInvalid != nil {
			c.onInvalid()
		}
		return "", err
	}
	return f.accessToken, nil
}

// wait blocks until the in-flight refresh resolves or the caller's context
// is canceled. A canceled waiter does not affect the flight or the other
// waiters.
func (c *Coordinator) wait(ctx context.Context, f *flight) (string, error) {
	select {
	case <-f.done:
		return f.accessToken, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// doRefresh performs the single network call and persists the result. The
// call runs under the coordinator's own timeout rather than any caller's
// context, so the shared flight cannot be canceled by one impatient waiter.
func (c *Coordinator) doRefresh(prev *session.Session) (*Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	token := &Token{}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(refreshTokenRequest{RefreshToken: prev.RefreshToken}).
		SetResult(token).
		Post(refreshTokenPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode())
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: malformed token response", ErrRefreshFailed)
	}

	next := &session.Session{
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		UserID:          token.UserID,
		PackageName:     prev.PackageName,
		IsPremium:       token.IsPremium,
		RemainingCredit: token.RemainingCredit,
		DeviceID:        prev.DeviceID,
		SavedAt:         time.Now(),
	}
	if err := c.store.Save(next); err != nil {
		return nil, fmt.Errorf("%w: saving refreshed session: %v", ErrRefreshFailed, err)
	}

	log.Info().Str("userId", next.UserID).Msg("access token refreshed")
	return token, nil
}

// SetSession stores a freshly issued session and re-arms the refresh guard.
// This is the login path: a new login always re-enables one refresh attempt.
func (c *Coordinator) SetSession(sess *session.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Save(sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	c.attempted = false
	return nil
}

// Invalidate clears the stored session. The attempt guard is left as-is;
// only a new login via SetSession re-arms it.
func (c *Coordinator) Invalidate() error {
	return c.store.Clear()
}
