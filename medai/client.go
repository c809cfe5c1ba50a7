package medai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/burkido/medai-client-go/session"
)

const (
	ApiBaseUrl = "https://api.burkido.com/api/v1"

	authorizationHeader = "Authorization"
	packageNameHeader   = "X-Package-Name"
)

// ClientOpts configures a Client.
type ClientOpts struct {
	BaseURL     string
	PackageName string
	// Store holds the session. Defaults to an in-memory store.
	Store session.Store
	// OnSessionInvalid fires once when a refresh fails terminally, after
	// the session has been cleared.
	OnSessionInvalid func()
	RefreshTimeout   time.Duration
}

// Client is an API client that keeps its session alive transparently.
// Every outgoing request gets the current access token and package name
// attached; a 401 response triggers a single shared token refresh and one
// replay of the failed request. Callers never see a 401 that a refresh
// could have fixed.
type Client struct {
	httpClient  *resty.Client
	coordinator *Coordinator
	store       session.Store
	baseURL     string
	packageName string
}

func NewClient(opts ClientOpts) *Client {
	c := &Client{
		baseURL:     ApiBaseUrl,
		packageName: opts.PackageName,
		store:       opts.Store,
	}
	if opts.BaseURL != "" {
		c.baseURL = opts.BaseURL
	}
	if c.store == nil {
		c.store = session.NewMemoryStore()
	}

	coordOpts := []CoordinatorOption{}
	if opts.RefreshTimeout > 0 {
		coordOpts = append(coordOpts, WithRefreshTimeout(opts.RefreshTimeout))
	}
	if opts.OnSessionInvalid != nil {
		coordOpts = append(coordOpts, WithSessionInvalidCallback(opts.OnSessionInvalid))
	}
	c.coordinator = NewCoordinator(c.store, c.baseURL, coordOpts...)

	c.httpClient = resty.New().
		SetBaseURL(c.baseURL).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": "medai-client-go/1.0",
		}).
		SetRetryCount(1).
		OnBeforeRequest(c.attachAuth).
		AddRetryCondition(c.retryAfterRefresh)

	return c
}

// attachAuth injects the bearer token and package name headers from the
// current session. Both are omitted when absent. This hook runs on every
// attempt, so a replay after refresh picks up the new token. It never
// blocks and never triggers a refresh.
func (c *Client) attachAuth(_ *resty.Client, req *resty.Request) error {
	sess, err := c.store.Get()
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	if sess.Active() {
		req.SetHeader(authorizationHeader, "Bearer "+sess.AccessToken)
	}
	pkg := c.packageName
	if sess != nil && sess.PackageName != "" {
		pkg = sess.PackageName
	}
	if pkg != "" {
		req.SetHeader(packageNameHeader, pkg)
	}
	return nil
}

// retryAfterRefresh decides whether a failed request is replayed. A request
// is eligible only when it got a 401, has not been retried yet, and is not
// the refresh endpoint itself. Eligible requests block on the shared
// refresh; the replay happens only if it produced a new token. When the
// refresh fails the original 401 propagates to the caller.
func (c *Client) retryAfterRefresh(resp *resty.Response, err error) bool {
	if err != nil || resp == nil {
		// Transport errors are not authentication failures.
		return false
	}
	if resp.StatusCode() != http.StatusUnauthorized {
		return false
	}
	if resp.Request.Attempt > 1 {
		return false
	}
	// The refresh call goes out on the coordinator's bare client and never
	// reaches this hook, but keep the path check as a hard stop against
	// recursive refresh.
	if strings.HasSuffix(resp.Request.URL, refreshTokenPath) {
		return false
	}
	if _, rerr := c.coordinator.Refresh(resp.Request.Context()); rerr != nil {
		log.Warn().Err(rerr).
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Msg("not replaying request, token refresh failed")
		return false
	}
	return true
}

func (c *Client) req(ctx context.Context, result any) *resty.Request {
	request := c.httpClient.
		NewRequest().
		SetContext(ctx)

	if result != nil {
		request.SetResult(result)
	}

	return request
}

// Login exchanges credentials for a token pair and stores the session.
// A successful login re-arms the refresh guard.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Session, error) {
	token := &Token{}
	_, err := handleError(c.req(ctx, token).
		SetFormData(map[string]string{
			"username": email,
			"password": password,
		}).
		Post("/auth/login"))
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		UserID:          token.UserID,
		PackageName:     c.packageName,
		IsPremium:       token.IsPremium,
		RemainingCredit: token.RemainingCredit,
		DeviceID:        uuid.NewString(),
		SavedAt:         time.Now(),
	}
	if err := c.coordinator.SetSession(sess); err != nil {
		return nil, err
	}

	log.Info().Str("userId", sess.UserID).Msg("logged in")
	return sess, nil
}

// Logout clears the stored session. Idempotent.
func (c *Client) Logout() error {
	if err := c.coordinator.Invalidate(); err != nil {
		return err
	}
	log.Info().Msg("logged out")
	return nil
}

// Session returns the current session, or nil when logged out.
func (c *Client) Session() (*session.Session, error) {
	return c.store.Get()
}

// Active returns true if a session with an access token is stored.
func (c *Client) Active() bool {
	return c.store.Active()
}

// RefreshSession forces a token refresh through the coordinator. Used by
// the keep-alive loop; normal callers rely on the transparent 401 path.
func (c *Client) RefreshSession(ctx context.Context) error {
	_, err := c.coordinator.Refresh(ctx)
	return err
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (User, error) {
	result := &User{}

	_, err := handleError(c.req(ctx, result).
		Get("/users/me"))

	return *result, err
}

// AddCredit adds credit to the authenticated user's account and returns the
// new balance.
func (c *Client) AddCredit(ctx context.Context, amount int) (int, error) {
	result := &CreditResponse{}

	_, err := handleError(c.req(ctx, result).
		SetBody(map[string]int{"amount": amount}).
		Post("/credit/add"))

	return result.CurrentCredit, err
}

// handleError is a generic error handler for failing responses (>399 status
// code). Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, &APIError{
			Method:     res.Request.Method,
			URL:        res.Request.URL,
			StatusCode: res.StatusCode(),
		}
	}

	return res, nil
}
