package medai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burkido/medai-client-go/session"
)

const userJSON = `{"id":"user-123","email":"test@example.com","full_name":"Test User","credit":9,"is_premium":true,"is_verified":true,"application_id":"app-1"}`

func TestRequestHeadersAttached(t *testing.T) {
	var req *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, userJSON)
	}))
	defer ts.Close()

	store := seedStore(t)
	client := NewClient(ClientOpts{BaseURL: ts.URL, Store: store})

	user, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-123", user.ID)
	assert.Equal(t, "/users/me", req.URL.Path)
	assert.Equal(t, "Bearer A1", req.Header.Get("Authorization"))
	assert.Equal(t, "com.burkido.medicineai", req.Header.Get("X-Package-Name"))
}

func TestRequestHeadersOmittedWhenAbsent(t *testing.T) {
	var req *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, userJSON)
	}))
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL})

	_, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("X-Package-Name"))
}

// The central scenario: three requests fail with 401 in parallel, exactly
// one refresh call goes out, and every request is replayed with the new
// token and succeeds.
func TestConcurrent401SingleRefreshAndReplay(t *testing.T) {
	var refreshCalls, replays int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		// Stay in flight long enough that all three failures queue up
		// behind this one call.
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, tokenResponse("A2", "R2"))
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt64(&replays, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, userJSON)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	store := seedStore(t)
	client := NewClient(ClientOpts{BaseURL: ts.URL, Store: store})

	const n = 3
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Me(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))
	assert.Equal(t, int64(n), atomic.LoadInt64(&replays))

	sess, err := store.Get()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "A2", sess.AccessToken)
	assert.Equal(t, "R2", sess.RefreshToken)
}

func TestRefreshFailurePropagates401AndInvalidatesSession(t *testing.T) {
	var refreshCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	var invalidated int64
	store := seedStore(t)
	client := NewClient(ClientOpts{
		BaseURL: ts.URL,
		Store:   store,
		OnSessionInvalid: func() {
			atomic.AddInt64(&invalidated, 1)
		},
	})

	_, err := client.Me(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	assert.Equal(t, int64(1), atomic.LoadInt64(&invalidated))
	assert.False(t, client.Active())

	// Refresh is exhausted for this session: a second failing call does
	// not produce a second refresh attempt.
	_, err = client.Me(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))
}

func TestRequestRetriedAtMostOnce(t *testing.T) {
	var refreshCalls, meCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&refreshCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, tokenResponse(
			fmt.Sprintf("A%d", n+1),
			fmt.Sprintf("R%d", n+1),
		))
	})
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		// Rejects even freshly refreshed tokens.
		atomic.AddInt64(&meCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL, Store: seedStore(t)})

	_, err := client.Me(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int64(2), atomic.LoadInt64(&meCalls), "original request plus exactly one replay")
	assert.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))
}

func TestRefreshEndpoint401IsNeverRecovered(t *testing.T) {
	var refreshCalls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL, Store: seedStore(t)})

	// A 401 from the refresh endpoint itself must propagate immediately,
	// without a recursive refresh attempt.
	resp, err := client.httpClient.R().Post(refreshTokenPath)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))
}

func TestLogin(t *testing.T) {
	var req *http.Request
	var form map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, tokenResponse("A1", "R1"))
	}))
	defer ts.Close()

	store := session.NewMemoryStore()
	client := NewClient(ClientOpts{
		BaseURL:     ts.URL,
		PackageName: "com.burkido.medicineai",
		Store:       store,
	})

	sess, err := client.Login(context.Background(), "test@example.com", "hunter22")
	require.NoError(t, err)

	assert.Equal(t, "/auth/login", req.URL.Path)
	assert.Equal(t, []string{"test@example.com"}, form["username"])
	assert.Equal(t, []string{"hunter22"}, form["password"])

	assert.Equal(t, "A1", sess.AccessToken)
	assert.Equal(t, "R1", sess.RefreshToken)
	assert.Equal(t, "user-123", sess.UserID)
	assert.Equal(t, "com.burkido.medicineai", sess.PackageName)
	assert.NotEmpty(t, sess.DeviceID)
	assert.True(t, store.Active())
}

func TestLoginRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL})

	_, err := client.Login(context.Background(), "test@example.com", "wrong")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, client.Active())
}

func TestLogout(t *testing.T) {
	store := seedStore(t)
	client := NewClient(ClientOpts{BaseURL: "http://localhost:0", Store: store})

	require.True(t, client.Active())
	require.NoError(t, client.Logout())
	assert.False(t, client.Active())

	sess, err := client.Session()
	require.NoError(t, err)
	assert.Nil(t, sess)

	// Idempotent.
	require.NoError(t, client.Logout())
}

func TestAddCredit(t *testing.T) {
	var req *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"current_credit":15}`)
	}))
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL, Store: seedStore(t)})

	credit, err := client.AddCredit(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 15, credit)
	assert.Equal(t, "/credit/add", req.URL.Path)
	assert.Equal(t, http.MethodPost, req.Method)
}

func TestAPIErrorUnwrap(t *testing.T) {
	err := &APIError{Method: "GET", URL: "http://example.com/users/me", StatusCode: http.StatusUnauthorized}
	assert.True(t, errors.Is(err, ErrUnauthorized))

	notFound := &APIError{Method: "GET", URL: "http://example.com/users/me", StatusCode: http.StatusNotFound}
	assert.False(t, errors.Is(notFound, ErrUnauthorized))
	assert.Contains(t, notFound.Error(), "status: 404")
}
