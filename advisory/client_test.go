package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// memStore is an in-memory TokenStore for tests.
type memStore struct {
	mu  sync.Mutex
	tok *oauth2.Token
}

func (s *memStore) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		return nil, nil
	}
	t := *s.tok
	return &t, nil
}

func (s *memStore) StoreToken(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *tok
	s.tok = &t
	return nil
}

func (s *memStore) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	return nil
}

// plainDoer adapts a plain http.Client so tests bypass retry behavior.
type plainDoer struct {
	c *http.Client
}

func (d plainDoer) DoWithContext(_ context.Context, req *http.Request) (*http.Response, error) {
	return d.c.Do(req)
}

func newTestClient(t *testing.T, srv *httptest.Server, store TokenStore, onExpired func()) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:          srv.URL,
		Tokens:           store,
		HTTPClient:       plainDoer{c: srv.Client()},
		Timeout:          5 * time.Second,
		OnSessionExpired: onExpired,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func storedPair(access, refresh string) *memStore {
	return &memStore{tok: &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}}
}

func TestClient_AttachesBearerAndRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer T1" {
			t.Errorf("Authorization = %q, want Bearer T1", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("X-Request-ID header missing")
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		writeJSON(w, http.StatusOK, Profile{ID: "u1", Email: "a@university.edu", Role: "student"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, storedPair("T1", "R1"), nil)

	profile, err := client.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.ID != "u1" || profile.Role != "student" {
		t.Errorf("Profile() = %+v", profile)
	}
}

func TestClient_NoTokenSendsUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}
		writeJSON(w, http.StatusOK, []Venue{})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, &memStore{}, nil)

	if _, err := client.Venues(context.Background()); err != nil {
		t.Fatalf("Venues() error = %v", err)
	}
}

func TestClient_RefreshesOnUnauthorized(t *testing.T) {
	var refreshCalls, profileCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			var req refreshRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.RefreshToken != "R1" {
				t.Errorf("refresh_token = %q, want R1", req.RefreshToken)
			}
			writeJSON(w, http.StatusOK, tokenResponse{
				AccessToken:  "T2",
				RefreshToken: "R2",
				ExpiresIn:    900,
			})
		case "/users/profile":
			profileCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer T2" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "token_expired"})
				return
			}
			writeJSON(w, http.StatusOK, Profile{ID: "u1", Role: "student"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := storedPair("T1", "R1")
	client := newTestClient(t, srv, store, nil)

	profile, err := client.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.ID != "u1" {
		t.Errorf("Profile() = %+v", profile)
	}

	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("Refresh calls = %d, want 1", got)
	}
	if got := profileCalls.Load(); got != 2 {
		t.Errorf("Profile calls = %d, want 2 (original + replay)", got)
	}

	// Both halves of the rotated pair must be persisted.
	tok, _ := store.Token()
	if tok.AccessToken != "T2" || tok.RefreshToken != "R2" {
		t.Errorf("Stored pair = (%s, %s), want (T2, R2)", tok.AccessToken, tok.RefreshToken)
	}
	if !tok.Expiry.After(time.Now()) {
		t.Errorf("Stored expiry %v should be in the future", tok.Expiry)
	}
}

func TestClient_RefreshWithoutRotationKeepsRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			// Fixed-mode server: no refresh_token in the response.
			writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "T2", ExpiresIn: 900})
		default:
			if r.Header.Get("Authorization") != "Bearer T2" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "token_expired"})
				return
			}
			writeJSON(w, http.StatusOK, []Subject{})
		}
	}))
	defer srv.Close()

	store := storedPair("T1", "R1")
	client := newTestClient(t, srv, store, nil)

	if _, err := client.Subjects(context.Background()); err != nil {
		t.Fatalf("Subjects() error = %v", err)
	}

	tok, _ := store.Token()
	if tok.RefreshToken != "R1" {
		t.Errorf("RefreshToken = %s, want R1 preserved", tok.RefreshToken)
	}
}

func TestClient_SingleRefreshUnderConcurrentExpiry(t *testing.T) {
	var refreshCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			time.Sleep(100 * time.Millisecond) // keep the window open for the queue
			writeJSON(w, http.StatusOK, tokenResponse{
				AccessToken:  "T2",
				RefreshToken: "R2",
				ExpiresIn:    900,
			})
		default:
			if r.Header.Get("Authorization") != "Bearer T2" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "token_expired"})
				return
			}
			writeJSON(w, http.StatusOK, []Advisory{{ID: "a1", Status: "scheduled"}})
		}
	}))
	defer srv.Close()

	store := storedPair("T1", "R1")
	client := newTestClient(t, srv, store, nil)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Advisories(context.Background(), "scheduled")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Advisories() error = %v", err)
		}
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("Refresh calls = %d, want exactly 1", got)
	}
}

func TestClient_RefreshFailureFailsAllCallers(t *testing.T) {
	var refreshCalls, expiredCallbacks atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			time.Sleep(100 * time.Millisecond)
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Error:   "invalid_refresh_token",
				Message: "refresh token revoked",
			})
		default:
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "token_expired"})
		}
	}))
	defer srv.Close()

	store := storedPair("T1", "R1")
	client := newTestClient(t, srv, store, func() { expiredCallbacks.Add(1) })

	const callers = 6
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Notifications(context.Background(), false)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrSessionExpired) {
			t.Errorf("Error = %v, want ErrSessionExpired for every queued caller", err)
		}
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("Refresh calls = %d, want exactly 1", got)
	}
	// A caller that slips past the settle opens a second window and finds
	// the cleared store, which fires the hook again; at least one firing is
	// the contract.
	if got := expiredCallbacks.Load(); got < 1 {
		t.Errorf("Session-expired callback never fired")
	}

	// Fatal auth failure leaves the store logged out.
	if tok, _ := store.Token(); tok != nil {
		t.Errorf("Tokens should be cleared, got %+v", tok)
	}
}

func TestClient_MissingRefreshToken(t *testing.T) {
	var refreshCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			refreshCalls.Add(1)
		}
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "token_expired"})
	}))
	defer srv.Close()

	var expired atomic.Int32
	store := storedPair("T1", "") // access token only
	client := newTestClient(t, srv, store, func() { expired.Add(1) })

	_, err := client.Profile(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Error = %v, want ErrSessionExpired", err)
	}
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("Error = %v, want ErrNoRefreshToken", err)
	}
	if got := refreshCalls.Load(); got != 0 {
		t.Errorf("Refresh endpoint was called %d times with no refresh token", got)
	}
	if got := expired.Load(); got != 1 {
		t.Errorf("Session-expired callbacks = %d, want 1", got)
	}
	if tok, _ := store.Token(); tok != nil {
		t.Errorf("Tokens should be cleared, got %+v", tok)
	}
}

func TestClient_ReplayUnauthorizedPropagates(t *testing.T) {
	var refreshCalls atomic.Int32

	// The refresh succeeds but the server keeps rejecting the bearer:
	// the client must not loop, and the replay's 401 surfaces as-is.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			refreshCalls.Add(1)
			writeJSON(w, http.StatusOK, tokenResponse{AccessToken: "T2", ExpiresIn: 900})
			return
		}
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "account_disabled"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, storedPair("T1", "R1"), nil)

	_, err := client.Profile(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Kind != KindUnauthorized {
		t.Errorf("APIError = %+v, want 401/unauthorized", apiErr)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("Refresh calls = %d, want exactly 1 (no retry loop)", got)
	}
}

func TestClient_Login(t *testing.T) {
	var refreshCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		case "/auth/login":
			var creds Credentials
			json.NewDecoder(r.Body).Decode(&creds)
			if creds.Password != "hunter2" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{
					Error:   "invalid_credentials",
					Message: "email or password is incorrect",
				})
				return
			}
			writeJSON(w, http.StatusOK, LoginResult{
				AccessToken:  "T1",
				RefreshToken: "R1",
				ExpiresIn:    900,
				User:         Profile{ID: "u1", Email: creds.Email, Role: "professor"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv, &memStore{}, nil)
	ctx := context.Background()

	result, err := client.Login(ctx, "prof@university.edu", "hunter2")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.Role != "professor" {
		t.Errorf("User = %+v", result.User)
	}
	tok := result.Token()
	if tok.AccessToken != "T1" || tok.RefreshToken != "R1" {
		t.Errorf("Token() = %+v", tok)
	}
	if !tok.Expiry.After(time.Now()) {
		t.Errorf("Token expiry %v should be in the future", tok.Expiry)
	}

	// A 401 from login is bad credentials, never a refresh trigger.
	_, err = client.Login(ctx, "prof@university.edu", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindUnauthorized {
		t.Fatalf("Login() error = %v, want 401 APIError", err)
	}
	if got := refreshCalls.Load(); got != 0 {
		t.Errorf("Login 401 triggered %d refresh calls, want 0", got)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     errorResponse
		wantKind ErrorKind
		wantMsg  string
	}{
		{
			name:     "validation",
			status:   http.StatusBadRequest,
			body:     errorResponse{Error: "validation_failed", Message: "date is in the past"},
			wantKind: KindValidation,
			wantMsg:  "date is in the past",
		},
		{
			name:     "forbidden",
			status:   http.StatusForbidden,
			body:     errorResponse{Error: "forbidden"},
			wantKind: KindForbidden,
			wantMsg:  "forbidden",
		},
		{
			name:     "not found",
			status:   http.StatusNotFound,
			wantKind: KindNotFound,
		},
		{
			name:     "conflict",
			status:   http.StatusConflict,
			body:     errorResponse{Error: "conflict", Message: "venue already booked"},
			wantKind: KindConflict,
			wantMsg:  "venue already booked",
		},
		{
			name:     "business rule",
			status:   http.StatusUnprocessableEntity,
			body:     errorResponse{Error: "capacity_reached", Message: "session is full"},
			wantKind: KindBusinessRule,
			wantMsg:  "session is full",
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			wantKind: KindRateLimited,
		},
		{
			name:     "server",
			status:   http.StatusBadGateway,
			wantKind: KindServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			defer srv.Close()

			client := newTestClient(t, srv, storedPair("T1", "R1"), nil)

			_, err := client.Venues(context.Background())

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %d, want %d", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			if apiErr.UserMessage() == "" {
				t.Errorf("UserMessage() is empty")
			}
		})
	}
}

func TestClient_NetworkErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(t, srv, storedPair("T1", "R1"), nil)
	srv.Close() // nothing listening anymore

	_, err := client.Venues(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Error = %v, want *APIError", err)
	}
	if apiErr.Kind != KindNetwork || apiErr.StatusCode != 0 {
		t.Errorf("APIError = %+v, want network kind with zero status", apiErr)
	}
}
