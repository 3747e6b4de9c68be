// Package advisory is an HTTP client for the advisory-hub backend. It
// attaches bearer credentials to outgoing requests and transparently
// recovers from access-token expiry: the first request to see a 401
// performs the refresh while concurrent requests are queued and replayed
// with the new token.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const defaultTimeout = 10 * time.Second

// TokenStore is the durable token storage the client reads bearer
// credentials from and writes refreshed pairs back to. Token returns
// (nil, nil) when no token is stored.
type TokenStore interface {
	Token() (*oauth2.Token, error)
	StoreToken(tok *oauth2.Token) error
	ClearToken() error
}

// httpDoer is the subset of the retry client the advisory client uses.
type httpDoer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the backend root, e.g. "https://api.advisory-hub.example".
	BaseURL string

	// Tokens is the shared token storage. Required.
	Tokens TokenStore

	// HTTPClient issues the actual requests. Defaults to a retry client.
	HTTPClient httpDoer

	// Timeout bounds each request attempt. Defaults to 10s.
	Timeout time.Duration

	// OnSessionExpired fires after a fatal auth failure (missing refresh
	// token or rejected refresh), once tokens have been cleared. The CLI
	// uses it to fall back to password login; a SPA would redirect.
	OnSessionExpired func()

	// Logger receives diagnostic events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client issues authenticated requests against the advisory backend.
type Client struct {
	baseURL          string
	http             httpDoer
	timeout          time.Duration
	tokens           TokenStore
	gate             refreshGate
	onSessionExpired func()
	log              *slog.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token store is required")
	}

	doer := cfg.HTTPClient
	if doer == nil {
		rc, err := retry.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create retry client: %w", err)
		}
		doer = rc
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		http:             doer,
		timeout:          timeout,
		tokens:           cfg.Tokens,
		onSessionExpired: cfg.OnSessionExpired,
		log:              logger,
	}, nil
}

// do issues an authenticated request and decodes the JSON response into
// out. A 401 on the first attempt triggers the refresh path; the request
// is then replayed exactly once. A 401 on the replay propagates as-is.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	err := c.send(ctx, method, path, query, body, out, c.currentBearer())

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	token, rerr := c.refreshedToken(ctx)
	if rerr != nil {
		return rerr
	}

	return c.send(ctx, method, path, query, body, out, token)
}

// refreshedToken runs the single-flight refresh. The leader performs the
// refresh call and settles the gate; everyone else blocks until it does.
// On success every caller gets the same new access token; on failure the
// refresh error (not the original 401) propagates to every caller.
func (c *Client) refreshedToken(ctx context.Context) (string, error) {
	leader, wait := c.gate.begin()
	if !leader {
		select {
		case res := <-wait:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	tok, err := c.tokens.Token()
	if err != nil || tok == nil || tok.RefreshToken == "" {
		ferr := fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoRefreshToken)
		c.failSession(ferr)
		return "", ferr
	}

	newTok, err := c.refreshCall(ctx, tok.RefreshToken)
	if err != nil {
		ferr := fmt.Errorf("%w: token refresh rejected: %w", ErrSessionExpired, err)
		c.failSession(ferr)
		return "", ferr
	}

	// Rotation vs fixed mode: servers that don't rotate omit the refresh
	// token from the response, so the old one stays valid.
	if newTok.RefreshToken == "" {
		newTok.RefreshToken = tok.RefreshToken
	}

	if err := c.tokens.StoreToken(newTok); err != nil {
		c.log.Warn("failed to persist refreshed tokens", "error", err)
	}

	c.gate.settle(newTok.AccessToken, nil)
	return newTok.AccessToken, nil
}

// failSession handles a fatal auth failure: clear stored tokens, fail every
// queued request, and notify the session-expired hook. Cleanup happens
// before the error propagates so callers observe a consistent logged-out
// state.
func (c *Client) failSession(ferr error) {
	if err := c.tokens.ClearToken(); err != nil {
		c.log.Warn("failed to clear tokens", "error", err)
	}
	c.gate.settle("", ferr)
	c.log.Warn("session invalidated", "reason", ferr)
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
}

// refreshCall exchanges the refresh token for a new token pair. It runs on
// its own timeout, detached from the triggering request's deadline, so one
// caller's short deadline cannot poison the shared refresh.
func (c *Client) refreshCall(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		rctx,
		http.MethodPost,
		c.baseURL+"/auth/refresh",
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.DoWithContext(rctx, req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if jerr := json.Unmarshal(body, &errResp); jerr == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%s: %s", errResp.Error, errResp.Message)
		}
		return nil, fmt.Errorf("refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.New("refresh response has empty access_token")
	}

	tok := &oauth2.Token{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    "Bearer",
	}
	if tokenResp.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// currentBearer returns the stored access token if one exists and has not
// expired. Requests without a usable token go out unauthenticated; this
// never blocks a request.
func (c *Client) currentBearer() string {
	tok, err := c.tokens.Token()
	if err != nil || tok == nil || !tok.Valid() {
		return ""
	}
	return tok.AccessToken
}

// send performs one request attempt. Non-2xx responses come back as
// *APIError; transport failures come back as *APIError with KindNetwork.
func (c *Client) send(
	ctx context.Context,
	method, path string,
	query url.Values,
	body, out any,
	bearer string,
) error {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		rdr = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.DoWithContext(reqCtx, req)
	if err != nil {
		return &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: KindNetwork, Message: "failed to read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Kind:       classifyStatus(resp.StatusCode),
		}
		var errResp errorResponse
		if jerr := json.Unmarshal(respBody, &errResp); jerr == nil {
			apiErr.Message = errResp.Message
			if apiErr.Message == "" {
				apiErr.Message = errResp.Error
			}
		}
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
