package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultExpiryBuffer  = 5 * time.Minute
	defaultCheckInterval = time.Minute
)

// State is the manager's authentication state.
type State int

const (
	// StateBootstrapping holds only until Initialize completes.
	StateBootstrapping State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Config configures a Manager.
type Config struct {
	// Store is the durable token storage. Required.
	Store *Store

	// ExpiryBuffer is how long before real expiry a token counts as
	// expired. Defaults to 5 minutes.
	ExpiryBuffer time.Duration

	// CheckInterval is how often the watcher re-validates the stored
	// token while authenticated. Defaults to 60 seconds.
	CheckInterval time.Duration

	// OnSessionExpired fires whenever the manager forces a logout
	// (expired token discovered by a check, bad decode during login).
	// It does not fire on an explicit Logout.
	OnSessionExpired func()

	// Logger receives diagnostic events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Manager is the single source of truth for "who is signed in", derived
// from the tokens in durable storage. While authenticated it runs a
// background watcher that forces a logout the moment the stored token
// disappears or expires.
//
// Valid transitions: bootstrapping goes to authenticated or
// unauthenticated exactly once, via Initialize. Authenticated goes to
// unauthenticated on Logout, a failed check, or a failed decode during
// Login. The only way back to authenticated is a successful Login.
type Manager struct {
	store     *Store
	buffer    time.Duration
	interval  time.Duration
	onExpired func()
	log       *slog.Logger

	mu          sync.Mutex
	state       State
	user        *User
	initialized bool
	watchCancel context.CancelFunc
}

// NewManager creates a Manager in the bootstrapping state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}

	buffer := cfg.ExpiryBuffer
	if buffer <= 0 {
		buffer = defaultExpiryBuffer
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:     cfg.Store,
		buffer:    buffer,
		interval:  interval,
		onExpired: cfg.OnSessionExpired,
		log:       logger,
	}, nil
}

// Initialize derives the initial state from storage. It leaves the
// bootstrapping state exactly once; repeated calls are no-ops.
func (m *Manager) Initialize() error {
	user := m.deriveUser()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	m.initialized = true

	if user != nil {
		m.state = StateAuthenticated
		m.user = user
		m.startWatcherLocked()
	} else {
		m.state = StateUnauthenticated
	}
	return nil
}

// Login persists the token pair and derives the user from the access
// token. A token whose claims cannot be decoded to a usable role is a
// fatal error: the manager logs out immediately rather than staying
// half-authenticated.
func (m *Manager) Login(tok *oauth2.Token) (*User, error) {
	if err := m.store.StoreToken(tok); err != nil {
		return nil, fmt.Errorf("failed to persist tokens: %w", err)
	}

	user, err := DecodeAccessToken(tok.AccessToken, m.buffer)
	if err != nil {
		m.log.Error("login token decode failed, logging out", "error", err)
		m.Logout()
		return nil, fmt.Errorf("unusable access token: %w", err)
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.user = user
	m.startWatcherLocked()
	m.mu.Unlock()

	return user, nil
}

// Logout clears stored tokens and resets the state. It is idempotent:
// logging out while already unauthenticated changes nothing.
func (m *Manager) Logout() {
	if err := m.store.Clear(); err != nil {
		m.log.Warn("failed to clear stored tokens", "error", err)
	}

	m.mu.Lock()
	m.state = StateUnauthenticated
	m.user = nil
	m.stopWatcherLocked()
	m.mu.Unlock()
}

// UserPatch is a partial profile update. Nil fields are left untouched.
type UserPatch struct {
	Email *string
	Name  *string
}

// UpdateUser shallow-merges patch into the current user. The role and the
// authentication state never change through this path. No-op when not
// authenticated.
func (m *Manager) UpdateUser(patch UserPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAuthenticated || m.user == nil {
		return
	}
	if patch.Email != nil {
		m.user.Email = *patch.Email
	}
	if patch.Name != nil {
		m.user.Name = *patch.Name
	}
}

// CheckAuth re-derives authentication from storage and reconciles drift:
// if storage says the token is absent or expired while the in-memory
// state still claims authenticated, it forces a logout and returns false.
// Otherwise it returns whether the session is live.
func (m *Manager) CheckAuth() bool {
	user := m.deriveUser()

	m.mu.Lock()

	if user == nil {
		if m.state == StateAuthenticated {
			m.forceLogoutLocked()
			m.mu.Unlock()
			return false
		}
		m.mu.Unlock()
		return false
	}

	if m.state != StateAuthenticated {
		// A valid token alone does not re-authenticate; only Login does.
		m.mu.Unlock()
		return false
	}

	// Refresh may have rotated the token; keep claims current but
	// preserve profile fields applied through UpdateUser.
	m.user.ID = user.ID
	m.user.Role = user.Role
	m.mu.Unlock()
	return true
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports whether the session is live.
func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (m *Manager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Close stops the background watcher. Safe to call at any time.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopWatcherLocked()
	m.mu.Unlock()
}

// deriveUser reads storage and decodes the access token. Nil means no
// usable session.
func (m *Manager) deriveUser() *User {
	rec, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			m.log.Warn("failed to load session", "error", err)
		}
		return nil
	}

	user, err := DecodeAccessToken(rec.AccessToken, m.buffer)
	if err != nil {
		m.log.Debug("stored access token unusable", "error", err)
		return nil
	}
	return user
}

// forceLogoutLocked handles an expired session detected by a check:
// clear tokens, reset state, stop the watcher, notify. Caller holds mu.
func (m *Manager) forceLogoutLocked() {
	if err := m.store.Clear(); err != nil {
		m.log.Warn("failed to clear stored tokens", "error", err)
	}
	m.state = StateUnauthenticated
	m.user = nil
	m.stopWatcherLocked()
	m.log.Info("session expired, logged out")
	if m.onExpired != nil {
		// Run outside the lock; the callback may call back into the manager.
		go m.onExpired()
	}
}

// startWatcherLocked starts the periodic expiry check. Caller holds mu.
func (m *Manager) startWatcherLocked() {
	if m.watchCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.watchCancel = cancel
	go m.watch(ctx)
}

// stopWatcherLocked cancels the watcher so no background work outlives
// the session. Caller holds mu.
func (m *Manager) stopWatcherLocked() {
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
}

// watch re-validates the stored token on a fixed interval while the
// session is live. A failed check forces the logout itself, which cancels
// this goroutine's context.
func (m *Manager) watch(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.CheckAuth() {
				return
			}
		}
	}
}
