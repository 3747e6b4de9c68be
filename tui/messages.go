package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgSessionFound signals that a stored session was found.
type MsgSessionFound struct{}

// MsgSessionValid signals that the stored access token is still valid.
type MsgSessionValid struct {
	Email string
	Role  string
}

// MsgSessionMissing signals that no stored session exists.
type MsgSessionMissing struct{}

// MsgTokenExpired signals that the stored access token has expired.
type MsgTokenExpired struct{}

// MsgRefreshing signals that a token refresh is in progress.
type MsgRefreshing struct{}

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgLoggingIn signals that a password login has started.
type MsgLoggingIn struct{ Email string }

// MsgLoginOK signals a successful login.
type MsgLoginOK struct {
	Email string
	Role  string
}

// MsgLoginFailed signals that login failed.
type MsgLoginFailed struct{ Err error }

// MsgLoadingDashboard signals that dashboard data is being fetched.
type MsgLoadingDashboard struct{}

// MsgProfileLoaded carries the authenticated user's profile.
type MsgProfileLoaded struct {
	Name  string
	Email string
	Role  string
}

// MsgDashboard carries the role-specific dashboard summary lines.
type MsgDashboard struct {
	Role  string
	Lines []string
}

// MsgSessionExpired signals a forced logout (refresh rejected or token
// gone); the user must sign in again.
type MsgSessionExpired struct{}

// MsgAPICallFailed signals that a backend call failed.
type MsgAPICallFailed struct{ Err error }

// MsgDone signals successful completion with current token info.
type MsgDone struct {
	Preview   string
	TokenType string
	ExpiresIn time.Duration
}

// MsgFatal signals a fatal error that should terminate the flow.
type MsgFatal struct{ Err error }
