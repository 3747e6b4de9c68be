package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all output from the advisory client flow.
type Displayer interface {
	Banner()
	SessionFound()
	SessionValid(email, role string)
	SessionMissing()
	TokenExpired()
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	LoggingIn(email string)
	LoginOK(email, role string)
	LoginFailed(err error)
	LoadingDashboard()
	ProfileLoaded(name, email, role string)
	Dashboard(role string, lines []string)
	SessionExpired()
	APICallFailed(err error)
	Done(preview, tokenType string, expiresIn time.Duration)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "=== Advisory Hub CLI ===")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) SessionFound() {
	fmt.Fprintln(p.w, "Found existing session!")
}

func (p *PlainDisplayer) SessionValid(email, role string) {
	fmt.Fprintf(p.w, "Session is still valid: %s (%s)\n", email, role)
}

func (p *PlainDisplayer) SessionMissing() {
	fmt.Fprintln(p.w, "No existing session found.")
}

func (p *PlainDisplayer) TokenExpired() {
	fmt.Fprintln(p.w, "Access token expired.")
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Refreshing access token...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) LoggingIn(email string) {
	fmt.Fprintf(p.w, "Signing in as %s...\n", email)
}

func (p *PlainDisplayer) LoginOK(email, role string) {
	fmt.Fprintf(p.w, "Signed in: %s (%s)\n", email, role)
}

func (p *PlainDisplayer) LoginFailed(err error) {
	fmt.Fprintf(p.w, "Login failed: %v\n", err)
}

func (p *PlainDisplayer) LoadingDashboard() {
	fmt.Fprintln(p.w, "\nLoading dashboard...")
}

func (p *PlainDisplayer) ProfileLoaded(name, email, role string) {
	fmt.Fprintf(p.w, "Profile: %s <%s> (%s)\n", name, email, role)
}

func (p *PlainDisplayer) Dashboard(role string, lines []string) {
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintf(p.w, "%s dashboard\n", role)
	for _, line := range lines {
		fmt.Fprintf(p.w, "  %s\n", line)
	}
	fmt.Fprintln(p.w, "----------------------------------------")
}

func (p *PlainDisplayer) SessionExpired() {
	fmt.Fprintln(p.w, "Session expired, please sign in again.")
}

func (p *PlainDisplayer) APICallFailed(err error) {
	fmt.Fprintf(p.w, "API call failed: %v\n", err)
}

func (p *PlainDisplayer) Done(preview, tokenType string, expiresIn time.Duration) {
	fmt.Fprintln(p.w, "\n========================================")
	fmt.Fprintln(p.w, "Current Session:")
	fmt.Fprintf(p.w, "Access Token: %s...\n", preview)
	fmt.Fprintf(p.w, "Token Type: %s\n", tokenType)
	fmt.Fprintf(p.w, "Expires In: %s\n", expiresIn.Round(time.Second))
	fmt.Fprintln(p.w, "========================================")
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                                 {}
func (NoopDisplayer) SessionFound()                           {}
func (NoopDisplayer) SessionValid(_, _ string)                {}
func (NoopDisplayer) SessionMissing()                         {}
func (NoopDisplayer) TokenExpired()                           {}
func (NoopDisplayer) Refreshing()                             {}
func (NoopDisplayer) RefreshOK()                              {}
func (NoopDisplayer) RefreshFailed(_ error)                   {}
func (NoopDisplayer) LoggingIn(_ string)                      {}
func (NoopDisplayer) LoginOK(_, _ string)                     {}
func (NoopDisplayer) LoginFailed(_ error)                     {}
func (NoopDisplayer) LoadingDashboard()                       {}
func (NoopDisplayer) ProfileLoaded(_, _, _ string)            {}
func (NoopDisplayer) Dashboard(_ string, _ []string)          {}
func (NoopDisplayer) SessionExpired()                         {}
func (NoopDisplayer) APICallFailed(_ error)                   {}
func (NoopDisplayer) Done(_, _ string, _ time.Duration)       {}
func (NoopDisplayer) Fatal(_ error)                           {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) SessionFound() {
	t.p.Send(MsgSessionFound{})
}

func (t *ProgramDisplayer) SessionValid(email, role string) {
	t.p.Send(MsgSessionValid{Email: email, Role: role})
}

func (t *ProgramDisplayer) SessionMissing() {
	t.p.Send(MsgSessionMissing{})
}

func (t *ProgramDisplayer) TokenExpired() {
	t.p.Send(MsgTokenExpired{})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) LoggingIn(email string) {
	t.p.Send(MsgLoggingIn{Email: email})
}

func (t *ProgramDisplayer) LoginOK(email, role string) {
	t.p.Send(MsgLoginOK{Email: email, Role: role})
}

func (t *ProgramDisplayer) LoginFailed(err error) {
	t.p.Send(MsgLoginFailed{Err: err})
}

func (t *ProgramDisplayer) LoadingDashboard() {
	t.p.Send(MsgLoadingDashboard{})
}

func (t *ProgramDisplayer) ProfileLoaded(name, email, role string) {
	t.p.Send(MsgProfileLoaded{Name: name, Email: email, Role: role})
}

func (t *ProgramDisplayer) Dashboard(role string, lines []string) {
	t.p.Send(MsgDashboard{Role: role, Lines: lines})
}

func (t *ProgramDisplayer) SessionExpired() {
	t.p.Send(MsgSessionExpired{})
}

func (t *ProgramDisplayer) APICallFailed(err error) {
	t.p.Send(MsgAPICallFailed{Err: err})
}

func (t *ProgramDisplayer) Done(preview, tokenType string, expiresIn time.Duration) {
	t.p.Send(MsgDone{Preview: preview, TokenType: tokenType, ExpiresIn: expiresIn})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
