package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/joho/godotenv"

	tea "charm.land/bubbletea/v2"
	"github.com/advisory-hub/advisory-cli/advisory"
	"github.com/advisory-hub/advisory-cli/session"
	"github.com/advisory-hub/advisory-cli/tui"
)

var (
	apiURL            string
	loginEmail        string
	loginPassword     string
	sessionFile       string
	profileName       string
	requestTimeout    time.Duration
	expiryBuffer      time.Duration
	checkInterval     time.Duration
	flagAPIURL        *string
	flagEmail         *string
	flagPassword      *string
	flagSessionFile   *string
	flagProfile       *string
	configInitialized bool
	retryClient       *retry.Client
)

// Defaults for environment-driven configuration
const (
	defaultAPIURL         = "http://localhost:8080"
	defaultSessionFile    = ".advisory-session.json"
	defaultProfile        = "default"
	defaultRequestTimeout = 10 * time.Second
	defaultExpiryBuffer   = 300 * time.Second
	defaultCheckInterval  = 60 * time.Second
)

func init() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	// Define flags (but don't parse yet to avoid conflicts with test flags)
	flagAPIURL = flag.String(
		"api-url",
		"",
		"Advisory backend URL (default: http://localhost:8080 or ADVISORY_API_URL env)",
	)
	flagEmail = flag.String("email", "", "Login email (or set ADVISORY_EMAIL env)")
	flagPassword = flag.String("password", "", "Login password (or set ADVISORY_PASSWORD env)")
	flagSessionFile = flag.String(
		"session-file",
		"",
		"Session storage file (default: .advisory-session.json or SESSION_FILE env)",
	)
	flagProfile = flag.String(
		"profile",
		"",
		"Session profile name (default: default or ADVISORY_PROFILE env)",
	)
}

// initConfig parses flags and initializes configuration
// Separated from init() to avoid conflicts with test flag parsing
func initConfig() {
	if configInitialized {
		return
	}
	configInitialized = true

	flag.Parse()

	// Priority: flag > env > default
	apiURL = getConfig(*flagAPIURL, "ADVISORY_API_URL", defaultAPIURL)
	loginEmail = getConfig(*flagEmail, "ADVISORY_EMAIL", "")
	loginPassword = getConfig(*flagPassword, "ADVISORY_PASSWORD", "")
	sessionFile = getConfig(*flagSessionFile, "SESSION_FILE", defaultSessionFile)
	profileName = getConfig(*flagProfile, "ADVISORY_PROFILE", defaultProfile)
	requestTimeout = getDurationEnv("REQUEST_TIMEOUT_MS", time.Millisecond, defaultRequestTimeout)
	expiryBuffer = getDurationEnv("TOKEN_EXPIRY_BUFFER", time.Second, defaultExpiryBuffer)
	checkInterval = getDurationEnv("AUTH_CHECK_INTERVAL", time.Second, defaultCheckInterval)

	// Validate API URL format
	if err := validateAPIURL(apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid ADVISORY_API_URL: %v\n", err)
		os.Exit(1)
	}

	// Warn if using HTTP instead of HTTPS
	if strings.HasPrefix(strings.ToLower(apiURL), "http://") {
		fmt.Fprintln(
			os.Stderr,
			"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
		)
		fmt.Fprintln(
			os.Stderr,
			"⚠️  This is only safe for local development. Use HTTPS in production.",
		)
		fmt.Fprintln(os.Stderr)
	}

	// Initialize HTTP client with retry support
	baseHTTPClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableKeepAlives:   false,
		},
	}

	// Wrap with retry logic using go-httpretry
	var err error
	retryClient, err = retry.NewBackgroundClient(
		retry.WithHTTPClient(baseHTTPClient),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create retry client: %v", err))
	}
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv reads an integer env var scaled by unit, falling back to
// defaultValue when unset or unparseable.
func getDurationEnv(key string, unit, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		fmt.Fprintf(os.Stderr, "⚠️  Warning: ignoring invalid %s=%q\n", key, raw)
		return defaultValue
	}
	return time.Duration(n) * unit
}

// validateAPIURL validates that the backend URL is properly formatted
func validateAPIURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("API URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func main() {
	initConfig()

	if isTTY() {
		// Run TUI program on stderr so stdout pipes are not corrupted
		m := tui.NewModel()
		// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
		// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()

		d := tui.NewProgramDisplayer(p)
		d.Banner()
		runErr := run(d)
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		if runErr != nil {
			os.Exit(1)
		}
	} else {
		d := tui.NewPlainDisplayer(os.Stderr)
		d.Banner()
		if err := run(d); err != nil {
			os.Exit(1)
		}
	}
}

func run(d tui.Displayer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := session.NewStore(sessionFile, profileName)

	manager, err := session.NewManager(session.Config{
		Store:            store,
		ExpiryBuffer:     expiryBuffer,
		CheckInterval:    checkInterval,
		OnSessionExpired: d.SessionExpired,
	})
	if err != nil {
		d.Fatal(err)
		return err
	}
	defer manager.Close()

	client, err := advisory.NewClient(advisory.Config{
		BaseURL:          apiURL,
		Tokens:           store,
		HTTPClient:       retryClient,
		Timeout:          requestTimeout,
		OnSessionExpired: d.SessionExpired,
	})
	if err != nil {
		d.Fatal(err)
		return err
	}

	if err := manager.Initialize(); err != nil {
		d.Fatal(err)
		return err
	}

	if manager.IsAuthenticated() {
		d.SessionFound()
		u := manager.CurrentUser()
		d.SessionValid(u.Email, string(u.Role))
	} else if err := restoreOrLogin(ctx, d, client, manager, store); err != nil {
		d.Fatal(err)
		return err
	}

	if err := showDashboard(ctx, d, client, manager); err != nil {
		d.Fatal(err)
		return err
	}

	// Display current session info
	if tok, err := store.Token(); err == nil && tok != nil {
		preview := tok.AccessToken
		if len(preview) > 50 {
			preview = preview[:50]
		}
		d.Done(preview, tok.Type(), time.Until(tok.Expiry).Round(time.Second))
	}

	return nil
}

// restoreOrLogin recovers an expired stored session through the transparent
// refresh path if a refresh token exists, and otherwise performs a password
// login with the configured credentials.
func restoreOrLogin(
	ctx context.Context,
	d tui.Displayer,
	client *advisory.Client,
	manager *session.Manager,
	store *session.Store,
) error {
	// An expired access token with a refresh token alongside it can be
	// recovered without a password: the first authenticated call comes
	// back 401 and the client refreshes transparently.
	if tok, err := store.Token(); err == nil && tok != nil && tok.RefreshToken != "" {
		d.SessionFound()
		d.TokenExpired()
		d.Refreshing()

		if _, err := client.Profile(ctx); err != nil {
			d.RefreshFailed(err)
		} else if refreshed, err := store.Token(); err == nil && refreshed != nil {
			if _, err := manager.Login(refreshed); err == nil {
				d.RefreshOK()
				return nil
			}
		}
	} else {
		d.SessionMissing()
	}

	if loginEmail == "" || loginPassword == "" {
		fmt.Fprintln(os.Stderr, "Error: no valid session and no credentials set. Please provide them via:")
		fmt.Fprintln(os.Stderr, "  1. Command line flags: -email=<email> -password=<password>")
		fmt.Fprintln(os.Stderr, "  2. Environment variables: ADVISORY_EMAIL / ADVISORY_PASSWORD")
		fmt.Fprintln(os.Stderr, "  3. .env file with the same variables")
		return errors.New("missing credentials")
	}

	d.LoggingIn(loginEmail)
	result, err := client.Login(ctx, loginEmail, loginPassword)
	if err != nil {
		d.LoginFailed(err)
		return fmt.Errorf("login failed: %w", err)
	}

	user, err := manager.Login(result.Token())
	if err != nil {
		d.LoginFailed(err)
		return fmt.Errorf("login failed: %w", err)
	}

	d.LoginOK(user.Email, string(user.Role))
	return nil
}

// showDashboard fetches the profile and a role-appropriate summary.
func showDashboard(
	ctx context.Context,
	d tui.Displayer,
	client *advisory.Client,
	manager *session.Manager,
) error {
	d.LoadingDashboard()

	profile, err := client.Profile(ctx)
	if err != nil {
		d.APICallFailed(err)
		return fmt.Errorf("failed to load profile: %w", err)
	}

	name := strings.TrimSpace(profile.FirstName + " " + profile.LastName)
	d.ProfileLoaded(name, profile.Email, profile.Role)
	manager.UpdateUser(session.UserPatch{Email: &profile.Email, Name: &name})

	user := manager.CurrentUser()
	if user == nil {
		return errors.New("session lost while loading dashboard")
	}

	d.Dashboard(string(user.Role), dashboardLines(ctx, client, user.Role))
	return nil
}

// dashboardLines builds the per-role summary. Failures of individual
// calls degrade to a placeholder line instead of aborting the dashboard.
func dashboardLines(ctx context.Context, client *advisory.Client, role session.Role) []string {
	var lines []string

	count := func(label string, n int, err error) string {
		if err != nil {
			return label + ": unavailable"
		}
		return fmt.Sprintf("%s: %d", label, n)
	}

	switch role {
	case session.RoleStudent:
		advisories, err := client.Advisories(ctx, "scheduled")
		lines = append(lines, count("Upcoming advisories", len(advisories), err))
		invitations, err := client.Invitations(ctx, "pending")
		lines = append(lines, count("Pending invitations", len(invitations), err))

	case session.RoleProfessor:
		advisories, err := client.Advisories(ctx, "scheduled")
		lines = append(lines, count("Upcoming sessions", len(advisories), err))
		requests, err := client.Requests(ctx, "pending")
		lines = append(lines, count("Pending requests", len(requests), err))

	case session.RoleAdmin:
		stats, err := client.AdminStats(ctx)
		if err != nil {
			lines = append(lines, "Platform stats: unavailable")
			break
		}
		lines = append(lines,
			fmt.Sprintf("Users: %d", stats.TotalUsers),
			fmt.Sprintf("Advisories: %d", stats.TotalAdvisories),
			fmt.Sprintf("Pending requests: %d", stats.PendingRequests),
			fmt.Sprintf("Sessions this week: %d", stats.SessionsThisWeek),
		)
	}

	notifications, err := client.Notifications(ctx, true)
	lines = append(lines, count("Unread notifications", len(notifications), err))

	return lines
}
