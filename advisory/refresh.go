package advisory

import "sync"

// refreshResult is what a queued request receives when a refresh settles:
// the new access token on success, or the refresh error.
type refreshResult struct {
	token string
	err   error
}

// refreshGate serializes token refreshes. The first caller to hit a 401
// becomes the leader and performs the refresh; every concurrent caller is
// queued and woken with the outcome. At most one refresh is in flight at a
// time, and every queued waiter is settled exactly once.
//
// The gate is per-Client state, never package-global, so independent
// clients (and tests) cannot interfere with each other.
//
// Waiters are woken in whatever order the scheduler resumes them; queued
// requests are independent, so replay order is deliberately unspecified.
type refreshGate struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

// begin attempts to start a refresh. If no refresh is in flight the caller
// becomes the leader (leader=true, wait=nil) and must call settle exactly
// once. Otherwise the caller is enqueued and must receive from wait.
func (g *refreshGate) begin() (leader bool, wait <-chan refreshResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.refreshing {
		g.refreshing = true
		return true, nil
	}

	ch := make(chan refreshResult, 1)
	g.waiters = append(g.waiters, ch)
	return false, ch
}

// settle completes the in-flight refresh, delivering the outcome to every
// queued waiter and returning the gate to its idle state. The queue is
// fully drained before the window closes; no waiter is dropped.
func (g *refreshGate) settle(token string, err error) {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.refreshing = false
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
}
