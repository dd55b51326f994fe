package analysis

import (
	"sync"
	"time"
)

// escalationGuard suppresses a second call for the same user inside window.
// A nil guard allows every call.
type escalationGuard struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

func newEscalationGuard(window time.Duration) *escalationGuard {
	if window <= 0 {
		return nil
	}
	return &escalationGuard{window: window, last: make(map[string]time.Time)}
}

// acquire reserves the user's escalation slot at now. It returns false if a
// call was reserved less than window ago.
func (g *escalationGuard) acquire(userID string, now time.Time) bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.last[userID]; ok && now.Sub(t) < g.window {
		return false
	}
	g.last[userID] = now
	g.sweep(now)
	return true
}

// release frees the slot after a failed call so the user can retry.
func (g *escalationGuard) release(userID string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.last, userID)
	g.mu.Unlock()
}

func (g *escalationGuard) sweep(now time.Time) {
	for id, t := range g.last {
		if now.Sub(t) >= g.window {
			delete(g.last, id)
		}
	}
}
