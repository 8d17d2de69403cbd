package session

import (
	"sync"
	"time"
)

const maxHistory = 32

// Navigation is a replace the gate issued that the client has not yet
// acknowledged.
type Navigation struct {
	Target Group     `json:"target"`
	Path   string    `json:"path"`
	At     time.Time `json:"at"`
}

// Location is the server-side record of where a device is. It implements
// Navigator.
type Location struct {
	mu      sync.Mutex
	path    string
	history []string
	pending *Navigation
	now     func() time.Time
}

// NewLocation starts a device at path.
func NewLocation(path string) *Location {
	if path == "" {
		path = "/"
	}
	return &Location{path: path, now: time.Now}
}

// Visit records a client-side push to path.
func (l *Location) Visit(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if path == "" || path == l.path {
		return
	}
	l.history = append(l.history, l.path)
	if len(l.history) > maxHistory {
		l.history = l.history[len(l.history)-maxHistory:]
	}
	l.path = path
}

// Back pops the history. It fails at the root of the stack.
func (l *Location) Back() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.history)
	if n == 0 {
		return l.path, false
	}
	l.path = l.history[n-1]
	l.history = l.history[:n-1]
	return l.path, true
}

// Path returns the current location.
func (l *Location) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// CurrentGroup returns the group of the current location.
func (l *Location) CurrentGroup() Group {
	return GroupOf(l.Path())
}

// Replace moves the device to the target group's default path and drops the
// history so the client cannot go back into an area it may no longer see.
func (l *Location) Replace(target Group) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.path = target.DefaultPath()
	l.history = nil
	l.pending = &Navigation{Target: target, Path: l.path, At: l.now().UTC()}
}

// Pending returns the last unacknowledged replace, if any.
func (l *Location) Pending() *Navigation {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return nil
	}
	n := *l.pending
	return &n
}

// Acknowledge clears the pending replace once the client has applied it.
func (l *Location) Acknowledge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = nil
}
