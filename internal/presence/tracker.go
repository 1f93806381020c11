// Package presence tracks per-user online state from user_status events.
package presence

import (
	"sync"

	"github.com/chatsphere/internal/model"
	"github.com/chatsphere/internal/view"
)

// Tracker owns the roster. Users are upserted on first observation and never
// deleted; disconnects only flip the online flag. Iteration order is stable:
// online users first, then offline, each group in the order first observed.
type Tracker struct {
	mu       sync.RWMutex
	order    []string
	online   map[string]bool
	notifier view.Notifier
}

func New(notifier view.Notifier) *Tracker {
	if notifier == nil {
		notifier = view.NopNotifier{}
	}
	return &Tracker{
		online:   make(map[string]bool),
		notifier: notifier,
	}
}

// Seed installs an initial roster without notifying, for state restored
// before any event arrives.
func (t *Tracker) Seed(users []model.User) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range users {
		if u.Username == "" {
			continue
		}
		if _, ok := t.online[u.Username]; !ok {
			t.order = append(t.order, u.Username)
		}
		t.online[u.Username] = u.Online
	}
}

// SetStatus upserts a user's online state. A malformed payload (empty
// username) is dropped silently rather than crashing the roster.
func (t *Tracker) SetStatus(username string, online bool) {
	if username == "" {
		return
	}
	t.mu.Lock()
	if _, ok := t.online[username]; !ok {
		t.order = append(t.order, username)
	}
	t.online[username] = online
	t.mu.Unlock()

	t.notifier.StateChanged()
}

// All returns the roster, online users first, preserving first-observed
// order within each group.
func (t *Tracker) All() []model.User {
	t.mu.RLock()
	defer t.mu.RUnlock()
	users := make([]model.User, 0, len(t.order))
	for _, name := range t.order {
		if t.online[name] {
			users = append(users, model.User{Username: name, Online: true})
		}
	}
	for _, name := range t.order {
		if !t.online[name] {
			users = append(users, model.User{Username: name, Online: false})
		}
	}
	return users
}
