/*
Package presence tracks which users have at least one live realtime connection.

Connections are reference counted per user: the first connection marks the user
online and the last one to close marks them offline. Only those two transitions
are persisted and announced.
*/
package presence

import (
	"context"
	"sync"

	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/metrics"
)

// Repository persists the online flag.
type Repository interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

// Notifier announces presence transitions to connected clients.
type Notifier interface {
	NotifyPresence(userID string, online bool)
}

// Tracker counts live connections per user.
type Tracker struct {
	// mu guards the maps and the notifier. It is never held across store I/O.
	mu     sync.Mutex
	counts map[string]int
	locks  map[string]*userLock

	repo     Repository
	notifier Notifier
}

// userLock serialises count changes and transitions for one user. refs counts
// the callers holding or waiting on it so idle locks can be dropped.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewTracker returns a Tracker. notifier may be nil.
func NewTracker(repo Repository, notifier Notifier) *Tracker {
	return &Tracker{
		counts:   make(map[string]int),
		locks:    make(map[string]*userLock),
		repo:     repo,
		notifier: notifier,
	}
}

// SetNotifier replaces the notifier.
func (t *Tracker) SetNotifier(n Notifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifier = n
}

// Connect records a new connection for userID.
func (t *Tracker) Connect(ctx context.Context, userID string) error {
	unlock := t.lockUser(userID)
	defer unlock()

	t.mu.Lock()
	t.counts[userID]++
	first := t.counts[userID] == 1
	notifier := t.notifier
	t.mu.Unlock()

	if !first {
		return nil
	}
	metrics.OnlineUsers.Inc()
	return t.transition(ctx, notifier, userID, true)
}

// Disconnect records a closed connection for userID. Extra calls are ignored.
func (t *Tracker) Disconnect(ctx context.Context, userID string) error {
	unlock := t.lockUser(userID)
	defer unlock()

	t.mu.Lock()
	n, ok := t.counts[userID]
	switch {
	case !ok:
		t.mu.Unlock()
		return nil
	case n > 1:
		t.counts[userID] = n - 1
		t.mu.Unlock()
		return nil
	}
	delete(t.counts, userID)
	notifier := t.notifier
	t.mu.Unlock()

	metrics.OnlineUsers.Dec()
	return t.transition(ctx, notifier, userID, false)
}

// IsOnline reports whether userID has a live connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID] > 0
}

// Connections returns the number of live connections of userID.
func (t *Tracker) Connections(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID]
}

// lockUser acquires the lock of userID and returns its release func.
func (t *Tracker) lockUser(userID string) func() {
	t.mu.Lock()
	l, ok := t.locks[userID]
	if !ok {
		l = &userLock{}
		t.locks[userID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, userID)
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) transition(ctx context.Context, notifier Notifier, userID string, online bool) error {
	err := t.repo.SetOnline(ctx, userID, online)
	if err != nil {
		logx.Error(err, "Failed to persist presence", "user_id", userID, "online", online)
	}

	if notifier != nil {
		notifier.NotifyPresence(userID, online)
	}
	return err
}
