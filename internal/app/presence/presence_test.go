package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type change struct {
	userID string
	online bool
}

type fakeRepo struct {
	mu      sync.Mutex
	writes  []change
	failFor string
}

func (f *fakeRepo) SetOnline(_ context.Context, userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, change{userID, online})
	if userID == f.failFor {
		return errors.New("store down")
	}
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	changes []change
}

func (f *fakeNotifier) NotifyPresence(userID string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change{userID, online})
}

func TestTracker_ReferenceCounts(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	tr := NewTracker(repo, notifier)

	require.NoError(t, tr.Connect(ctx, "alice"))
	require.NoError(t, tr.Connect(ctx, "alice"))
	assert.Equal(t, 2, tr.Connections("alice"))

	require.NoError(t, tr.Disconnect(ctx, "alice"))
	assert.True(t, tr.IsOnline("alice"), "second tab still open")

	require.NoError(t, tr.Disconnect(ctx, "alice"))
	assert.False(t, tr.IsOnline("alice"))

	require.NoError(t, tr.Disconnect(ctx, "alice"))

	want := []change{{"alice", true}, {"alice", false}}
	assert.Equal(t, want, repo.writes)
	assert.Equal(t, want, notifier.changes)
}

func TestTracker_ConcurrentConnections(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	tr := NewTracker(repo, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Connect(ctx, "bob")
			_ = tr.Disconnect(ctx, "bob")
		}()
	}
	wg.Wait()

	assert.False(t, tr.IsOnline("bob"))
	require.NotEmpty(t, repo.writes)
	assert.False(t, repo.writes[len(repo.writes)-1].online)
}

func TestTracker_StoreFailureStillNotifies(t *testing.T) {
	repo := &fakeRepo{failFor: "carol"}
	notifier := &fakeNotifier{}
	tr := NewTracker(repo, notifier)

	err := tr.Connect(context.Background(), "carol")
	assert.Error(t, err)
	assert.True(t, tr.IsOnline("carol"))
	assert.Equal(t, []change{{"carol", true}}, notifier.changes)
}

// stallingRepo blocks SetOnline for one user until release is closed.
type stallingRepo struct {
	fakeRepo
	stall   string
	entered chan struct{}
	release chan struct{}
}

func (s *stallingRepo) SetOnline(ctx context.Context, userID string, online bool) error {
	if userID == s.stall {
		close(s.entered)
		<-s.release
	}
	return s.fakeRepo.SetOnline(ctx, userID, online)
}

func TestTracker_SlowWriteDoesNotBlockOtherUsers(t *testing.T) {
	ctx := context.Background()
	repo := &stallingRepo{
		stall:   "alice",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	tr := NewTracker(repo, &fakeNotifier{})

	slow := make(chan error, 1)
	go func() { slow <- tr.Connect(ctx, "alice") }()
	<-repo.entered

	fast := make(chan error, 1)
	go func() { fast <- tr.Connect(ctx, "bob") }()

	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bob's connect waited on alice's store write")
	}
	assert.True(t, tr.IsOnline("bob"))
	assert.True(t, tr.IsOnline("alice"))

	close(repo.release)
	require.NoError(t, <-slow)
	assert.Equal(t, []change{{"bob", true}, {"alice", true}}, repo.writes)
}

func TestTracker_TransitionsAlternatePerUser(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	tr := NewTracker(repo, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Connect(ctx, "dave")
			_ = tr.Disconnect(ctx, "dave")
		}()
	}
	wg.Wait()

	require.NotEmpty(t, repo.writes)
	for i, w := range repo.writes {
		assert.Equal(t, i%2 == 0, w.online, "write %d out of order", i)
	}
	assert.Empty(t, tr.locks, "idle user locks are released")
}
