package authclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noToken() (string, bool) { return "", false }

func TestCoordinator_SingleFlight(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	c := &coordinator{current: noToken, refresh: func(context.Context) (string, error) {
		calls.Add(1)
		close(started)
		<-release
		return "tok", nil
	}}

	const n = 5
	var wg sync.WaitGroup
	results := make([]string, n)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.do(context.Background(), "")
	}()
	<-started

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.do(context.Background(), "")
		}(i)
	}
	// Waiters must be queued before the leader finishes.
	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.waiters) == n-1
	}, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, "tok", r)
	}
	assert.False(t, c.inFlight)
}

func TestCoordinator_ErrorReachesEveryone(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	c := &coordinator{current: noToken, refresh: func(context.Context) (string, error) { return "", boom }}

	_, err := c.do(context.Background(), "")
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.inFlight)

	_, err = c.do(context.Background(), "")
	assert.ErrorIs(t, err, boom)
}

func TestCoordinator_WaiterHonoursContext(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{})
	c := &coordinator{current: noToken, refresh: func(context.Context) (string, error) {
		close(started)
		<-release
		return "tok", nil
	}}
	go func() { _, _ = c.do(context.Background(), "") }()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.do(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestCoordinator_StaleCallerSkipsRefresh(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var mu sync.Mutex
	token, ok := "new", true
	c := &coordinator{
		current: func() (string, bool) {
			mu.Lock()
			defer mu.Unlock()
			return token, ok
		},
		refresh: func(context.Context) (string, error) {
			calls.Add(1)
			return "newer", nil
		},
	}

	got, err := c.do(context.Background(), "old")
	assert.NoError(t, err)
	assert.Equal(t, "new", got)
	assert.Zero(t, calls.Load())

	got, err = c.do(context.Background(), "new")
	assert.NoError(t, err)
	assert.Equal(t, "newer", got)
	assert.EqualValues(t, 1, calls.Load())

	mu.Lock()
	token, ok = "", false
	mu.Unlock()
	_, err = c.do(context.Background(), "new")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.EqualValues(t, 1, calls.Load())
}
