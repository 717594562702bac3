package authclient

import (
	"context"
	"sync"
)

type refreshResult struct {
	token string
	err   error
}

// coordinator collapses concurrent refresh attempts into one call. Callers
// that arrive while a refresh is running wait for its outcome.
type coordinator struct {
	refresh func(ctx context.Context) (string, error)
	// current reports the session's token, as Session.credentials does.
	current func() (string, bool)

	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshResult
}

// do returns a token newer than sent, refreshing only when the session
// still holds sent.
func (c *coordinator) do(ctx context.Context, sent string) (string, error) {
	c.mu.Lock()
	if !c.inFlight {
		if cur, ok := c.current(); cur != sent {
			c.mu.Unlock()
			if ok {
				return cur, nil
			}
			// The session ended after sent was issued.
			return "", ErrSessionExpired
		}
	}
	if c.inFlight {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case r := <-ch:
			return r.token, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.inFlight = true
	c.mu.Unlock()

	res := refreshResult{err: ErrSessionExpired}
	defer func() {
		c.mu.Lock()
		waiters := c.waiters
		c.waiters = nil
		c.inFlight = false
		c.mu.Unlock()

		for _, w := range waiters {
			w <- res
		}
	}()

	// One caller giving up must not fail the others.
	res.token, res.err = c.refresh(context.WithoutCancel(ctx))
	return res.token, res.err
}
