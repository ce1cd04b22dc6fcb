package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireIsExclusivePerKey(t *testing.T) {
	p := NewMutexProvider()
	ctx := context.Background()

	h1, err := p.Acquire(ctx, "s1")
	require.NoError(t, err)

	// A different key is not contended.
	h2, err := p.Acquire(ctx, "s2")
	require.NoError(t, err)
	h2.Release()

	// The same key blocks until release.
	acquired := make(chan Handle)
	go func() {
		h, err := p.Acquire(ctx, "s1")
		require.NoError(t, err)
		acquired <- h
	}()

	select {
	case <-acquired:
		t.Fatal("second acquisition succeeded while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	h1.Release()
	select {
	case h := <-acquired:
		h.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released lock")
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	p := NewMutexProvider()
	h, err := p.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := NewMutexProvider()
	ctx := context.Background()

	h, err := p.Acquire(ctx, "s1")
	require.NoError(t, err)
	h.Release()
	h.Release() // second release must not free someone else's hold

	h2, err := p.Acquire(ctx, "s1")
	require.NoError(t, err)
	defer h2.Release()

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx2, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
