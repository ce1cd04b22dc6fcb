package lock

import (
	"context"
	"sync"
)

// MutexProvider implements Provider with one count-1 semaphore per key. The
// semaphore map grows with the set of keys ever locked; entries are small
// (one buffered channel each) and are reused across acquisitions.
type MutexProvider struct {
	mu    sync.Mutex
	semas map[string]chan struct{}
}

var _ Provider = (*MutexProvider)(nil)

// NewMutexProvider constructs an empty in-process lock provider.
func NewMutexProvider() *MutexProvider {
	return &MutexProvider{semas: make(map[string]chan struct{})}
}

// Acquire obtains the exclusive lock for key, waiting until the holder
// releases it or ctx is done.
func (p *MutexProvider) Acquire(ctx context.Context, key string) (Handle, error) {
	p.mu.Lock()
	sema, ok := p.semas[key]
	if !ok {
		sema = make(chan struct{}, 1)
		p.semas[key] = sema
	}
	p.mu.Unlock()

	select {
	case sema <- struct{}{}:
		return &semaHandle{sema: sema}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// semaHandle releases the semaphore exactly once.
type semaHandle struct {
	sema chan struct{}
	once sync.Once
}

// Release frees the lock. Safe to call multiple times.
func (h *semaHandle) Release() {
	h.once.Do(func() { <-h.sema })
}
