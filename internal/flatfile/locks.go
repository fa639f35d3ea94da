package flatfile

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// fileLocks hands out one lock per file. semaphore.Weighted grants waiters
// in arrival order, so writers to the same file are served FIFO.
type fileLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func newFileLocks() *fileLocks {
	return &fileLocks{locks: map[string]*semaphore.Weighted{}}
}

// lock blocks until path is free or ctx is done. The returned func releases it.
func (l *fileLocks) lock(ctx context.Context, path string) (func(), error) {
	l.mu.Lock()
	s := l.locks[path]
	if s == nil {
		s = semaphore.NewWeighted(1)
		l.locks[path] = s
	}
	l.mu.Unlock()

	if err := s.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.Release(1) }, nil
}
