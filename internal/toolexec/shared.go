package toolexec

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type sharedResult struct {
	result Result
	err    error
}

// Shared wraps an Invoker so that identical commands issued during one cycle
// run once: concurrent callers are merged by singleflight and later callers
// reuse the stored result. Create a new Shared per cycle.
type Shared struct {
	inner Invoker
	group singleflight.Group

	mu      sync.Mutex
	results map[string]sharedResult
}

// NewShared wraps inner.
func NewShared(inner Invoker) *Shared {
	return &Shared{inner: inner, results: make(map[string]sharedResult)}
}

// Invoke implements Invoker.
func (s *Shared) Invoke(ctx context.Context, cmd Command, timeout time.Duration) (Result, error) {
	key := cmd.String() + "\x00" + strconv.FormatInt(int64(timeout), 10)

	s.mu.Lock()
	if res, ok := s.results[key]; ok {
		s.mu.Unlock()
		return res.result, res.err
	}
	s.mu.Unlock()

	v, _, _ := s.group.Do(key, func() (any, error) {
		res, err := s.inner.Invoke(ctx, cmd, timeout)
		shared := sharedResult{result: res, err: err}
		s.mu.Lock()
		s.results[key] = shared
		s.mu.Unlock()
		return shared, nil
	})
	shared := v.(sharedResult)
	return shared.result, shared.err
}
