package engine

import (
	"context"
	"sync"
	"time"

	"github.com/vulntor/conductor/pkg/plugin"
)

// ResultStore maps plugin name to its terminal result for one session.
//
// Each name is written at most once. Readers either poll with Get or block in
// Await until the result appears. All state sits behind a single mutex.
type ResultStore struct {
	mu      sync.Mutex
	results map[string]plugin.Result
	// waiters are closed when the named result is written.
	waiters map[string]chan struct{}
}

var _ plugin.ResultReader = (*ResultStore)(nil)

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[string]plugin.Result),
		waiters: make(map[string]chan struct{}),
	}
}

// Put stores r under r.Plugin. A second write for the same plugin fails with
// *DuplicateWriteError and leaves the first result in place.
func (s *ResultStore) Put(r plugin.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[r.Plugin]; exists {
		return &DuplicateWriteError{Plugin: r.Plugin}
	}
	s.results[r.Plugin] = r

	if ch, ok := s.waiters[r.Plugin]; ok {
		close(ch)
		delete(s.waiters, r.Plugin)
	}
	return nil
}

// Get returns the result for name without blocking.
func (s *ResultStore) Get(name string) (plugin.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[name]
	return r, ok
}

// Await blocks until the result for name is present, ctx ends, or timeout
// elapses. A timeout <= 0 waits on ctx alone. Expiry returns
// *DependencyTimeoutError.
func (s *ResultStore) Await(ctx context.Context, name string, timeout time.Duration) (plugin.Result, error) {
	s.mu.Lock()
	if r, ok := s.results[name]; ok {
		s.mu.Unlock()
		return r, nil
	}
	ch, ok := s.waiters[name]
	if !ok {
		ch = make(chan struct{})
		s.waiters[name] = ch
	}
	s.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ch:
		r, _ := s.Get(name)
		return r, nil
	case <-expired:
		return plugin.Result{}, &DependencyTimeoutError{Plugin: name, Wait: timeout}
	case <-ctx.Done():
		return plugin.Result{}, ctx.Err()
	}
}

// Len returns the number of stored results.
func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Snapshot returns a copy of all results keyed by plugin name.
func (s *ResultStore) Snapshot() map[string]plugin.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]plugin.Result, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

