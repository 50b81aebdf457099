package coalescer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ExecutorFactory builds the executor that sends a session's mutations to the
// commerce API.
type ExecutorFactory func(sessionID string) Executor

// Registry holds the Session of every active storefront session. Sessions
// idle for longer than the configured TTL, or pushed out by newer sessions
// once the registry is full, are dropped. Nothing is persisted: a dropped
// session starts over from the commerce API on its next request.
//
// A session dropped while remote calls are still in flight is parked until
// they return. Get hands the parked session back, so its generations and
// pending mutations survive eviction.
type Registry struct {
	mu      sync.Mutex
	cache   *expirable.LRU[string, *Session]
	newExec ExecutorFactory
	opts    []Option
	logger  *slog.Logger

	drainMu  sync.Mutex
	draining map[string]*Session
	drainWG  sync.WaitGroup
}

// NewRegistry creates a registry holding at most size sessions, each expiring
// after idleTTL without access. opts apply to every session it creates.
func NewRegistry(size int, idleTTL time.Duration, newExec ExecutorFactory, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		newExec:  newExec,
		opts:     opts,
		logger:   logger,
		draining: make(map[string]*Session),
	}
	r.cache = expirable.NewLRU[string, *Session](size, r.onEvict, idleTTL)
	return r
}

// onEvict runs with the cache's own lock held, either from Get or from the
// expiry goroutine. It must not take r.mu.
func (r *Registry) onEvict(id string, s *Session) {
	SessionsActive.Dec()
	if !s.Busy() {
		r.logger.Debug("session state evicted", slog.String("session_id", id))
		return
	}

	r.drainMu.Lock()
	r.draining[id] = s
	r.drainMu.Unlock()
	SessionsDraining.Inc()
	r.logger.Debug("session evicted with mutations in flight", slog.String("session_id", id))

	r.drainWG.Add(1)
	go func() {
		defer r.drainWG.Done()
		s.Wait()
		r.release(id, s)
	}()
}

// release forgets a parked session once it has nothing in flight.
func (r *Registry) release(id string, s *Session) {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()
	if r.draining[id] == s && !s.Busy() {
		delete(r.draining, id)
		SessionsDraining.Dec()
	}
}

// reclaim removes and returns the parked session for id, if any.
func (r *Registry) reclaim(id string) (*Session, bool) {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()
	s, ok := r.draining[id]
	if ok {
		delete(r.draining, id)
		SessionsDraining.Dec()
	}
	return s, ok
}

// Get returns the session for id, creating it on first use. Every access
// restarts the idle timer.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache.Get(id); ok {
		r.cache.Add(id, s)
		return s
	}

	s, ok := r.reclaim(id)
	if !ok {
		s = NewSession(id, r.newExec(id), r.logger, r.opts...)
	}
	r.cache.Add(id, s)
	SessionsActive.Inc()
	return s
}

// Peek returns the session for id without creating it or touching its timer.
// A parked session is returned as well.
func (r *Registry) Peek(id string) (*Session, bool) {
	if s, ok := r.cache.Peek(id); ok {
		return s, true
	}
	r.drainMu.Lock()
	defer r.drainMu.Unlock()
	s, ok := r.draining[id]
	return s, ok
}

// Remove drops the session state for id.
func (r *Registry) Remove(id string) {
	r.cache.Remove(id)
}

// Len returns the number of sessions held, parked ones excluded.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Draining returns the number of evicted sessions still waiting on remote
// calls.
func (r *Registry) Draining() int {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()
	return len(r.draining)
}

// Wait blocks until every in-flight mutation of every held or parked session
// has returned. Used on shutdown.
func (r *Registry) Wait() {
	for _, s := range r.cache.Values() {
		s.Wait()
	}
	r.drainWG.Wait()
}
