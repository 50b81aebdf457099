// Package coalescer keeps the per-session cart state of the storefront: the
// last authoritative cart, the mutations still awaiting a response, and the
// generation counters that decide which response may be applied.
package coalescer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

const tracerName = "github.com/utafrali/storefront/services/storefront/internal/coalescer"

// Executor sends one mutation to the commerce API and returns its
// authoritative answer. It must honor ctx cancellation.
type Executor func(ctx context.Context, m domain.Mutation) (*domain.MutationResult, error)

// Fetcher reads the current cart from the commerce API.
type Fetcher func(ctx context.Context) (*domain.Cart, error)

// AppliedFunc is called after a mutation response has been applied. It runs
// on the mutation's goroutine, outside the session lock.
type AppliedFunc func(ctx context.Context, sessionID string, p domain.PendingMutation, res *domain.MutationResult)

// Option configures a Session.
type Option func(*Session)

// WithOnApplied registers fn to observe applied mutations.
func WithOnApplied(fn AppliedFunc) Option {
	return func(s *Session) { s.onApplied = fn }
}

// Status is the final state of a submitted mutation.
type Status string

const (
	StatusApplied    Status = "applied"
	StatusSuperseded Status = "superseded"
	StatusFailed     Status = "failed"
)

// Outcome describes how a submitted mutation ended.
type Outcome struct {
	Status     Status
	Key        string
	Generation uint64
	// Cart is the projected cart right after the mutation settled.
	Cart       *domain.Cart
	UserErrors []domain.UserError
	Err        error
}

// Ticket tracks a single submission.
type Ticket struct {
	Key        string
	Generation uint64

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newTicket(key string, gen uint64) *Ticket {
	return &Ticket{Key: key, Generation: gen, done: make(chan struct{})}
}

func (t *Ticket) resolve(o Outcome) {
	t.once.Do(func() {
		t.outcome = o
		close(t.done)
	})
}

// Done is closed once the outcome is known.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the mutation settles or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

type inflight struct {
	pending domain.PendingMutation
	ticket  *Ticket
	cancel  context.CancelFunc
}

// Session holds the cart state of one storefront session. All state is
// guarded by mu; remote calls run on their own goroutines outside the lock.
type Session struct {
	id        string
	exec      Executor
	onApplied AppliedFunc
	logger    *slog.Logger

	mu          sync.Mutex
	snapshot    *domain.Cart
	rev         uint64
	seq         uint64
	generations map[string]uint64
	pending     map[string]*inflight
	active      int

	wg sync.WaitGroup
}

// NewSession creates the state for session id. exec performs the remote call
// of every submitted mutation.
func NewSession(id string, exec Executor, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		id:          id,
		exec:        exec,
		logger:      logger.With(slog.String("session_id", id)),
		generations: make(map[string]uint64),
		pending:     make(map[string]*inflight),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Submit records m as pending and sends it to the commerce API
// asynchronously. A newer submission under the same key cancels the older
// request, and only the response of the latest submission is ever applied.
//
// Submit fails fast with domain.ErrUnsupportedMutation for unknown kinds. It
// returns domain.ErrMutationPending when a remove is already in flight for one
// of the lines, or when a line is a placeholder not yet confirmed by the
// commerce API.
func (s *Session) Submit(ctx context.Context, m domain.Mutation) (*Ticket, error) {
	m = m.Normalized()
	if err := m.Validate(); err != nil {
		MutationsTotal.WithLabelValues(string(m.Kind), outcomeRejected).Inc()
		if errors.Is(err, domain.ErrUnsupportedMutation) {
			s.logger.ErrorContext(ctx, "rejected mutation of unknown kind",
				slog.String("kind", string(m.Kind)),
			)
		}
		return nil, err
	}

	for _, id := range m.TargetIDs() {
		if m.Kind != domain.KindAdd && IsOptimisticLineID(id) {
			MutationsTotal.WithLabelValues(string(m.Kind), outcomeRejected).Inc()
			return nil, fmt.Errorf("%w: line %s is not confirmed yet", domain.ErrMutationPending, id)
		}
	}

	key := m.Key()

	s.mu.Lock()
	if m.Kind == domain.KindRemove {
		if lineID, ok := s.pendingRemoveLocked(m); ok {
			s.mu.Unlock()
			MutationsTotal.WithLabelValues(string(m.Kind), outcomeRejected).Inc()
			return nil, fmt.Errorf("%w: remove of line %s", domain.ErrMutationPending, lineID)
		}
	}

	s.generations[key]++
	gen := s.generations[key]
	s.seq++

	older, superseding := s.pending[key]

	// The remote call outlives the request that submitted it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ticket := newTicket(key, gen)
	pending := domain.PendingMutation{
		Key:         key,
		Kind:        m.Kind,
		Generation:  gen,
		Seq:         s.seq,
		Mutation:    m,
		SubmittedAt: time.Now().UTC(),
	}
	s.pending[key] = &inflight{
		pending: pending,
		ticket:  ticket,
		cancel:  cancel,
	}
	if superseding {
		older.cancel()
		older.ticket.resolve(Outcome{
			Status:     StatusSuperseded,
			Key:        key,
			Generation: older.pending.Generation,
			Cart:       s.projectLocked(),
		})
		s.logger.DebugContext(ctx, "mutation superseded",
			slog.String("key", key),
			slog.Uint64("generation", older.pending.Generation),
			slog.Uint64("superseded_by", gen),
		)
	}
	s.wg.Add(1)
	s.active++
	s.mu.Unlock()

	MutationsInFlight.Inc()
	go s.run(runCtx, cancel, pending, ticket)

	return ticket, nil
}

// pendingRemoveLocked returns a line of m that already has a remove in flight.
func (s *Session) pendingRemoveLocked(m domain.Mutation) (string, bool) {
	for _, inf := range s.pending {
		if inf.pending.Kind != domain.KindRemove {
			continue
		}
		for _, id := range m.LineIDs {
			if inf.pending.Mutation.AffectsLine(id) {
				return id, true
			}
		}
	}
	return "", false
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, p domain.PendingMutation, ticket *Ticket) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()
	defer cancel()
	defer MutationsInFlight.Dec()

	m, key, gen := p.Mutation, p.Key, p.Generation

	ctx, span := tracing.Tracer(tracerName).Start(ctx, "cart.mutation."+string(m.Kind),
		trace.WithAttributes(
			attribute.String("cart.mutation.key", key),
			attribute.Int64("cart.mutation.generation", int64(gen)),
		),
	)
	start := time.Now()
	result, err := s.exec(ctx, m)
	MutationDuration.WithLabelValues(string(m.Kind)).Observe(time.Since(start).Seconds())
	outcome := s.complete(key, gen, result, err)
	span.SetAttributes(attribute.String("cart.mutation.status", string(outcome.Status)))
	tracing.EndSpan(span, outcome.Err)

	MutationsTotal.WithLabelValues(string(m.Kind), string(outcome.Status)).Inc()
	if outcome.Status == StatusApplied && s.onApplied != nil {
		s.onApplied(context.WithoutCancel(ctx), s.id, p, result)
	}
	ticket.resolve(outcome)
}

// complete applies a response if gen is still the latest generation of key.
func (s *Session) complete(key string, gen uint64, result *domain.MutationResult, err error) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := Outcome{Key: key, Generation: gen}

	if s.generations[key] != gen {
		outcome.Status = StatusSuperseded
		outcome.Cart = s.projectLocked()
		return outcome
	}

	delete(s.pending, key)

	if err != nil {
		s.logger.Warn("cart mutation failed, rolling back",
			slog.String("key", key),
			slog.Uint64("generation", gen),
			slog.String("error", err.Error()),
		)
		outcome.Status = StatusFailed
		outcome.Err = err
		outcome.Cart = s.projectLocked()
		return outcome
	}

	if result != nil && result.Cart != nil {
		s.snapshot = result.Cart.Clone()
		s.rev++
	}
	outcome.Status = StatusApplied
	if result != nil {
		outcome.UserErrors = result.UserErrors
	}
	outcome.Cart = s.projectLocked()
	return outcome
}

// Refresh replaces the authoritative cart with a freshly fetched one and
// returns the projection. A fetched cart is discarded if a mutation response
// was applied while the fetch was running.
func (s *Session) Refresh(ctx context.Context, fetch Fetcher) (*domain.Cart, error) {
	s.mu.Lock()
	rev := s.rev
	s.mu.Unlock()

	cart, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev == rev {
		s.snapshot = cart.Clone()
		s.rev++
	}
	return s.projectLocked(), nil
}

// Reset forgets the authoritative cart. Pending mutations are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.rev++
}

// View returns the projected cart.
func (s *Session) View() *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectLocked()
}

// Snapshot returns a copy of the last authoritative cart, or nil.
func (s *Session) Snapshot() *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Pending returns the pending mutations in submission order.
func (s *Session) Pending() []domain.PendingMutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

// Generation returns the latest generation issued for key.
func (s *Session) Generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}

// Busy reports whether any dispatched remote call has not returned yet.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active > 0
}

// Wait blocks until every dispatched remote call has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) pendingLocked() []domain.PendingMutation {
	out := make([]domain.PendingMutation, 0, len(s.pending))
	for _, inf := range s.pending {
		out = append(out, inf.pending)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *Session) projectLocked() *domain.Cart {
	return Project(s.snapshot, s.pendingLocked())
}
