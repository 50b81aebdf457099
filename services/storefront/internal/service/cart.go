package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/storefront/internal/coalescer"
	"github.com/utafrali/storefront/services/storefront/internal/commerce"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
	"github.com/utafrali/storefront/services/storefront/internal/repository"
)

// EventPublisher publishes storefront cart events.
type EventPublisher interface {
	PublishCartCreated(ctx context.Context, sessionID, cartID string) error
	PublishCartMutated(ctx context.Context, sessionID string, pending domain.PendingMutation, result *domain.MutationResult) error
}

// Options tunes the in-memory session state.
type Options struct {
	SessionCacheSize int
	SessionIdleTTL   time.Duration
	// FetchTimeout bounds a shared cart read. Defaults to 10s.
	FetchTimeout time.Duration
}

// CartService implements the storefront cart operations on top of the
// commerce API. It keeps no cart state of its own beyond the session's cart
// ID and the in-memory coalescer state.
type CartService struct {
	api      commerce.CartAPI
	repo     repository.CartIDRepository
	events   EventPublisher
	logger   *slog.Logger
	sessions *coalescer.Registry

	fetchTimeout time.Duration
	fetches      singleflight.Group
	creates singleflight.Group
}

// NewCartService creates a new cart service. events may be nil.
func NewCartService(api commerce.CartAPI, repo repository.CartIDRepository, events EventPublisher, logger *slog.Logger, opts Options) *CartService {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	s := &CartService{
		api:          api,
		repo:         repo,
		events:       events,
		logger:       logger,
		fetchTimeout: opts.FetchTimeout,
	}
	s.sessions = coalescer.NewRegistry(opts.SessionCacheSize, opts.SessionIdleTTL, s.executorFor, logger,
		coalescer.WithOnApplied(s.onApplied),
	)
	return s
}

// GetCart returns the session's cart as the commerce API currently sees it,
// with the session's pending mutations applied on top. A session without a
// cart gets an empty one; no remote cart is created for a read.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	sess := s.sessions.Get(sessionID)

	cartID, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return sess.View(), nil
		}
		return nil, fmt.Errorf("get session cart id: %w", err)
	}

	cart, err := sess.Refresh(ctx, func(ctx context.Context) (*domain.Cart, error) {
		return s.fetch(ctx, sessionID, cartID)
	})
	if err != nil {
		if errors.Is(err, commerce.ErrCartNotFound) {
			s.forgetCart(ctx, sessionID, cartID)
			sess.Reset()
			return sess.View(), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// fetch reads a cart, sharing one remote call between concurrent readers of
// the same session. The shared call is detached from every caller's context,
// so one reader going away does not fail the others; each reader still stops
// waiting when its own context ends.
func (s *CartService) fetch(ctx context.Context, sessionID, cartID string) (*domain.Cart, error) {
	ch := s.fetches.DoChan(sessionID+"/"+cartID, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.api.Get(fetchCtx, cartID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Cart), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit hands a mutation to the session's coalescer and returns its ticket.
// The remote call happens asynchronously.
func (s *CartService) Submit(ctx context.Context, sessionID string, m domain.Mutation) (*coalescer.Ticket, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}
	return s.sessions.Get(sessionID).Submit(ctx, m)
}

// View returns the session's projected cart without contacting the commerce
// API.
func (s *CartService) View(sessionID string) *domain.Cart {
	return s.sessions.Get(sessionID).View()
}

// Pending returns the session's pending mutations in submission order.
func (s *CartService) Pending(sessionID string) []domain.PendingMutation {
	return s.sessions.Get(sessionID).Pending()
}

// Drain waits for every in-flight mutation to finish.
func (s *CartService) Drain() {
	s.sessions.Wait()
}

// executorFor builds the function that sends one session's mutations to the
// commerce API.
func (s *CartService) executorFor(sessionID string) coalescer.Executor {
	return func(ctx context.Context, m domain.Mutation) (*domain.MutationResult, error) {
		cartID, err := s.ensureCart(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		res, err := commerce.Execute(ctx, s.api, cartID, m)
		if errors.Is(err, commerce.ErrCartNotFound) {
			// The cart is gone remotely, e.g. after checkout. Start a new one.
			s.forgetCart(ctx, sessionID, cartID)
			if cartID, err = s.createCart(ctx, sessionID); err != nil {
				return nil, err
			}
			res, err = commerce.Execute(ctx, s.api, cartID, m)
		}
		if err != nil {
			return nil, err
		}

		if res.Cart != nil && res.Cart.ID != "" {
			if err := s.repo.Set(ctx, sessionID, res.Cart.ID); err != nil {
				s.logger.WarnContext(ctx, "failed to persist session cart id",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		}
		return res, nil
	}
}

// ensureCart returns the session's cart ID, creating a remote cart on first
// use.
func (s *CartService) ensureCart(ctx context.Context, sessionID string) (string, error) {
	cartID, err := s.repo.Get(ctx, sessionID)
	if err == nil {
		return cartID, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return "", fmt.Errorf("get session cart id: %w", err)
	}
	return s.createCart(ctx, sessionID)
}

// createCart creates one remote cart per session even when several first
// mutations race. Creation is not cancelled along with a superseded request.
func (s *CartService) createCart(ctx context.Context, sessionID string) (string, error) {
	ctx = context.WithoutCancel(ctx)
	v, err, _ := s.creates.Do(sessionID, func() (any, error) {
		// Another caller may have finished creating while this one waited.
		if cartID, err := s.repo.Get(ctx, sessionID); err == nil {
			return cartID, nil
		}
		res, err := s.api.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("create cart: %w", err)
		}
		if res.Cart == nil || res.Cart.ID == "" {
			return nil, apperrors.ServiceUnavailable("commerce api returned no cart")
		}
		cartID := res.Cart.ID
		if err := s.repo.Set(ctx, sessionID, cartID); err != nil {
			return nil, fmt.Errorf("persist session cart id: %w", err)
		}

		s.logger.InfoContext(ctx, "cart created",
			slog.String("session_id", sessionID),
			slog.String("cart_id", cartID),
		)
		if s.events != nil {
			if err := s.events.PublishCartCreated(ctx, sessionID, cartID); err != nil {
				s.logger.WarnContext(ctx, "failed to publish cart created event",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		}
		return cartID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *CartService) forgetCart(ctx context.Context, sessionID, cartID string) {
	s.logger.InfoContext(ctx, "commerce api no longer knows cart, forgetting it",
		slog.String("session_id", sessionID),
		slog.String("cart_id", cartID),
	)
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		s.logger.WarnContext(ctx, "failed to delete session cart id",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) onApplied(ctx context.Context, sessionID string, p domain.PendingMutation, res *domain.MutationResult) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishCartMutated(ctx, sessionID, p, res); err != nil {
		s.logger.WarnContext(ctx, "failed to publish cart mutated event",
			slog.String("session_id", sessionID),
			slog.String("key", p.Key),
			slog.String("error", err.Error()),
		)
	}
}
