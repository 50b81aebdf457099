// Package commerce defines the port to the remote commerce API that owns the
// authoritative state of every cart.
package commerce

import (
	"context"
	"fmt"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

// ErrCartNotFound is returned when the commerce API does not know a cart ID,
// for example after the cart was converted into an order.
var ErrCartNotFound = fmt.Errorf("remote cart: %w", apperrors.ErrNotFound)

// CartAPI is the remote cart service. Every mutation returns the full cart as
// the commerce API sees it after the mutation, together with any field-level
// errors. A returned error means the request itself failed and nothing about
// the cart is known.
type CartAPI interface {
	// Name returns the adapter name (e.g., "graphql", "mock").
	Name() string

	// Create issues a new, empty cart.
	Create(ctx context.Context) (*domain.MutationResult, error)

	// Get reads a cart. It returns ErrCartNotFound for unknown IDs.
	Get(ctx context.Context, cartID string) (*domain.Cart, error)

	AddLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.MutationResult, error)
	UpdateLines(ctx context.Context, cartID string, lines []domain.LineInput) (*domain.MutationResult, error)
	RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*domain.MutationResult, error)

	// UpdateDiscountCodes replaces the discount codes of the cart. An empty
	// list clears them.
	UpdateDiscountCodes(ctx context.Context, cartID string, codes []string) (*domain.MutationResult, error)

	// UpdateGiftCardCodes replaces the gift card codes of the cart.
	UpdateGiftCardCodes(ctx context.Context, cartID string, codes []string) (*domain.MutationResult, error)

	// Ping checks that the commerce API is reachable.
	Ping(ctx context.Context) error
}

// Execute sends m to api, picking the operation by mutation kind.
func Execute(ctx context.Context, api CartAPI, cartID string, m domain.Mutation) (*domain.MutationResult, error) {
	switch m.Kind {
	case domain.KindAdd:
		return api.AddLines(ctx, cartID, m.Lines)
	case domain.KindUpdate:
		return api.UpdateLines(ctx, cartID, m.Lines)
	case domain.KindRemove:
		return api.RemoveLines(ctx, cartID, m.LineIDs)
	case domain.KindDiscountUpdate:
		return api.UpdateDiscountCodes(ctx, cartID, m.DiscountCodes)
	case domain.KindGiftCardUpdate:
		return api.UpdateGiftCardCodes(ctx, cartID, m.GiftCardCodes)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedMutation, m.Kind)
	}
}
