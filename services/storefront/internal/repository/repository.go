package repository

import (
	"context"
)

// CartIDRepository remembers which remote cart belongs to a storefront
// session. Only the identifier is stored; the cart itself always lives in the
// commerce API.
type CartIDRepository interface {
	// Get returns the cart ID of a session, or an ErrNotFound app error.
	Get(ctx context.Context, sessionID string) (string, error)

	// Set records the cart ID of a session, overwriting any previous one.
	Set(ctx context.Context, sessionID, cartID string) error

	// Delete forgets the cart ID of a session.
	Delete(ctx context.Context, sessionID string) error
}
