package repository

import (
	"context"

	"github.com/fjod/go_cart/internal/domain"
)

// CartRepository defines the interface for cart data operations.
// Storage failures wrap domain.ErrStorage, absent carts return domain.ErrCartNotFound.
type CartRepository interface {
	// GetOrCreate returns the customer's cart, inserting an empty one first if needed.
	GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error)
	GetCart(ctx context.Context, customerID string) (*domain.Cart, error)
	// SaveCart persists items and total if cart.Version still matches the stored
	// version, then bumps cart.Version. Otherwise it returns domain.ErrVersionConflict.
	SaveCart(ctx context.Context, cart *domain.Cart) error
	ClearCart(ctx context.Context, customerID string) error
}
