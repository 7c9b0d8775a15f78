package domain

import "errors"

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrItemNotFound     = errors.New("item not found in cart")
	ErrEmptyCart        = errors.New("cart is empty, nothing to checkout")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrStorage          = errors.New("storage unavailable")
	ErrVersionConflict  = errors.New("cart was modified concurrently")
	ErrInvalidItem      = errors.New("invalid cart item")
	ErrInvalidQuantity  = errors.New("quantity must be between 1 and 99")
	ErrPaymentProvider  = errors.New("payment provider error")
)

// IsNotFound reports whether err means the cart or one of its items is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCartNotFound) || errors.Is(err, ErrItemNotFound)
}
