package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, customerID string) (*domain.Cart, error)
	Set(ctx context.Context, customerID string, cart *domain.Cart) error
	Delete(ctx context.Context, customerID string) error
}

// EventLog remembers which payment events were already handled.
type EventLog interface {
	// MarkProcessed records eventID and reports false if it was already recorded.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	// Forget drops the record so a redelivery is processed again.
	Forget(ctx context.Context, eventID string) error
}

var ErrCacheMiss = errors.New("cache miss")
