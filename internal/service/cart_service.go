package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/internal/cache"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	maxSaveAttempts = 3
	cacheTimeout    = time.Second
	readTimeout     = 5 * time.Second
)

type AddItemInput struct {
	ProductID string
	Name      string
	Image     string
	Quantity  int
	Price     decimal.Decimal
}

type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	log   *slog.Logger
	sfg   singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, log *slog.Logger) *CartService {
	return &CartService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetCart returns the customer's cart, or an unsaved empty cart when the
// customer has none yet. It never creates a cart.
//
// Concurrent reads for one customer share a single fetch. The fetch is
// detached from the caller's cancellation so one aborted request does not
// fail the others waiting on it.
func (s *CartService) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	ch := s.sfg.DoChan(customerID, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readTimeout)
		defer cancel()
		return s.loadCart(fetchCtx, customerID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Cart).Clone(), nil
	}
}

func (s *CartService) loadCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	cart, err := s.cache.Get(ctx, customerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.WarnContext(ctx, "cache get failed", "customer_id", customerID, "error", err)
	}

	cart, err = s.repo.GetCart(ctx, customerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.NewCart(customerID), nil
	}
	if err != nil {
		return nil, err
	}

	snapshot := cart.Clone()
	go s.storeInCache(customerID, snapshot)

	return cart, nil
}

func (s *CartService) GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error) {
	cart, err := s.repo.GetOrCreate(ctx, customerID)
	if err != nil {
		s.log.ErrorContext(ctx, "get or create cart failed", "customer_id", customerID, "error", err)
		return nil, err
	}
	return cart, nil
}

// AddItem merges the product into the cart, creating the cart on first use.
func (s *CartService) AddItem(ctx context.Context, customerID string, in AddItemInput) (*domain.Cart, error) {
	if err := domain.ValidateItem(in.ProductID, in.Quantity, in.Price); err != nil {
		return nil, err
	}

	return s.mutate(ctx, customerID, s.repo.GetOrCreate, func(cart *domain.Cart) (bool, error) {
		return true, cart.AddItem(in.ProductID, in.Name, in.Image, in.Quantity, in.Price)
	})
}

// RemoveItem drops itemID from the cart. Removing an unknown item succeeds
// and leaves the cart untouched.
func (s *CartService) RemoveItem(ctx context.Context, customerID, itemID string) (*domain.Cart, error) {
	return s.mutate(ctx, customerID, s.repo.GetCart, func(cart *domain.Cart) (bool, error) {
		before := len(cart.Items)
		cart.RemoveItem(itemID)
		return len(cart.Items) != before, nil
	})
}

func (s *CartService) UpdateQuantity(ctx context.Context, customerID, itemID string, quantity int) (*domain.Cart, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	return s.mutate(ctx, customerID, s.repo.GetCart, func(cart *domain.Cart) (bool, error) {
		return true, cart.UpdateQuantity(itemID, quantity)
	})
}

// ClearCart empties the cart. Clearing an already empty cart is a no-op.
func (s *CartService) ClearCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	if err := s.repo.ClearCart(ctx, customerID); err != nil {
		s.log.ErrorContext(ctx, "clear cart failed", "customer_id", customerID, "error", err)
		return nil, err
	}
	s.invalidateCache(customerID)

	cart, err := s.repo.GetCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	s.storeInCache(customerID, cart)
	return cart, nil
}

type loadFunc func(ctx context.Context, customerID string) (*domain.Cart, error)

// mutate runs an optimistic read-modify-write. On a version conflict the cart
// is reloaded and apply runs again on the fresh copy.
func (s *CartService) mutate(ctx context.Context, customerID string, load loadFunc, apply func(*domain.Cart) (bool, error)) (*domain.Cart, error) {
	for attempt := 1; ; attempt++ {
		cart, err := load(ctx, customerID)
		if err != nil {
			return nil, err
		}

		changed, err := apply(cart)
		if err != nil {
			return nil, err
		}
		if !changed {
			return cart, nil
		}

		err = s.repo.SaveCart(ctx, cart)
		if err == nil {
			s.storeInCache(customerID, cart)
			return cart, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= maxSaveAttempts {
			s.log.ErrorContext(ctx, "save cart failed",
				"customer_id", customerID, "attempt", attempt, "error", err)
			return nil, err
		}
		s.log.DebugContext(ctx, "cart version conflict, retrying",
			"customer_id", customerID, "attempt", attempt)
	}
}

// storeInCache writes cart through to the cache. A failed write drops the
// entry so readers fall back to the store.
func (s *CartService) storeInCache(customerID string, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, customerID, cart); err != nil {
		s.log.Warn("cache set failed", "customer_id", customerID, "error", err)
		s.invalidateCache(customerID)
	}
}

func (s *CartService) invalidateCache(customerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, customerID); err != nil {
		s.log.Warn("cache invalidate failed", "customer_id", customerID, "error", err)
	}
}
