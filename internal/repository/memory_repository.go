package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository implements CartRepository with in-memory storage.
// Carts are copied on the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart // customerID -> cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		carts: make(map[string]*domain.Cart),
	}
}

func (s *MemoryRepository) GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[customerID]
	if !ok {
		cart = domain.NewCart(customerID)
		cart.ID = uuid.NewString()
		s.carts[customerID] = cart
	}
	return cart.Clone(), nil
}

func (s *MemoryRepository) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[customerID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (s *MemoryRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.carts[cart.CustomerID]
	if !ok {
		return domain.ErrCartNotFound
	}
	if stored.Version != cart.Version {
		return domain.ErrVersionConflict
	}

	cart.TotalPrice = domain.CalculateTotal(cart.Items)
	cart.Version++
	cart.UpdatedAt = time.Now().UTC()
	cart.ID = stored.ID
	cart.CreatedAt = stored.CreatedAt

	s.carts[cart.CustomerID] = cart.Clone()
	return nil
}

func (s *MemoryRepository) ClearCart(ctx context.Context, customerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.carts[customerID]
	if !ok {
		return domain.ErrCartNotFound
	}
	stored.Clear()
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	return nil
}
