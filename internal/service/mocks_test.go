package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/fjod/go_cart/internal/cache"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/events"
	"github.com/fjod/go_cart/internal/payment"
	"github.com/fjod/go_cart/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyRepository wraps the in-memory store and injects failures.
type flakyRepository struct {
	*repository.MemoryRepository

	m         sync.Mutex
	conflicts int // SaveCart calls that fail with a version conflict
	saveCalls int
	getErr    error
	clearErr  error
}

func newFlakyRepository() *flakyRepository {
	return &flakyRepository{MemoryRepository: repository.NewMemoryRepository()}
}

func (f *flakyRepository) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryRepository.GetCart(ctx, customerID)
}

func (f *flakyRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	f.m.Lock()
	f.saveCalls++
	if f.conflicts > 0 {
		f.conflicts--
		f.m.Unlock()
		return domain.ErrVersionConflict
	}
	f.m.Unlock()
	return f.MemoryRepository.SaveCart(ctx, cart)
}

func (f *flakyRepository) ClearCart(ctx context.Context, customerID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	return f.MemoryRepository.ClearCart(ctx, customerID)
}

func (f *flakyRepository) saves() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.saveCalls
}

// gatedRepository holds GetCart until release is closed or the context ends.
type gatedRepository struct {
	*repository.MemoryRepository
	entered chan struct{}
	release chan struct{}
}

func newGatedRepository() *gatedRepository {
	return &gatedRepository{
		MemoryRepository: repository.NewMemoryRepository(),
		entered:          make(chan struct{}, 1),
		release:          make(chan struct{}),
	}
}

func (g *gatedRepository) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.MemoryRepository.GetCart(ctx, customerID)
}

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	getErr  error
	setErr  error
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (c *mockCache) Get(_ context.Context, customerID string) (*domain.Cart, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	cart, ok := c.carts[customerID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart.Clone(), nil
}

func (c *mockCache) Set(_ context.Context, customerID string, cart *domain.Cart) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.carts[customerID] = cart.Clone()
	return nil
}

func (c *mockCache) Delete(_ context.Context, customerID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.deletes++
	delete(c.carts, customerID)
	return nil
}

func (c *mockCache) cached(customerID string) *domain.Cart {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.carts[customerID]
}

func (c *mockCache) deleteCount() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.deletes
}

type mockEventLog struct {
	m    sync.Mutex
	seen map[string]bool
	err  error
}

func newMockEventLog() *mockEventLog {
	return &mockEventLog{seen: make(map[string]bool)}
}

func (l *mockEventLog) MarkProcessed(_ context.Context, eventID string) (bool, error) {
	l.m.Lock()
	defer l.m.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.seen[eventID] {
		return false, nil
	}
	l.seen[eventID] = true
	return true, nil
}

func (l *mockEventLog) Forget(_ context.Context, eventID string) error {
	l.m.Lock()
	defer l.m.Unlock()
	delete(l.seen, eventID)
	return nil
}

type mockPublisher struct {
	m         sync.Mutex
	published []events.CheckoutCompleted
	err       error
}

func (p *mockPublisher) PublishCheckoutCompleted(_ context.Context, event events.CheckoutCompleted) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

// mockProvider implements payment.Provider for testing
type mockProvider struct {
	Session  *payment.Session
	Err      error
	Requests []payment.SessionRequest

	Event    *payment.Event
	ParseErr error
}

func (p *mockProvider) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Session, nil
}

func (p *mockProvider) ParseEvent([]byte, string) (*payment.Event, error) {
	if p.ParseErr != nil {
		return nil, p.ParseErr
	}
	return p.Event, nil
}
