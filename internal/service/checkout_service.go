package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/payment"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/fjod/go_cart/pkg/metrics"
)

type CheckoutOptions struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type CheckoutService struct {
	repo     repository.CartRepository
	provider payment.Provider
	opts     CheckoutOptions
	metrics  *metrics.ServerMetrics
	log      *slog.Logger
}

func NewCheckoutService(
	repo repository.CartRepository,
	provider payment.Provider,
	opts CheckoutOptions,
	m *metrics.ServerMetrics,
	log *slog.Logger) *CheckoutService {

	return &CheckoutService{repo: repo, provider: provider, opts: opts, metrics: m, log: log}
}

// CreateSession opens a hosted payment session for the customer's current
// cart. The cart itself is left unchanged; it is cleared by the webhook once
// payment succeeds. An empty idempotencyKey is derived from the cart version
// so retries of the same cart state reuse one session.
func (s *CheckoutService) CreateSession(ctx context.Context, customerID, idempotencyKey string) (*CheckoutResult, error) {
	cart, err := s.repo.GetCart(ctx, customerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		s.record("empty_cart")
		return nil, domain.ErrEmptyCart
	}
	if err != nil {
		s.record("error")
		return nil, err
	}

	req, err := BuildSessionRequest(cart, s.opts)
	if err != nil {
		s.record("empty_cart")
		return nil, err
	}
	if idempotencyKey == "" {
		idempotencyKey = fmt.Sprintf("checkout-%s-v%d", customerID, cart.Version)
	}
	req.IdempotencyKey = idempotencyKey

	session, err := s.provider.CreateSession(ctx, req)
	if err != nil {
		s.record("provider_error")
		s.log.ErrorContext(ctx, "create checkout session failed", "customer_id", customerID, "error", err)
		return nil, err
	}

	s.record("created")
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

func (s *CheckoutService) record(result string) {
	s.metrics.CheckoutResults.WithLabelValues(result).Inc()
}

// BuildSessionRequest converts the cart into provider line items. Prices are
// sent as integer minor units rounded half away from zero.
func BuildSessionRequest(cart *domain.Cart, opts CheckoutOptions) (payment.SessionRequest, error) {
	if cart == nil || cart.IsEmpty() {
		return payment.SessionRequest{}, domain.ErrEmptyCart
	}

	items := make([]payment.LineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, payment.LineItem{
			Name:       lineItemName(item),
			Image:      item.Image,
			UnitAmount: item.Price.Shift(2).Round(0).IntPart(),
			Quantity:   int64(item.Quantity),
		})
	}

	return payment.SessionRequest{
		CustomerID: cart.CustomerID,
		Currency:   opts.Currency,
		LineItems:  items,
		SuccessURL: opts.SuccessURL,
		CancelURL:  opts.CancelURL,
	}, nil
}

func lineItemName(item domain.CartItem) string {
	if item.Name != "" {
		return item.Name
	}
	return "Product ID: " + item.ProductID
}
