package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/webhook"
)

type sessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// StripeProvider creates hosted Checkout Sessions and verifies Stripe webhooks.
// stripe.Key must be set before CreateSession is called.
type StripeProvider struct {
	webhookSecret string
	create        sessionCreator
	breaker       *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
	log           *slog.Logger
}

func NewStripeProvider(webhookSecret string, breaker circuitbreaker.Settings, log *slog.Logger) *StripeProvider {
	breaker.IsSuccessful = isHealthyResponse
	return &StripeProvider{
		webhookSecret: webhookSecret,
		create:        session.New,
		breaker:       circuitbreaker.New[*stripe.CheckoutSession](breaker, log),
		log:           log,
	}
}

func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := sessionParams(req)
	params.Context = ctx

	s, err := p.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return p.create(params)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %w", domain.ErrPaymentProvider, err)
	}

	p.log.InfoContext(ctx, "checkout session created",
		"customer_id", req.CustomerID, "session_id", s.ID, "line_items", len(req.LineItems))

	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) ParseEvent(payload []byte, signatureHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	ev := &Event{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if !ev.Settles() {
		return ev, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	ev.SessionID = cs.ID
	ev.CustomerID = cs.Metadata[MetadataCustomerID]
	if ev.CustomerID == "" {
		ev.CustomerID = cs.ClientReferenceID
	}

	return ev, nil
}

func sessionParams(req SessionRequest) *stripe.CheckoutSessionParams {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Image != "" {
			product.Images = stripe.StringSlice([]string{item.Image})
		}

		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ClientReferenceID:  stripe.String(req.CustomerID),
	}
	params.AddMetadata(MetadataCustomerID, req.CustomerID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	return params
}

// isHealthyResponse keeps 4xx answers from tripping the breaker: Stripe is up,
// the request was just rejected.
func isHealthyResponse(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= http.StatusBadRequest &&
			stripeErr.HTTPStatusCode < http.StatusInternalServerError &&
			stripeErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}
