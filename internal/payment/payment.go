// Package payment talks to the hosted checkout provider.
package payment

import "context"

// MetadataCustomerID is the session metadata key that links a payment back to a cart.
const MetadataCustomerID = "customerId"

const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

type LineItem struct {
	Name       string
	Image      string
	UnitAmount int64 // minor currency units
	Quantity   int64
}

type SessionRequest struct {
	CustomerID     string
	Currency       string
	LineItems      []LineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type Session struct {
	ID  string
	URL string
}

// Event is a verified provider notification.
type Event struct {
	ID         string
	Type       string
	SessionID  string
	CustomerID string
}

// Settles reports whether the event confirms payment for a checkout session.
func (e *Event) Settles() bool {
	return e.Type == EventCheckoutCompleted || e.Type == EventAsyncPaymentSucceeded
}

type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ParseEvent verifies the signature header against payload and decodes it.
	// Verification failures wrap domain.ErrInvalidSignature.
	ParseEvent(payload []byte, signatureHeader string) (*Event, error)
}
