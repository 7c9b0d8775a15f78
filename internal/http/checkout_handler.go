package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/fjod/go_cart/internal/service"
	"github.com/fjod/go_cart/pkg/logger"
)

type CheckoutService interface {
	CreateSession(ctx context.Context, customerID, idempotencyKey string) (*service.CheckoutResult, error)
}

type WebhookReconciler interface {
	Reconcile(ctx context.Context, payload []byte, signatureHeader string) (*service.ReconcileResult, error)
}

type CheckoutHandler struct {
	checkout       CheckoutService
	reconciler     WebhookReconciler
	timeout        time.Duration
	maxWebhookBody int64
}

func NewCheckoutHandler(checkout CheckoutService, reconciler WebhookReconciler, timeout time.Duration, maxWebhookBody int64) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:       checkout,
		reconciler:     reconciler,
		timeout:        timeout,
		maxWebhookBody: maxWebhookBody,
	}
}

type WebhookResponseDTO struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// POST /api/checkout/create-session
func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID := getCustomerIDFromContext(r.Context())
	if customerID == "" {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	res, err := h.checkout.CreateSession(ctx, customerID, r.Header.Get("Idempotency-Key"))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, res)
}

// POST /api/checkout/webhook
//
// The body is read raw because the signature covers the exact bytes sent.
func (h *CheckoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limitBody(w, r, h.maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		if isTooLarge(err) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "payload_too_large", "webhook body too large")
			return
		}
		logger.FromContext(ctx).WarnContext(ctx, "read webhook body failed", "error", err)
		respondError(ctx, w, http.StatusServiceUnavailable, "read_failed", "could not read request body")
		return
	}

	res, err := h.reconciler.Reconcile(ctx, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, WebhookResponseDTO{Received: true, Outcome: res.Outcome})
}
