package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/internal/cache"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/events"
	"github.com/fjod/go_cart/internal/payment"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/fjod/go_cart/pkg/metrics"
)

// Reconcile outcomes.
const (
	OutcomeSettled   = "settled"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeNoCart    = "no_cart"
)

type ReconcileResult struct {
	EventID   string
	EventType string
	Outcome   string
}

// WebhookReconciler moves a cart from pending to settled when the payment
// provider confirms a checkout session.
type WebhookReconciler struct {
	repo      repository.CartRepository
	cache     cache.CartCache
	processed cache.EventLog
	provider  payment.Provider
	publisher events.Publisher
	currency  string
	metrics   *metrics.ServerMetrics
	log       *slog.Logger
}

func NewWebhookReconciler(
	repo repository.CartRepository,
	cartCache cache.CartCache,
	processed cache.EventLog,
	provider payment.Provider,
	publisher events.Publisher,
	currency string,
	m *metrics.ServerMetrics,
	log *slog.Logger) *WebhookReconciler {

	return &WebhookReconciler{
		repo:      repo,
		cache:     cartCache,
		processed: processed,
		provider:  provider,
		publisher: publisher,
		currency:  currency,
		metrics:   m,
		log:       log,
	}
}

// Reconcile verifies payload against signatureHeader and applies it. A bad
// signature returns domain.ErrInvalidSignature and changes nothing. Redelivered
// events and events for customers without a cart succeed without side effects.
func (r *WebhookReconciler) Reconcile(ctx context.Context, payload []byte, signatureHeader string) (*ReconcileResult, error) {
	ev, err := r.provider.ParseEvent(payload, signatureHeader)
	if err != nil {
		r.record("unknown", "rejected")
		r.log.WarnContext(ctx, "webhook rejected", "error", err)
		return nil, err
	}

	res := &ReconcileResult{EventID: ev.ID, EventType: ev.Type, Outcome: OutcomeIgnored}
	if !ev.Settles() {
		r.record(ev.Type, res.Outcome)
		return res, nil
	}
	if ev.CustomerID == "" {
		r.log.WarnContext(ctx, "settled session without customer id", "event_id", ev.ID, "session_id", ev.SessionID)
		r.record(ev.Type, res.Outcome)
		return res, nil
	}

	first, err := r.processed.MarkProcessed(ctx, ev.ID)
	if err != nil {
		// clearing is idempotent, so carry on without the dedupe record
		r.log.WarnContext(ctx, "event log unavailable", "event_id", ev.ID, "error", err)
		first = true
	}
	if !first {
		res.Outcome = OutcomeDuplicate
		r.record(ev.Type, res.Outcome)
		return res, nil
	}

	res.Outcome, err = r.settle(ctx, ev)
	if err != nil {
		r.forget(ev.ID)
		r.record(ev.Type, "error")
		return nil, err
	}

	r.record(ev.Type, res.Outcome)
	return res, nil
}

func (r *WebhookReconciler) settle(ctx context.Context, ev *payment.Event) (string, error) {
	snapshot, err := r.repo.GetCart(ctx, ev.CustomerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		r.log.InfoContext(ctx, "no cart to settle", "customer_id", ev.CustomerID, "event_id", ev.ID)
		return OutcomeNoCart, nil
	}
	if err != nil {
		return "", err
	}

	err = r.repo.ClearCart(ctx, ev.CustomerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return OutcomeNoCart, nil
	}
	if err != nil {
		r.log.ErrorContext(ctx, "clear cart after payment failed", "customer_id", ev.CustomerID, "error", err)
		return "", err
	}

	r.refreshCache(ctx, ev.CustomerID)

	r.log.InfoContext(ctx, "cart settled",
		"customer_id", ev.CustomerID, "session_id", ev.SessionID, "event_id", ev.ID, "items", len(snapshot.Items))

	if snapshot.IsEmpty() {
		return OutcomeSettled, nil
	}
	err = r.publisher.PublishCheckoutCompleted(ctx, events.CheckoutCompleted{
		EventID:     ev.ID,
		SessionID:   ev.SessionID,
		UserID:      ev.CustomerID,
		Items:       snapshot.Items,
		TotalAmount: snapshot.TotalPrice,
		Currency:    r.currency,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		r.log.ErrorContext(ctx, "publish checkout completed failed", "event_id", ev.ID, "error", err)
	}

	return OutcomeSettled, nil
}

// refreshCache caches the cleared cart so its newer version fences off any
// reader still holding the pre-payment snapshot.
func (r *WebhookReconciler) refreshCache(ctx context.Context, customerID string) {
	cleared, err := r.repo.GetCart(ctx, customerID)
	if err == nil {
		err = r.cache.Set(ctx, customerID, cleared)
	}
	if err == nil {
		return
	}
	r.log.WarnContext(ctx, "cache refresh after clear failed", "customer_id", customerID, "error", err)
	if err := r.cache.Delete(ctx, customerID); err != nil {
		r.log.WarnContext(ctx, "cache invalidate failed", "customer_id", customerID, "error", err)
	}
}

func (r *WebhookReconciler) forget(eventID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := r.processed.Forget(ctx, eventID); err != nil {
		r.log.Warn("event log forget failed", "event_id", eventID, "error", err)
	}
}

func (r *WebhookReconciler) record(eventType, outcome string) {
	r.metrics.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}
