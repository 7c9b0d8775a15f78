package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/internal/cache"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/payment"
	"github.com/fjod/go_cart/internal/repository"
	"github.com/fjod/go_cart/pkg/circuitbreaker"
	"github.com/fjod/go_cart/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"
)

type reconcilerFixture struct {
	sut       *WebhookReconciler
	carts     *CartService
	repo      *flakyRepository
	cache     *mockCache
	eventLog  *mockEventLog
	publisher *mockPublisher
	metrics   *metrics.ServerMetrics
}

func newReconcilerFixture(provider payment.Provider) *reconcilerFixture {
	f := &reconcilerFixture{
		repo:      newFlakyRepository(),
		cache:     newMockCache(),
		eventLog:  newMockEventLog(),
		publisher: &mockPublisher{},
		metrics:   metrics.NewServerMetrics("test"),
	}
	f.carts = NewCartService(f.repo, f.cache, discardLogger())
	f.sut = NewWebhookReconciler(f.repo, f.cache, f.eventLog, provider, f.publisher, "usd", f.metrics, discardLogger())
	return f
}

func (f *reconcilerFixture) fillCart(t *testing.T, customerID string) *domain.Cart {
	t.Helper()
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, customerID, AddItemInput{ProductID: "A", Quantity: 2, Price: dec("9.99")})
	require.NoError(t, err)
	cart, err := f.carts.AddItem(ctx, customerID, AddItemInput{ProductID: "B", Quantity: 1, Price: dec("4.50")})
	require.NoError(t, err)
	return cart
}

func completed(eventID, customerID string) *payment.Event {
	return &payment.Event{
		ID:         eventID,
		Type:       payment.EventCheckoutCompleted,
		SessionID:  "cs_test_1",
		CustomerID: customerID,
	}
}

func TestReconcile_SettlesCart(t *testing.T) {
	f := newReconcilerFixture(&mockProvider{Event: completed("evt_1", "cust_1")})
	f.fillCart(t, "cust_1")
	ctx := context.Background()

	res, err := f.sut.Reconcile(ctx, []byte("{}"), "sig")

	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, "evt_1", res.EventID)

	cart, err := f.repo.GetCart(ctx, "cust_1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalPrice.IsZero())
	assert.Equal(t, domain.CartStateSettled, cart.State())
	require.NotNil(t, f.cache.cached("cust_1"))
	assert.Empty(t, f.cache.cached("cust_1").Items)
	assert.Equal(t, cart.Version, f.cache.cached("cust_1").Version)

	require.Len(t, f.publisher.published, 1)
	ev := f.publisher.published[0]
	assert.Equal(t, "cust_1", ev.UserID)
	assert.Equal(t, "cs_test_1", ev.SessionID)
	assert.Len(t, ev.Items, 2)
	assert.True(t, dec("24.48").Equal(ev.TotalAmount))
	assert.Equal(t, "usd", ev.Currency)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		f.metrics.WebhookEvents.WithLabelValues(payment.EventCheckoutCompleted, OutcomeSettled)))
}

func TestReconcile_DuplicateDeliveryIsNoop(t *testing.T) {
	f := newReconcilerFixture(&mockProvider{Event: completed("evt_1", "cust_1")})
	f.fillCart(t, "cust_1")
	ctx := context.Background()

	_, err := f.sut.Reconcile(ctx, []byte("{}"), "sig")
	require.NoError(t, err)

	// customer starts a new cart before the redelivery arrives
	_, err = f.carts.AddItem(ctx, "cust_1", AddItemInput{ProductID: "C", Quantity: 1, Price: dec("3")})
	require.NoError(t, err)

	res, err := f.sut.Reconcile(ctx, []byte("{}"), "sig")

	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	cart, err := f.repo.GetCart(ctx, "cust_1")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Len(t, f.publisher.published, 1)
}

func TestReconcile_RepeatWithoutEventLogStillSucceeds(t *testing.T) {
	f := newReconcilerFixture(&mockProvider{Event: completed("evt_1", "cust_1")})
	f.fillCart(t, "cust_1")
	f.eventLog.err = errors.New("redis down")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := f.sut.Reconcile(ctx, []byte("{}"), "sig")
		require.NoError(t, err)
		assert.Equal(t, OutcomeSettled, res.Outcome)
	}

	cart, err := f.repo.GetCart(ctx, "cust_1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	// the second pass found an empty cart, nothing new to announce
	assert.Len(t, f.publisher.published, 1)
}

func TestReconcile_InvalidSignatureLeavesCartIntact(t *testing.T) {
	parseErr := fmt.Errorf("%w: no valid signature", domain.ErrInvalidSignature)
	f := newReconcilerFixture(&mockProvider{ParseErr: parseErr})
	before := f.fillCart(t, "cust_1")
	ctx := context.Background()

	res, err := f.sut.Reconcile(ctx, []byte("{}"), "bad")

	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Nil(t, res)
	cart, err := f.repo.GetCart(ctx, "cust_1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, cart.Version)
	assert.Len(t, cart.Items, 2)
	assert.Empty(t, f.publisher.published)
}

func TestReconcile_IgnoresOtherEvents(t *testing.T) {
	f := newReconcilerFixture(&mockProvider{Event: &payment.Event{ID: "evt_2", Type: "payment_intent.created"}})
	f.fillCart(t, "cust_1")
	ctx := context.Background()

	res, err := f.sut.Reconcile(ctx, []byte("{}"), "sig")

	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	cart, err := f.repo.GetCart(ctx, "cust_1")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestReconcile_MissingCustomerIsIgnored(t *testing.T) {
	f := newReconcilerFixture(&mockProvider{Event: completed("evt_3", "")})

	res, err := f.sut.Reconcile(context.Background(), []byte("{}"), "sig")

	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestReconcile_AsyncPaymentSucceededSettles(t *testing.T) {
	ev := completed("evt_4", "cust_1")
	ev.Type = payment.EventAsyncPaymentSucceeded
	f := newReconcilerFixture(&mockProvider{Event: ev})
	f.fillCart(t, "cust_1")

	res, err := f.sut.Reconcile(context.Background(), []byte("{}"), "sig")

	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
}

func TestReconcile_NoCartIsNoop(t *testing.T) {
	f := newReconcilerFixture(&mockProvider{Event: completed("evt_1", "ghost")})
	ctx := context.Background()

	res, err := f.sut.Reconcile(ctx, []byte("{}"), "sig")

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCart, res.Outcome)
	_, err = f.repo.GetCart(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
	assert.Empty(t, f.publisher.published)
}

func TestReconcile_StorageFailureReleasesEvent(t *testing.T) {
	f := newReconcilerFixture(&mockProvider{Event: completed("evt_1", "cust_1")})
	f.fillCart(t, "cust_1")
	f.repo.clearErr = fmt.Errorf("%w: timeout", domain.ErrStorage)
	ctx := context.Background()

	_, err := f.sut.Reconcile(ctx, []byte("{}"), "sig")
	assert.ErrorIs(t, err, domain.ErrStorage)

	// provider retry goes through once storage recovers
	f.repo.clearErr = nil
	res, err := f.sut.Reconcile(ctx, []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
}

func TestReconcile_PublishFailureDoesNotFail(t *testing.T) {
	f := newReconcilerFixture(&mockProvider{Event: completed("evt_1", "cust_1")})
	f.fillCart(t, "cust_1")
	f.publisher.err = errors.New("broker down")

	res, err := f.sut.Reconcile(context.Background(), []byte("{}"), "sig")

	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
}

func TestReconcile_WithStripeSignatures(t *testing.T) {
	const secret = "whsec_test_secret"
	provider := payment.NewStripeProvider(secret, circuitbreaker.DefaultSettings("stripe-test"), discardLogger())
	f := newReconcilerFixture(provider)
	f.fillCart(t, "cust_1")
	ctx := context.Background()

	body := []byte(`{"id":"evt_live_1","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_test_9","object":"checkout.session","metadata":{"customerId":"cust_1"}}}}`)

	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: body, Secret: "whsec_wrong", Timestamp: time.Now(),
	})
	_, err := f.sut.Reconcile(ctx, body, forged.Header)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
	cart, err := f.repo.GetCart(ctx, "cust_1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: body, Secret: secret, Timestamp: time.Now(),
	})
	res, err := f.sut.Reconcile(ctx, body, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)

	cart, err = f.repo.GetCart(ctx, "cust_1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestReconcile_StaleReaderCannotRepopulateCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rc := cache.NewRedisCache(client)
	repo := repository.NewMemoryRepository()
	carts := NewCartService(repo, rc, discardLogger())
	sut := NewWebhookReconciler(repo, rc, newMockEventLog(), &mockProvider{Event: completed("evt_1", "cust_1")},
		&mockPublisher{}, "usd", metrics.NewServerMetrics("test"), discardLogger())
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "cust_1", AddItemInput{ProductID: "A", Quantity: 2, Price: dec("9.99")})
	require.NoError(t, err)

	// a reader loads the cart just before payment lands and caches it late
	stale, err := repo.GetCart(ctx, "cust_1")
	require.NoError(t, err)

	res, err := sut.Reconcile(ctx, []byte("{}"), "sig")
	require.NoError(t, err)
	require.Equal(t, OutcomeSettled, res.Outcome)

	require.NoError(t, rc.Set(ctx, "cust_1", stale))

	cart, err := carts.GetCart(ctx, "cust_1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalPrice.IsZero())
	assert.Greater(t, cart.Version, stale.Version)
}
