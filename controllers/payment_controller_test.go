package controller

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"nurtura/engine"
	"nurtura/models"
	"nurtura/tracker"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

type noopRuntime struct{}

func (noopRuntime) ScheduleAt(context.Context, time.Time, string, int) (string, error) {
	return "handle-1", nil
}

// brokenTracker fails the conversion path only.
type brokenTracker struct {
	tracker.Tracker
}

func (brokenTracker) ConvertByRecipient(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

func newPaymentController(trk tracker.Tracker) *PaymentController {
	orch := engine.NewOrchestrator(trk, noopRuntime{}, engine.ProfileProduction, testLogger())
	return NewPaymentController(trk, orch, testLogger())
}

func TestCheckoutCompletedConvertsAndStartsOnboarding(t *testing.T) {
	ctx := context.Background()
	trk := tracker.NewMemoryTracker()
	live, created, err := trk.CreateIfAbsent(ctx, "buyer@example.com", engine.SeqNurture, "CRITICAL", time.Now().UTC(), 5)
	require.NoError(t, err)
	require.True(t, created)

	pc := newPaymentController(trk)
	session := &stripe.CheckoutSession{
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
			Email: "buyer@example.com",
			Name:  "Grace Hopper",
		},
	}

	require.NoError(t, pc.handleCheckoutCompleted(ctx, session))

	got, err := trk.Instance(ctx, live.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceConverted, got.Status)

	instances, err := trk.InstancesByRecipient(ctx, "buyer@example.com")
	require.NoError(t, err)
	var welcome *models.SequenceInstance
	for i := range instances {
		if instances[i].SequenceType == engine.SeqOnboardingWelcome {
			welcome = &instances[i]
		}
	}
	require.NotNil(t, welcome, "expected an onboarding instance")
	assert.Equal(t, models.InstanceActive, welcome.Status)
}

func TestCheckoutCompletedTrackerFailureReturnsError(t *testing.T) {
	pc := newPaymentController(brokenTracker{})
	session := &stripe.CheckoutSession{
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{Email: "buyer@example.com"},
	}

	// The webhook handler turns this into a 500 so Stripe redelivers.
	err := pc.handleCheckoutCompleted(context.Background(), session)
	assert.Error(t, err)
}

func TestCheckoutCompletedWithoutEmailIsNoOp(t *testing.T) {
	trk := tracker.NewMemoryTracker()
	pc := newPaymentController(trk)

	require.NoError(t, pc.handleCheckoutCompleted(context.Background(), &stripe.CheckoutSession{ID: "cs_test_1"}))

	instances, err := trk.InstancesByRecipient(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, instances)
}
