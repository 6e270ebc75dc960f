package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/rebalancer/internal/rebalance/domain"
)

func newReaper(gw domain.OrderGateway, threshold time.Duration, now time.Time) *ReaperService {
	r := NewReaperService(gw, time.Minute, threshold, nil)
	r.now = func() time.Time { return now }
	return r
}

func TestSweepCancelsOnlyStaleOrders(t *testing.T) {
	threshold := 59 * time.Minute
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	gw := &fakeGateway{active: []domain.OpenOrder{
		{OrderID: "stale", CreatedAt: now.Add(-threshold - time.Second), Status: domain.OrderStatusActive},
		{OrderID: "fresh", CreatedAt: now.Add(-threshold + time.Second), Status: domain.OrderStatusActive},
		{OrderID: "boundary", CreatedAt: now.Add(-threshold), Status: domain.OrderStatusActive},
	}}

	canceled, err := newReaper(gw, threshold, now).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, canceled)
	assert.Equal(t, []string{"stale"}, gw.canceled)
}

func TestSweepEmptyListing(t *testing.T) {
	gw := &fakeGateway{}
	canceled, err := newReaper(gw, time.Hour, time.Now()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, canceled)
}

func TestSweepListFailurePropagates(t *testing.T) {
	gw := &fakeGateway{listErr: domain.ErrTransient}
	_, err := newReaper(gw, time.Hour, time.Now()).Sweep(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestSweepContinuesPastCancelFailure(t *testing.T) {
	threshold := time.Minute
	now := time.Now()

	gw := &fakeGateway{
		active: []domain.OpenOrder{
			{OrderID: "bad", CreatedAt: now.Add(-time.Hour), Status: domain.OrderStatusActive},
			{OrderID: "good", CreatedAt: now.Add(-time.Hour), Status: domain.OrderStatusActive},
		},
		cancelErr: map[string]error{"bad": domain.ErrTransient},
	}

	canceled, err := newReaper(gw, threshold, now).Sweep(context.Background())
	require.NoError(t, err)

	// The failed cancel is left for the next sweep.
	assert.Equal(t, 1, canceled)
	assert.Equal(t, []string{"good"}, gw.canceled)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	gw := &fakeGateway{}
	r := NewReaperService(gw, 10*time.Millisecond, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
