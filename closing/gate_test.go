package closing_test

import (
	"context"
	"testing"
	"time"

	"github.com/facinv/closing-engine/closing"
	"github.com/facinv/closing-engine/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory answers ClosingExists from a set of completed dates.
type fakeHistory struct {
	completed map[string]bool
	calls     int
}

func (h *fakeHistory) ClosingExists(_ context.Context, _ inventory.CompanyID, date inventory.Date, state inventory.ClosingState) (bool, error) {
	h.calls++
	return state == inventory.ClosingCompleted && h.completed[date.String()], nil
}

func historyOf(dates ...string) *fakeHistory {
	h := &fakeHistory{completed: map[string]bool{}}
	for _, d := range dates {
		h.completed[d] = true
	}
	return h
}

func at(hour, minute int) time.Time {
	return time.Date(2024, time.January, 15, hour, minute, 0, 0, time.UTC)
}

func TestGate_RolloverBoundary(t *testing.T) {
	// GIVEN: only 2024-01-13 is completed
	// WHEN: Evaluating around the 05:00 rollover on 2024-01-15
	// THEN: 04:59 requires 01-13 (closed), 05:00 requires 01-14 (open)

	gate := closing.NewGate(historyOf("2024-01-13"), nil)
	ctx := context.Background()

	before, err := gate.Evaluate(ctx, acme, "/api/invoices", at(4, 59))
	require.NoError(t, err)
	assert.True(t, before.Allowed())

	after, err := gate.Evaluate(ctx, acme, "/api/invoices", at(5, 0))
	require.NoError(t, err)
	assert.Equal(t, closing.DenyMustClose, after.Outcome)
	assert.Equal(t, "2024-01-14", after.RequiredDate.String())
}

func TestGate_RequiredClosed_Allows(t *testing.T) {
	gate := closing.NewGate(historyOf("2024-01-14"), nil)

	d, err := gate.Evaluate(context.Background(), acme, "/api/invoices", at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, closing.Allow, d.Outcome)
}

func TestGate_TodayCompleted_BlocksUntilTomorrowRollover(t *testing.T) {
	gate := closing.NewGate(historyOf("2024-01-14", "2024-01-15"), nil)

	d, err := gate.Evaluate(context.Background(), acme, "/api/invoices", at(22, 30))
	require.NoError(t, err)
	assert.Equal(t, closing.DenyBlocked, d.Outcome)
	assert.Equal(t, time.Date(2024, time.January, 16, 5, 0, 0, 0, time.UTC), d.NextAllowedAt)
}

func TestGate_TodayCompleted_BlocksBeforeRolloverToo(t *testing.T) {
	// GIVEN: the calendar day 2024-01-15 is already completed
	// WHEN: Evaluating at 03:00, before that day's rollover
	// THEN: still blocked, until 05:00 on 2024-01-16

	h := historyOf("2024-01-15")
	gate := closing.NewGate(h, nil)

	d, err := gate.Evaluate(context.Background(), acme, "/api/invoices", at(3, 0))
	require.NoError(t, err)
	assert.Equal(t, closing.DenyBlocked, d.Outcome)
	assert.Equal(t, time.Date(2024, time.January, 16, 5, 0, 0, 0, time.UTC), d.NextAllowedAt)
	assert.Equal(t, 1, h.calls, "the required-date lookup is skipped")
}

func TestGate_AllowList(t *testing.T) {
	tests := []struct {
		path    string
		allowed bool
	}{
		{"/", true},
		{"/health", true},
		{"/static/app.css", true},
		{"/api/closings", true},
		{"/api/closings/abc/line-items/1", true},
		{"/metrics", true},
		{"/healthz", false},
		{"/api/invoices", false},
		{"/api/closings-archive", false},
	}

	gate := closing.NewGate(historyOf(), nil)
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			d, err := gate.Evaluate(context.Background(), acme, tt.path, at(10, 0))
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed())
		})
	}
}

func TestGate_NoTenant_Allows(t *testing.T) {
	h := historyOf()
	gate := closing.NewGate(h, nil)

	d, err := gate.Evaluate(context.Background(), "", "/api/invoices", at(10, 0))
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Zero(t, h.calls, "no history lookup without a tenant")
}

func TestGate_AgainstStore_ClosingUnblocks(t *testing.T) {
	// GIVEN: a fresh company that never closed
	// WHEN: 2024-01-14 is closed through the service
	// THEN: the gate flips from must-close to allow without any cache reset

	svc, store := newTestService(t, at(9, 0))
	gate := closing.NewGate(store, nil)
	ctx := context.Background()

	d, err := gate.Evaluate(ctx, acme, "/api/products", at(9, 0))
	require.NoError(t, err)
	assert.Equal(t, closing.DenyMustClose, d.Outcome)

	c, err := svc.Initiate(ctx, acme, closing.InitiateInput{Date: jan14})
	require.NoError(t, err)
	_, err = svc.PreComplete(ctx, acme, c.Closing.ID)
	require.NoError(t, err)
	_, err = svc.CompleteDefinitive(ctx, acme, c.Closing.ID)
	require.NoError(t, err)

	d, err = gate.Evaluate(ctx, acme, "/api/products", at(9, 1))
	require.NoError(t, err)
	assert.True(t, d.Allowed())
}

func TestEnsurePriorDayClosed(t *testing.T) {
	err := closing.EnsurePriorDayClosed(context.Background(), historyOf("2024-01-13"), acme, at(10, 0))

	assert.ErrorIs(t, err, inventory.ErrPriorDayNotClosed)
	var pe *inventory.PriorDayNotClosedError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "2024-01-14", pe.Date.String())

	assert.NoError(t, closing.EnsurePriorDayClosed(context.Background(), historyOf("2024-01-13"), acme, at(3, 0)))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "allow", closing.Allow.String())
	assert.Equal(t, "deny_blocked", closing.DenyBlocked.String())
	assert.Equal(t, "deny_must_close", closing.DenyMustClose.String())
}
