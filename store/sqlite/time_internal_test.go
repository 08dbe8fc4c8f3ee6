package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/facinv/closing-engine/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	at := time.Date(2024, time.January, 15, 22, 30, 0, 123, time.UTC)

	got, err := parseTime(formatTime(at))
	require.NoError(t, err)
	assert.True(t, at.Equal(got))

	_, err = parseTime("15/01/2024")
	assert.ErrorContains(t, err, "invalid timestamp")
}

func TestStore_CorruptTimestamp_SurfacesError(t *testing.T) {
	// GIVEN: a company and a closing whose stored timestamps were mangled
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.CreateCompany(ctx, &inventory.Company{ID: "acme", Name: "Acme", Subdomain: "acme", Active: true}))
	closing := &inventory.DailyClosing{CompanyID: "acme", Date: inventory.NewDate(2024, time.January, 15), State: inventory.ClosingInProgress}
	require.NoError(t, s.CreateClosing(ctx, closing))

	_, err = s.db.ExecContext(ctx, `UPDATE companies SET created_at = 'yesterday'`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `UPDATE daily_closings SET updated_at = ''`)
	require.NoError(t, err)

	// WHEN: they are read back
	_, companyErr := s.GetCompany(ctx, "acme")
	_, closingErr := s.GetClosing(ctx, "acme", closing.ID)

	// THEN: the read fails instead of returning a zero time
	assert.ErrorContains(t, companyErr, "invalid timestamp")
	assert.False(t, inventory.IsNotFound(companyErr))
	assert.ErrorContains(t, closingErr, "invalid timestamp")
}
