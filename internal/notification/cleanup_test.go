package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-delivery-backend/config"
	"notify-delivery-backend/internal/model"
	"notify-delivery-backend/internal/store"
)

func seedFailures(t *testing.T, s store.Store, notificationID, token, lastError string, count int, at time.Time) {
	t.Helper()
	logs := make([]model.DeliveryLog, count)
	for i := range logs {
		text := lastError
		completed := at
		logs[i] = model.DeliveryLog{
			ID:             uuid.NewString(),
			NotificationID: notificationID,
			Token:          token,
			Status:         model.DeliveryFailed,
			AttemptCount:   1,
			LastError:      &text,
			CreatedAt:      at,
			UpdatedAt:      at,
			CompletedAt:    &completed,
		}
	}
	require.NoError(t, s.CreateDeliveryLogs(context.Background(), logs))
}

func TestCleaner_Run(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	recent := now.Add(-24 * time.Hour)
	permanent := errGone.Error()

	s := newTestStore(t)
	n := seedNotification(t, s, 1, model.CategoryBookmark)
	seedEndpoint(t, s, 1, "tok-dead", model.CategoryBookmark)
	seedEndpoint(t, s, 1, "tok-flaky", model.CategoryBookmark)
	seedEndpoint(t, s, 1, "tok-old", model.CategoryBookmark)
	seedEndpoint(t, s, 1, "tok-slow", model.CategoryBookmark)

	seedFailures(t, s, n.ID, "tok-dead", permanent, 3, recent)
	seedFailures(t, s, n.ID, "tok-flaky", permanent, 2, recent)
	seedFailures(t, s, n.ID, "tok-old", permanent, 3, now.Add(-40*24*time.Hour))
	seedFailures(t, s, n.ID, "tok-slow", errTimeout.Error(), 5, recent)

	c := NewCleaner(s, config.CleanupConfig{Lookback: 30 * 24 * time.Hour, Threshold: 3}, nil)
	c.now = func() time.Time { return now }

	report, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CleanupReport{Candidates: 1, Removed: 1, LogsPurged: 3}, report)

	_, err = s.GetEndpoint(ctx, "tok-dead")
	assert.ErrorIs(t, err, store.ErrNotFound)
	for _, token := range []string{"tok-flaky", "tok-old", "tok-slow"} {
		_, err := s.GetEndpoint(ctx, token)
		assert.NoError(t, err, token)
	}

	// A second pass finds nothing left to match.
	report, err = c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, CleanupReport{}, report)

	// One more permanent failure tips the flaky endpoint over.
	seedFailures(t, s, n.ID, "tok-flaky", permanent, 1, now)
	report, err = c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
}

func TestCleaner_DeleteEndpoint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	n := seedNotification(t, s, 1, model.CategoryBookmark)
	seedEndpoint(t, s, 1, "tok-a", model.CategoryBookmark)
	seedPending(t, s, n.ID, "tok-a", 0, time.Now().UTC())

	c := NewCleaner(s, config.CleanupConfig{Lookback: time.Hour, Threshold: 3}, nil)

	removal, err := c.DeleteEndpoint(ctx, "tok-a")
	require.NoError(t, err)
	assert.Equal(t, store.EndpointRemoval{EndpointDeleted: true, LogsPurged: 1}, removal)

	removal, err = c.DeleteEndpoint(ctx, "tok-a")
	require.NoError(t, err)
	assert.False(t, removal.EndpointDeleted)
}
