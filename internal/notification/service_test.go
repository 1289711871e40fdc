package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-delivery-backend/config"
	"notify-delivery-backend/internal/gateway"
	"notify-delivery-backend/internal/model"
	"notify-delivery-backend/internal/store"
)

type rejectingPool struct{ err error }

func (p rejectingPool) Submit(Task) error { return p.err }

func newTestService(t *testing.T, s store.Store, sender gateway.Sender) (*Service, *WorkerPool) {
	t.Helper()
	d, _ := newTestDeliverer(s, sender)
	wp := NewWorkerPool(config.WorkerPoolConfig{CoreSize: 2, MaxSize: 4, QueueSize: 50}, nil)
	wp.Start(context.Background())
	t.Cleanup(func() { wp.Stop(context.Background()) })
	return NewService(s, wp, d, nil), wp
}

func validInput(userID int64) NotifyInput {
	return NotifyInput{
		UserID:   userID,
		Category: model.CategoryBookmark,
		Title:    "Price drop",
		Body:     "An item you bookmarked is cheaper",
		Link:     "/items/42",
	}
}

func TestService_Notify(t *testing.T) {
	ctx := context.Background()

	t.Run("fans out to active endpoints only", func(t *testing.T) {
		s := newTestStore(t)
		svc, wp := newTestService(t, s, newScriptedSender())
		seedEndpoint(t, s, 1, "tok-a", model.CategoryBookmark, model.CategoryTop3)
		seedEndpoint(t, s, 1, "tok-b", model.CategoryBookmark)
		seedEndpoint(t, s, 1, "tok-c", model.CategoryFeedback)
		seedEndpoint(t, s, 2, "tok-other", model.CategoryBookmark)

		id, err := svc.Notify(ctx, validInput(1))
		require.NoError(t, err)
		require.NoError(t, wp.Stop(ctx))

		logs, err := s.ListDeliveryLogs(ctx, id)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		tokens := []string{logs[0].Token, logs[1].Token}
		assert.ElementsMatch(t, []string{"tok-a", "tok-b"}, tokens)
		for _, l := range logs {
			assert.Equal(t, model.DeliverySuccess, l.Status)
			assert.Equal(t, 1, l.AttemptCount)
		}
	})

	t.Run("one dead endpoint does not affect the other", func(t *testing.T) {
		s := newTestStore(t)
		sender := newScriptedSender().on("tok-dead", errGone)
		svc, wp := newTestService(t, s, sender)
		seedEndpoint(t, s, 1, "tok-live", model.CategoryBookmark)
		seedEndpoint(t, s, 1, "tok-dead", model.CategoryBookmark)

		id, err := svc.Notify(ctx, validInput(1))
		require.NoError(t, err)
		require.NoError(t, wp.Stop(ctx))

		logs, err := s.ListDeliveryLogs(ctx, id)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		byToken := map[string]model.DeliveryLog{}
		for _, l := range logs {
			byToken[l.Token] = l
		}
		assert.Equal(t, model.DeliverySuccess, byToken["tok-live"].Status)
		dead := byToken["tok-dead"]
		assert.Equal(t, model.DeliveryFailed, dead.Status)
		require.NotNil(t, dead.LastError)
		assert.True(t, strings.HasPrefix(*dead.LastError, gateway.PermanentSignature))

		n, err := s.GetNotification(ctx, id)
		require.NoError(t, err)
		assert.False(t, n.IsRead)
		require.NotNil(t, n.Link)
		assert.Equal(t, "/items/42", *n.Link)

		stats, err := svc.Deliveries(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.DeliveryStats{Total: 2, Success: 1, Failed: 1}, stats)
	})

	t.Run("no endpoints still stores the notification", func(t *testing.T) {
		s := newTestStore(t)
		svc, _ := newTestService(t, s, newScriptedSender())
		seedEndpoint(t, s, 1, "tok-a", model.CategoryTop3)

		id, err := svc.Notify(ctx, validInput(1))
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		logs, err := s.ListDeliveryLogs(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, logs)

		count, err := svc.UnreadCount(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("full queue is reported per endpoint", func(t *testing.T) {
		s := newTestStore(t)
		d, _ := newTestDeliverer(s, newScriptedSender())
		svc := NewService(s, rejectingPool{err: ErrQueueFull}, d, nil)
		seedEndpoint(t, s, 1, "tok-a", model.CategoryBookmark)
		seedEndpoint(t, s, 1, "tok-b", model.CategoryBookmark)

		id, err := svc.Notify(ctx, validInput(1))
		require.Error(t, err)
		assert.NotEmpty(t, id)
		assert.True(t, errors.Is(err, ErrQueueFull))

		var de *DispatchError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, id, de.NotificationID)
		assert.Len(t, de.Failed, 2)

		logs, err := s.ListDeliveryLogs(ctx, id)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		for _, l := range logs {
			assert.Equal(t, model.DeliveryPending, l.Status)
			assert.Zero(t, l.AttemptCount)
		}
	})

	t.Run("invalid input is rejected before anything is stored", func(t *testing.T) {
		s := newTestStore(t)
		svc, _ := newTestService(t, s, newScriptedSender())

		cases := map[string]func(*NotifyInput){
			"unknown category": func(in *NotifyInput) { in.Category = "PROMO" },
			"missing user":     func(in *NotifyInput) { in.UserID = 0 },
			"blank title":      func(in *NotifyInput) { in.Title = "   " },
			"blank body":       func(in *NotifyInput) { in.Body = "" },
			"long link":        func(in *NotifyInput) { in.Link = strings.Repeat("x", 513) },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				in := validInput(1)
				mutate(&in)
				id, err := svc.Notify(ctx, in)
				assert.ErrorIs(t, err, ErrInvalidInput)
				assert.Empty(t, id)
			})
		}

		list, err := svc.List(ctx, 1, nil, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestService_ReadSide(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc, _ := newTestService(t, s, newScriptedSender())

	first, err := svc.Notify(ctx, validInput(1))
	require.NoError(t, err)
	in := validInput(1)
	in.Category = model.CategoryTop3
	_, err = svc.Notify(ctx, in)
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	top3 := model.CategoryTop3
	list, err := svc.List(ctx, 1, &top3, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.CategoryTop3, list[0].Category)

	n, err := svc.MarkRead(ctx, 1, first)
	require.NoError(t, err)
	assert.True(t, n.IsRead)
	require.NotNil(t, n.ReadAt)
	readAt := *n.ReadAt

	count, err = svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	again, err := svc.MarkRead(ctx, 1, first)
	require.NoError(t, err)
	assert.True(t, again.ReadAt.Equal(readAt))

	_, err = svc.MarkRead(ctx, 2, first)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// hookedStore lets a test fail or interleave individual store calls.
type hookedStore struct {
	store.Store
	listErr    error
	afterCount func()
}

func (h *hookedStore) ListActiveEndpoints(ctx context.Context, userID int64, c model.Category) ([]model.Endpoint, error) {
	if h.listErr != nil {
		return nil, h.listErr
	}
	return h.Store.ListActiveEndpoints(ctx, userID, c)
}

func (h *hookedStore) CountUnread(ctx context.Context, userID int64) (int64, error) {
	count, err := h.Store.CountUnread(ctx, userID)
	if hook := h.afterCount; hook != nil {
		h.afterCount = nil
		hook()
	}
	return count, err
}

func TestService_NotifyStoresNothingOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedEndpoint(t, s, 3, "tok-a", model.CategoryBookmark)
	hooked := &hookedStore{Store: s, listErr: errors.New("connection reset")}
	svc, _ := newTestService(t, hooked, newScriptedSender())

	id, err := svc.Notify(ctx, validInput(3))
	require.Error(t, err)
	assert.Empty(t, id)

	list, err := s.ListNotifications(ctx, store.NotificationFilter{UserID: 3})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_UnreadCountSkipsCachingAcrossInvalidation(t *testing.T) {
	ctx := context.Background()
	hooked := &hookedStore{Store: newTestStore(t)}
	svc, _ := newTestService(t, hooked, newScriptedSender())

	// A notification lands between the count query and the cache write.
	hooked.afterCount = func() {
		_, err := svc.Notify(ctx, validInput(4))
		require.NoError(t, err)
	}
	count, err := svc.UnreadCount(ctx, 4)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = svc.UnreadCount(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
