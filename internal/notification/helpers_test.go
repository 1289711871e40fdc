package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"notify-delivery-backend/internal/gateway"
	"notify-delivery-backend/internal/model"
	"notify-delivery-backend/internal/store"
	"notify-delivery-backend/internal/store/storetest"
)

func newTestStore(t *testing.T) store.Store {
	return store.NewGormStore(storetest.NewSQLite(t))
}

func seedNotification(t *testing.T, s store.Store, userID int64, c model.Category) *model.Notification {
	t.Helper()
	n := &model.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     "Price drop",
		Body:      "An item you bookmarked is cheaper",
		Category:  c,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateNotification(context.Background(), n))
	return n
}

func seedEndpoint(t *testing.T, s store.Store, userID int64, token string, active ...model.Category) model.Endpoint {
	t.Helper()
	e := &model.Endpoint{
		ID:       uuid.NewString(),
		Token:    token,
		UserID:   userID,
		Platform: model.PlatformWebPush,
		P256DH:   "p256dh",
		Auth:     "auth",
	}
	for _, c := range active {
		e.SetActive(c, true)
	}
	saved, err := s.UpsertEndpoint(context.Background(), e)
	require.NoError(t, err)
	return *saved
}

func seedPending(t *testing.T, s store.Store, notificationID, token string, attempts int, at time.Time) model.DeliveryLog {
	t.Helper()
	l := model.DeliveryLog{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Token:          token,
		Status:         model.DeliveryPending,
		AttemptCount:   attempts,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	require.NoError(t, s.CreateDeliveryLogs(context.Background(), []model.DeliveryLog{l}))
	return l
}

func getLog(t *testing.T, s store.Store, id string) *model.DeliveryLog {
	t.Helper()
	l, err := s.GetDeliveryLog(context.Background(), id)
	require.NoError(t, err)
	return l
}

// scriptedSender returns the scripted outcomes per token in order. Once a
// script runs out the last outcome repeats; tokens without a script succeed.
type scriptedSender struct {
	mu      sync.Mutex
	scripts map[string][]error
	calls   map[string]int
}

func newScriptedSender() *scriptedSender {
	return &scriptedSender{scripts: map[string][]error{}, calls: map[string]int{}}
}

func (s *scriptedSender) on(token string, outcomes ...error) *scriptedSender {
	s.scripts[token] = outcomes
	return s
}

func (s *scriptedSender) Send(_ context.Context, e model.Endpoint, _ gateway.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls[e.Token]
	s.calls[e.Token] = n + 1
	script := s.scripts[e.Token]
	if len(script) == 0 {
		return nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n]
}

func (s *scriptedSender) count(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[token]
}

// newTestDeliverer returns a deliverer that records backoff delays instead
// of sleeping.
func newTestDeliverer(logs store.DeliveryLogStore, sender gateway.Sender) (*Deliverer, *[]time.Duration) {
	d := NewDeliverer(logs, sender, DefaultRetryPolicy(), nil)
	var mu sync.Mutex
	slept := []time.Duration{}
	d.sleep = func(ctx context.Context, delay time.Duration) error {
		mu.Lock()
		slept = append(slept, delay)
		mu.Unlock()
		return ctx.Err()
	}
	return d, &slept
}

var (
	errTimeout = gateway.TransientError("gateway timeout", nil)
	errGone    = gateway.PermanentError("push service returned 410", nil)
)
