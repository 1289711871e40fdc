package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"notify-delivery-backend/internal/gateway"
	"notify-delivery-backend/internal/model"
	"notify-delivery-backend/internal/store"
)

// ErrInvalidInput is returned when a Notify request fails validation.
var ErrInvalidInput = errors.New("notification: invalid input")

// NotifyInput is a business event's request to notify a user.
type NotifyInput struct {
	UserID   int64          `json:"user_id" validate:"gt=0"`
	Category model.Category `json:"category" validate:"required,category"`
	Title    string         `json:"title" validate:"required,max=256"`
	Body     string         `json:"body" validate:"required"`
	Link     string         `json:"link" validate:"omitempty,max=512"`
}

// EndpointError is a fan-out failure for a single endpoint.
type EndpointError struct {
	DeliveryLogID string
	Token         string
	Err           error
}

func (e EndpointError) Error() string {
	return fmt.Sprintf("endpoint %s: %v", e.Token, e.Err)
}

func (e EndpointError) Unwrap() error {
	return e.Err
}

// DispatchError reports the endpoints Notify could not hand to the worker
// pool. The notification and the other endpoints' deliveries are unaffected.
type DispatchError struct {
	NotificationID string
	Failed         []EndpointError
}

func (e *DispatchError) Error() string {
	msgs := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("notification %s: %d endpoint(s) not dispatched: %s",
		e.NotificationID, len(e.Failed), strings.Join(msgs, "; "))
}

func (e *DispatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}

// Service is the notification entry point: Notify orchestration plus the
// read side used by notification lists.
type Service struct {
	store     store.Store
	pool      Submitter
	deliverer *Deliverer
	unread    *cache.Cache
	unreadMu  sync.Mutex
	unreadGen uint64
	validate  *validator.Validate
	log       *zap.Logger
	now       func() time.Time
}

// NewService wires the orchestration layer.
func NewService(s store.Store, pool Submitter, deliverer *Deliverer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	v := validator.New()
	v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return model.Category(fl.Field().String()).Valid()
	})
	return &Service{
		store:     s,
		pool:      pool,
		deliverer: deliverer,
		unread:    cache.New(time.Minute, 5*time.Minute),
		validate:  v,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Notify persists a notification and fans it out to every endpoint of the
// user with the category active. The notification and its delivery logs are
// written together; an empty id means nothing was stored. Once stored, the
// id is returned even if some endpoints failed to dispatch.
func (s *Service) Notify(ctx context.Context, in NotifyInput) (string, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	in.Link = strings.TrimSpace(in.Link)
	if err := s.validate.Struct(in); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.now()
	n := &model.Notification{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		Body:      in.Body,
		Category:  in.Category,
		CreatedAt: now,
	}
	if in.Link != "" {
		link := in.Link
		n.Link = &link
	}

	endpoints, err := s.store.ListActiveEndpoints(ctx, in.UserID, in.Category)
	if err != nil {
		return "", err
	}
	logs := make([]model.DeliveryLog, len(endpoints))
	for i, e := range endpoints {
		logs[i] = model.DeliveryLog{
			ID:             uuid.NewString(),
			NotificationID: n.ID,
			Token:          e.Token,
			Status:         model.DeliveryPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	if err := s.store.CreateNotificationWithDeliveries(ctx, n, logs); err != nil {
		return "", err
	}
	s.invalidateUnread(in.UserID)

	if len(endpoints) == 0 {
		s.log.Debug("no active endpoints",
			zap.String("notification_id", n.ID),
			zap.Int64("user_id", in.UserID),
			zap.String("category", string(in.Category)))
		return n.ID, nil
	}

	msg := gateway.Message{Title: n.Title, Body: n.Body, Link: in.Link}
	var failed []EndpointError
	for i, e := range endpoints {
		job := Job{DeliveryLogID: logs[i].ID, Endpoint: e, Message: msg}
		if err := s.Dispatch(job); err != nil {
			failed = append(failed, EndpointError{DeliveryLogID: logs[i].ID, Token: e.Token, Err: err})
		}
	}

	s.log.Info("notification dispatched",
		zap.String("notification_id", n.ID),
		zap.Int64("user_id", in.UserID),
		zap.String("category", string(in.Category)),
		zap.Int("endpoints", len(endpoints)),
		zap.Int("not_dispatched", len(failed)))

	if len(failed) > 0 {
		return n.ID, &DispatchError{NotificationID: n.ID, Failed: failed}
	}
	return n.ID, nil
}

// Dispatch submits one delivery job to the worker pool.
func (s *Service) Dispatch(job Job) error {
	return s.pool.Submit(func(ctx context.Context) {
		res, err := s.deliverer.Deliver(ctx, job)
		fields := []zap.Field{
			zap.String("delivery_log_id", job.DeliveryLogID),
			zap.String("status", string(res.Status)),
			zap.Int("attempts", res.Attempts),
		}
		switch {
		case err != nil:
			s.log.Error("delivery aborted", append(fields, zap.Error(err))...)
		case res.Superseded:
			s.log.Info("delivery resolved elsewhere", fields...)
		case res.Status == model.DeliveryFailed:
			s.log.Warn("delivery failed", append(fields, zap.String("last_error", res.LastError))...)
		default:
			s.log.Debug("delivery finished", fields...)
		}
	})
}

// List returns the user's notifications, optionally for one category.
func (s *Service) List(ctx context.Context, userID int64, category *model.Category, limit, offset int) ([]model.Notification, error) {
	return s.store.ListNotifications(ctx, store.NotificationFilter{
		UserID:   userID,
		Category: category,
		Limit:    limit,
		Offset:   offset,
	})
}

// UnreadCount returns the number of unread notifications of the user.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	key := unreadKey(userID)
	if v, ok := s.unread.Get(key); ok {
		return v.(int64), nil
	}
	s.unreadMu.Lock()
	gen := s.unreadGen
	s.unreadMu.Unlock()

	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}

	// A count read across an invalidation may already be stale.
	s.unreadMu.Lock()
	if gen == s.unreadGen {
		s.unread.SetDefault(key, count)
	}
	s.unreadMu.Unlock()
	return count, nil
}

// MarkRead marks the notification read. Repeating it is a no-op.
func (s *Service) MarkRead(ctx context.Context, userID int64, id string) (*model.Notification, error) {
	n, err := s.store.MarkRead(ctx, userID, id, s.now())
	if err != nil {
		return nil, err
	}
	s.invalidateUnread(userID)
	return n, nil
}

// Deliveries returns the delivery summary of a notification.
func (s *Service) Deliveries(ctx context.Context, notificationID string) (store.DeliveryStats, error) {
	return s.store.DeliveryStats(ctx, notificationID)
}

func (s *Service) invalidateUnread(userID int64) {
	s.unreadMu.Lock()
	s.unreadGen++
	s.unread.Delete(unreadKey(userID))
	s.unreadMu.Unlock()
}

func unreadKey(userID int64) string {
	return "unread:" + strconv.FormatInt(userID, 10)
}
