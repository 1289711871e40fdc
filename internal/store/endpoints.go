package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"notify-delivery-backend/internal/model"
)

// UpsertEndpoint registers a token or replaces the owner, keys and flags of
// an existing one.
func (s *gormStore) UpsertEndpoint(ctx context.Context, e *model.Endpoint) (*model.Endpoint, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "platform", "p256dh", "auth", "updated_at",
			"bookmark_active", "top3_active", "new_item_active", "feedback_active",
		}),
	}).Create(e).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert endpoint for user %d: %w", e.UserID, err)
	}
	return s.GetEndpoint(ctx, e.Token)
}

func (s *gormStore) GetEndpoint(ctx context.Context, token string) (*model.Endpoint, error) {
	var e model.Endpoint
	if err := s.db.WithContext(ctx).First(&e, "token = ?", token).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *gormStore) ListActiveEndpoints(ctx context.Context, userID int64, c model.Category) ([]model.Endpoint, error) {
	column := c.ActiveColumn()
	if column == "" {
		return nil, fmt.Errorf("unknown category %q", c)
	}

	var endpoints []model.Endpoint
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where(column+" = ?", true).
		Order("created_at ASC").
		Find(&endpoints).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s endpoints for user %d: %w", c, userID, err)
	}
	return endpoints, nil
}

// DeleteEndpoint removes the endpoint and purges every delivery log sent to
// its token, so later cleanup passes do not match it again.
func (s *gormStore) DeleteEndpoint(ctx context.Context, token string) (EndpointRemoval, error) {
	var removal EndpointRemoval
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		logs := tx.Where("token = ?", token).Delete(&model.DeliveryLog{})
		if logs.Error != nil {
			return fmt.Errorf("failed to purge delivery logs: %w", logs.Error)
		}
		removal.LogsPurged = logs.RowsAffected

		ep := tx.Where("token = ?", token).Delete(&model.Endpoint{})
		if ep.Error != nil {
			return fmt.Errorf("failed to delete endpoint: %w", ep.Error)
		}
		removal.EndpointDeleted = ep.RowsAffected > 0
		return nil
	})
	if err != nil {
		return EndpointRemoval{}, err
	}
	return removal, nil
}
