package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"petfeeder/internal/model"
)

// Store defines the interface for all journal and subscription operations.
type Store interface {
	RecordFill(ctx context.Context, ev *model.FillEvent) error
	RecordDispense(ctx context.Context, ev *model.DispenseEvent) error
	RecentFills(ctx context.Context, limit int) ([]model.FillEvent, error)
	RecentDispenses(ctx context.Context, limit int) ([]model.DispenseEvent, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// RecordFill appends a fill session to the journal.
func (s *gormStore) RecordFill(ctx context.Context, ev *model.FillEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to record fill event: %w", err)
	}
	return nil
}

// RecordDispense appends a finished dispense task to the journal.
func (s *gormStore) RecordDispense(ctx context.Context, ev *model.DispenseEvent) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to record dispense event: %w", err)
	}
	return nil
}

// RecentFills returns the latest fill sessions, newest first.
func (s *gormStore) RecentFills(ctx context.Context, limit int) ([]model.FillEvent, error) {
	var events []model.FillEvent
	if err := s.db.WithContext(ctx).Order("ended_at DESC").Limit(normalizeLimit(limit)).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch fill events: %w", err)
	}
	return events, nil
}

// RecentDispenses returns the latest dispense tasks, newest first.
func (s *gormStore) RecentDispenses(ctx context.Context, limit int) ([]model.DispenseEvent, error) {
	var events []model.DispenseEvent
	if err := s.db.WithContext(ctx).Order("finished_at DESC").Limit(normalizeLimit(limit)).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch dispense events: %w", err)
	}
	return events, nil
}

// SaveSubscription creates or replaces a push subscription keyed by endpoint.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a push subscription.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", endpoint, err)
	}
	return nil
}

// GetSubscription fetches a push subscription. gorm.ErrRecordNotFound is returned
// wrapped when it does not exist.
func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	return &sub, nil
}

// ListSubscriptions returns every push subscription.
func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	return subs, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
