package repository

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/backoffice/internal/domain"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.NotificationRecord) error
	GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.NotificationRecord, error)
	GetByExternalTransactionID(ctx context.Context, txnID string) (*domain.NotificationRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationRecord, error)
	UpdateDispatchOutcome(ctx context.Context, id string, status domain.NotificationStatus, externalTxnID string) error
	UpdateStatus(ctx context.Context, id string, status domain.NotificationStatus) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.NotificationRecord) error {
	model, err := notificationModelFromDomain(n)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		restored, err := notificationModelToDomain(model)
		if err != nil {
			return err
		}
		*n = *restored
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model)
}

func (r *GormNotificationRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.NotificationRecord, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model)
}

func (r *GormNotificationRepo) GetByExternalTransactionID(ctx context.Context, txnID string) (*domain.NotificationRecord, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("external_transaction_id = ?", txnID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model)
}

func (r *GormNotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error) {
	if limit < 1 {
		limit = 50
	}
	limit = min(limit, 100)

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return notificationModelsToDomain(models)
}

// ListStalePending returns PENDING records whose dispatch never completed,
// oldest first, for reprocessing after a crash between the record commit and
// the provider call.
func (r *GormNotificationRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationRecord, error) {
	if limit < 1 {
		limit = 50
	}

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.NotificationPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return notificationModelsToDomain(models)
}

func (r *GormNotificationRepo) UpdateDispatchOutcome(
	ctx context.Context,
	id string,
	status domain.NotificationStatus,
	externalTxnID string,
) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                  status,
			"external_transaction_id": externalTxnID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) UpdateStatus(ctx context.Context, id string, status domain.NotificationStatus) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func notificationModelsToDomain(models []NotificationModel) ([]domain.NotificationRecord, error) {
	records := make([]domain.NotificationRecord, 0, len(models))
	for i := range models {
		record, err := notificationModelToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}
