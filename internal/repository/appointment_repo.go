package repository

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/backoffice/internal/domain"
	"gorm.io/gorm"
)

// AppointmentListParams filters appointment listings.
type AppointmentListParams struct {
	PatientID *string
	DoctorID  *string
	Status    *domain.AppointmentStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// TransitionUpdate carries the column changes applied alongside a guarded
// status transition.
type TransitionUpdate struct {
	Status             domain.AppointmentStatus
	CheckedInAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	ConfirmationSent   *bool
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *domain.Appointment) error
	GetByID(ctx context.Context, id string) (*domain.Appointment, error)
	List(ctx context.Context, params AppointmentListParams) ([]domain.Appointment, int64, error)
	ListUpcoming(ctx context.Context, from time.Time, limit int) ([]domain.Appointment, error)
	HasOverlap(ctx context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error)
	UpdateTimes(ctx context.Context, id string, start, end time.Time) error
	Transition(ctx context.Context, id string, allowedFrom []domain.AppointmentStatus, update TransitionUpdate) error
}

type GormAppointmentRepo struct {
	db *gorm.DB
}

func NewGormAppointmentRepo(db *gorm.DB) *GormAppointmentRepo {
	return &GormAppointmentRepo{db: db}
}

func (r *GormAppointmentRepo) Create(ctx context.Context, a *domain.Appointment) error {
	model := appointmentModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *appointmentModelToDomain(model)
	}
	return nil
}

func (r *GormAppointmentRepo) GetByID(ctx context.Context, id string) (*domain.Appointment, error) {
	var model AppointmentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return appointmentModelToDomain(&model), nil
}

func (r *GormAppointmentRepo) List(ctx context.Context, params AppointmentListParams) ([]domain.Appointment, int64, error) {
	query := r.db.WithContext(ctx).Model(&AppointmentModel{})

	if params.PatientID != nil {
		query = query.Where("patient_id = ?", *params.PatientID)
	}
	if params.DoctorID != nil {
		query = query.Where("doctor_id = ?", *params.DoctorID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("start_time >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("start_time <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []AppointmentModel
	err := query.
		Order("start_time ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	appointments := make([]domain.Appointment, 0, len(models))
	for i := range models {
		appointments = append(appointments, *appointmentModelToDomain(&models[i]))
	}

	return appointments, total, nil
}

func (r *GormAppointmentRepo) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]domain.Appointment, error) {
	if limit < 1 {
		limit = 50
	}

	var models []AppointmentModel
	err := r.db.WithContext(ctx).
		Where("start_time >= ? AND status IN ?", from, []domain.AppointmentStatus{
			domain.AppointmentScheduled,
			domain.AppointmentConfirmed,
		}).
		Order("start_time ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	appointments := make([]domain.Appointment, 0, len(models))
	for i := range models {
		appointments = append(appointments, *appointmentModelToDomain(&models[i]))
	}

	return appointments, nil
}

// HasOverlap runs the half-open interval overlap test against the doctor's
// slot-blocking appointments: existing.start < end AND existing.end > start.
// Back-to-back bookings do not count as overlap.
func (r *GormAppointmentRepo) HasOverlap(ctx context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&AppointmentModel{}).
		Where("doctor_id = ? AND status IN ? AND start_time < ? AND end_time > ?",
			doctorID, domain.BlockingStatuses(), end, start)

	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormAppointmentRepo) UpdateTimes(ctx context.Context, id string, start, end time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&AppointmentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"start_time": start,
			"end_time":   end,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Transition applies a guarded status change: the update only lands when the
// stored status is still in allowedFrom, so a concurrent transition loses and
// surfaces as ErrConflict instead of silently overwriting.
func (r *GormAppointmentRepo) Transition(
	ctx context.Context,
	id string,
	allowedFrom []domain.AppointmentStatus,
	update TransitionUpdate,
) error {
	changes := map[string]any{"status": update.Status}
	if update.CheckedInAt != nil {
		changes["checked_in_at"] = *update.CheckedInAt
	}
	if update.CompletedAt != nil {
		changes["completed_at"] = *update.CompletedAt
	}
	if update.CancelledAt != nil {
		changes["cancelled_at"] = *update.CancelledAt
	}
	if update.CancellationReason != nil {
		changes["cancellation_reason"] = *update.CancellationReason
	}
	if update.ConfirmationSent != nil {
		changes["confirmation_sent"] = *update.ConfirmationSent
	}

	result := r.db.WithContext(ctx).
		Model(&AppointmentModel{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Updates(changes)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
