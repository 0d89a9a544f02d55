package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinicore/backoffice/internal/domain"
	"github.com/clinicore/backoffice/internal/observability"
	"github.com/clinicore/backoffice/internal/queue"
	"github.com/clinicore/backoffice/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SchedulingService owns appointment lifecycle transitions and conflict
// detection against a doctor's existing bookings.
type SchedulingService struct {
	appointments repository.AppointmentRepository
	publisher    queue.Publisher
	logger       *zap.Logger
	metrics      *observability.Metrics

	// Cancellation from COMPLETED matches observed production behaviour;
	// the flag exists so product can turn the guard on without a code change.
	allowCancelCompleted bool

	now func() time.Time
}

func NewSchedulingService(
	appointments repository.AppointmentRepository,
	publisher queue.Publisher,
	allowCancelCompleted bool,
	logger *zap.Logger,
) (*SchedulingService, error) {
	if appointments == nil {
		return nil, fmt.Errorf("appointment repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SchedulingService{
		appointments:         appointments,
		publisher:            publisher,
		logger:               logger,
		allowCancelCompleted: allowCancelCompleted,
		now:                  time.Now,
	}, nil
}

func (s *SchedulingService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// CreateAppointment validates, checks doctor availability and persists a new
// SCHEDULED appointment. The storage-level exclusion constraint backs the
// availability check, so two concurrent creates for the same slot cannot both
// land; the loser surfaces as ErrConflict.
func (s *SchedulingService) CreateAppointment(ctx context.Context, a *domain.Appointment) (*domain.Appointment, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if a == nil {
		return nil, fmt.Errorf("%w: appointment is required", domain.ErrValidation)
	}

	now := s.now().UTC()
	a.PatientID = strings.TrimSpace(a.PatientID)
	a.DoctorID = strings.TrimSpace(a.DoctorID)
	a.Reason = strings.TrimSpace(a.Reason)
	a.Notes = strings.TrimSpace(a.Notes)

	if err := a.Validate(now); err != nil {
		return nil, err
	}

	available, err := s.IsDoctorAvailable(ctx, a.DoctorID, a.StartTime, a.EndTime, "")
	if err != nil {
		return nil, err
	}
	if !available {
		s.metrics.IncBookingConflict("create")
		return nil, fmt.Errorf("%w: doctor unavailable in the requested time window", domain.ErrConflict)
	}

	a.ID = uuid.NewString()
	a.Status = domain.AppointmentScheduled
	a.CheckedInAt = nil
	a.CompletedAt = nil
	a.CancelledAt = nil
	a.CancellationReason = nil
	a.ReminderSent = false
	a.ConfirmationSent = false

	if err := s.appointments.Create(ctx, a); err != nil {
		if isExclusionViolationError(err) {
			s.metrics.IncBookingConflict("create")
			return nil, fmt.Errorf("%w: doctor unavailable in the requested time window", domain.ErrConflict)
		}
		return nil, err
	}

	s.metrics.IncAppointmentCreated(a.Type.String())
	s.publishEvent(ctx, queue.EventAppointmentCreated, a)

	return a, nil
}

// RescheduleAppointment moves an appointment to a new time window, excluding
// the appointment itself from the overlap check so a no-op reschedule into
// its own slot succeeds.
func (s *SchedulingService) RescheduleAppointment(ctx context.Context, id string, newStart, newEnd time.Time) (*domain.Appointment, error) {
	appointment, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !appointment.CanTransition(domain.OpReschedule) {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", domain.ErrConflict, appointment.Status)
	}
	if !newStart.After(s.now().UTC()) {
		return nil, fmt.Errorf("%w: new start time must be in the future", domain.ErrValidation)
	}
	if !newEnd.After(newStart) {
		return nil, fmt.Errorf("%w: new end time must be after new start time", domain.ErrValidation)
	}

	available, err := s.IsDoctorAvailable(ctx, appointment.DoctorID, newStart, newEnd, appointment.ID)
	if err != nil {
		return nil, err
	}
	if !available {
		s.metrics.IncBookingConflict("reschedule")
		return nil, fmt.Errorf("%w: doctor unavailable in the requested time window", domain.ErrConflict)
	}

	if err := s.appointments.UpdateTimes(ctx, appointment.ID, newStart, newEnd); err != nil {
		if isExclusionViolationError(err) {
			s.metrics.IncBookingConflict("reschedule")
			return nil, fmt.Errorf("%w: doctor unavailable in the requested time window", domain.ErrConflict)
		}
		return nil, err
	}

	appointment.StartTime = newStart
	appointment.EndTime = newEnd
	return appointment, nil
}

// CancelAppointment marks the appointment CANCELLED and records the reason.
func (s *SchedulingService) CancelAppointment(ctx context.Context, id string, reason string) (*domain.Appointment, error) {
	appointment, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	allowedFrom := []domain.AppointmentStatus{
		domain.AppointmentScheduled,
		domain.AppointmentConfirmed,
		domain.AppointmentCheckedIn,
		domain.AppointmentInProgress,
		domain.AppointmentNoShow,
		domain.AppointmentCancelled,
	}
	if s.allowCancelCompleted {
		allowedFrom = append(allowedFrom, domain.AppointmentCompleted)
	} else if appointment.Status == domain.AppointmentCompleted {
		return nil, fmt.Errorf("%w: cannot cancel a completed appointment", domain.ErrConflict)
	}

	now := s.now().UTC()
	trimmedReason := strings.TrimSpace(reason)
	err = s.appointments.Transition(ctx, appointment.ID, allowedFrom, repository.TransitionUpdate{
		Status:             domain.AppointmentCancelled,
		CancelledAt:        &now,
		CancellationReason: &trimmedReason,
	})
	if err != nil {
		return nil, err
	}

	appointment.Status = domain.AppointmentCancelled
	appointment.CancelledAt = &now
	appointment.CancellationReason = &trimmedReason

	s.metrics.IncAppointmentTransition(domain.AppointmentCancelled.String())
	s.publishEvent(ctx, queue.EventAppointmentCancelled, appointment)

	return appointment, nil
}

// ConfirmAppointment is only valid from SCHEDULED.
func (s *SchedulingService) ConfirmAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	appointment, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appointment.CanTransition(domain.OpConfirm) {
		return nil, fmt.Errorf("%w: cannot confirm a %s appointment", domain.ErrConflict, appointment.Status)
	}

	confirmed := true
	err = s.appointments.Transition(ctx, appointment.ID, domain.ConfirmableFrom(), repository.TransitionUpdate{
		Status:           domain.AppointmentConfirmed,
		ConfirmationSent: &confirmed,
	})
	if err != nil {
		return nil, err
	}

	appointment.Status = domain.AppointmentConfirmed
	appointment.ConfirmationSent = true
	s.metrics.IncAppointmentTransition(domain.AppointmentConfirmed.String())
	return appointment, nil
}

// CheckInAppointment is valid from SCHEDULED or CONFIRMED.
func (s *SchedulingService) CheckInAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	appointment, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appointment.CanTransition(domain.OpCheckIn) {
		return nil, fmt.Errorf("%w: cannot check in a %s appointment", domain.ErrConflict, appointment.Status)
	}

	now := s.now().UTC()
	err = s.appointments.Transition(ctx, appointment.ID, domain.CheckInableFrom(), repository.TransitionUpdate{
		Status:      domain.AppointmentCheckedIn,
		CheckedInAt: &now,
	})
	if err != nil {
		return nil, err
	}

	appointment.Status = domain.AppointmentCheckedIn
	appointment.CheckedInAt = &now
	s.metrics.IncAppointmentTransition(domain.AppointmentCheckedIn.String())
	return appointment, nil
}

// StartAppointment is valid from CHECKED_IN.
func (s *SchedulingService) StartAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	appointment, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appointment.CanTransition(domain.OpStart) {
		return nil, fmt.Errorf("%w: cannot start a %s appointment", domain.ErrConflict, appointment.Status)
	}

	err = s.appointments.Transition(ctx, appointment.ID, domain.StartableFrom(), repository.TransitionUpdate{
		Status: domain.AppointmentInProgress,
	})
	if err != nil {
		return nil, err
	}

	appointment.Status = domain.AppointmentInProgress
	s.metrics.IncAppointmentTransition(domain.AppointmentInProgress.String())
	return appointment, nil
}

// CompleteAppointment is valid unless the appointment is CANCELLED or
// already COMPLETED.
func (s *SchedulingService) CompleteAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	appointment, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appointment.CanTransition(domain.OpComplete) {
		return nil, fmt.Errorf("%w: cannot complete a %s appointment", domain.ErrConflict, appointment.Status)
	}

	now := s.now().UTC()
	err = s.appointments.Transition(ctx, appointment.ID, domain.CompletableFrom(), repository.TransitionUpdate{
		Status:      domain.AppointmentCompleted,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	appointment.Status = domain.AppointmentCompleted
	appointment.CompletedAt = &now
	s.metrics.IncAppointmentTransition(domain.AppointmentCompleted.String())
	return appointment, nil
}

// MarkNoShow is valid from any non-terminal status.
func (s *SchedulingService) MarkNoShow(ctx context.Context, id string) (*domain.Appointment, error) {
	appointment, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appointment.CanTransition(domain.OpNoShow) {
		return nil, fmt.Errorf("%w: cannot mark a %s appointment as no-show", domain.ErrConflict, appointment.Status)
	}

	err = s.appointments.Transition(ctx, appointment.ID, domain.NoShowableFrom(), repository.TransitionUpdate{
		Status: domain.AppointmentNoShow,
	})
	if err != nil {
		return nil, err
	}

	appointment.Status = domain.AppointmentNoShow
	s.metrics.IncAppointmentTransition(domain.AppointmentNoShow.String())
	return appointment, nil
}

// IsDoctorAvailable reports whether no slot-blocking appointment of the
// doctor overlaps [start, end) under half-open semantics. excludeID, when
// non-empty, removes a single appointment from consideration.
func (s *SchedulingService) IsDoctorAvailable(ctx context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error) {
	if strings.TrimSpace(doctorID) == "" {
		return false, fmt.Errorf("%w: doctor id is required", domain.ErrValidation)
	}
	if !end.After(start) {
		return false, fmt.Errorf("%w: end time must be after start time", domain.ErrValidation)
	}

	overlap, err := s.appointments.HasOverlap(ctx, strings.TrimSpace(doctorID), start, end, excludeID)
	if err != nil {
		return false, err
	}
	return !overlap, nil
}

func (s *SchedulingService) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	return s.getByID(ctx, id)
}

func (s *SchedulingService) List(ctx context.Context, params repository.AppointmentListParams) ([]domain.Appointment, int64, error) {
	return s.appointments.List(ctx, params)
}

// ListUpcoming returns SCHEDULED and CONFIRMED appointments starting at or
// after the current time, ordered by start time ascending.
func (s *SchedulingService) ListUpcoming(ctx context.Context, limit int) ([]domain.Appointment, error) {
	return s.appointments.ListUpcoming(ctx, s.now().UTC(), limit)
}

func (s *SchedulingService) getByID(ctx context.Context, id string) (*domain.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: appointment id is required", domain.ErrValidation)
	}
	return s.appointments.GetByID(ctx, strings.TrimSpace(id))
}

// publishEvent is fire-and-forget: a broker outage must never fail the
// triggering operation.
func (s *SchedulingService) publishEvent(ctx context.Context, eventType string, a *domain.Appointment) {
	if s.publisher == nil {
		return
	}

	event := queue.AppointmentEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Type:          a.Type.String(),
		Reason:        a.Reason,
		OccurredAt:    s.now().UTC(),
	}

	if err := s.publisher.Publish(ctx, queue.AppointmentEventsQueue, event); err != nil {
		s.logger.Error("failed to publish appointment event",
			zap.String("appointmentId", a.ID),
			zap.String("eventType", eventType),
			zap.Error(err),
		)
	}
}

// isExclusionViolationError detects the postgres exclusion/unique constraint
// rejections backing the no-overlap invariant.
func isExclusionViolationError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "exclusion constraint") ||
		strings.Contains(msg, "conflicting key value") ||
		strings.Contains(msg, "23p01")
}
