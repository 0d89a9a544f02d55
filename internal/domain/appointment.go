package domain

import (
	"fmt"
	"strings"
	"time"
)

// AppointmentStatus represents the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed  AppointmentStatus = "CONFIRMED"
	AppointmentCheckedIn  AppointmentStatus = "CHECKED_IN"
	AppointmentInProgress AppointmentStatus = "IN_PROGRESS"
	AppointmentCompleted  AppointmentStatus = "COMPLETED"
	AppointmentCancelled  AppointmentStatus = "CANCELLED"
	AppointmentNoShow     AppointmentStatus = "NO_SHOW"
)

func (s AppointmentStatus) String() string { return string(s) }

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentCheckedIn,
		AppointmentInProgress, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is defined from s.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

// BlocksDoctor reports whether an appointment in this status still occupies
// the doctor's time slot for overlap purposes.
func (s AppointmentStatus) BlocksDoctor() bool {
	return s != AppointmentCancelled && s != AppointmentCompleted
}

func ParseAppointmentStatus(v string) (AppointmentStatus, error) {
	s := AppointmentStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: invalid appointment status %q", ErrValidation, v)
	}
	return s, nil
}

// BlockingStatuses returns the statuses that occupy a doctor's slot.
func BlockingStatuses() []AppointmentStatus {
	return []AppointmentStatus{
		AppointmentScheduled,
		AppointmentConfirmed,
		AppointmentCheckedIn,
		AppointmentInProgress,
		AppointmentNoShow,
	}
}

// AppointmentType categorizes the visit.
type AppointmentType string

const (
	TypeConsultation AppointmentType = "CONSULTATION"
	TypeFollowUp     AppointmentType = "FOLLOW_UP"
	TypeCheckup      AppointmentType = "CHECKUP"
	TypeProcedure    AppointmentType = "PROCEDURE"
	TypeEmergency    AppointmentType = "EMERGENCY"
)

func (t AppointmentType) String() string { return string(t) }

func (t AppointmentType) IsValid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeCheckup, TypeProcedure, TypeEmergency:
		return true
	}
	return false
}

func ParseAppointmentType(v string) (AppointmentType, error) {
	t := AppointmentType(strings.ToUpper(strings.TrimSpace(v)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid appointment type %q", ErrValidation, v)
	}
	return t, nil
}

// Appointment is the core scheduling entity. It is created SCHEDULED and only
// mutated through the lifecycle operations; cancellation is a status change,
// never a delete.
type Appointment struct {
	ID                 string
	PatientID          string
	DoctorID           string
	StartTime          time.Time
	EndTime            time.Time
	Status             AppointmentStatus
	Type               AppointmentType
	Reason             string
	Notes              string
	CheckedInAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	ReminderSent       bool
	ConfirmationSent   bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks creation-time invariants against the given clock reading.
func (a *Appointment) Validate(now time.Time) error {
	if strings.TrimSpace(a.PatientID) == "" {
		return fmt.Errorf("%w: patient id is required", ErrValidation)
	}
	if strings.TrimSpace(a.DoctorID) == "" {
		return fmt.Errorf("%w: doctor id is required", ErrValidation)
	}
	if a.StartTime.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrValidation)
	}
	if a.EndTime.IsZero() {
		return fmt.Errorf("%w: end time is required", ErrValidation)
	}
	if !a.StartTime.After(now) {
		return fmt.Errorf("%w: start time must be in the future", ErrValidation)
	}
	if !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", ErrValidation)
	}
	if !a.Type.IsValid() {
		return fmt.Errorf("%w: invalid appointment type %q", ErrValidation, a.Type)
	}
	return nil
}

// Overlaps reports whether [a.StartTime, a.EndTime) intersects [start, end).
// Half-open semantics: back-to-back intervals do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime)
}

// ConfirmableFrom lists the statuses a confirm is allowed from.
func ConfirmableFrom() []AppointmentStatus {
	return []AppointmentStatus{AppointmentScheduled}
}

// CheckInableFrom lists the statuses a check-in is allowed from.
func CheckInableFrom() []AppointmentStatus {
	return []AppointmentStatus{AppointmentScheduled, AppointmentConfirmed}
}

// StartableFrom lists the statuses a start is allowed from.
func StartableFrom() []AppointmentStatus {
	return []AppointmentStatus{AppointmentCheckedIn}
}

// CompletableFrom lists the statuses a complete is allowed from.
func CompletableFrom() []AppointmentStatus {
	return []AppointmentStatus{
		AppointmentScheduled,
		AppointmentConfirmed,
		AppointmentCheckedIn,
		AppointmentInProgress,
		AppointmentNoShow,
	}
}

// NoShowableFrom lists the statuses a no-show mark is allowed from.
func NoShowableFrom() []AppointmentStatus {
	return []AppointmentStatus{
		AppointmentScheduled,
		AppointmentConfirmed,
		AppointmentCheckedIn,
		AppointmentInProgress,
	}
}

// ReschedulableFrom lists the statuses a reschedule is allowed from.
func ReschedulableFrom() []AppointmentStatus {
	return []AppointmentStatus{
		AppointmentScheduled,
		AppointmentConfirmed,
		AppointmentCheckedIn,
		AppointmentInProgress,
		AppointmentNoShow,
	}
}

func statusIn(s AppointmentStatus, allowed []AppointmentStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// CanTransition reports whether the named lifecycle operation is allowed from
// the current status. Cancel is handled separately because its guard is
// configurable.
func (a *Appointment) CanTransition(op LifecycleOp) bool {
	switch op {
	case OpConfirm:
		return statusIn(a.Status, ConfirmableFrom())
	case OpCheckIn:
		return statusIn(a.Status, CheckInableFrom())
	case OpStart:
		return statusIn(a.Status, StartableFrom())
	case OpComplete:
		return statusIn(a.Status, CompletableFrom())
	case OpNoShow:
		return statusIn(a.Status, NoShowableFrom())
	case OpReschedule:
		return statusIn(a.Status, ReschedulableFrom())
	}
	return false
}

// LifecycleOp names a status-changing appointment operation.
type LifecycleOp string

const (
	OpConfirm    LifecycleOp = "confirm"
	OpCheckIn    LifecycleOp = "check_in"
	OpStart      LifecycleOp = "start"
	OpComplete   LifecycleOp = "complete"
	OpNoShow     LifecycleOp = "no_show"
	OpReschedule LifecycleOp = "reschedule"
)
