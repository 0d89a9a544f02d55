package domain

import (
	"errors"
	"testing"
	"time"
)

func TestAppointmentValidate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	valid := func() Appointment {
		return Appointment{
			PatientID: "patient-1",
			DoctorID:  "doctor-1",
			StartTime: now.Add(time.Hour),
			EndTime:   now.Add(90 * time.Minute),
			Type:      TypeConsultation,
		}
	}

	tests := []struct {
		name    string
		mutate  func(a *Appointment)
		wantErr bool
	}{
		{name: "valid", mutate: func(a *Appointment) {}},
		{name: "missing patient", mutate: func(a *Appointment) { a.PatientID = "" }, wantErr: true},
		{name: "missing doctor", mutate: func(a *Appointment) { a.DoctorID = "" }, wantErr: true},
		{name: "start in the past", mutate: func(a *Appointment) { a.StartTime = now.Add(-time.Hour) }, wantErr: true},
		{name: "start equals now", mutate: func(a *Appointment) { a.StartTime = now }, wantErr: true},
		{name: "end before start", mutate: func(a *Appointment) { a.EndTime = a.StartTime.Add(-time.Minute) }, wantErr: true},
		{name: "end equals start", mutate: func(a *Appointment) { a.EndTime = a.StartTime }, wantErr: true},
		{name: "invalid type", mutate: func(a *Appointment) { a.Type = "WALK_IN" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := valid()
			tt.mutate(&a)
			err := a.Validate(now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestAppointmentOverlapsHalfOpen(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := Appointment{StartTime: base, EndTime: base.Add(time.Hour)}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{name: "identical window", start: base, end: base.Add(time.Hour), want: true},
		{name: "contained", start: base.Add(10 * time.Minute), end: base.Add(20 * time.Minute), want: true},
		{name: "straddles start", start: base.Add(-30 * time.Minute), end: base.Add(30 * time.Minute), want: true},
		{name: "straddles end", start: base.Add(30 * time.Minute), end: base.Add(90 * time.Minute), want: true},
		{name: "back to back before", start: base.Add(-time.Hour), end: base, want: false},
		{name: "back to back after", start: base.Add(time.Hour), end: base.Add(2 * time.Hour), want: false},
		{name: "disjoint", start: base.Add(3 * time.Hour), end: base.Add(4 * time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := a.Overlaps(tt.start, tt.end); got != tt.want {
				t.Fatalf("Overlaps(%v, %v) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestAppointmentStatusBlocksDoctor(t *testing.T) {
	t.Parallel()

	blocking := map[AppointmentStatus]bool{
		AppointmentScheduled:  true,
		AppointmentConfirmed:  true,
		AppointmentCheckedIn:  true,
		AppointmentInProgress: true,
		AppointmentNoShow:     true,
		AppointmentCompleted:  false,
		AppointmentCancelled:  false,
	}

	for status, want := range blocking {
		if got := status.BlocksDoctor(); got != want {
			t.Errorf("%s.BlocksDoctor() = %v, want %v", status, got, want)
		}
	}

	if len(BlockingStatuses()) != 5 {
		t.Fatalf("BlockingStatuses() len = %d, want 5", len(BlockingStatuses()))
	}
}

func TestCanTransitionTotality(t *testing.T) {
	t.Parallel()

	statuses := []AppointmentStatus{
		AppointmentScheduled,
		AppointmentConfirmed,
		AppointmentCheckedIn,
		AppointmentInProgress,
		AppointmentCompleted,
		AppointmentCancelled,
		AppointmentNoShow,
	}

	allowed := map[LifecycleOp]map[AppointmentStatus]bool{
		OpConfirm: {AppointmentScheduled: true},
		OpCheckIn: {AppointmentScheduled: true, AppointmentConfirmed: true},
		OpStart:   {AppointmentCheckedIn: true},
		OpComplete: {
			AppointmentScheduled:  true,
			AppointmentConfirmed:  true,
			AppointmentCheckedIn:  true,
			AppointmentInProgress: true,
			AppointmentNoShow:     true,
		},
		OpNoShow: {
			AppointmentScheduled:  true,
			AppointmentConfirmed:  true,
			AppointmentCheckedIn:  true,
			AppointmentInProgress: true,
		},
		OpReschedule: {
			AppointmentScheduled:  true,
			AppointmentConfirmed:  true,
			AppointmentCheckedIn:  true,
			AppointmentInProgress: true,
			AppointmentNoShow:     true,
		},
	}

	for op, fromSet := range allowed {
		for _, status := range statuses {
			a := Appointment{Status: status}
			want := fromSet[status]
			if got := a.CanTransition(op); got != want {
				t.Errorf("CanTransition(%s) from %s = %v, want %v", op, status, got, want)
			}
		}
	}
}

func TestParseAppointmentStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseAppointmentStatus("scheduled")
	if err != nil {
		t.Fatalf("ParseAppointmentStatus() error = %v", err)
	}
	if status != AppointmentScheduled {
		t.Fatalf("status = %s, want SCHEDULED", status)
	}

	if _, err := ParseAppointmentStatus("BOOKED"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseAppointmentStatus() error = %v, want ErrValidation", err)
	}
}
