package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/clinicore/backoffice/internal/domain"
)

// Appointment event types emitted by the scheduling core.
const (
	EventAppointmentCreated   = "appointment.created"
	EventAppointmentCancelled = "appointment.cancelled"
)

// AppointmentEvent is the bus payload for an appointment lifecycle change.
type AppointmentEvent struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	AppointmentID string    `json:"appointmentId"`
	PatientID     string    `json:"patientId"`
	DoctorID      string    `json:"doctorId"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Type          string    `json:"type"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func (e AppointmentEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if e.EventType != EventAppointmentCreated && e.EventType != EventAppointmentCancelled {
		return fmt.Errorf("invalid event type %q", e.EventType)
	}
	if strings.TrimSpace(e.AppointmentID) == "" {
		return fmt.Errorf("appointmentId is required")
	}
	return nil
}

func (e AppointmentEvent) MessageID() string { return e.EventID }

func (e AppointmentEvent) Correlation() string { return e.AppointmentID }

// NotificationTrigger is the bus payload requesting a notification dispatch.
type NotificationTrigger struct {
	TriggerID      string         `json:"triggerId"`
	UserID         string         `json:"userId"`
	EventType      string         `json:"eventType"`
	Locale         string         `json:"locale,omitempty"`
	Brand          string         `json:"brand,omitempty"`
	Channels       []string       `json:"channels,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
}

func (m NotificationTrigger) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if strings.TrimSpace(m.EventType) == "" {
		return fmt.Errorf("eventType is required")
	}
	return nil
}

func (m NotificationTrigger) MessageID() string { return m.TriggerID }

func (m NotificationTrigger) Correlation() string { return m.IdempotencyKey }

// ToRecord converts the trigger into a dispatchable notification record.
func (m NotificationTrigger) ToRecord() *domain.NotificationRecord {
	channels := make([]domain.Channel, 0, len(m.Channels))
	for _, raw := range m.Channels {
		channels = append(channels, domain.Channel(raw))
	}

	record := &domain.NotificationRecord{
		UserID:    m.UserID,
		EventType: m.EventType,
		Locale:    m.Locale,
		Brand:     m.Brand,
		Channels:  channels,
		Payload:   m.Payload,
	}
	if m.IdempotencyKey != "" {
		key := m.IdempotencyKey
		record.IdempotencyKey = &key
	}
	return record
}
