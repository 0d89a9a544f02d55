package repository

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/clinicore/backoffice/internal/domain"
)

// AppointmentModel is the persistence model for the appointments table.
type AppointmentModel struct {
	ID                 string                   `gorm:"type:uuid;primaryKey"`
	PatientID          string                   `gorm:"type:uuid;not null;index"`
	DoctorID           string                   `gorm:"type:uuid;not null"`
	StartTime          time.Time                `gorm:"type:timestamptz;not null"`
	EndTime            time.Time                `gorm:"type:timestamptz;not null"`
	Status             domain.AppointmentStatus `gorm:"type:varchar(20);not null"`
	Type               domain.AppointmentType   `gorm:"type:varchar(20);not null"`
	Reason             string                   `gorm:"type:text"`
	Notes              string                   `gorm:"type:text"`
	CheckedInAt        *time.Time               `gorm:"type:timestamptz"`
	CompletedAt        *time.Time               `gorm:"type:timestamptz"`
	CancelledAt        *time.Time               `gorm:"type:timestamptz"`
	CancellationReason *string                  `gorm:"type:text"`
	ReminderSent       bool                     `gorm:"not null;default:false"`
	ConfirmationSent   bool                     `gorm:"not null;default:false"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (AppointmentModel) TableName() string {
	return "appointments"
}

// NotificationModel is the persistence model for the notifications table.
// Channels are stored as a comma-joined list, payload as serialized JSON.
type NotificationModel struct {
	ID                    string                    `gorm:"type:uuid;primaryKey"`
	UserID                string                    `gorm:"type:varchar(255);not null"`
	EventType             string                    `gorm:"type:varchar(255);not null"`
	Locale                string                    `gorm:"type:varchar(16)"`
	Brand                 string                    `gorm:"type:varchar(64)"`
	Channels              string                    `gorm:"type:varchar(255);not null"`
	Status                domain.NotificationStatus `gorm:"type:varchar(20);not null"`
	ExternalTransactionID *string                   `gorm:"type:varchar(255)"`
	IdempotencyKey        *string                   `gorm:"type:varchar(255)"`
	Payload               []byte                    `gorm:"type:jsonb"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

func appointmentModelFromDomain(a *domain.Appointment) *AppointmentModel {
	if a == nil {
		return nil
	}

	return &AppointmentModel{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		DoctorID:           a.DoctorID,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Status:             a.Status,
		Type:               a.Type,
		Reason:             a.Reason,
		Notes:              a.Notes,
		CheckedInAt:        a.CheckedInAt,
		CompletedAt:        a.CompletedAt,
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
		ReminderSent:       a.ReminderSent,
		ConfirmationSent:   a.ConfirmationSent,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func appointmentModelToDomain(m *AppointmentModel) *domain.Appointment {
	if m == nil {
		return nil
	}

	return &domain.Appointment{
		ID:                 m.ID,
		PatientID:          m.PatientID,
		DoctorID:           m.DoctorID,
		StartTime:          m.StartTime,
		EndTime:            m.EndTime,
		Status:             m.Status,
		Type:               m.Type,
		Reason:             m.Reason,
		Notes:              m.Notes,
		CheckedInAt:        m.CheckedInAt,
		CompletedAt:        m.CompletedAt,
		CancelledAt:        m.CancelledAt,
		CancellationReason: m.CancellationReason,
		ReminderSent:       m.ReminderSent,
		ConfirmationSent:   m.ConfirmationSent,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func notificationModelFromDomain(n *domain.NotificationRecord) (*NotificationModel, error) {
	if n == nil {
		return nil, nil
	}

	channels := make([]string, 0, len(n.Channels))
	for _, c := range n.Channels {
		channels = append(channels, c.String())
	}

	var payload []byte
	if n.Payload != nil {
		raw, err := json.Marshal(n.Payload)
		if err != nil {
			return nil, err
		}
		payload = raw
	}

	return &NotificationModel{
		ID:                    n.ID,
		UserID:                n.UserID,
		EventType:             n.EventType,
		Locale:                n.Locale,
		Brand:                 n.Brand,
		Channels:              strings.Join(channels, ","),
		Status:                n.Status,
		ExternalTransactionID: n.ExternalTransactionID,
		IdempotencyKey:        n.IdempotencyKey,
		Payload:               payload,
		CreatedAt:             n.CreatedAt,
		UpdatedAt:             n.UpdatedAt,
	}, nil
}

func notificationModelToDomain(m *NotificationModel) (*domain.NotificationRecord, error) {
	if m == nil {
		return nil, nil
	}

	var channels []domain.Channel
	for _, raw := range strings.Split(m.Channels, ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			channels = append(channels, domain.Channel(raw))
		}
	}

	var payload map[string]any
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return nil, err
		}
	}

	return &domain.NotificationRecord{
		ID:                    m.ID,
		UserID:                m.UserID,
		EventType:             m.EventType,
		Locale:                m.Locale,
		Brand:                 m.Brand,
		Channels:              channels,
		Status:                m.Status,
		ExternalTransactionID: m.ExternalTransactionID,
		IdempotencyKey:        m.IdempotencyKey,
		Payload:               payload,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}, nil
}
