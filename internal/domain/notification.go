package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationStatus represents the delivery lifecycle of a notification record.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "PENDING"
	NotificationSent      NotificationStatus = "SENT"
	NotificationFailed    NotificationStatus = "FAILED"
	NotificationDelivered NotificationStatus = "DELIVERED"
)

func (s NotificationStatus) String() string { return string(s) }

func (s NotificationStatus) IsValid() bool {
	switch s {
	case NotificationPending, NotificationSent, NotificationFailed, NotificationDelivered:
		return true
	}
	return false
}

func ParseNotificationStatus(v string) (NotificationStatus, error) {
	s := NotificationStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: invalid notification status %q", ErrValidation, v)
	}
	return s, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

func ParseChannel(v string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(v)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, v)
	}
	return c, nil
}

// DefaultChannels is applied when a caller omits delivery channels.
func DefaultChannels() []Channel {
	return []Channel{ChannelEmail}
}

// NotificationRecord is the dispatch entity. Record ids are UUIDv7, so
// ordering by id is chronological. A record is created PENDING, moves to SENT
// or FAILED after the synchronous trigger call, and may move to DELIVERED
// later through a provider callback correlated by ExternalTransactionID.
// Records are never deleted.
type NotificationRecord struct {
	ID                    string
	UserID                string
	EventType             string
	Locale                string
	Brand                 string
	Channels              []Channel
	Status                NotificationStatus
	ExternalTransactionID *string
	IdempotencyKey        *string
	Payload               map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (n *NotificationRecord) Validate() error {
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(n.EventType) == "" {
		return fmt.Errorf("%w: event type is required", ErrValidation)
	}
	for _, c := range n.Channels {
		if !c.IsValid() {
			return fmt.Errorf("%w: invalid channel %q", ErrValidation, c)
		}
	}
	return nil
}
