package domain

import (
	"errors"
	"testing"
)

func TestNotificationRecordValidate(t *testing.T) {
	t.Parallel()

	valid := func() NotificationRecord {
		return NotificationRecord{
			UserID:    "user-1",
			EventType: "appointment.created",
			Channels:  []Channel{ChannelEmail, ChannelSMS},
		}
	}

	tests := []struct {
		name    string
		mutate  func(n *NotificationRecord)
		wantErr bool
	}{
		{name: "valid", mutate: func(n *NotificationRecord) {}},
		{name: "missing user", mutate: func(n *NotificationRecord) { n.UserID = " " }, wantErr: true},
		{name: "missing event type", mutate: func(n *NotificationRecord) { n.EventType = "" }, wantErr: true},
		{name: "invalid channel", mutate: func(n *NotificationRecord) { n.Channels = []Channel{"FAX"} }, wantErr: true},
		{name: "no channels", mutate: func(n *NotificationRecord) { n.Channels = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := valid()
			tt.mutate(&n)
			err := n.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestDefaultChannels(t *testing.T) {
	t.Parallel()

	channels := DefaultChannels()
	if len(channels) != 1 || channels[0] != ChannelEmail {
		t.Fatalf("DefaultChannels() = %v, want [EMAIL]", channels)
	}
}

func TestParseChannel(t *testing.T) {
	t.Parallel()

	channel, err := ParseChannel("sms")
	if err != nil {
		t.Fatalf("ParseChannel() error = %v", err)
	}
	if channel != ChannelSMS {
		t.Fatalf("channel = %s, want SMS", channel)
	}

	if _, err := ParseChannel("carrier-pigeon"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseChannel() error = %v, want ErrValidation", err)
	}
}

func TestParseNotificationStatus(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"pending", "SENT", "failed", "Delivered"} {
		if _, err := ParseNotificationStatus(raw); err != nil {
			t.Errorf("ParseNotificationStatus(%q) error = %v", raw, err)
		}
	}

	if _, err := ParseNotificationStatus("BOUNCED"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseNotificationStatus() error = %v, want ErrValidation", err)
	}
}
