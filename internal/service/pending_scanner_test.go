package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinicore/backoffice/internal/domain"
	"github.com/clinicore/backoffice/internal/provider"
)

func TestPendingScannerRedispatchesStaleRecords(t *testing.T) {
	t.Parallel()

	stale := validRecord()
	stale.ID = "stale-1"
	stale.Status = domain.NotificationPending
	stale.Channels = domain.DefaultChannels()

	var observedCutoff time.Time
	outcomes := map[string]domain.NotificationStatus{}
	repo := &fakeNotificationRepo{
		listStalePendingFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationRecord, error) {
			observedCutoff = olderThan
			if limit != 100 {
				t.Fatalf("limit = %d, want 100", limit)
			}
			return []domain.NotificationRecord{*stale}, nil
		},
		updateDispatchOutcomeFn: func(ctx context.Context, id string, status domain.NotificationStatus, externalTxnID string) error {
			outcomes[id] = status
			return nil
		},
	}

	triggerProvider := &fakeTriggerProvider{
		triggerFn: func(ctx context.Context, req provider.TriggerRequest) (*provider.TriggerResponse, error) {
			if req.TransactionID != "stale-1" {
				t.Fatalf("transactionID = %s, want stale-1", req.TransactionID)
			}
			return &provider.TriggerResponse{Acknowledged: true, TransactionID: "ext-stale-1"}, nil
		},
	}

	dispatcher := newTestDispatchService(t, repo, triggerProvider)

	scanner, err := NewPendingScanner(repo, dispatcher, time.Minute, 0, nil)
	if err != nil {
		t.Fatalf("NewPendingScanner() error = %v", err)
	}
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scanner.now = func() time.Time { return frozen }

	if err := scanner.scanStale(context.Background()); err != nil {
		t.Fatalf("scanStale() error = %v", err)
	}

	if want := frozen.Add(-time.Minute); !observedCutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", observedCutoff, want)
	}
	if outcomes["stale-1"] != domain.NotificationSent {
		t.Fatalf("outcome = %s, want SENT", outcomes["stale-1"])
	}
}

func TestPendingScannerContinuesPastDispatchFailures(t *testing.T) {
	t.Parallel()

	dispatched := []string{}
	repo := &fakeNotificationRepo{
		listStalePendingFn: func(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationRecord, error) {
			first := *validRecord()
			first.ID = "stale-1"
			second := *validRecord()
			second.ID = "stale-2"
			return []domain.NotificationRecord{first, second}, nil
		},
		updateDispatchOutcomeFn: func(ctx context.Context, id string, status domain.NotificationStatus, externalTxnID string) error {
			if id == "stale-1" {
				return errors.New("connection refused")
			}
			dispatched = append(dispatched, id)
			return nil
		},
	}

	dispatcher := newTestDispatchService(t, repo, &fakeTriggerProvider{})

	scanner, err := NewPendingScanner(repo, dispatcher, time.Minute, 0, nil)
	if err != nil {
		t.Fatalf("NewPendingScanner() error = %v", err)
	}

	if err := scanner.scanStale(context.Background()); err != nil {
		t.Fatalf("scanStale() error = %v", err)
	}
	if len(dispatched) != 1 || dispatched[0] != "stale-2" {
		t.Fatalf("dispatched = %v, want [stale-2]", dispatched)
	}
}

func TestPendingScannerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{}
	dispatcher := newTestDispatchService(t, repo, nil)

	scanner, err := NewPendingScanner(repo, dispatcher, 10*time.Millisecond, 0, nil)
	if err != nil {
		t.Fatalf("NewPendingScanner() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scanner.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v, want nil on cancellation", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after cancellation")
	}
}
