package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/clinicore/backoffice/internal/domain"
	"github.com/clinicore/backoffice/internal/transport"
)

func TestNotificationIntegration_Create(t *testing.T) {
	t.Parallel()

	svc := &stubDispatchService{
		createAndSendFn: func(ctx context.Context, n *domain.NotificationRecord) (*domain.NotificationRecord, error) {
			if n.UserID == "" {
				return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
			}
			n.ID = "rec-created"
			n.Status = domain.NotificationSent
			if len(n.Channels) == 0 {
				n.Channels = domain.DefaultChannels()
			}
			return n, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	validBody := `{"userId":"user-1","eventType":"appointment.created","payload":{"appointmentId":"appt-1"}}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/notifications", validBody)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(body))
	}

	var created map[string]any
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if created["id"] != "rec-created" {
		t.Fatalf("id = %v, want rec-created", created["id"])
	}
	if created["status"] != domain.NotificationSent.String() {
		t.Fatalf("status = %v, want SENT", created["status"])
	}

	missingUserBody := `{"eventType":"appointment.created"}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/notifications", missingUserBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing user", resp.StatusCode)
	}

	badChannelBody := `{"userId":"user-1","eventType":"appointment.created","channels":["fax"]}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/notifications", badChannelBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid channel", resp.StatusCode)
	}
}

func TestNotificationIntegration_CreateForwardsIdempotencyKey(t *testing.T) {
	t.Parallel()

	svc := &stubDispatchService{
		createAndSendFn: func(ctx context.Context, n *domain.NotificationRecord) (*domain.NotificationRecord, error) {
			if n.IdempotencyKey == nil || *n.IdempotencyKey != "idem-1" {
				t.Fatalf("idempotencyKey = %v, want idem-1", n.IdempotencyKey)
			}
			if len(n.Channels) != 2 {
				t.Fatalf("channels = %v, want 2 parsed channels", n.Channels)
			}
			n.ID = "rec-1"
			n.Status = domain.NotificationSent
			return n, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	body := `{"userId":"user-1","eventType":"appointment.created","channels":["email","sms"],"idempotencyKey":"idem-1"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/notifications", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}
}

func TestNotificationIntegration_GetByID(t *testing.T) {
	t.Parallel()

	svc := &stubDispatchService{
		getByIDFn: func(ctx context.Context, id string) (*domain.NotificationRecord, error) {
			if id != "rec-1" {
				return nil, nil
			}
			return &domain.NotificationRecord{
				ID:        "rec-1",
				UserID:    "user-1",
				EventType: "appointment.created",
				Channels:  domain.DefaultChannels(),
				Status:    domain.NotificationDelivered,
			}, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/notifications/rec-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["status"] != domain.NotificationDelivered.String() {
		t.Fatalf("status = %v, want DELIVERED", parsed["status"])
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for absent record", resp.StatusCode)
	}
}

func TestNotificationIntegration_ListByUser(t *testing.T) {
	t.Parallel()

	svc := &stubDispatchService{
		listByUserFn: func(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error) {
			if userID != "user-1" {
				t.Fatalf("userID = %s, want user-1", userID)
			}
			if limit != 10 {
				t.Fatalf("limit = %d, want 10", limit)
			}
			return []domain.NotificationRecord{
				{ID: "rec-2", UserID: userID, EventType: "appointment.cancelled", Channels: domain.DefaultChannels(), Status: domain.NotificationSent},
				{ID: "rec-1", UserID: userID, EventType: "appointment.created", Channels: domain.DefaultChannels(), Status: domain.NotificationDelivered},
			}, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/notifications?userId=user-1&limit=10", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 2 {
		t.Fatalf("data len = %d, want 2", len(parsed.Data))
	}
	if parsed.Data[0]["id"] != "rec-2" {
		t.Fatalf("first id = %v, want newest first", parsed.Data[0]["id"])
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing userId", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications?userId=user-1&limit=1000", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized limit", resp.StatusCode)
	}
}

func TestNotificationIntegration_DeliveryStatusWebhook(t *testing.T) {
	t.Parallel()

	applied := map[string]domain.NotificationStatus{}
	svc := &stubDispatchService{
		applyDeliveryUpdateFn: func(ctx context.Context, externalTxnID string, status domain.NotificationStatus) error {
			applied[externalTxnID] = status
			return nil
		},
	}

	app := newNotificationTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/notifications/delivery-status", `{"transactionId":"ext-txn-1","status":"delivered"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if applied["ext-txn-1"] != domain.NotificationDelivered {
		t.Fatalf("applied = %v, want DELIVERED for ext-txn-1", applied)
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["acknowledged"] != true {
		t.Fatalf("acknowledged = %v, want true", parsed["acknowledged"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/notifications/delivery-status", `{"transactionId":"ext-txn-1","status":"bounced"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown status", resp.StatusCode)
	}
}

func TestNotificationIntegration_DeliveryStatusUnknownTxnStaysOK(t *testing.T) {
	t.Parallel()

	svc := &stubDispatchService{
		applyDeliveryUpdateFn: func(ctx context.Context, externalTxnID string, status domain.NotificationStatus) error {
			// The service treats unknown transactions as a no-op.
			return nil
		},
	}

	app := newNotificationTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/notifications/delivery-status", `{"transactionId":"unknown","status":"delivered"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 for unknown transaction", resp.StatusCode)
	}
}

func newNotificationTestApp(t *testing.T, svc DispatchService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterNotificationRoutes(app, svc); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}

	return app
}

type stubDispatchService struct {
	createAndSendFn       func(ctx context.Context, n *domain.NotificationRecord) (*domain.NotificationRecord, error)
	getByIDFn             func(ctx context.Context, id string) (*domain.NotificationRecord, error)
	listByUserFn          func(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error)
	applyDeliveryUpdateFn func(ctx context.Context, externalTxnID string, status domain.NotificationStatus) error
}

func (s *stubDispatchService) CreateAndSend(ctx context.Context, n *domain.NotificationRecord) (*domain.NotificationRecord, error) {
	return s.createAndSendFn(ctx, n)
}

func (s *stubDispatchService) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	return s.getByIDFn(ctx, id)
}

func (s *stubDispatchService) ListByUser(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error) {
	return s.listByUserFn(ctx, userID, limit)
}

func (s *stubDispatchService) ApplyDeliveryUpdate(ctx context.Context, externalTxnID string, status domain.NotificationStatus) error {
	return s.applyDeliveryUpdateFn(ctx, externalTxnID, status)
}
