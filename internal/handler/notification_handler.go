package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clinicore/backoffice/internal/domain"
)

const defaultUserListSize = 50

type DispatchService interface {
	CreateAndSend(ctx context.Context, n *domain.NotificationRecord) (*domain.NotificationRecord, error)
	GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error)
	ApplyDeliveryUpdate(ctx context.Context, externalTxnID string, status domain.NotificationStatus) error
}

type NotificationHandler struct {
	service DispatchService
}

func NewNotificationHandler(service DispatchService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service DispatchService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Post("/notifications/delivery-status", h.DeliveryStatus)

	return nil
}

type createNotificationRequest struct {
	UserID         string         `json:"userId"`
	EventType      string         `json:"eventType"`
	Locale         string         `json:"locale"`
	Brand          string         `json:"brand"`
	Channels       []string       `json:"channels"`
	Payload        map[string]any `json:"payload"`
	IdempotencyKey *string        `json:"idempotencyKey"`
}

type deliveryStatusRequest struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

type notificationResponse struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"userId"`
	EventType             string         `json:"eventType"`
	Locale                string         `json:"locale,omitempty"`
	Brand                 string         `json:"brand,omitempty"`
	Channels              []string       `json:"channels"`
	Status                string         `json:"status"`
	ExternalTransactionID *string        `json:"externalTransactionId,omitempty"`
	IdempotencyKey        *string        `json:"idempotencyKey,omitempty"`
	Payload               map[string]any `json:"payload,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		channel, err := domain.ParseChannel(raw)
		if err != nil {
			return toHTTPError(err)
		}
		channels = append(channels, channel)
	}

	record := domain.NotificationRecord{
		UserID:         strings.TrimSpace(req.UserID),
		EventType:      strings.TrimSpace(req.EventType),
		Locale:         strings.TrimSpace(req.Locale),
		Brand:          strings.TrimSpace(req.Brand),
		Channels:       channels,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
	}

	created, err := h.service.CreateAndSend(c.Context(), &record)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(created))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	record, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	if record == nil {
		return fiber.NewError(fiber.StatusNotFound, "notification not found")
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(record))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		return toHTTPError(fmt.Errorf("%w: userId is required", domain.ErrValidation))
	}

	limit := c.QueryInt("limit", defaultUserListSize)
	if limit < 1 || limit > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	records, err := h.service.ListByUser(c.Context(), userID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]notificationResponse, 0, len(records))
	for _, record := range records {
		r := record
		responses = append(responses, toNotificationResponse(&r))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

// DeliveryStatus handles the provider callback. Unknown transaction ids are
// acknowledged without effect so the provider does not keep retrying.
func (h *NotificationHandler) DeliveryStatus(c *fiber.Ctx) error {
	var req deliveryStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	status, err := domain.ParseNotificationStatus(req.Status)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.service.ApplyDeliveryUpdate(c.Context(), strings.TrimSpace(req.TransactionID), status); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"acknowledged": true,
	})
}

func toNotificationResponse(n *domain.NotificationRecord) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	channels := make([]string, 0, len(n.Channels))
	for _, channel := range n.Channels {
		channels = append(channels, channel.String())
	}

	return notificationResponse{
		ID:                    n.ID,
		UserID:                n.UserID,
		EventType:             n.EventType,
		Locale:                n.Locale,
		Brand:                 n.Brand,
		Channels:              channels,
		Status:                n.Status.String(),
		ExternalTransactionID: n.ExternalTransactionID,
		IdempotencyKey:        n.IdempotencyKey,
		Payload:               n.Payload,
		CreatedAt:             n.CreatedAt,
		UpdatedAt:             n.UpdatedAt,
	}
}
