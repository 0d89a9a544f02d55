package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinicore/backoffice/internal/domain"
	"github.com/clinicore/backoffice/internal/observability"
	"github.com/clinicore/backoffice/internal/provider"
	"github.com/clinicore/backoffice/internal/ratelimit"
	"github.com/clinicore/backoffice/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const workflowSeparator = "-"

// WorkflowResolver maps an event type (and optionally brand) to the delivery
// provider's workflow name. Unmapped event types fall back to a separator
// substitution heuristic, e.g. "appointment.created" -> "appointment-created".
type WorkflowResolver struct {
	mapping map[string]string
}

func NewWorkflowResolver(mapping map[string]string) *WorkflowResolver {
	normalized := make(map[string]string, len(mapping))
	for event, workflow := range mapping {
		event = strings.ToLower(strings.TrimSpace(event))
		workflow = strings.TrimSpace(workflow)
		if event == "" || workflow == "" {
			continue
		}
		normalized[event] = workflow
	}
	return &WorkflowResolver{mapping: normalized}
}

func (r *WorkflowResolver) Resolve(eventType, brand string) string {
	key := strings.ToLower(strings.TrimSpace(eventType))
	if r != nil {
		if brand = strings.ToLower(strings.TrimSpace(brand)); brand != "" {
			if workflow, ok := r.mapping[key+"@"+brand]; ok {
				return workflow
			}
		}
		if workflow, ok := r.mapping[key]; ok {
			return workflow
		}
	}
	return strings.ReplaceAll(strings.ReplaceAll(key, ".", workflowSeparator), "_", workflowSeparator)
}

// DispatchService owns idempotent creation of notification records and their
// synchronous hand-off to the delivery provider.
type DispatchService struct {
	notifications repository.NotificationRepository
	provider      provider.TriggerProvider
	workflows     *WorkflowResolver
	rateLimiter   ratelimit.RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewDispatchService(
	notifications repository.NotificationRepository,
	triggerProvider provider.TriggerProvider,
	workflows *WorkflowResolver,
	rateLimiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*DispatchService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if triggerProvider == nil {
		return nil, fmt.Errorf("trigger provider is required")
	}
	if workflows == nil {
		workflows = NewWorkflowResolver(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		notifications: notifications,
		provider:      triggerProvider,
		workflows:     workflows,
		rateLimiter:   rateLimiter,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *DispatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// CreateAndSend creates a notification record (at most once per idempotency
// key) and hands it to the delivery provider. Delivery failure is absorbed
// into the record's status; the caller always receives a record, never a
// delivery error.
func (s *DispatchService) CreateAndSend(ctx context.Context, n *domain.NotificationRecord) (*domain.NotificationRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if n == nil {
		return nil, fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	n.UserID = strings.TrimSpace(n.UserID)
	n.EventType = strings.TrimSpace(n.EventType)
	n.Locale = strings.TrimSpace(n.Locale)
	n.Brand = strings.TrimSpace(n.Brand)
	n.IdempotencyKey = normalizeOptionalString(n.IdempotencyKey)
	if len(n.Channels) == 0 {
		n.Channels = domain.DefaultChannels()
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}

	if n.IdempotencyKey != nil {
		existing, err := s.notifications.GetByIdempotencyKey(ctx, *n.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	recordID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record id: %w", err)
	}
	n.ID = recordID.String()
	n.Status = domain.NotificationPending
	n.ExternalTransactionID = nil

	if err := s.notifications.Create(ctx, n); err != nil {
		existing, resolved, resolveErr := s.resolveIdempotencyConflict(ctx, err, n.IdempotencyKey)
		if resolveErr != nil {
			return nil, resolveErr
		}
		if resolved {
			return existing, nil
		}
		return nil, err
	}

	return s.Dispatch(ctx, n)
}

// Dispatch runs phase two for a persisted record: a single synchronous
// provider call, with the outcome written back as SENT or FAILED. Used by
// CreateAndSend and by the pending scanner reprocessing crashed dispatches.
func (s *DispatchService) Dispatch(ctx context.Context, n *domain.NotificationRecord) (*domain.NotificationRecord, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	if s.rateLimiter != nil {
		channel := domain.ChannelEmail
		if len(n.Channels) > 0 {
			channel = n.Channels[0]
		}
		if err := s.rateLimiter.Wait(ctx, strings.ToLower(channel.String())); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	req := provider.TriggerRequest{
		Workflow:      s.workflows.Resolve(n.EventType, n.Brand),
		TransactionID: n.ID,
		Recipient:     n.UserID,
		Payload:       s.enrichPayload(n),
	}

	triggerStart := s.now()
	resp, triggerErr := s.provider.Trigger(ctx, req)
	s.metrics.ObserveProviderTriggerDuration(n.EventType, s.now().Sub(triggerStart))

	status := domain.NotificationFailed
	externalTxnID := n.ID

	switch {
	case triggerErr != nil:
		s.logger.Warn("provider trigger failed",
			zap.String("notificationId", n.ID),
			zap.String("eventType", n.EventType),
			zap.Error(triggerErr),
		)
		s.metrics.IncNotificationFailed(n.EventType, "provider_error")
	case resp != nil && resp.Acknowledged:
		status = domain.NotificationSent
		if txnID := strings.TrimSpace(resp.TransactionID); txnID != "" {
			externalTxnID = txnID
		}
		s.metrics.IncNotificationSent(n.EventType)
	default:
		s.logger.Warn("provider rejected trigger",
			zap.String("notificationId", n.ID),
			zap.String("eventType", n.EventType),
			zap.Strings("providerErrors", providerErrors(resp)),
		)
		s.metrics.IncNotificationFailed(n.EventType, "not_acknowledged")
	}

	if err := s.notifications.UpdateDispatchOutcome(ctx, n.ID, status, externalTxnID); err != nil {
		return nil, fmt.Errorf("failed to record dispatch outcome: %w", err)
	}

	n.Status = status
	n.ExternalTransactionID = &externalTxnID
	n.UpdatedAt = s.now().UTC()
	return n, nil
}

// ApplyDeliveryUpdate handles the asynchronous provider callback. No matching
// record is a no-op so replayed or unknown callbacks never error; a match is
// applied last-write-wins.
func (s *DispatchService) ApplyDeliveryUpdate(ctx context.Context, externalTxnID string, status domain.NotificationStatus) error {
	externalTxnID = strings.TrimSpace(externalTxnID)
	if externalTxnID == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid notification status %q", domain.ErrValidation, status)
	}

	record, err := s.notifications.GetByExternalTransactionID(ctx, externalTxnID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("delivery update for unknown transaction, ignoring",
			zap.String("transactionId", externalTxnID),
			zap.String("status", status.String()),
		)
		return nil
	}
	if err != nil {
		return err
	}

	return s.notifications.UpdateStatus(ctx, record.ID, status)
}

// GetByID returns the record or nil when absent; absence is not an error.
func (s *DispatchService) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	record, err := s.notifications.GetByID(ctx, strings.TrimSpace(id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListByUser returns the user's records newest first, capped at limit.
func (s *DispatchService) ListByUser(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.notifications.ListByUser(ctx, strings.TrimSpace(userID), limit)
}

func (s *DispatchService) enrichPayload(n *domain.NotificationRecord) map[string]any {
	enriched := make(map[string]any, len(n.Payload)+4)
	for key, value := range n.Payload {
		enriched[key] = value
	}
	enriched["eventType"] = n.EventType
	enriched["userId"] = n.UserID
	if n.Locale != "" {
		enriched["locale"] = n.Locale
	}
	if n.Brand != "" {
		enriched["brand"] = n.Brand
	}
	return enriched
}

func (s *DispatchService) resolveIdempotencyConflict(
	ctx context.Context,
	createErr error,
	idempotencyKey *string,
) (*domain.NotificationRecord, bool, error) {
	if idempotencyKey == nil || strings.TrimSpace(*idempotencyKey) == "" {
		return nil, false, nil
	}
	if !isUniqueViolationError(createErr) {
		return nil, false, nil
	}

	existing, err := s.notifications.GetByIdempotencyKey(ctx, strings.TrimSpace(*idempotencyKey))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing notification after idempotency conflict: %w", err)
	}
	s.logger.Info("idempotency conflict resolved",
		zap.String("existingId", existing.ID),
		zap.String("idempotencyKey", *idempotencyKey),
	)
	return existing, true, nil
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func providerErrors(resp *provider.TriggerResponse) []string {
	if resp == nil {
		return nil
	}
	return resp.Errors
}
