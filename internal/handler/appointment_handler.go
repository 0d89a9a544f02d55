package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clinicore/backoffice/internal/domain"
	"github.com/clinicore/backoffice/internal/repository"
)

const (
	defaultPage         = 1
	defaultPageSize     = 50
	maxPageSize         = 100
	defaultUpcomingSize = 20
)

type SchedulingService interface {
	CreateAppointment(ctx context.Context, a *domain.Appointment) (*domain.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	List(ctx context.Context, params repository.AppointmentListParams) ([]domain.Appointment, int64, error)
	ListUpcoming(ctx context.Context, limit int) ([]domain.Appointment, error)
	IsDoctorAvailable(ctx context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error)
	RescheduleAppointment(ctx context.Context, id string, newStart, newEnd time.Time) (*domain.Appointment, error)
	CancelAppointment(ctx context.Context, id string, reason string) (*domain.Appointment, error)
	ConfirmAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	CheckInAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	StartAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	CompleteAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	MarkNoShow(ctx context.Context, id string) (*domain.Appointment, error)
}

type AppointmentHandler struct {
	service SchedulingService
}

func NewAppointmentHandler(service SchedulingService) (*AppointmentHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("scheduling service is required")
	}
	return &AppointmentHandler{service: service}, nil
}

func RegisterAppointmentRoutes(router fiber.Router, service SchedulingService) error {
	h, err := NewAppointmentHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/appointments", h.CreateAppointment)
	v1.Get("/appointments", h.ListAppointments)
	v1.Get("/appointments/upcoming", h.ListUpcoming)
	v1.Get("/appointments/availability", h.CheckAvailability)
	v1.Get("/appointments/:id", h.GetAppointment)
	v1.Post("/appointments/:id/reschedule", h.RescheduleAppointment)
	v1.Post("/appointments/:id/cancel", h.CancelAppointment)
	v1.Post("/appointments/:id/confirm", h.ConfirmAppointment)
	v1.Post("/appointments/:id/check-in", h.CheckInAppointment)
	v1.Post("/appointments/:id/start", h.StartAppointment)
	v1.Post("/appointments/:id/complete", h.CompleteAppointment)
	v1.Post("/appointments/:id/no-show", h.MarkNoShow)

	return nil
}

type createAppointmentRequest struct {
	PatientID string    `json:"patientId"`
	DoctorID  string    `json:"doctorId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Notes     string    `json:"notes"`
}

type rescheduleAppointmentRequest struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type appointmentResponse struct {
	ID                 string     `json:"id"`
	PatientID          string     `json:"patientId"`
	DoctorID           string     `json:"doctorId"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            time.Time  `json:"endTime"`
	Status             string     `json:"status"`
	Type               string     `json:"type"`
	Reason             string     `json:"reason,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CheckedInAt        *time.Time `json:"checkedInAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CancellationReason *string    `json:"cancellationReason,omitempty"`
	ReminderSent       bool       `json:"reminderSent"`
	ConfirmationSent   bool       `json:"confirmationSent"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type listAppointmentsResponse struct {
	Data []appointmentResponse `json:"data"`
	Meta listMeta              `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type availabilityResponse struct {
	DoctorID  string    `json:"doctorId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Available bool      `json:"available"`
}

func (h *AppointmentHandler) CreateAppointment(c *fiber.Ctx) error {
	var req createAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	appointmentType, err := domain.ParseAppointmentType(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	appointment := domain.Appointment{
		PatientID: strings.TrimSpace(req.PatientID),
		DoctorID:  strings.TrimSpace(req.DoctorID),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Type:      appointmentType,
		Reason:    strings.TrimSpace(req.Reason),
		Notes:     strings.TrimSpace(req.Notes),
	}

	created, err := h.service.CreateAppointment(c.Context(), &appointment)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toAppointmentResponse(created))
}

func (h *AppointmentHandler) GetAppointment(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	appointment, err := h.service.GetAppointment(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toAppointmentResponse(appointment))
}

func (h *AppointmentHandler) ListAppointments(c *fiber.Ctx) error {
	params, err := parseAppointmentListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	appointments, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listAppointmentsResponse{
		Data: toAppointmentResponses(appointments),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *AppointmentHandler) ListUpcoming(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultUpcomingSize)
	if limit < 1 || limit > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	appointments, err := h.service.ListUpcoming(c.Context(), limit)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": toAppointmentResponses(appointments),
	})
}

func (h *AppointmentHandler) CheckAvailability(c *fiber.Ctx) error {
	doctorID := strings.TrimSpace(c.Query("doctorId"))
	if doctorID == "" {
		return toHTTPError(fmt.Errorf("%w: doctorId is required", domain.ErrValidation))
	}

	start, err := parseRFC3339Query(c.Query("startTime"), "startTime")
	if err != nil {
		return toHTTPError(err)
	}
	end, err := parseRFC3339Query(c.Query("endTime"), "endTime")
	if err != nil {
		return toHTTPError(err)
	}
	if start == nil || end == nil {
		return toHTTPError(fmt.Errorf("%w: startTime and endTime are required", domain.ErrValidation))
	}

	available, err := h.service.IsDoctorAvailable(c.Context(), doctorID, *start, *end, strings.TrimSpace(c.Query("excludeAppointmentId")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(availabilityResponse{
		DoctorID:  doctorID,
		StartTime: *start,
		EndTime:   *end,
		Available: available,
	})
}

func (h *AppointmentHandler) RescheduleAppointment(c *fiber.Ctx) error {
	var req rescheduleAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(c.Params("id"))
	updated, err := h.service.RescheduleAppointment(c.Context(), id, req.StartTime, req.EndTime)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toAppointmentResponse(updated))
}

func (h *AppointmentHandler) CancelAppointment(c *fiber.Ctx) error {
	var req cancelAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(c.Params("id"))
	cancelled, err := h.service.CancelAppointment(c.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toAppointmentResponse(cancelled))
}

func (h *AppointmentHandler) ConfirmAppointment(c *fiber.Ctx) error {
	return h.transition(c, h.service.ConfirmAppointment)
}

func (h *AppointmentHandler) CheckInAppointment(c *fiber.Ctx) error {
	return h.transition(c, h.service.CheckInAppointment)
}

func (h *AppointmentHandler) StartAppointment(c *fiber.Ctx) error {
	return h.transition(c, h.service.StartAppointment)
}

func (h *AppointmentHandler) CompleteAppointment(c *fiber.Ctx) error {
	return h.transition(c, h.service.CompleteAppointment)
}

func (h *AppointmentHandler) MarkNoShow(c *fiber.Ctx) error {
	return h.transition(c, h.service.MarkNoShow)
}

func (h *AppointmentHandler) transition(
	c *fiber.Ctx,
	op func(ctx context.Context, id string) (*domain.Appointment, error),
) error {
	id := strings.TrimSpace(c.Params("id"))
	updated, err := op(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toAppointmentResponse(updated))
}

func parseAppointmentListParams(c *fiber.Ctx) (repository.AppointmentListParams, error) {
	params := repository.AppointmentListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.AppointmentListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.AppointmentListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if patientID := strings.TrimSpace(c.Query("patientId")); patientID != "" {
		params.PatientID = &patientID
	}
	if doctorID := strings.TrimSpace(c.Query("doctorId")); doctorID != "" {
		params.DoctorID = &doctorID
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseAppointmentStatus(rawStatus)
		if err != nil {
			return repository.AppointmentListParams{}, err
		}
		params.Status = &status
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.AppointmentListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.AppointmentListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toAppointmentResponses(appointments []domain.Appointment) []appointmentResponse {
	responses := make([]appointmentResponse, 0, len(appointments))
	for _, appointment := range appointments {
		a := appointment
		responses = append(responses, toAppointmentResponse(&a))
	}
	return responses
}

func toAppointmentResponse(a *domain.Appointment) appointmentResponse {
	if a == nil {
		return appointmentResponse{}
	}

	return appointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		DoctorID:           a.DoctorID,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Status:             a.Status.String(),
		Type:               a.Type.String(),
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

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
