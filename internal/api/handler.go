// Package api maps the notification service and mail dispatcher onto
// HTTP routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avisolabs/aviso/internal/mail"
	"github.com/avisolabs/aviso/internal/metrics"
	"github.com/avisolabs/aviso/internal/notification"
	"github.com/avisolabs/aviso/internal/redis"
	"github.com/avisolabs/aviso/internal/template"
)

// NotificationService is the notification contract the handlers depend on.
type NotificationService interface {
	Create(ctx context.Context, targetUserIDs []string, typ notification.Type, multimediaID *string, targetMails []string) (*notification.Notification, error)
	FindAll(ctx context.Context) ([]*notification.Notification, error)
	FindOne(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	Update(ctx context.Context, id uuid.UUID, patch notification.Patch) (*notification.Notification, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	MarkAsOpened(ctx context.Context, id uuid.UUID, viewerID string) (*notification.Notification, error)
	ForUser(ctx context.Context, userID string) ([]*notification.Notification, error)
}

// MailDispatcher is the mail contract the handlers depend on.
type MailDispatcher interface {
	SendMail(ctx context.Context, msg *mail.Message) (*mail.Receipt, error)
	SendMailWithTemplate(ctx context.Context, msg *mail.Message, templateName string) (*mail.Receipt, error)
}

// ErrorResponse is the problem+json error body.
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for the API handlers.
type Handler struct {
	logger      *zap.Logger
	svc         NotificationService
	dispatcher  MailDispatcher
	idempotency *redis.IdempotencyService // nil if Redis not configured
}

// NewHandler creates an API handler. idempotency may be nil, which
// disables Idempotency-Key support on create.
func NewHandler(logger *zap.Logger, svc NotificationService, dispatcher MailDispatcher, idempotency *redis.IdempotencyService) *Handler {
	return &Handler{
		logger:      logger,
		svc:         svc,
		dispatcher:  dispatcher,
		idempotency: idempotency,
	}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/notifications", h.CreateNotification)
		r.Get("/notifications", h.ListNotifications)
		r.Get("/notifications/{id}", h.GetNotification)
		r.Patch("/notifications/{id}", h.UpdateNotification)
		r.Delete("/notifications/{id}", h.DeleteNotification)
		r.Post("/notifications/{id}/open", h.OpenNotification)
		r.Get("/users/{userID}/notifications", h.ListUserNotifications)
		r.Post("/mail", h.SendMail)
	})
}

type createNotificationRequest struct {
	TargetUserIDs []string `json:"target_user_ids"`
	TargetMails   []string `json:"target_mails,omitempty"`
	Type          string   `json:"type"`
	MultimediaID  *string  `json:"multimedia_id,omitempty"`
}

// CreateNotification handles POST /v1/notifications. Supports
// deduplication via the Idempotency-Key header when Redis is available.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" && h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(ctx, idempotencyKey)
		if errors.Is(err, redis.ErrDuplicateRequest) {
			h.writeError(w, http.StatusConflict, "duplicate_request", "Request already in progress", "a request with this Idempotency-Key is still being processed")
			return
		}
		if err != nil {
			h.logger.Warn("idempotency check failed, proceeding without it",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cached != nil {
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": cached.NotificationID})
			return
		}
	}

	n, err := h.svc.Create(ctx, req.TargetUserIDs, notification.Type(req.Type), req.MultimediaID, req.TargetMails)
	if err != nil {
		if idempotencyKey != "" && h.idempotency != nil {
			_ = h.idempotency.Release(ctx, idempotencyKey)
		}
		h.writeServiceError(w, err)
		return
	}

	if idempotencyKey != "" && h.idempotency != nil {
		result := &redis.IdempotencyResult{
			NotificationID: n.ID.String(),
			StatusCode:     http.StatusCreated,
		}
		if err := h.idempotency.Store(ctx, idempotencyKey, result); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	h.writeJSON(w, http.StatusCreated, n)
}

// ListNotifications handles GET /v1/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.svc.FindAll(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  notifications,
		"count": len(notifications),
	})
}

// GetNotification handles GET /v1/notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	n, err := h.svc.FindOne(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, n)
}

// UpdateNotification handles PATCH /v1/notifications/{id}. The patch is
// shallow-merged without re-validating targeting shape.
func (h *Handler) UpdateNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var patch notification.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	n, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, n)
}

// DeleteNotification handles DELETE /v1/notifications/{id}.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.SoftDelete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type openNotificationRequest struct {
	ViewerID string `json:"viewer_id"`
}

// OpenNotification handles POST /v1/notifications/{id}/open.
func (h *Handler) OpenNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req openNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if _, err := uuid.Parse(req.ViewerID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid viewer_id", "viewer_id must be a valid UUID")
		return
	}

	n, err := h.svc.MarkAsOpened(r.Context(), id, req.ViewerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, n)
}

// ListUserNotifications handles GET /v1/users/{userID}/notifications.
func (h *Handler) ListUserNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := uuid.Parse(userID); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user id", "userID must be a valid UUID")
		return
	}

	notifications, err := h.svc.ForUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  notifications,
		"count": len(notifications),
	})
}

type sendMailRequest struct {
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	HTML      string            `json:"html,omitempty"`
	Text      string            `json:"text,omitempty"`
	Template  string            `json:"template,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// SendMail handles POST /v1/mail. Email delivery is independent of any
// notification record; a caller wanting both creates them separately.
func (h *Handler) SendMail(w http.ResponseWriter, r *http.Request) {
	var req sendMailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	msg := &mail.Message{
		To:        req.To,
		Subject:   req.Subject,
		HTML:      req.HTML,
		Text:      req.Text,
		Variables: req.Variables,
	}

	var (
		receipt *mail.Receipt
		err     error
	)
	if req.Template != "" {
		receipt, err = h.dispatcher.SendMailWithTemplate(r.Context(), msg, req.Template)
	} else {
		receipt, err = h.dispatcher.SendMail(r.Context(), msg)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps domain errors onto HTTP statuses: validation
// and state errors are the caller's fault, template and delivery
// failures are ours.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var ve *notification.ValidationError
	switch {
	case errors.As(err, &ve):
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid input", ve.Error())
	case errors.Is(err, mail.ErrInvalidMessage):
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid message", err.Error())
	case errors.Is(err, notification.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
	case errors.Is(err, notification.ErrAlreadyOpened):
		h.writeError(w, http.StatusConflict, "already_opened", "Notification already opened", "")
	case errors.Is(err, template.ErrTemplateNotFound):
		h.writeError(w, http.StatusInternalServerError, "template_error", "Unknown template", err.Error())
	default:
		var derr *mail.DeliveryError
		if errors.As(err, &derr) {
			h.writeError(w, http.StatusBadGateway, "delivery_error", "Mail delivery failed", derr.Error())
			return
		}
		h.logger.Error("internal error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
