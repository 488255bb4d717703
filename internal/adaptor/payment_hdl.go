package adaptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"travel-booking/internal/dto/request"
	"travel-booking/internal/dto/response"
	"travel-booking/internal/usecase"
	"travel-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxWebhookBody caps webhook payloads read into memory before verification.
const maxWebhookBody = 64 << 10

type PaymentHandler struct {
	intent  usecase.IntentService
	confirm usecase.ConfirmService
	webhook usecase.WebhookService
	refund  usecase.RefundService
	status  usecase.StatusService
	log     *zap.Logger
}

func NewPaymentHandler(service *usecase.Service, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		intent:  service.Intent,
		confirm: service.Confirm,
		webhook: service.Webhook,
		refund:  service.Refund,
		status:  service.Status,
		log:     log.With(zap.String("handler", "payment")),
	}
}

// CreateIntent handles POST /api/payments/intents (protected)
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	intent, err := h.intent.CreateIntent(r.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(w, err, "create payment intent")
		return
	}

	utils.ResponseCreated(w, intentMessage(intent.SandboxCapped, intent.Mock), intent)
}

// CreateGuestIntent handles POST /api/payments/guest/intents (public)
func (h *PaymentHandler) CreateGuestIntent(w http.ResponseWriter, r *http.Request) {
	var req request.GuestIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	intent, err := h.intent.CreateGuestIntent(r.Context(), &req)
	if err != nil {
		h.handleServiceError(w, err, "create guest payment intent")
		return
	}

	utils.ResponseCreated(w, intentMessage(intent.SandboxCapped, intent.Mock), intent)
}

// Confirm handles POST /api/payments/confirm (protected)
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	confirmation, err := h.confirm.Confirm(r.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(w, err, "confirm payment")
		return
	}

	utils.ResponseSuccess(w, confirmMessage(confirmation), confirmation)
}

// ConfirmGuest handles POST /api/payments/guest/confirm (public)
func (h *PaymentHandler) ConfirmGuest(w http.ResponseWriter, r *http.Request) {
	var req request.ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	confirmation, err := h.confirm.ConfirmGuest(r.Context(), &req)
	if err != nil {
		h.handleServiceError(w, err, "confirm guest payment")
		return
	}

	utils.ResponseSuccess(w, confirmMessage(confirmation), confirmation)
}

// Webhook handles POST /api/payments/webhook (signature-gated)
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.webhook.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.handleServiceError(w, err, "handle webhook")
		return
	}

	utils.ResponseSuccess(w, "Webhook received", result)
}

// GetStatus handles GET /api/payments/bookings/{id} (protected, owner only)
func (h *PaymentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	bookingID := chi.URLParam(r, "id")
	if bookingID == "" {
		utils.ResponseBadRequest(w, "Booking ID is required", nil)
		return
	}

	status, err := h.status.GetStatus(r.Context(), userID, bookingID)
	if err != nil {
		h.handleServiceError(w, err, "get payment status")
		return
	}

	utils.ResponseSuccess(w, "success", status)
}

// Refund handles POST /api/payments/bookings/{id}/refund (protected, owner only)
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	bookingID := chi.URLParam(r, "id")
	if bookingID == "" {
		utils.ResponseBadRequest(w, "Booking ID is required", nil)
		return
	}

	// an empty body asks for a full refund
	var req request.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	refund, err := h.refund.Refund(r.Context(), userID, bookingID, &req)
	if err != nil {
		h.handleServiceError(w, err, "refund payment")
		return
	}

	utils.ResponseSuccess(w, "Refund issued", refund)
}

func intentMessage(capped, mock bool) string {
	switch {
	case mock:
		return "Payment gateway unavailable, mock payment intent issued"
	case capped:
		return "Amount exceeds the sandbox limit and was capped"
	}
	return "Payment intent created"
}

func confirmMessage(c *response.ConfirmationResponse) string {
	if c.DuplicateRefundID != "" {
		return "Booking was already paid, duplicate payment refunded"
	}
	return "Payment confirmed"
}

// handleServiceError maps payment errors to HTTP responses
func (h *PaymentHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	errMsg := err.Error()

	switch {
	case errors.Is(err, usecase.ErrValidation):
		h.log.Warn(operation+" validation failed",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadRequest(w, errMsg, nil)

	case errors.Is(err, usecase.ErrNotFound):
		h.log.Warn(operation+" failed - not found",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseNotFound(w, errMsg)

	case errors.Is(err, usecase.ErrForbidden):
		h.log.Warn(operation+" failed - forbidden",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseForbidden(w, "You do not have access to this booking")

	case errors.Is(err, usecase.ErrAlreadyPaid):
		h.log.Warn(operation+" failed - already paid",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseConflict(w, errMsg)

	case errors.Is(err, usecase.ErrSignatureVerification):
		h.log.Warn(operation+" failed - bad signature",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadRequest(w, "Webhook signature verification failed", nil)

	case errors.Is(err, usecase.ErrPaymentNotSucceeded),
		errors.Is(err, usecase.ErrNoPaymentFound),
		errors.Is(err, usecase.ErrInvalidState):
		h.log.Warn(operation+" failed - invalid state",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadRequest(w, errMsg, nil)

	case errors.Is(err, usecase.ErrGatewayUnavailable):
		h.log.Error(operation+" failed - gateway unavailable",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseServiceUnavailable(w, "Payment gateway unavailable")

	default:
		h.log.Error("Failed to "+operation,
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
