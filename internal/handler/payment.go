package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jardiel79162-commits/remixhub/internal/auth"
	"github.com/jardiel79162-commits/remixhub/internal/service"
)

// PaymentHandler exposes the PIX credit store endpoints.
type PaymentHandler struct {
	paymentSvc *service.PaymentService
	logger     *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(paymentSvc *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentSvc: paymentSvc,
		logger:     logger,
	}
}

type createPaymentRequest struct {
	Credits int    `json:"credits"`
	CPF     string `json:"cpf"`
	SaveCPF bool   `json:"save_cpf"`
}

// HandleCreate creates a PIX payment and returns the QR code data.
//
// HTTP: POST /api/payments (requires auth)
func (h *PaymentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	checkout, err := h.paymentSvc.CreatePayment(r.Context(), userID, req.Credits, req.CPF, req.SaveCPF)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkout)
}

// HandleStatus reports a payment's status, polling the provider if needed.
//
// HTTP: GET /api/payments/{id}/status (requires auth)
func (h *PaymentHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	status, err := h.paymentSvc.CheckStatus(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// HandleRecover re-fetches the QR data for an interrupted pending checkout.
//
// HTTP: GET /api/payments/{id}/recover (requires auth)
func (h *PaymentHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	checkout, err := h.paymentSvc.RecoverPayment(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkout)
}

// HandleWebhook receives Mercado Pago payment notifications.
//
// HTTP: POST /api/payments/webhook — UNAUTHENTICATED: the provider calls it.
// The body is only trusted as far as the payment ID it names; everything
// else is re-fetched from the provider's API inside the service.
//
// The provider retries on non-2xx, so transient failures return 500 to get a
// retry; malformed bodies are acknowledged (a retry can't fix them).
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var n service.WebhookNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		h.logger.Warn("malformed webhook body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if err := h.paymentSvc.HandleWebhook(r.Context(), n); err != nil {
		h.logger.Error("webhook processing failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "webhook processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
