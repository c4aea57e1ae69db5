package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/studio-reminders/internal/application"
)

type tokenRedeemer interface {
	Redeem(ctx context.Context, raw string, kind application.TokenKind) (application.RedeemResult, error)
}

// ActionHandler redeems cancel and modify links.
type ActionHandler struct {
	redeemer  tokenRedeemer
	responder responder
	logger    *slog.Logger
}

// NewActionHandler constructs an ActionHandler backed by redeemer.
func NewActionHandler(redeemer tokenRedeemer, logger *slog.Logger) *ActionHandler {
	base := defaultLogger(logger)
	return &ActionHandler{redeemer: redeemer, responder: newResponder(base), logger: base}
}

type redeemRequest struct {
	Token string `json:"token"`
}

type bookingDTO struct {
	ID              string `json:"id"`
	ClientName      string `json:"clientName"`
	ServiceType     string `json:"serviceType"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"durationMinutes"`
	Status          string `json:"status"`
}

type redemptionDTO struct {
	Action  string     `json:"action"`
	Booking bookingDTO `json:"booking"`
}

func toRedemptionDTO(result application.RedeemResult) redemptionDTO {
	b := result.Booking
	return redemptionDTO{
		Action: string(result.Kind),
		Booking: bookingDTO{
			ID:              b.ID,
			ClientName:      b.ClientName,
			ServiceType:     b.ServiceType,
			Date:            b.Date,
			Time:            b.Time,
			DurationMinutes: b.DurationMinutes,
			Status:          string(b.Status),
		},
	}
}

// Cancel redeems a cancel token posted as JSON or from the confirmation form.
func (h *ActionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.redeem(w, r, application.TokenKindCancel)
}

// Modify redeems a modify token posted as JSON or from the confirmation form.
func (h *ActionHandler) Modify(w http.ResponseWriter, r *http.Request) {
	h.redeem(w, r, application.TokenKindModify)
}

func (h *ActionHandler) redeem(w http.ResponseWriter, r *http.Request, kind application.TokenKind) {
	if h == nil || h.redeemer == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := handlerLogger(r.Context(), h.logger, "ActionHandler", "Redeem", "kind", string(kind))
	if isFormPost(r) {
		h.redeemForm(w, r, kind, logger)
		return
	}

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode redeem request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", err)
		return
	}

	result, err := h.redeemer.Redeem(r.Context(), req.Token, kind)
	if err != nil {
		logger.InfoContext(r.Context(), "action link rejected", "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "action link redeemed", "booking_id", result.Booking.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRedemptionDTO(result))
}
