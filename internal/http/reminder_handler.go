package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/studio-reminders/internal/application"
)

type reminderDispatcher interface {
	Run(ctx context.Context, category application.Category) (application.Report, error)
}

// ReminderHandler serves the inbound dispatch trigger.
type ReminderHandler struct {
	dispatcher reminderDispatcher
	responder  responder
	logger     *slog.Logger
}

// NewReminderHandler constructs a ReminderHandler that runs dispatcher.
func NewReminderHandler(dispatcher reminderDispatcher, logger *slog.Logger) *ReminderHandler {
	base := defaultLogger(logger)
	return &ReminderHandler{dispatcher: dispatcher, responder: newResponder(base), logger: base}
}

type runRequest struct {
	Category string `json:"category"`
}

// DeliveryResponse is the wire form of one pipeline outcome.
type DeliveryResponse struct {
	BookingID         string `json:"bookingId"`
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ReportResponse is the wire form of a dispatch report.
type ReportResponse struct {
	Category   string             `json:"category"`
	Total      int                `json:"total"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	Details    []DeliveryResponse `json:"details"`
}

// NewReportResponse converts report for serialization. Details is never null.
func NewReportResponse(report application.Report) ReportResponse {
	details := make([]DeliveryResponse, 0, len(report.Details))
	for _, d := range report.Details {
		details = append(details, DeliveryResponse{
			BookingID:         d.BookingID,
			Success:           d.Success,
			ProviderMessageID: d.ProviderMessageID,
			Error:             d.Error,
		})
	}
	return ReportResponse{
		Category:   string(report.Category),
		Total:      report.Total,
		Successful: report.Successful,
		Failed:     report.Failed,
		Skipped:    report.Skipped,
		Details:    details,
	}
}

// Run decodes the category and writes the dispatch report.
func (h *ReminderHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.dispatcher == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		handlerLogger(r.Context(), h.logger, "ReminderHandler", "Run", "error_kind", "bad_request").
			WarnContext(r.Context(), "failed to decode run request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", err)
		return
	}

	logger := handlerLogger(r.Context(), h.logger, "ReminderHandler", "Run", "category", req.Category)

	// Pipelines are detached from the request inside the dispatcher, so a
	// client disconnect does not abandon a started run.
	report, err := h.dispatcher.Run(r.Context(), application.Category(req.Category))
	if err != nil {
		logger.ErrorContext(r.Context(), "reminder run rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reminder run served", "total", report.Total, "failed", report.Failed)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, NewReportResponse(report))
}
