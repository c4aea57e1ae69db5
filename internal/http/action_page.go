package http

import (
	"embed"
	"html/template"
	"log/slog"
	"mime"
	"net/http"

	"github.com/example/studio-reminders/internal/application"
)

//go:embed templates/*.html.tmpl
var pageFiles embed.FS

var pageTemplates = template.Must(template.ParseFS(pageFiles, "templates/*.html.tmpl"))

const (
	confirmPage = "action_confirm.html.tmpl"
	resultPage  = "action_result.html.tmpl"

	formContentType = "application/x-www-form-urlencoded"
)

type confirmView struct {
	Title      string
	Prompt     string
	Submit     string
	FormAction string
	Token      string
}

type resultView struct {
	Title   string
	Message string
	Booking *bookingDTO
}

var confirmCopy = map[application.TokenKind]confirmView{
	application.TokenKindCancel: {
		Title:  "Cancel your booking",
		Prompt: "Press the button below to cancel your session. This cannot be undone.",
		Submit: "Cancel booking",
	},
	application.TokenKindModify: {
		Title:  "Change your booking",
		Prompt: "Press the button below and the studio will contact you to pick a new time.",
		Submit: "Request a change",
	},
}

var resultCopy = map[application.TokenKind]resultView{
	application.TokenKindCancel: {Title: "Booking cancelled", Message: "Your booking has been cancelled."},
	application.TokenKindModify: {Title: "Change requested", Message: "The studio will be in touch to reschedule your booking."},
}

// ConfirmCancel renders the page an emailed cancel link opens. It does not
// consume the token; the page posts it back to the same path.
func (h *ActionHandler) ConfirmCancel(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, application.TokenKindCancel)
}

// ConfirmModify is ConfirmCancel for modify links.
func (h *ActionHandler) ConfirmModify(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, application.TokenKindModify)
}

func (h *ActionHandler) confirm(w http.ResponseWriter, r *http.Request, kind application.TokenKind) {
	logger := handlerLogger(r.Context(), h.logger, "ActionHandler", "Confirm", "kind", string(kind))

	token := r.URL.Query().Get("token")
	if token == "" {
		h.renderPage(w, r, logger, http.StatusUnprocessableEntity, resultPage, resultView{
			Title:   "Link incomplete",
			Message: "This link is missing its token. Open it again from your email.",
		})
		return
	}

	view := confirmCopy[kind]
	view.FormAction = r.URL.Path
	view.Token = token
	h.renderPage(w, r, logger, http.StatusOK, confirmPage, view)
}

// redeemForm handles the confirmation form submission.
func (h *ActionHandler) redeemForm(w http.ResponseWriter, r *http.Request, kind application.TokenKind, logger *slog.Logger) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseForm(); err != nil {
		logger.WarnContext(r.Context(), "failed to parse redeem form", "error", err, "error_kind", "bad_request")
		h.renderPage(w, r, logger, http.StatusBadRequest, resultPage, resultView{
			Title:   "Something went wrong",
			Message: statusMessage(http.StatusBadRequest),
		})
		return
	}

	result, err := h.redeemer.Redeem(r.Context(), r.PostForm.Get("token"), kind)
	if err != nil {
		logger.InfoContext(r.Context(), "action link rejected", "error_kind", application.ErrorKind(err))
		status, body := serviceErrorResponse(err)
		message := body.Message
		if status == http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "unhandled service error", "error", err)
			message = statusMessage(status)
		}
		h.renderPage(w, r, logger, status, resultPage, resultView{Title: "This link cannot be used", Message: message})
		return
	}

	logger.InfoContext(r.Context(), "action link redeemed", "booking_id", result.Booking.ID)
	view := resultCopy[kind]
	dto := toRedemptionDTO(result).Booking
	view.Booking = &dto
	h.renderPage(w, r, logger, http.StatusOK, resultPage, view)
}

func (h *ActionHandler) renderPage(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, name string, view any) {
	header := w.Header()
	header.Set("Content-Type", "text/html; charset=utf-8")
	// The URL carries a live token.
	header.Set("Cache-Control", "no-store")
	header.Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(status)
	if err := pageTemplates.ExecuteTemplate(w, name, view); err != nil {
		logger.ErrorContext(r.Context(), "failed to render action page", "page", name, "error", err)
	}
}

func isFormPost(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == formContentType
}
