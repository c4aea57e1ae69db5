package application

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

const displayDateLayout = "Monday, 2 January 2006"

var serviceLabels = map[string]string{
	"personal_training":      "Personal Training",
	"group_class":            "Group Class",
	"yoga":                   "Yoga",
	"pilates":                "Pilates",
	"hiit":                   "HIIT",
	"spin":                   "Spin Class",
	"boxing":                 "Boxing",
	"fitness_assessment":     "Fitness Assessment",
	"nutrition_consultation": "Nutrition Consultation",
	"sports_massage":         "Sports Massage",
}

// ServiceLabel returns the display label for a service code, or the code
// itself when it is not known.
func ServiceLabel(code string) string {
	if label, ok := serviceLabels[code]; ok {
		return label
	}
	return code
}

// RendererConfig configures notification rendering.
type RendererConfig struct {
	// BaseURL is the public origin that serves the booking action endpoints.
	BaseURL  string
	TokenTTL time.Duration
}

// Renderer produces category specific notification content. It performs no
// I/O and holds no mutable state, so one instance is shared by all pipelines.
type Renderer struct {
	baseURL      string
	linkValidity string
	html         *htmltemplate.Template
	text         *texttemplate.Template
}

type reminderView struct {
	ClientName   string
	ServiceLabel string
	Date         string
	Time         string
	Duration     string
	CancelURL    string
	ModifyURL    string
	LinkValidity string
}

// NewRenderer parses the embedded templates.
func NewRenderer(config RendererConfig) (*Renderer, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("renderer: base URL %q must be absolute", config.BaseURL)
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = DefaultTokenTTL
	}

	html, err := htmltemplate.ParseFS(templateFiles, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("renderer: parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFiles, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("renderer: parse text templates: %w", err)
	}

	return &Renderer{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		linkValidity: formatValidity(config.TokenTTL),
		html:         html,
		text:         text,
	}, nil
}

// Render builds the notification for booking. next_day reminders require
// links carrying both raw action tokens; other categories ignore links.
func (r *Renderer) Render(category Category, booking Booking, links *ActionLinks) (Notification, error) {
	view := reminderView{
		ClientName:   booking.ClientName,
		ServiceLabel: ServiceLabel(booking.ServiceType),
		Date:         formatDisplayDate(booking.Date),
		Time:         formatDisplayTime(booking.Time),
		Duration:     formatDuration(booking.DurationMinutes),
		LinkValidity: r.linkValidity,
	}

	var subject string
	switch category {
	case CategoryNextDay:
		if links == nil || links.CancelToken == "" || links.ModifyToken == "" {
			return Notification{}, ErrMissingActionTokens
		}
		view.CancelURL = r.ActionURL(TokenKindCancel, links.CancelToken)
		view.ModifyURL = r.ActionURL(TokenKindModify, links.ModifyToken)
		subject = fmt.Sprintf("Reminder: your %s session tomorrow at %s", view.ServiceLabel, view.Time)
	case CategoryImminent:
		subject = fmt.Sprintf("Starting soon: %s at %s", view.ServiceLabel, view.Time)
	case CategoryPostSession:
		subject = fmt.Sprintf("Thanks for your %s session today", view.ServiceLabel)
	default:
		return Notification{}, fmt.Errorf("%w: %q", ErrUnknownCategory, string(category))
	}

	var html, text bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, string(category)+".html.tmpl", view); err != nil {
		return Notification{}, fmt.Errorf("render %s html: %w", category, err)
	}
	if err := r.text.ExecuteTemplate(&text, string(category)+".txt.tmpl", view); err != nil {
		return Notification{}, fmt.Errorf("render %s text: %w", category, err)
	}

	return Notification{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

// ActionURL builds the absolute redemption link for a raw token.
func (r *Renderer) ActionURL(kind TokenKind, rawToken string) string {
	return r.baseURL + "/booking/" + string(kind) + "?token=" + url.QueryEscape(rawToken)
}

func formatDisplayDate(value string) string {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return value
	}
	return t.Format(displayDateLayout)
}

func formatDisplayTime(value string) string {
	trimmed := strings.TrimSpace(value)
	for _, layout := range []string{clockLayout, "15:04:05"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(clockLayout)
		}
	}
	return value
}

func formatDuration(minutes int) string {
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

func formatValidity(ttl time.Duration) string {
	switch {
	case ttl%(24*time.Hour) == 0:
		days := int(ttl / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case ttl%time.Hour == 0:
		hours := int(ttl / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		return ttl.String()
	}
}
