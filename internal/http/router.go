package http

import (
	"net/http"
	"strings"
)

// RouterConfig lists the handlers to mount. Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Reminders *ReminderHandler
	Actions   *ActionHandler
	Health    *HealthHandler
	Metrics   http.Handler
	// TriggerAuth guards the dispatch trigger only.
	TriggerAuth func(http.Handler) http.Handler
	Middleware  []func(http.Handler) http.Handler
}

// NewRouter builds the service mux and wraps it in cfg.Middleware, outermost first.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Reminders != nil {
		var run http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Reminders.Run(w, r)
		})
		if cfg.TriggerAuth != nil {
			run = cfg.TriggerAuth(run)
		}
		mux.Handle("/reminders/run", run)
	}

	if cfg.Actions != nil {
		mux.HandleFunc("/booking/cancel", actionRoute(cfg.Actions.ConfirmCancel, cfg.Actions.Cancel))
		mux.HandleFunc("/booking/modify", actionRoute(cfg.Actions.ConfirmModify, cfg.Actions.Modify))
	}

	if cfg.Health != nil {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Health.Check(w, r)
		})
	}

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

// actionRoute serves the emailed link on GET and redeems on POST.
func actionRoute(confirm, redeem http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			confirm(w, r)
		case http.MethodPost:
			redeem(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
