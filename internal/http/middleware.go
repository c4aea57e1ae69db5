package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/studio-reminders/internal/application"
)

// SecretVerifier checks a presented trigger secret.
type SecretVerifier func(secret string) error

// ArgonSecretVerifier verifies secrets against an encoded argon2id hash.
func ArgonSecretVerifier(encodedHash string) SecretVerifier {
	return func(secret string) error {
		return application.VerifySecret(encodedHash, secret)
	}
}

// RequireTriggerSecret rejects requests whose bearer token does not verify.
func RequireTriggerSecret(verify SecretVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := bearerToken(r)
			if secret == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="reminders"`)
				responder.writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", errMissingSecret)
				return
			}

			if err := verify(secret); err != nil {
				if !errors.Is(err, application.ErrUnauthorized) {
					responder.loggerFor(r.Context()).ErrorContext(r.Context(), "trigger secret verification failed", "error", err)
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="reminders"`)
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
					ErrorCode: "UNAUTHORIZED",
					Message:   statusMessage(http.StatusUnauthorized),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// RequestLogger attaches a request scoped logger and identifier to every
// request and logs its completion. Query strings are never logged because
// action links carry tokens there.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithRequestID(ContextWithLogger(r.Context(), logger), id)
			w.Header().Set("X-Request-ID", id)
			recorder := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r.WithContext(ctx))

			status := recorder.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.InfoContext(ctx, "request completed", "status", status, "duration", time.Since(start))
		})
	}
}
