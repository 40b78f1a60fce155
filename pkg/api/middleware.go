package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ridha-boughediri/mys3/pkg/bus"
	"github.com/ridha-boughediri/mys3/pkg/engine"
	"github.com/ridha-boughediri/mys3/pkg/model"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func recoverMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.ErrorContext(r.Context(), "panic recovered",
						"operation", "http_panic_recovery",
						"outcome", "failure",
						"request_id", requestIDFromContext(r.Context()),
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec,
					)
					writeError(w, http.StatusInternalServerError, "InternalError", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if r.statusCode == 0 {
		r.statusCode = statusCode
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) status() int {
	if r.statusCode == 0 {
		return http.StatusOK
	}
	return r.statusCode
}

func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			statusCode := recorder.status()
			outcome := "success"
			if statusCode >= 400 {
				outcome = "failure"
			}
			fields := []any{
				"operation", "http_request",
				"outcome", outcome,
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", statusCode,
				"bytes", recorder.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestIDFromContext(r.Context()),
			}
			switch {
			case statusCode >= 500:
				log.ErrorContext(r.Context(), "http request completed", fields...)
			case statusCode >= 400:
				log.WarnContext(r.Context(), "http request completed", fields...)
			default:
				log.InfoContext(r.Context(), "http request completed", fields...)
			}
		})
	}
}

// completionMiddleware publishes request-finished after the handler returns,
// whatever the outcome. Publishing is synchronous, so subscribers have run
// before the next request on the bus is announced.
func completionMiddleware(events engine.Publisher, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			if events == nil {
				return
			}
			evt := model.NewCompletionEvent(model.RequestConfig{
				Verb:      r.Method,
				Path:      r.URL.Path,
				Status:    recorder.status(),
				RequestID: requestIDFromContext(r.Context()),
			})
			if err := events.Publish(context.WithoutCancel(r.Context()), bus.EventRequestFinished, evt); err != nil {
				log.WarnContext(r.Context(), "publish completion failed",
					"operation", "publish_completion",
					"outcome", "failure",
					"event_id", evt.ID,
					"error", err,
				)
			}
		})
	}
}
