package obs

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-pay/internal/common"
)

// NewLogger builds the process logger. format "console" or "text" switches
// to human-readable output for local runs; anything else stays JSON.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	default:
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// RequestLogger emits one structured log line per request, enriched with
// the trace ids and the authenticated user when present.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)

		route := RoutePatternFromContext(r.Context())
		if route == "" {
			route = r.URL.Path
		}

		evt := l.Logger.Info().
			Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", recorder.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", recorder.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context()))
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if userID, _ := common.UserID(r.Context()); strings.TrimSpace(userID) != "" {
			evt = evt.Str("user_id", userID)
		}
		if host := strings.TrimSpace(r.Host); host != "" {
			evt = evt.Str("host", host)
		}
		if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
			evt = evt.Str("remote_addr", addr)
		}
		evt.Msg("http_request")
	})
}
