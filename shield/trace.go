package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/adinject/idgen"
	"github.com/hazyhaar/adinject/kit"
)

var newTraceID = idgen.NanoID(8)

// TraceID tags each request with a trace id, echoed in X-Trace-ID, stored
// under kit.TraceIDKey and bound to a per-request logger under LoggerKey.
// An incoming X-Trace-ID header is reused.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" || len(traceID) > 64 {
			traceID = newTraceID()
		}

		ctx := kit.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
