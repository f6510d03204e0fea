// Package telemetry provides optional request-correlation and tracing
// middleware shared by the distributor and analyzer HTTP servers.
package telemetry

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/arclight-systems/logdist/core"
)

// HeaderRequestID is the HTTP header carrying (or receiving) the
// per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// CorrelationMiddleware stamps every request with a correlation ID
// (reusing one supplied by the caller in X-Request-ID, or minting a new
// one), stores it on the request context so core.ProductionLogger's
// *WithContext methods can surface it, and echoes it back on the
// response for the caller to correlate against its own logs.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := core.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
