package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/petal-labs/pez/store"
)

// translateError maps a handler failure to a client response. Store faults
// become 503 with Retry-After and bad parameters become 400. Anything else is
// a 500. Internal error text is logged and never written to the client.
func (s *Server) translateError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *ParamError
	switch {
	case errors.As(err, &perr):
		writeError(w, http.StatusBadRequest, "INVALID_COUNT", perr.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful can be written.
		s.logger.Debug("request canceled", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
	case errors.Is(err, store.ErrUnavailable):
		s.logger.Error("counter store unavailable",
			append([]any{"path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err}, traceAttrs(r.Context())...)...)
		w.Header().Set("Retry-After", strconv.Itoa(int(s.retryAfter.Seconds())))
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Database is temporarily unavailable")
	default:
		s.logger.Error("request failed",
			append([]any{"path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err}, traceAttrs(r.Context())...)...)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
