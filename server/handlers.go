package server

import (
	"fmt"
	"net/http"

	"github.com/petal-labs/pez/sequence"
)

// apiHandlerFunc is a route that reports failures as errors. Every API route
// is wrapped by api, which owns the translation of errors into responses.
type apiHandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) api(h apiHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// GET patterns also match HEAD, which would consume values nobody
		// receives.
		if r.Method == http.MethodHead {
			w.Header().Set("Allow", http.MethodGet)
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "HEAD is not supported; use GET")
			return
		}
		if err := h(w, r); err != nil {
			s.translateError(w, r, err)
		}
	})
}

// handleHealth reports the outcome of the latest store probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.probe != nil && !s.probe.Status().Up {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDispenseOne returns the next value of seq as a bare JSON number.
func (s *Server) handleDispenseOne(seq *sequence.Engine) apiHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		value, err := s.dispenser.DispenseOne(r.Context(), seq)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, value)
		return nil
	}
}

// handleDispenseBatch returns the next count values of seq as a JSON array
// in the order they were issued.
func (s *Server) handleDispenseBatch(seq *sequence.Engine) apiHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		req, err := ParseBatchRequest(r.URL.Query(), s.maxCount)
		if err != nil {
			return err
		}
		values, err := s.dispenser.DispenseBatch(r.Context(), seq, req.Count)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, values)
		return nil
	}
}

// capabilityDoc describes the batch resource for OPTIONS requests.
type capabilityDoc struct {
	Description string               `json:"description"`
	Verbs       []map[string]verbDoc `json:"verbs"`
}

type verbDoc struct {
	Parameters []map[string]string `json:"parameters"`
}

// handleBatchOptions describes the accepted parameters of the batch
// resource. It never touches the store.
func (s *Server) handleBatchOptions(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Allow", http.MethodGet)
	writeJSON(w, http.StatusOK, capabilityDoc{
		Description: "Generate a list of unique UINTs.",
		Verbs: []map[string]verbDoc{{
			http.MethodGet: {
				Parameters: []map[string]string{{
					countParam: fmt.Sprintf("URL parameter min value is %d; maximum is %d", minCount, s.maxCount),
				}},
			},
		}},
	})
	return nil
}
