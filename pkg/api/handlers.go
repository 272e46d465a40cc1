package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ssargent/rowbench/pkg/procedure"
)

// maxBodySize bounds a call body. Rows are capped by the encoder buffer, so
// this leaves room for a full 1 MiB row after base64 expansion.
const maxBodySize = 4 << 20

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// handleCall runs a single-partition procedure and returns its Response.
// A procedure that ran and failed is still a 200; the status is in the body.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "name")

	args, ok := s.readArgs(w, r)
	if !ok {
		return
	}

	resp, err := s.session.Call(r.Context(), name, args...)
	if err != nil {
		s.callFailed(w, r, name, err)
		return
	}

	s.metrics.RecordProcedureCall(name, resp.Status.String(), time.Since(start))
	if !resp.OK() {
		s.logger.Debug("procedure failed",
			zap.String("procedure", name),
			zap.String("status", resp.Status.String()),
			zap.String("message", resp.StatusString),
			zap.String("request_id", r.Header.Get(HeaderRequestID)))
	}
	sendSuccess(w, resp)
}

// handleCallAllPartitions runs a partitioned procedure on every partition
func (s *Server) handleCallAllPartitions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "name")

	args, ok := s.readArgs(w, r)
	if !ok {
		return
	}

	responses, err := s.session.CallAllPartitions(r.Context(), name, args...)
	if err != nil {
		s.callFailed(w, r, name, err)
		return
	}

	failed := 0
	for _, pr := range responses {
		if !pr.Response.OK() {
			failed++
		}
	}
	status := procedure.StatusSuccess.String()
	if failed > 0 {
		status = "PARTIAL"
	}
	s.metrics.RecordProcedureCall(name, status, time.Since(start))
	s.metrics.RecordPartitionFailures(name, failed)

	sendSuccess(w, responses)
}

func (s *Server) readArgs(w http.ResponseWriter, r *http.Request) ([]interface{}, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	if len(body) > maxBodySize {
		sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}

	var req CallRequest
	if err := json.Unmarshal(body, &req); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return nil, false
	}
	return procedure.FromParams(req.Params), true
}

func (s *Server) callFailed(w http.ResponseWriter, r *http.Request, name string, err error) {
	s.logger.Warn("procedure call failed",
		zap.String("procedure", name),
		zap.String("request_id", r.Header.Get(HeaderRequestID)),
		zap.Error(err))

	code := http.StatusInternalServerError
	if errors.Is(err, procedure.ErrSessionClosed) {
		code = http.StatusServiceUnavailable
	}
	sendError(w, err.Error(), code)
}
