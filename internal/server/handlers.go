package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/normalize"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/internal/policy"
)

// RunRequest is the body of the run endpoints and of a WebSocket frame.
type RunRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// apiError is an HTTP failure shaped as {"detail": "..."}.
type apiError struct {
	Status     int
	Detail     string
	RetryAfter time.Duration
}

func (e *apiError) Error() string { return e.Detail }

// preparedRun is a request that passed admission. Exactly one of refusal and
// input is meaningful: a refused request is answered without the loop.
type preparedRun struct {
	runtime *Runtime
	run     *agent.RunContext
	input   normalize.Input
	refusal *agent.Response
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.opts.Version,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, apiErr := decodeRunRequest(w, r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	prep, apiErr := s.prepare(r.Context(), req, clientID(r))
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	if prep.refusal != nil {
		writeJSON(w, http.StatusOK, prep.refusal)
		return
	}
	resp := s.execute(r.Context(), prep, nil)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, apiErr := decodeRunRequest(w, r)
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	prep, apiErr := s.prepare(r.Context(), req, clientID(r))
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev agent.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("failed to encode event", "type", ev.Type, "error", err)
			return
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	if prep.refusal != nil {
		send(agent.Event{Type: agent.EventDone, Response: prep.refusal})
		return
	}
	for ev := range s.stream(r.Context(), prep) {
		send(ev)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if rc, ok := s.runs.get(runID); ok {
		writeJSON(w, http.StatusOK, rc.Status())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "status": "unknown"})
}

// prepare runs admission for one request: abuse and rate checks in
// restrained mode, session assignment, normalization and the policy check.
func (s *Server) prepare(ctx context.Context, req RunRequest, client string) (*preparedRun, *apiError) {
	rt := s.current()
	if rt == nil || rt.Loop == nil {
		return nil, &apiError{Status: http.StatusServiceUnavailable, Detail: "Agent is not ready"}
	}

	if rt.Restrained {
		if s.opts.Abuse != nil {
			if reason := s.opts.Abuse.Check(req.Message, client); reason != "" {
				s.logger.WarnContext(ctx, "request blocked", "client_id", client, "reason", reason)
				return nil, &apiError{Status: http.StatusBadRequest, Detail: "Request blocked: " + reason}
			}
		}
		if !s.opts.Limiter.Allow(client) {
			return nil, &apiError{
				Status:     http.StatusTooManyRequests,
				Detail:     "Rate limit exceeded - please slow down",
				RetryAfter: s.opts.Limiter.WaitTime(client),
			}
		}
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	rc := agent.NewRunContext(sessionID, rt.Limits)
	s.runs.add(rc)

	input := normalize.Normalize(req.Message, rc.RunID, sessionID, req.Metadata)
	prep := &preparedRun{runtime: rt, run: rc, input: input}

	if rt.Restrained {
		if result := rt.Policy.Check(input.Content); !result.Allowed {
			s.logger.InfoContext(ctx, "request refused", "run_id", rc.RunID, "reason", result.Reason)
			rc.MarkStopped(result.Reason)
			prep.refusal = &agent.Response{
				RunID:       rc.RunID,
				SessionID:   sessionID,
				Message:     policy.RefusalMessage(result.Reason, result.Alternative),
				IsFinal:     true,
				ToolCalls:   []agent.ToolCall{},
				ToolResults: []agent.ToolCallResult{},
				Steps:       []agent.RunStep{},
				Timestamp:   time.Now().UTC(),
			}
		}
	}
	return prep, nil
}

// execute hands an admitted request to the loop. A "confirm" reply with a
// pending entry releases the held tool calls inside Process.
func (s *Server) execute(ctx context.Context, prep *preparedRun, emit agent.EventSink) *agent.Response {
	ctx = observability.AddRunID(observability.AddSessionID(ctx, prep.run.SessionID), prep.run.RunID)
	return prep.runtime.Loop.Process(ctx, agent.RunInput{
		Message:   prep.input.Content,
		SessionID: prep.run.SessionID,
		Run:       prep.run,
		Emit:      emit,
	})
}

// stream runs the loop in the background and yields its events. The channel
// closes after the done event once the run has returned.
func (s *Server) stream(ctx context.Context, prep *preparedRun) <-chan agent.Event {
	events := make(chan agent.Event, 64)
	go func() {
		defer close(events)
		s.execute(ctx, prep, func(ev agent.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return events
}

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (RunRequest, *apiError) {
	var req RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		return req, &apiError{Status: http.StatusUnprocessableEntity, Detail: "Invalid request body: " + err.Error()}
	}
	if apiErr := validateRunRequest(req); apiErr != nil {
		return req, apiErr
	}
	return req, nil
}

func validateRunRequest(req RunRequest) *apiError {
	if n := len([]rune(req.Message)); n < 1 || n > MaxMessageLength {
		return &apiError{
			Status: http.StatusUnprocessableEntity,
			Detail: fmt.Sprintf("message must be between 1 and %d characters", MaxMessageLength),
		}
	}
	return nil
}

// clientID identifies the caller for rate limiting: the first
// X-Forwarded-For entry, otherwise a hash of the remote host.
func clientID(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	sum := sha256.Sum256([]byte(host))
	return hex.EncodeToString(sum[:])[:16]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *apiError) {
	if err.RetryAfter > 0 {
		secs := int(math.Ceil(err.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, err.Status, map[string]string{"detail": err.Detail})
}
