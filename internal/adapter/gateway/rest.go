package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"weatherdine/internal/domain"
)

const maxBodyBytes = 1 << 20

// RegisterRESTHandlers registers the HTTP API on the gateway server and
// returns the metric counters fed by the event bus.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) *Metrics {
	startTime := time.Now()
	metrics := NewMetrics(deps.Bus)

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			info, err := s.auth.Authenticate(requestToken(r))
			if err != nil {
				writeError(w, domain.ErrGatewayAuthFailed)
				return
			}
			next(w, r.WithContext(withClient(r.Context(), info)))
		}
	}

	s.RegisterHTTPRoute("GET /api/agents", authMiddleware(restListAgents(deps)))
	s.RegisterHTTPRoute("GET /api/collections", authMiddleware(restListCollections(deps)))
	s.RegisterHTTPRoute("POST /api/agents/{id}/generate", authMiddleware(restGenerate(deps)))
	s.RegisterHTTPRoute("GET /api/workflows", authMiddleware(restListWorkflows(deps)))
	s.RegisterHTTPRoute("POST /api/workflows/{id}/run", authMiddleware(restRunWorkflow(deps)))
	s.RegisterHTTPRoute("GET /api/workflows/runs", authMiddleware(restListRuns(deps)))
	s.RegisterHTTPRoute("GET /api/workflows/runs/{runId}", authMiddleware(restGetRun(deps)))
	s.RegisterHTTPRoute("GET /api/status", authMiddleware(statusHandler(deps, startTime, metrics, s.ClientCount)))
	s.RegisterHTTPRoute("GET /metrics", authMiddleware(metricsHandler(deps, startTime, metrics, s.ClientCount)))

	return metrics
}

func restListAgents(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"agents": deps.Agents.List()})
	}
}

func restListCollections(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"collections": deps.Agents.Collections()})
	}
}

func restGenerate(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		req.AgentID = r.PathValue("id")
		resp, err := generate(r.Context(), deps, clientFrom(r.Context()), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func restListWorkflows(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"workflows": deps.Workflows.List()})
	}
}

// restRunWorkflow accepts either {"input": {...}} or the bare input object.
func restRunWorkflow(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		input := body
		var wrapped struct {
			Input json.RawMessage `json:"input"`
		}
		if json.Unmarshal(body, &wrapped) == nil && len(wrapped.Input) > 0 {
			input = wrapped.Input
		}
		run, err := deps.Workflows.Run(r.Context(), r.PathValue("id"), input)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if run.Status == domain.RunStatusFailed {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, run)
	}
}

func restListRuns(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := deps.Workflows.ListRuns(r.Context(), defaultRunsLimit)
		if err != nil {
			writeError(w, err)
			return
		}
		if runs == nil {
			runs = []domain.WorkflowRun{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

func restGetRun(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := deps.Workflows.GetRun(r.Context(), r.PathValue("runId"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return domain.NewDomainError("gateway.decodeBody", domain.ErrRPCInvalidPayload, err.Error())
	}
	if len(data) == 0 {
		data = []byte(`{}`)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.NewDomainError("gateway.decodeBody", domain.ErrRPCInvalidPayload, err.Error())
	}
	return nil
}

// ErrorBody is the JSON error envelope returned by the REST API.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorBody{Error: err.Error(), Code: string(domain.ErrorCodeOf(err))})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrToolNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrRPCInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLimitReached), errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrProviderError), errors.Is(err, domain.ErrCircuitOpen):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
