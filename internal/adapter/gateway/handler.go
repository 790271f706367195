package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"weatherdine/internal/adapter/tool"
	"weatherdine/internal/domain"
	"weatherdine/internal/usecase"
	"weatherdine/internal/usecase/catalog"
	"weatherdine/internal/usecase/workflow"
)

const defaultRunsLimit = 20

// HandlerDeps holds dependencies needed by RPC and REST handlers.
type HandlerDeps struct {
	Agents    *catalog.Registry
	Workflows *workflow.Manager
	Tools     domain.ToolExecutor // can be nil
	Bus       domain.EventBus
	Logger    *slog.Logger
}

// RegisterDefaultHandlers registers all built-in RPC handlers on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("agents.list", agentListHandler(deps))
	s.RegisterHandler("collections.list", collectionListHandler(deps))
	s.RegisterHandler("agent.generate", agentGenerateHandler(deps))
	s.RegisterHandler("workflows.list", workflowListHandler(deps))
	s.RegisterHandler("workflow.run", workflowRunHandler(deps))
	s.RegisterHandler("workflow.get", workflowGetHandler(deps))
	s.RegisterHandler("workflow.runs", workflowRunsHandler(deps))
	s.RegisterHandler("tools.list", toolListHandler(deps))
	s.RegisterHandler("tools.call", toolCallHandler(deps))
}

// GenerateRequest asks an agent for one reply.
type GenerateRequest struct {
	AgentID    string `json:"agentId"`
	ThreadID   string `json:"threadId,omitempty"`
	ResourceID string `json:"resourceId,omitempty"`
	Message    string `json:"message"`
}

// GenerateResponse carries the agent's reply and the thread it was written to.
type GenerateResponse struct {
	AgentID  string `json:"agentId"`
	ThreadID string `json:"threadId"`
	Reply    string `json:"reply"`
}

// generate runs req against the catalog. An empty thread ID starts a new
// thread; an empty resource ID falls back to the client name.
func generate(ctx context.Context, deps HandlerDeps, client *ClientInfo, req GenerateRequest) (*GenerateResponse, error) {
	if req.Message == "" {
		return nil, domain.NewDomainError("gateway.generate", domain.ErrRPCInvalidPayload, "message is required")
	}
	inst, err := deps.Agents.Get(req.AgentID)
	if err != nil {
		return nil, err
	}
	if req.ThreadID == "" {
		req.ThreadID = usecase.NewThreadID()
	}
	if req.ResourceID == "" && client != nil {
		req.ResourceID = client.Name
	}
	reply, err := inst.Generate(ctx, req.ThreadID, req.ResourceID, req.Message)
	if err != nil {
		return nil, err
	}
	return &GenerateResponse{AgentID: req.AgentID, ThreadID: req.ThreadID, Reply: reply}, nil
}

func agentListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Agents.List())
	}
}

func collectionListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Agents.Collections())
	}
}

func agentGenerateHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req GenerateRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		resp, err := generate(ctx, deps, client, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}

func workflowListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Workflows.List())
	}
}

func workflowRunHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req struct {
			WorkflowID string          `json:"workflowId"`
			Input      json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		run, err := deps.Workflows.Run(ctx, req.WorkflowID, req.Input)
		if err != nil {
			return nil, err
		}
		return json.Marshal(run)
	}
}

func workflowGetHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req struct {
			RunID string `json:"runId"`
		}
		if err := json.Unmarshal(payload, &req); err != nil || req.RunID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		run, err := deps.Workflows.GetRun(ctx, req.RunID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(run)
	}
}

func workflowRunsHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req struct {
			Limit int `json:"limit"`
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, domain.ErrRPCInvalidPayload
			}
		}
		if req.Limit <= 0 {
			req.Limit = defaultRunsLimit
		}
		runs, err := deps.Workflows.ListRuns(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		if runs == nil {
			runs = []domain.WorkflowRun{}
		}
		return json.Marshal(runs)
	}
}

func toolListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		if deps.Tools == nil {
			return json.Marshal([]domain.ToolSchema{})
		}
		return json.Marshal(deps.Tools.Schemas())
	}
}

func toolCallHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req struct {
			Name   string          `json:"name"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(payload, &req); err != nil || req.Name == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		if deps.Tools == nil {
			return nil, domain.NewDomainError("gateway.tools.call", domain.ErrToolNotFound, req.Name)
		}
		res, err := tool.Call(ctx, deps.Tools, deps.Bus, "gateway", req.Name, req.Params)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
}
