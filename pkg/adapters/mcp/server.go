// Package mcp exposes the task control surface as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/pkg/domain"
	"github.com/aretw0/stagecraft/pkg/schema"
)

// AgentsURI is the resource listing the known agents.
const AgentsURI = "stagecraft://agents"

// Tasks is the task layer as seen by the MCP tools.
type Tasks interface {
	Submit(ctx context.Context, agents []string, vars map[string]any) (*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context) ([]*domain.Task, error)
	Active() []string
	Stop(ctx context.Context, id string) error
}

// Agents validates and lists agent configurations.
type Agents interface {
	Validate(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}

// SubmitResponse is the structured result of submit_task.
type SubmitResponse struct {
	ID     string        `json:"id" jsonschema_description:"The task id"`
	Status domain.Status `json:"status" jsonschema_description:"The task status at submission"`
}

// ValidateResponse is the result of validate_agent.
type ValidateResponse struct {
	Agent  string   `json:"agent"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Server wraps the task layer and exposes it as an MCP server.
type Server struct {
	tasks     Tasks
	agents    Agents
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new MCP server named stagecraft-mcp.
func NewServer(tasks Tasks, agents Agents, version string, opts ...Option) *Server {
	s := &Server{
		tasks:     tasks,
		agents:    agents,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("stagecraft-mcp", strings.TrimSpace(version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("submit_task",
		mcp.WithDescription("Submit a task running the given agents sequentially. Returns the task id."),
		mcp.WithString("agents", mcp.Required(), mcp.Description("Comma-separated agent names, in run order")),
		mcp.WithString("context", mcp.Description("JSON object seeding the run context (optional)")),
		mcp.WithOutputSchema[SubmitResponse](),
	), mcp.NewStructuredToolHandler(s.handleSubmit))

	s.mcpServer.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get the lifecycle record of a task, with the per-agent result trees."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
	), s.handleGet)

	s.mcpServer.AddTool(mcp.NewTool("stop_task",
		mcp.WithDescription("Stop a task. The running agent stops at its next stage boundary."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
	), s.handleStop)

	s.mcpServer.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List the ids of the active tasks."),
	), s.handleList)

	s.mcpServer.AddTool(mcp.NewTool("validate_agent",
		mcp.WithDescription("Load an agent configuration and report every problem found."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent name")),
	), s.handleValidate)
}

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (SubmitResponse, error) {
	raw, _ := args["agents"].(string)
	var agents []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			agents = append(agents, a)
		}
	}

	var vars map[string]any
	if ctxStr, ok := args["context"].(string); ok && ctxStr != "" {
		if err := json.Unmarshal([]byte(ctxStr), &vars); err != nil {
			return SubmitResponse{}, fmt.Errorf("invalid context: %w", err)
		}
	}

	task, err := s.tasks.Submit(ctx, agents, vars)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("submit failed: %w", err)
	}
	s.logger.Info("MCP: Task submitted", "task_id", task.ID, "agents", agents)
	return SubmitResponse{ID: task.ID, Status: task.Status}, nil
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}
	return jsonResult(task)
}

func (s *Server) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.tasks.Stop(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stop failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("task %s stopping", id)), nil
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.tasks.Active())
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("agent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp := ValidateResponse{Agent: name, Valid: true}
	if err := s.agents.Validate(ctx, name); err != nil {
		resp.Valid = false
		errs := schema.ValidationErrors(err)
		if errs == nil {
			errs = []error{err}
		}
		for _, e := range errs {
			resp.Errors = append(resp.Errors, e.Error())
		}
		if errors.Is(err, domain.ErrAgentNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return jsonResult(resp)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(AgentsURI, "Known agents",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		names, err := s.agents.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list agents: %w", err)
		}
		data, _ := json.Marshal(names)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      AgentsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
