// Package mcp exposes read-only operator tools over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/mpcgate"
	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Inspector is what the tools can see of a coordinator.
// The HTTP CoordinatorClient satisfies it for a remote coordinator and Local for an in-process one.
type Inspector interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	SessionStatus(ctx context.Context, accessKey string) (domain.Status, error)
	ValidateComputationKey(ctx context.Context, accessKey, computationKey string) (bool, error)
}

// ValidationResult is the output of validate_computation_key.
type ValidationResult struct {
	AccessKey string `json:"access_key" jsonschema_description:"The access key that was checked"`
	IsValid   bool   `json:"is_valid" jsonschema_description:"Whether the key belongs to the live session"`
}

// Server exposes an Inspector as an MCP Server.
type Server struct {
	inspector Inspector
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(inspector Inspector) *Server {
	s := &Server{
		inspector: inspector,
		mcpServer: server.NewMCPServer("mpcgate-mcp", mpcgate.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the tools over SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("queue_snapshot",
		mcp.WithDescription("Show the waiting line, the active session and the free port blocks. Credentials are redacted."),
	), s.handleQueueSnapshot)

	// Named after the coordination call, but it never promotes the caller.
	statusTool := mcp.NewTool("get_position",
		mcp.WithDescription("Report where an access key stands without changing the queue."),
		mcp.WithString("access_key", mcp.Required(), mcp.Description("Client access key")),
		mcp.WithOutputSchema[domain.Status](),
	)
	s.mcpServer.AddTool(statusTool, mcp.NewStructuredToolHandler(s.handleGetPosition))

	validateTool := mcp.NewTool("validate_computation_key",
		mcp.WithDescription("Check whether a computation key belongs to the live session of an access key."),
		mcp.WithString("access_key", mcp.Required(), mcp.Description("Client access key")),
		mcp.WithString("computation_key", mcp.Required(), mcp.Description("Session credential to check")),
		mcp.WithOutputSchema[ValidationResult](),
	)
	s.mcpServer.AddTool(validateTool, mcp.NewStructuredToolHandler(s.handleValidate))
}

func (s *Server) handleQueueSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.inspector.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("snapshot failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(snap)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetPosition(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Status, error) {
	accessKey, _ := args["access_key"].(string)
	if accessKey == "" {
		return domain.Status{}, errors.New("access_key is required")
	}
	status, err := s.inspector.SessionStatus(ctx, accessKey)
	if err != nil {
		return domain.Status{}, fmt.Errorf("status lookup failed: %w", err)
	}
	return status, nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ValidationResult, error) {
	accessKey, _ := args["access_key"].(string)
	computationKey, _ := args["computation_key"].(string)

	valid, err := s.inspector.ValidateComputationKey(ctx, accessKey, computationKey)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("validation failed: %w", err)
	}
	return ValidationResult{AccessKey: accessKey, IsValid: valid}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("mpcgate://queue", "Admission queue",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap, err := s.inspector.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read queue: %w", err)
		}
		jsonBytes, _ := json.Marshal(snap)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "mpcgate://queue",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
