package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	mcpsdk "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/mohitpaddhariya/mcp-chat-client/pkg/errors"
	"github.com/mohitpaddhariya/mcp-chat-client/pkg/logger"
)

// ToolDescriptor describes one invocable tool discovered from a live tool server.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Server      ServerType
}

// stdioClient is the slice of the MCP client surface the session needs.
type stdioClient interface {
	Initialize(ctx context.Context, request mcpsdk.InitializeRequest) (*mcpsdk.InitializeResult, error)
	ListTools(ctx context.Context, request mcpsdk.ListToolsRequest) (*mcpsdk.ListToolsResult, error)
	CallTool(ctx context.Context, request mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error)
	Close() error
}

// newStdioClient is overridden in tests to stub subprocess creation.
var newStdioClient = func(spec ServerSpec) (stdioClient, error) {
	return client.NewStdioMCPClient(spec.Command, nil, spec.Args...)
}

// Launcher starts tool-server sessions. One Launcher is shared across
// requests; every Launch produces an independent Session owned by one turn.
type Launcher struct {
	logger *zap.Logger
}

// NewLauncher creates a session launcher.
func NewLauncher() *Launcher {
	return &Launcher{logger: logger.Get()}
}

// Session owns the tool-server subprocesses for a single turn. It is created
// by Launcher.Launch and must be closed on every exit path of that turn.
type Session struct {
	clients   map[ServerType]stdioClient
	tools     []ToolDescriptor
	toolOwner map[string]ServerType
	logger    *zap.Logger
	closeOnce sync.Once
}

// Launch starts one subprocess per spec and discovers its tool catalog.
//
// A server that fails to start or fails discovery contributes no tools but
// does not fail the session; callers observe the degradation as a smaller
// (possibly empty) tool set. Callers must skip Launch entirely for an empty
// spec map.
func (l *Launcher) Launch(ctx context.Context, specs map[ServerType]ServerSpec) (*Session, error) {
	session := &Session{
		clients:   make(map[ServerType]stdioClient),
		toolOwner: make(map[string]ServerType),
		logger:    l.logger,
	}

	// Deterministic launch order keeps duplicate-tool ownership stable
	ordered := make([]ServerSpec, 0, len(specs))
	for _, spec := range specs {
		ordered = append(ordered, spec)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Type < ordered[j].Type })

	g, gctx := errgroup.WithContext(ctx)
	results := make([]serverCatalog, len(ordered))

	for i, spec := range ordered {
		g.Go(func() error {
			catalog, err := l.startOne(gctx, spec)
			if err != nil {
				// Degraded, not fatal: this server's tools are simply absent
				l.logger.Warn("Tool server unavailable",
					zap.String("server", string(spec.Type)),
					zap.Error(err),
				)
				return nil
			}
			results[i] = catalog
			return nil
		})
	}
	_ = g.Wait() // startup goroutines degrade instead of failing

	if err := ctx.Err(); err != nil {
		// Clients that did start live only in results here, not yet in
		// session.clients; close them directly or their subprocesses
		// outlive the turn
		for _, catalog := range results {
			if catalog.client != nil {
				_ = catalog.client.Close()
			}
		}
		return nil, apperrors.NewContextCancelled("tool server launch", err)
	}

	for _, catalog := range results {
		if catalog.client == nil {
			continue
		}
		session.clients[catalog.server] = catalog.client
		for _, tool := range catalog.tools {
			if owner, dup := session.toolOwner[tool.Name]; dup {
				l.logger.Warn("Duplicate tool name across servers",
					zap.String("tool", tool.Name),
					zap.String("kept", string(owner)),
					zap.String("ignored", string(catalog.server)),
				)
				continue
			}
			session.toolOwner[tool.Name] = catalog.server
			session.tools = append(session.tools, tool)
		}
	}

	l.logger.Info("Tool server session started",
		zap.Int("servers_requested", len(specs)),
		zap.Int("servers_live", len(session.clients)),
		zap.Int("tools", len(session.tools)),
	)

	return session, nil
}

type serverCatalog struct {
	server ServerType
	client stdioClient
	tools  []ToolDescriptor
}

func (l *Launcher) startOne(ctx context.Context, spec ServerSpec) (serverCatalog, error) {
	c, err := newStdioClient(spec)
	if err != nil {
		return serverCatalog{}, apperrors.NewServerUnavailable(string(spec.Type), err)
	}

	initReq := mcpsdk.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpsdk.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpsdk.Implementation{
		Name:    "mcp-chat-client",
		Version: "0.1.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return serverCatalog{}, apperrors.NewServerUnavailable(string(spec.Type), err)
	}

	listed, err := c.ListTools(ctx, mcpsdk.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return serverCatalog{}, apperrors.NewServerUnavailable(string(spec.Type), err)
	}

	tools := make([]ToolDescriptor, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		tools = append(tools, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
			Server:      spec.Type,
		})
	}

	l.logger.Debug("Tool server discovered",
		zap.String("server", string(spec.Type)),
		zap.Int("tools", len(tools)),
	)

	return serverCatalog{server: spec.Type, client: c, tools: tools}, nil
}

// Tools returns the union of every live server's catalog, in launch order.
func (s *Session) Tools() []ToolDescriptor {
	return s.tools
}

// ServerNames returns the identifiers of the servers that are actually live.
func (s *Session) ServerNames() []string {
	names := make([]string, 0, len(s.clients))
	for st := range s.clients {
		names = append(names, string(st))
	}
	sort.Strings(names)
	return names
}

// CallTool routes an invocation to the server that owns the named tool and
// returns the concatenated text content of the result. A tool-level error
// from the server is returned as output text, not as an error, so the
// reasoning loop can feed it back to the model.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	owner, ok := s.toolOwner[name]
	if !ok {
		return "", apperrors.NewToolNotFound(name)
	}
	c := s.clients[owner]

	req := mcpsdk.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.CallTool(ctx, req)
	if err != nil {
		return "", apperrors.NewToolExecutionFailed(name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := mcpsdk.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		s.logger.Warn("Tool reported an error result",
			zap.String("tool", name),
			zap.String("server", string(owner)),
		)
		return "ERROR: " + text, nil
	}
	return text, nil
}

// Close terminates every subprocess launched by this session. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for st, c := range s.clients {
			if err := c.Close(); err != nil {
				s.logger.Warn("Failed to close tool server",
					zap.String("server", string(st)),
					zap.Error(err),
				)
			}
		}
		s.logger.Debug("Tool server session closed", zap.Int("servers", len(s.clients)))
	})
}

func schemaToMap(schema mcpsdk.ToolInputSchema) map[string]interface{} {
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return m
}
