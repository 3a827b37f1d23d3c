package mcp

import (
	"context"
	"fmt"
	"testing"

	mcpsdk "github.com/mark3labs/mcp-go/mcp"

	apperrors "github.com/mohitpaddhariya/mcp-chat-client/pkg/errors"
)

// fakeStdioClient stands in for a tool server subprocess.

type fakeStdioClient struct {
	tools   []mcpsdk.Tool
	initErr error
	listErr error
	listFn  func(ctx context.Context) (*mcpsdk.ListToolsResult, error)
	callFn  func(name string, args map[string]interface{}) (*mcpsdk.CallToolResult, error)
	closed  int
}

func (f *fakeStdioClient) Initialize(ctx context.Context, req mcpsdk.InitializeRequest) (*mcpsdk.InitializeResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &mcpsdk.InitializeResult{}, nil
}

func (f *fakeStdioClient) ListTools(ctx context.Context, req mcpsdk.ListToolsRequest) (*mcpsdk.ListToolsResult, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcpsdk.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeStdioClient) CallTool(ctx context.Context, req mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if f.callFn != nil {
		return f.callFn(req.Params.Name, req.GetArguments())
	}
	return mcpsdk.NewToolResultText("ok"), nil
}

func (f *fakeStdioClient) Close() error {
	f.closed++
	return nil
}

// withFakeClients reroutes subprocess creation to the given fakes for the
// duration of one test.
func withFakeClients(t *testing.T, fakes map[ServerType]*fakeStdioClient, errs map[ServerType]error) {
	t.Helper()
	original := newStdioClient
	newStdioClient = func(spec ServerSpec) (stdioClient, error) {
		if err, ok := errs[spec.Type]; ok {
			return nil, err
		}
		fake, ok := fakes[spec.Type]
		if !ok {
			return nil, fmt.Errorf("no fake for server %s", spec.Type)
		}
		return fake, nil
	}
	t.Cleanup(func() { newStdioClient = original })
}

func namedTool(name string) mcpsdk.Tool {
	return mcpsdk.Tool{
		Name:        name,
		Description: name + " tool",
		InputSchema: mcpsdk.ToolInputSchema{Type: "object"},
	}
}

func specsFor(types ...ServerType) map[ServerType]ServerSpec {
	specs := make(map[ServerType]ServerSpec, len(types))
	for _, st := range types {
		specs[st] = ServerSpec{Type: st, Command: "fake", Transport: TransportStdio}
	}
	return specs
}

func TestLaunch_UnionsToolCatalogs(t *testing.T) {
	fakes := map[ServerType]*fakeStdioClient{
		"alpha": {tools: []mcpsdk.Tool{namedTool("read_file"), namedTool("shared")}},
		"beta":  {tools: []mcpsdk.Tool{namedTool("list_directory"), namedTool("shared")}},
	}
	withFakeClients(t, fakes, nil)

	session, err := NewLauncher().Launch(context.Background(), specsFor("alpha", "beta"))
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	defer session.Close()

	tools := session.Tools()
	if len(tools) != 3 {
		t.Fatalf("Expected 3 tools after dedupe, got %d", len(tools))
	}

	// Duplicate name is owned by the first server in launch order
	for _, tool := range tools {
		if tool.Name == "shared" && tool.Server != "alpha" {
			t.Errorf("Expected shared tool owned by alpha, got %s", tool.Server)
		}
	}

	names := session.ServerNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("Expected servers [alpha beta], got %v", names)
	}
}

func TestLaunch_PartialFailureDegrades(t *testing.T) {
	fakes := map[ServerType]*fakeStdioClient{
		"alpha": {tools: []mcpsdk.Tool{namedTool("read_file")}},
		"beta":  {initErr: fmt.Errorf("subprocess died")},
	}
	withFakeClients(t, fakes, nil)

	session, err := NewLauncher().Launch(context.Background(), specsFor("alpha", "beta"))
	if err != nil {
		t.Fatalf("Expected degraded session, got error: %v", err)
	}
	defer session.Close()

	if len(session.Tools()) != 1 {
		t.Errorf("Expected only alpha's tool, got %d", len(session.Tools()))
	}
	names := session.ServerNames()
	if len(names) != 1 || names[0] != "alpha" {
		t.Errorf("Expected servers [alpha], got %v", names)
	}
	// The failed client was closed during startup
	if fakes["beta"].closed != 1 {
		t.Errorf("Expected failed server closed once, got %d", fakes["beta"].closed)
	}
}

func TestLaunch_AllServersFailing(t *testing.T) {
	withFakeClients(t, nil, map[ServerType]error{
		"alpha": fmt.Errorf("spawn failed"),
	})

	session, err := NewLauncher().Launch(context.Background(), specsFor("alpha"))
	if err != nil {
		t.Fatalf("Expected empty degraded session, got error: %v", err)
	}
	defer session.Close()

	if len(session.Tools()) != 0 {
		t.Errorf("Expected no tools, got %d", len(session.Tools()))
	}
}

func TestLaunch_CancelledContext(t *testing.T) {
	fakes := map[ServerType]*fakeStdioClient{
		"alpha": {tools: []mcpsdk.Tool{namedTool("read_file")}},
	}
	withFakeClients(t, fakes, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLauncher().Launch(ctx, specsFor("alpha"))
	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeContext) {
		t.Errorf("Expected context error type, got %v", err)
	}
}

func TestLaunch_CancelledMidLaunchClosesStartedClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Discovery succeeds but the turn is cancelled while it runs
	fake := &fakeStdioClient{}
	fake.listFn = func(context.Context) (*mcpsdk.ListToolsResult, error) {
		cancel()
		return &mcpsdk.ListToolsResult{Tools: []mcpsdk.Tool{namedTool("read_file")}}, nil
	}
	withFakeClients(t, map[ServerType]*fakeStdioClient{"alpha": fake}, nil)

	_, err := NewLauncher().Launch(ctx, specsFor("alpha"))
	if err == nil {
		t.Fatal("Expected error from cancelled launch")
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeContext) {
		t.Errorf("Expected context error type, got %v", err)
	}
	if fake.closed != 1 {
		t.Errorf("Expected started client closed once after cancelled launch, got %d", fake.closed)
	}
}

func TestCallTool_RoutesToOwner(t *testing.T) {
	var alphaCalls, betaCalls int
	fakes := map[ServerType]*fakeStdioClient{
		"alpha": {
			tools: []mcpsdk.Tool{namedTool("read_file")},
			callFn: func(name string, args map[string]interface{}) (*mcpsdk.CallToolResult, error) {
				alphaCalls++
				return mcpsdk.NewToolResultText("file contents"), nil
			},
		},
		"beta": {
			tools: []mcpsdk.Tool{namedTool("list_directory")},
			callFn: func(name string, args map[string]interface{}) (*mcpsdk.CallToolResult, error) {
				betaCalls++
				return mcpsdk.NewToolResultText("a.txt\nb.txt"), nil
			},
		},
	}
	withFakeClients(t, fakes, nil)

	session, err := NewLauncher().Launch(context.Background(), specsFor("alpha", "beta"))
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	defer session.Close()

	out, err := session.CallTool(context.Background(), "list_directory", map[string]interface{}{"path": "/tmp"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if out != "a.txt\nb.txt" {
		t.Errorf("Unexpected output: %q", out)
	}
	if alphaCalls != 0 || betaCalls != 1 {
		t.Errorf("Expected call routed to beta only, got alpha=%d beta=%d", alphaCalls, betaCalls)
	}
}

func TestCallTool_UnknownTool(t *testing.T) {
	fakes := map[ServerType]*fakeStdioClient{
		"alpha": {tools: []mcpsdk.Tool{namedTool("read_file")}},
	}
	withFakeClients(t, fakes, nil)

	session, _ := NewLauncher().Launch(context.Background(), specsFor("alpha"))
	defer session.Close()

	_, err := session.CallTool(context.Background(), "write_file", nil)
	if err == nil {
		t.Fatal("Expected error for unknown tool")
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeTool) {
		t.Errorf("Expected tool error type, got %v", err)
	}
}

func TestCallTool_ErrorResultBecomesOutput(t *testing.T) {
	fakes := map[ServerType]*fakeStdioClient{
		"alpha": {
			tools: []mcpsdk.Tool{namedTool("read_file")},
			callFn: func(name string, args map[string]interface{}) (*mcpsdk.CallToolResult, error) {
				return mcpsdk.NewToolResultError("permission denied"), nil
			},
		},
	}
	withFakeClients(t, fakes, nil)

	session, _ := NewLauncher().Launch(context.Background(), specsFor("alpha"))
	defer session.Close()

	out, err := session.CallTool(context.Background(), "read_file", nil)
	if err != nil {
		t.Fatalf("Tool-level errors should not be transport errors: %v", err)
	}
	if out != "ERROR: permission denied" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestCallTool_TransportError(t *testing.T) {
	fakes := map[ServerType]*fakeStdioClient{
		"alpha": {
			tools: []mcpsdk.Tool{namedTool("read_file")},
			callFn: func(name string, args map[string]interface{}) (*mcpsdk.CallToolResult, error) {
				return nil, fmt.Errorf("pipe closed")
			},
		},
	}
	withFakeClients(t, fakes, nil)

	session, _ := NewLauncher().Launch(context.Background(), specsFor("alpha"))
	defer session.Close()

	_, err := session.CallTool(context.Background(), "read_file", nil)
	if err == nil {
		t.Fatal("Expected transport error")
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeTool) {
		t.Errorf("Expected tool error type, got %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	fakes := map[ServerType]*fakeStdioClient{
		"alpha": {tools: []mcpsdk.Tool{namedTool("read_file")}},
	}
	withFakeClients(t, fakes, nil)

	session, _ := NewLauncher().Launch(context.Background(), specsFor("alpha"))

	session.Close()
	session.Close()
	session.Close()

	if fakes["alpha"].closed != 1 {
		t.Errorf("Expected exactly one close, got %d", fakes["alpha"].closed)
	}
}
