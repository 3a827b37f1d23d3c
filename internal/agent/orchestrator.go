package agent

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohitpaddhariya/mcp-chat-client/internal/mcp"
	"github.com/mohitpaddhariya/mcp-chat-client/pkg/config"
	"github.com/mohitpaddhariya/mcp-chat-client/pkg/logger"
)

// TurnRequest is the input to one turn of the orchestrator.
type TurnRequest struct {
	Message string
	Servers []mcp.ServerType
	History []Message
}

// Orchestrator runs one tool-augmented turn per request: resolve the selected
// tool servers, launch a session for them, pick the system directive from the
// discovered tool set, assemble the conversation and drive the turn to a
// result or an event stream. Every turn builds its own state; concurrent
// turns share nothing but the injected collaborators.
type Orchestrator struct {
	cfg      *config.Config
	llm      CompletionEngine
	launcher SessionLauncher
	logger   *zap.Logger
}

// NewOrchestrator creates a turn orchestrator.
func NewOrchestrator(cfg *config.Config, llm CompletionEngine, launcher SessionLauncher) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		llm:      llm,
		launcher: launcher,
		logger:   logger.Get(),
	}
}

// RunTurn executes one blocking turn. The tool-server session, when one is
// started, is released on every exit path.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*RunResult, error) {
	log := o.logger.With(zap.String("turn_id", uuid.NewString()))
	log.Debug("Starting turn",
		zap.Int("history_len", len(req.History)),
		zap.Int("servers_selected", len(req.Servers)),
	)

	session, err := o.startSession(ctx, req, log)
	if err != nil {
		return nil, err
	}
	if session != nil {
		defer session.Close()
	}

	engine, conv := o.prepare(session, req, log)
	result, err := engine.Run(ctx, conv)
	if err != nil {
		log.Error("Turn failed", zap.Error(err))
		return nil, err
	}

	log.Info("Turn complete",
		zap.Int("tools_used", len(result.ToolsUsed)),
		zap.Int("response_bytes", len(result.Response)),
	)
	return result, nil
}

// StreamTurn executes one streaming turn. The returned channel carries the
// turn's events in issuance order and closes after the terminal done or error
// event. If the consumer stops reading (or ctx is cancelled) before the
// terminal event, the producer shuts down and the tool-server session is
// still released.
func (o *Orchestrator) StreamTurn(ctx context.Context, req TurnRequest) <-chan StreamEvent {
	out := make(chan StreamEvent)
	log := o.logger.With(zap.String("turn_id", uuid.NewString()))

	go func() {
		defer close(out)

		emit := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				log.Debug("Stream consumer gone", zap.Error(ctx.Err()))
				return false
			}
		}

		session, err := o.startSession(ctx, req, log)
		if err != nil {
			emit(NewErrorEvent(err.Error()))
			return
		}
		if session != nil {
			defer session.Close()
		}

		engine, conv := o.prepare(session, req, log)
		engine.Stream(ctx, conv, emit)
	}()

	return out
}

// startSession launches the tool servers selected for this turn. An empty
// selection starts nothing and the turn runs toolless.
func (o *Orchestrator) startSession(ctx context.Context, req TurnRequest, log *zap.Logger) (ToolSession, error) {
	specs := mcp.ResolveServerSpecs(req.Servers, o.cfg.FilesystemAllowedPath)
	if len(specs) == 0 {
		return nil, nil
	}

	session, err := o.launcher.Launch(ctx, specs)
	if err != nil {
		log.Error("Tool server session failed to launch", zap.Error(err))
		return nil, err
	}
	return session, nil
}

// prepare selects the engine and assembles the conversation from the tools
// actually discovered, after the session (if any) is live.
func (o *Orchestrator) prepare(session ToolSession, req TurnRequest, log *zap.Logger) (turnEngine, []Message) {
	var tools []mcp.ToolDescriptor
	var serverNames []string
	if session != nil {
		tools = session.Tools()
		serverNames = session.ServerNames()
	}

	toolNames := make([]string, 0, len(tools))
	for _, t := range tools {
		toolNames = append(toolNames, t.Name)
	}

	prompt := BuildSystemPrompt(len(tools) > 0, serverNames, toolNames, o.cfg.FilesystemAllowedPath)
	conv := AssembleConversation(prompt, req.History, req.Message)

	if len(tools) == 0 {
		log.Debug("Turn runs without tools")
		return &noToolEngine{llm: o.llm, logger: log}, conv
	}

	log.Debug("Turn runs with tools", zap.Strings("tools", toolNames))
	return &toolEngine{
		llm:         o.llm,
		session:     session,
		maxTurns:    o.cfg.MaxToolTurns,
		outputLimit: o.cfg.ToolOutputLimit,
		logger:      log,
	}, conv
}
