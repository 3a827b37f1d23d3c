package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohitpaddhariya/mcp-chat-client/internal/agent"
	"github.com/mohitpaddhariya/mcp-chat-client/internal/mcp"
	"github.com/mohitpaddhariya/mcp-chat-client/pkg/config"
)

const mcpProbeTimeout = 15 * time.Second

type handlers struct {
	cfg      *config.Config
	orch     *agent.Orchestrator
	launcher *mcp.Launcher
	logger   *zap.Logger
}

func (h *handlers) register(router *gin.Engine) {
	router.GET("/health", h.health)
	router.GET("/mcps", h.listMCPs)
	router.POST("/chat", h.chat)
	router.POST("/chat/stream", h.chatStream)
}

type chatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

type chatRequest struct {
	Message             string        `json:"message" binding:"required,max=10000"`
	SelectedMCPs        []string      `json:"selected_mcps"`
	ConversationHistory []chatMessage `json:"conversation_history" binding:"omitempty,dive"`
}

type chatResponse struct {
	Response  string   `json:"response"`
	ToolsUsed []string `json:"tools_used"`
}

type mcpInfo struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	URL       *string  `json:"url"` // always null for stdio servers
	Available bool     `json:"available"`
	Tools     []string `json:"tools"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version,
	})
}

// listMCPs probes every known server type by launching it and listing its
// tools. Servers that fail to start are reported as unavailable rather than
// failing the whole request.
func (h *handlers) listMCPs(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), mcpProbeTimeout)
	defer cancel()

	types := mcp.KnownServerTypes()
	infos := make([]mcpInfo, len(types))

	g, ctx := errgroup.WithContext(ctx)
	for i, serverType := range types {
		g.Go(func() error {
			infos[i] = h.probeServer(ctx, serverType)
			return nil
		})
	}
	_ = g.Wait()

	c.JSON(http.StatusOK, infos)
}

func (h *handlers) probeServer(ctx context.Context, serverType mcp.ServerType) mcpInfo {
	info := mcpInfo{
		Name:  string(serverType),
		Type:  string(serverType),
		Tools: []string{},
	}

	specs := mcp.ResolveServerSpecs([]mcp.ServerType{serverType}, h.cfg.FilesystemAllowedPath)
	session, err := h.launcher.Launch(ctx, specs)
	if err != nil {
		h.logger.Warn("MCP server probe failed",
			zap.String("server", string(serverType)),
			zap.Error(err),
		)
		return info
	}
	defer session.Close()

	tools := session.Tools()
	if len(tools) == 0 {
		return info
	}

	info.Available = true
	for _, tool := range tools {
		info.Tools = append(info.Tools, tool.Name)
	}
	sort.Strings(info.Tools)
	return info
}

func (h *handlers) chat(c *gin.Context) {
	req, ok := h.bindChatRequest(c)
	if !ok {
		return
	}

	result, err := h.orch.RunTurn(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Chat turn failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		Response:  result.Response,
		ToolsUsed: result.ToolsUsed,
	})
}

// chatStream runs the same turn as chat but emits the trace as SSE events.
// Stream errors surface as an "error" event since the 200 header is already
// on the wire by then.
func (h *handlers) chatStream(c *gin.Context) {
	req, ok := h.bindChatRequest(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	events := h.orch.StreamTurn(c.Request.Context(), req)

	c.Stream(func(w io.Writer) bool {
		event, open := <-events
		if !open {
			return false
		}
		c.SSEvent(event.Event(), event)
		return true
	})
}

// bindChatRequest validates the request body and resolves the selected MCP
// names. Unknown names are a client error, not something to silently drop.
func (h *handlers) bindChatRequest(c *gin.Context) (agent.TurnRequest, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return agent.TurnRequest{}, false
	}

	servers := make([]mcp.ServerType, 0, len(req.SelectedMCPs))
	for _, raw := range req.SelectedMCPs {
		serverType, known := mcp.ParseServerType(raw)
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("unknown MCP server: %s", raw),
			})
			return agent.TurnRequest{}, false
		}
		servers = append(servers, serverType)
	}

	history := make([]agent.Message, 0, len(req.ConversationHistory))
	for _, msg := range req.ConversationHistory {
		history = append(history, agent.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return agent.TurnRequest{
		Message: req.Message,
		Servers: servers,
		History: history,
	}, true
}
