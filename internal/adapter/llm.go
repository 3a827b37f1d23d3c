package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mohitpaddhariya/mcp-chat-client/internal/agent"
	"github.com/mohitpaddhariya/mcp-chat-client/internal/mcp"
	apperrors "github.com/mohitpaddhariya/mcp-chat-client/pkg/errors"
	"github.com/mohitpaddhariya/mcp-chat-client/pkg/logger"
)

const (
	maxRetries  = 3
	temperature = 0.7
)

// LLMAdapter handles communication with the LLM via a LiteLLM-compatible
// endpoint. It implements agent.CompletionEngine.
type LLMAdapter struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	// LiteLLM accepts a dummy API key if none is configured
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &LLMAdapter{
		client: openai.NewClientWithConfig(config),
		model:  modelID,
		logger: logger.Get(),
	}
}

// Complete sends the conversation and returns the model's text.
func (a *LLMAdapter) Complete(ctx context.Context, messages []agent.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
	}

	resp, err := a.createWithRetry(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.ErrAgentNoResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteWithTools sends the conversation plus the tool catalog and returns
// the model's text and requested tool calls.
func (a *LLMAdapter) CompleteWithTools(ctx context.Context, messages []agent.Message, tools []mcp.ToolDescriptor) (*agent.ModelTurn, error) {
	openaiTools := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		openaiTools = append(openaiTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: toOpenAIMessages(messages),
		Tools:    openaiTools,
		// ToolChoice defaults to "auto" when tools are provided
		Temperature: temperature,
	}

	resp, err := a.createWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.ErrAgentNoResponse
	}

	choice := resp.Choices[0]
	turn := &agent.ModelTurn{
		Content:   choice.Message.Content,
		ToolCalls: make([]agent.ToolCall, 0, len(choice.Message.ToolCalls)),
	}

	for _, tc := range choice.Message.ToolCalls {
		args, err := parseJSONArguments(tc.Function.Arguments)
		if err != nil {
			a.logger.Warn("Failed to parse tool call arguments",
				zap.String("tool_id", tc.ID),
				zap.Error(err),
			)
			args = make(map[string]interface{})
		}
		turn.ToolCalls = append(turn.ToolCalls, agent.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", a.model),
		zap.Int("tool_calls", len(turn.ToolCalls)),
		zap.Bool("has_content", turn.Content != ""),
	)

	return turn, nil
}

// StreamTokens subscribes to the model's token stream for the conversation.
// The channel closes at natural stream end; a chunk with a non-nil Err is
// terminal.
func (a *LLMAdapter) StreamTokens(ctx context.Context, messages []agent.Message) (<-chan agent.TokenChunk, error) {
	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
		Stream:      true,
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		a.logger.Error("Failed to open completion stream",
			zap.String("model", a.model),
			zap.Error(err),
		)
		return nil, apperrors.NewAgentLLMFailed(a.model, 1, true, err)
	}

	out := make(chan agent.TokenChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case out <- agent.TokenChunk{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			content := resp.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case out <- agent.TokenChunk{Content: content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// createWithRetry retries transient LLM failures with linear backoff.
func (a *LLMAdapter) createWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var resp openai.ChatCompletionResponse
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return resp, apperrors.NewContextCancelled("llm request", ctx.Err())
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", a.model),
		)
		if ctx.Err() != nil {
			return resp, apperrors.NewContextCancelled("llm request", ctx.Err())
		}
	}

	return resp, apperrors.NewAgentLLMFailed(a.model, maxRetries, false, err)
}

func toOpenAIMessages(messages []agent.Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return converted
}

// parseJSONArguments parses the JSON string arguments into a map
func parseJSONArguments(jsonStr string) (map[string]interface{}, error) {
	var args map[string]interface{}
	if jsonStr == "" {
		return make(map[string]interface{}), nil
	}

	if err := json.Unmarshal([]byte(jsonStr), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return args, nil
}
