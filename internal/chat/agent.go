// Package chat runs conversational sessions: each user turn goes to the
// language model with the registered tools, tool calls are executed, and the
// model's final text is returned.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/urbangrammar/demoland-assistant/internal/toolkit"
	"github.com/urbangrammar/demoland-assistant/pkg/anthropic"
)

// DefaultGreeting opens every session.
const DefaultGreeting = "Hi I am your helpful demoland bot. Ask me questions about the scenario you just ran!"

// DefaultSystemPrompt frames the model's role.
const DefaultSystemPrompt = `You are an assistant for DemoLand, a tool that models "what-if" land-use scenarios for Newcastle upon Tyne and Gateshead.
Answer questions about the current scenario and its spatial signatures using the tools provided.
When a question names a place, look up its coordinates before calling point tools. Keep answers short and conversational.`

// ErrToolLoopLimit is returned when the model keeps calling tools past the
// configured number of iterations in a single turn.
var ErrToolLoopLimit = errors.New("chat: tool call limit reached")

// ToolError aborts a turn when a tool fails in a way the model cannot
// recover from, such as a reference layer that will not load.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("chat: tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Config controls the agent loop.
type Config struct {
	Model         string
	MaxTokens     int64
	MaxIterations int
	SystemPrompt  string
	Greeting      string
}

// Agent drives the model over a tool registry. An Agent holds no per-session
// state and is safe for concurrent use.
type Agent struct {
	client anthropic.Client
	tools  *toolkit.Registry
	defs   []anthropic.ToolDefinition
	cfg    Config
}

// NewAgent creates an Agent. Zero config fields take defaults.
func NewAgent(client anthropic.Client, tools *toolkit.Registry, cfg Config) *Agent {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	return &Agent{client: client, tools: tools, defs: definitions(tools), cfg: cfg}
}

// Greeting returns the session opening text.
func (a *Agent) Greeting() string { return a.cfg.Greeting }

func definitions(r *toolkit.Registry) []anthropic.ToolDefinition {
	tools := r.Tools()
	out := make([]anthropic.ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Properties:  t.Definition.InputSchema.Properties,
			Required:    t.Definition.InputSchema.Required,
		}
	}
	return out
}

// Reply is one bot message.
type Reply struct {
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// turn runs one user message to completion and returns the messages to
// append to the history along with the final text.
func (a *Agent) turn(ctx context.Context, sessionID string, history []anthropic.Message, text string) ([]anthropic.Message, string, anthropic.TokenUsage, error) {
	log := zap.L().With(zap.String("component", "chat"), zap.String("session", sessionID))

	msgs := append(append([]anthropic.Message(nil), history...), anthropic.TextMessage(anthropic.RoleUser, text))
	added := 1
	var usage anthropic.TokenUsage

	for i := 0; i < a.cfg.MaxIterations; i++ {
		resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     a.cfg.Model,
			MaxTokens: a.cfg.MaxTokens,
			System:    anthropic.BuildCachedSystemBlocks(a.cfg.SystemPrompt),
			Messages:  msgs,
			Tools:     a.defs,
		})
		if err != nil {
			return nil, "", usage, err
		}
		usage = usage.Add(resp.Usage)
		msgs = append(msgs, anthropic.Message{Role: anthropic.RoleAssistant, Content: resp.Content})
		added++

		uses := resp.ToolUses()
		if resp.StopReason != anthropic.StopToolUse || len(uses) == 0 {
			return msgs[len(msgs)-added:], resp.Text(), usage, nil
		}

		results := make([]anthropic.ContentBlock, 0, len(uses))
		for _, use := range uses {
			block, err := a.call(ctx, use)
			if err != nil {
				log.Error("tool call failed", zap.String("tool", use.Name), zap.Error(err))
				return nil, "", usage, err
			}
			log.Debug("tool call", zap.String("tool", use.Name), zap.Bool("is_error", block.IsError))
			results = append(results, block)
		}
		msgs = append(msgs, anthropic.Message{Role: anthropic.RoleUser, Content: results})
		added++
	}
	return nil, "", usage, ErrToolLoopLimit
}

// call runs one tool_use block. Recoverable tool failures become is_error
// results for the model; anything else aborts the turn.
func (a *Agent) call(ctx context.Context, use anthropic.ContentBlock) (anthropic.ContentBlock, error) {
	var args map[string]any
	if len(use.Input) > 0 {
		if err := json.Unmarshal(use.Input, &args); err != nil {
			return toolError(use.ID, &toolkit.SchemaValidationError{Tool: use.Name, Reason: "arguments are not a JSON object"}), nil
		}
	}

	out, err := a.tools.Invoke(ctx, use.Name, args)
	if err != nil {
		if !toolkit.Recoverable(err) {
			return anthropic.ContentBlock{}, &ToolError{Tool: use.Name, Err: err}
		}
		return toolError(use.ID, err), nil
	}
	return anthropic.ContentBlock{Type: anthropic.BlockToolResult, ToolUseID: use.ID, Text: out}, nil
}

func toolError(id string, err error) anthropic.ContentBlock {
	b, _ := json.Marshal(toolkit.NewErrorResponse(err))
	return anthropic.ContentBlock{Type: anthropic.BlockToolResult, ToolUseID: id, Text: string(b), IsError: true}
}
