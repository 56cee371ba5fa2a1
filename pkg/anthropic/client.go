// Package anthropic wraps the Anthropic Messages API with the small surface
// the chat agent needs: text and tool-use conversations.
package anthropic

import (
	"context"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the Anthropic API operations used by the assistant.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// Roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Stop reasons the agent loop acts on.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// MessageRequest is our own request type for CreateMessage.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Tools       []ToolDefinition
	Temperature *float64
}

// SystemBlock represents a system prompt block, optionally with cache control.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl configures caching for a content block.
type CacheControl struct {
	TTL string // "5m" or "1h"
}

// ToolDefinition declares a tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// Message represents a single conversational message.
type Message struct {
	Role    string
	Content []ContentBlock
}

// TextMessage builds a message holding a single text block.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// ContentBlock is a text, tool_use or tool_result block. Fields not used by
// the block's type are empty.
type ContentBlock struct {
	Type string
	Text string

	// tool_use
	ID    string
	Name  string
	Input json.RawMessage

	// tool_result
	ToolUseID string
	IsError   bool
}

// MessageResponse is our own response type from CreateMessage.
type MessageResponse struct {
	ID           string
	Model        string
	Content      []ContentBlock
	StopReason   string
	Usage        TokenUsage
	StopSequence string
}

// Text concatenates the response's text blocks.
func (r *MessageResponse) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns the response's tool_use blocks in order.
func (r *MessageResponse) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// Add returns the sum of two usages.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:              u.InputTokens + o.InputTokens,
		OutputTokens:             u.OutputTokens + o.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + o.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + o.CacheReadInputTokens,
	}
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model → {input $/MTok, output $/MTok}
	"claude-haiku-4-5-20251001":  {1.00, 5.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-1-20250805":   {15.00, 75.00},
}

// EstimateCost computes an estimated cost in USD from a TokenUsage and model ID.
// Returns 0 for unknown models.
func (u TokenUsage) EstimateCost(model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	inCost := (float64(u.InputTokens) / 1e6) * pricing[0]
	outCost := (float64(u.OutputTokens) / 1e6) * pricing[1]
	cacheWriteCost := (float64(u.CacheCreationInputTokens) / 1e6) * pricing[0] * 1.25
	cacheReadCost := (float64(u.CacheReadInputTokens) / 1e6) * pricing[0] * 0.1
	return inCost + outCost + cacheWriteCost + cacheReadCost
}

// LogCost logs token usage and estimated cost with structured zap fields.
func (u TokenUsage) LogCost(model, session string) {
	zap.L().Info("cost attribution",
		zap.String("component", "anthropic"),
		zap.String("model", model),
		zap.String("session", session),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint, so the system prompt and tool list are cached across turns.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "1h"},
		},
	}
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new Anthropic client backed by the SDK. Extra request
// options (base URL, retries) are passed through.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	return &sdkClient{
		client: sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msgs, err := toSDKMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  msgs,
	}

	if len(req.System) > 0 {
		params.System = toSDKSystemBlocks(req.System)
	}
	if len(req.Tools) > 0 {
		params.Tools = toSDKTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	return fromSDKMessage(msg), nil
}

// --- SDK type conversion helpers ---

func toSDKMessages(msgs []Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case BlockToolUse:
				var input any = map[string]any{}
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						return nil, eris.Wrapf(err, "anthropic: decode tool_use %s input", b.ID)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(b.ID, input, b.Name))
			case BlockToolResult:
				blocks = append(blocks, sdk.NewToolResultBlock(b.ToolUseID, b.Text, b.IsError))
			default:
				blocks = append(blocks, sdk.NewTextBlock(b.Text))
			}
		}
		switch m.Role {
		case RoleAssistant:
			out[i] = sdk.NewAssistantMessage(blocks...)
		default:
			out[i] = sdk.NewUserMessage(blocks...)
		}
	}
	return out, nil
}

func toSDKSystemBlocks(blocks []SystemBlock) []sdk.TextBlockParam {
	out := make([]sdk.TextBlockParam, len(blocks))
	for i, b := range blocks {
		out[i] = sdk.TextBlockParam{
			Text: b.Text,
		}
		if b.CacheControl != nil {
			cc := sdk.NewCacheControlEphemeralParam()
			if b.CacheControl.TTL != "" {
				cc.TTL = sdk.CacheControlEphemeralTTL(b.CacheControl.TTL)
			}
			out[i].CacheControl = cc
		}
	}
	return out
}

func toSDKTools(tools []ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		props := t.Properties
		if props == nil {
			props = map[string]any{}
		}
		out[i] = sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: props,
					Required:   t.Required,
				},
			},
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	blocks := make([]ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		cb := ContentBlock{Type: b.Type}
		switch b.Type {
		case BlockToolUse:
			cb.ID = b.ID
			cb.Name = b.Name
			cb.Input = append(json.RawMessage(nil), b.Input...)
		default:
			cb.Text = b.Text
		}
		blocks = append(blocks, cb)
	}

	return &MessageResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Content:      blocks,
		StopReason:   string(msg.StopReason),
		StopSequence: msg.StopSequence,
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
}
