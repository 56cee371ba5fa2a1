package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbangrammar/demoland-assistant/internal/layers"
	"github.com/urbangrammar/demoland-assistant/internal/toolkit"
	"github.com/urbangrammar/demoland-assistant/pkg/anthropic"
)

// scriptedClient returns canned responses in order and records requests.
type scriptedClient struct {
	mu        sync.Mutex
	responses []*anthropic.MessageResponse
	err       error
	requests  []anthropic.MessageRequest
}

func (c *scriptedClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return resp, nil
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		StopReason: anthropic.StopEndTurn,
		Content:    []anthropic.ContentBlock{{Type: anthropic.BlockText, Text: text}},
		Usage:      anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}
}

func toolResponse(id, name, input string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		StopReason: anthropic.StopToolUse,
		Content: []anthropic.ContentBlock{
			{Type: anthropic.BlockToolUse, ID: id, Name: name, Input: json.RawMessage(input)},
		},
		Usage: anthropic.TokenUsage{InputTokens: 20, OutputTokens: 8},
	}
}

type regionArgs struct {
	Region string `json:"region" validate:"required"`
}

func testRegistry() *toolkit.Registry {
	r := toolkit.NewRegistry()
	r.Register(toolkit.Tool{
		Name:        "get_region_names",
		Description: "Lists regions",
		Handler: func(context.Context, map[string]any) (any, error) {
			return []string{"Newcastle upon Tyne", "Gateshead"}, nil
		},
	})
	r.Register(toolkit.Tool{
		Name:        "summarize_in_region",
		Description: "Counts signatures",
		Handler: toolkit.Typed("summarize_in_region", func(_ context.Context, a regionArgs) (any, error) {
			return map[string]int{"Open sprawl": 1}, nil
		}),
	})
	r.Register(toolkit.Tool{
		Name:        "broken_layer",
		Description: "Always fails to load",
		Handler: func(context.Context, map[string]any) (any, error) {
			return nil, &layers.LayerLoadError{Layer: layers.Regions, Err: errors.New("disk gone")}
		},
	})
	return r
}

func newTestSession(client anthropic.Client, cfg Config) *Session {
	s, _ := NewStore(NewAgent(client, testRegistry(), cfg)).Create()
	return s
}

func TestSend_PlainAnswer(t *testing.T) {
	client := &scriptedClient{responses: []*anthropic.MessageResponse{textResponse("Hello!")}}
	s := newTestSession(client, Config{Model: "claude-haiku-4-5-20251001"})

	reply, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Text)
	assert.False(t, reply.IsUser)
	assert.False(t, reply.Timestamp.IsZero())
	assert.Len(t, s.History(), 2)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "claude-haiku-4-5-20251001", req.Model)
	assert.Len(t, req.Tools, 3)
	require.Len(t, req.System, 1)
	assert.Equal(t, DefaultSystemPrompt, req.System[0].Text)
}

func TestSend_ExecutesToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []*anthropic.MessageResponse{
		toolResponse("toolu_1", "get_region_names", `{}`),
		textResponse("You can ask about Newcastle upon Tyne and Gateshead."),
	}}
	s := newTestSession(client, Config{})

	reply, err := s.Send(context.Background(), "Which regions are there?")
	require.NoError(t, err)
	assert.Equal(t, "You can ask about Newcastle upon Tyne and Gateshead.", reply.Text)

	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages
	require.Len(t, second, 3)
	result := second[2].Content[0]
	assert.Equal(t, anthropic.RoleUser, second[2].Role)
	assert.Equal(t, anthropic.BlockToolResult, result.Type)
	assert.Equal(t, "toolu_1", result.ToolUseID)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `["Newcastle upon Tyne","Gateshead"]`, result.Text)

	assert.Len(t, s.History(), 4)
	assert.Equal(t, int64(30), s.Usage().InputTokens)
}

func TestSend_RecoverableToolErrorIsFedBack(t *testing.T) {
	client := &scriptedClient{responses: []*anthropic.MessageResponse{
		toolResponse("toolu_1", "summarize_in_region", `{"region":""}`),
		toolResponse("toolu_2", "no_such_tool", `{}`),
		textResponse("Sorry, I could not find that region."),
	}}
	s := newTestSession(client, Config{})

	reply, err := s.Send(context.Background(), "Summarise nowhere")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I could not find that region.", reply.Text)

	require.Len(t, client.requests, 3)
	for i, msgs := range [][]anthropic.Message{client.requests[1].Messages, client.requests[2].Messages} {
		last := msgs[len(msgs)-1].Content[0]
		assert.True(t, last.IsError, i)
		var resp toolkit.ErrorResponse
		require.NoError(t, json.Unmarshal([]byte(last.Text), &resp))
		assert.Equal(t, toolkit.CodeSchemaValidation, resp.Code)
	}
}

func TestSend_FatalToolErrorLeavesHistory(t *testing.T) {
	client := &scriptedClient{responses: []*anthropic.MessageResponse{textResponse("first")}}
	s := newTestSession(client, Config{})
	_, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	client.responses = []*anthropic.MessageResponse{toolResponse("toolu_1", "broken_layer", `{}`)}
	_, err = s.Send(context.Background(), "break it")
	require.Error(t, err)
	assert.True(t, layers.IsLayerLoadError(err))
	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "broken_layer", terr.Tool)
	assert.Len(t, s.History(), 2)
}

func TestSend_ToolLoopLimit(t *testing.T) {
	client := &scriptedClient{responses: []*anthropic.MessageResponse{
		toolResponse("toolu_n", "get_region_names", `{}`),
	}}
	s := newTestSession(client, Config{MaxIterations: 3})

	_, err := s.Send(context.Background(), "loop forever")
	assert.ErrorIs(t, err, ErrToolLoopLimit)
	assert.Len(t, client.requests, 3)
	assert.Empty(t, s.History())
}

func TestSend_ClientError(t *testing.T) {
	client := &scriptedClient{err: errors.New("overloaded")}
	s := newTestSession(client, Config{})

	_, err := s.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Empty(t, s.History())
}

func TestDefinitionsFromRegistry(t *testing.T) {
	defs := definitions(toolkit.Build(nil))
	require.Len(t, defs, 7)
	assert.Equal(t, toolkit.SignatureAtPoints, defs[0].Name)
	assert.Contains(t, defs[0].Required, "points")
	assert.Contains(t, defs[0].Properties, "points")
}
