package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestCreateMessage_MockClient(t *testing.T) {
	mc := &MockClient{}
	req := MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 256,
		Messages:  []Message{TextMessage(RoleUser, "Which regions can I ask about?")},
	}
	mc.On("CreateMessage", mock.Anything, req).Return(&MessageResponse{
		ID:         "msg_1",
		StopReason: StopEndTurn,
		Content:    []ContentBlock{{Type: BlockText, Text: "Newcastle upon Tyne and Gateshead."}},
	}, nil)

	resp, err := mc.CreateMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Newcastle upon Tyne and Gateshead.", resp.Text())
	mc.AssertExpectations(t)
}

func TestMessageResponse_TextAndToolUses(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: BlockText, Text: "Let me check. "},
		{Type: BlockToolUse, ID: "tu_1", Name: "get_region_names", Input: json.RawMessage(`{}`)},
		{Type: BlockText, Text: "One moment."},
		{Type: BlockToolUse, ID: "tu_2", Name: "summarize_in_region", Input: json.RawMessage(`{"region":"Gateshead"}`)},
	}}

	assert.Equal(t, "Let me check. One moment.", resp.Text())
	uses := resp.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "tu_1", uses[0].ID)
	assert.Equal(t, "summarize_in_region", uses[1].Name)
}

func TestTokenUsage_Add(t *testing.T) {
	a := TokenUsage{InputTokens: 10, OutputTokens: 5, CacheReadInputTokens: 100}
	b := TokenUsage{InputTokens: 1, OutputTokens: 2, CacheCreationInputTokens: 50}
	assert.Equal(t, TokenUsage{InputTokens: 11, OutputTokens: 7, CacheCreationInputTokens: 50, CacheReadInputTokens: 100}, a.Add(b))
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name  string
		model string
		usage TokenUsage
		want  float64
	}{
		{"haiku", "claude-haiku-4-5-20251001", TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}, 6.00},
		{"sonnet", "claude-sonnet-4-5-20250929", TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}, 18.00},
		{"opus", "claude-opus-4-1-20250805", TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}, 90.00},
		// 0.5*1 + 0.1*5 + 0.2*1*1.25 + 0.3*1*0.1
		{"with cache", "claude-haiku-4-5-20251001", TokenUsage{
			InputTokens:              500_000,
			OutputTokens:             100_000,
			CacheCreationInputTokens: 200_000,
			CacheReadInputTokens:     300_000,
		}, 1.28},
		{"unknown model", "unknown-model", TokenUsage{InputTokens: 1_000_000}, 0},
		{"zero tokens", "claude-haiku-4-5-20251001", TokenUsage{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.usage.EstimateCost(tt.model), 0.001)
		})
	}
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 100, OutputTokens: 50}.LogCost("claude-haiku-4-5-20251001", "session-1")
		TokenUsage{}.LogCost("unknown-model", "")
	})
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("You answer questions about DemoLand scenarios.")
	require.Len(t, blocks, 1)
	assert.Equal(t, "You answer questions about DemoLand scenarios.", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}
