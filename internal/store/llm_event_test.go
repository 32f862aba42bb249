package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRepo_AppendAndQuery(t *testing.T) {
	repo := openTestStore(t).EventRepo()
	ctx := context.Background()

	events := []LLMRequestEventData{
		{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Purpose: "tutor-turn", InputTokens: 100, OutputTokens: 40, LatencyMs: 900, Success: true},
		{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Purpose: "tutor-turn", InputTokens: 200, OutputTokens: 60, LatencyMs: 1100, Success: true},
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "chat-opening", InputTokens: 50, OutputTokens: 10, LatencyMs: 300, Success: false, ErrorMessage: "rate limited"},
	}
	for _, e := range events {
		require.NoError(t, repo.AppendLLMRequest(ctx, e))
	}

	all, err := repo.QueryLLMEvents(ctx, QueryOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "gpt-4o-mini", all[0].Model, "newest first")
	assert.Equal(t, "rate limited", all[0].ErrorMessage)
	assert.False(t, all[0].Success)

	turns, err := repo.QueryLLMEvents(ctx, QueryOpts{Purpose: "tutor-turn", Limit: 1})
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, 200, turns[0].InputTokens)

	one, err := repo.GetLLMEvent(ctx, all[2].ID)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, int64(900), one.LatencyMs)

	missing, err := repo.GetLLMEvent(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEventRepo_Usage(t *testing.T) {
	repo := openTestStore(t).EventRepo()
	ctx := context.Background()

	for _, e := range []LLMRequestEventData{
		{Model: "m1", Purpose: "tutor-turn", InputTokens: 10, OutputTokens: 5, LatencyMs: 100},
		{Model: "m1", Purpose: "tutor-turn", InputTokens: 30, OutputTokens: 15, LatencyMs: 300},
		{Model: "m2", Purpose: "chat-opening", InputTokens: 7, OutputTokens: 3, LatencyMs: 50},
	} {
		require.NoError(t, repo.AppendLLMRequest(ctx, e))
	}

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	require.NoError(t, err)
	require.Len(t, byPurpose, 2)
	assert.Equal(t, PurposeUsage{Purpose: "chat-opening", Calls: 1, InputTokens: 7, OutputTokens: 3, AvgLatencyMs: 50}, byPurpose[0])
	assert.Equal(t, PurposeUsage{Purpose: "tutor-turn", Calls: 2, InputTokens: 40, OutputTokens: 20, AvgLatencyMs: 200}, byPurpose[1])

	byModel, err := repo.LLMUsageByModel(ctx)
	require.NoError(t, err)
	require.Len(t, byModel, 2)
	assert.Equal(t, ModelUsage{Model: "m1", Calls: 2, InputTokens: 40, OutputTokens: 20}, byModel[0])
}
