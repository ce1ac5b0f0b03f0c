package biz

import (
	"strings"
	"testing"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessage_UnderLimitUnchanged(t *testing.T) {
	msg := domain.NewAssistantMessage("short reply", nil)
	parts := SplitMessage(msg, 100)
	require.Len(t, parts, 1)
	assert.Same(t, msg, parts[0])
}

func TestSplitMessage_PrefersNewline(t *testing.T) {
	msg := domain.NewAssistantMessage("first paragraph.\nsecond part", nil)
	parts := SplitMessage(msg, 20)
	require.Len(t, parts, 2)
	assert.Equal(t, "first paragraph.", parts[0].Content)
	assert.Equal(t, "second part", parts[1].Content)
}

func TestSplitMessage_FallsBackToSentenceThenSpace(t *testing.T) {
	msg := domain.NewAssistantMessage("one sentence. another sentence follows here", nil)
	parts := SplitMessage(msg, 20)
	require.GreaterOrEqual(t, len(parts), 2)
	assert.Equal(t, "one sentence", parts[0].Content)
	for _, part := range parts {
		assert.LessOrEqual(t, len(part.Content), 20)
	}
}

func TestSplitMessage_HardSplitWithoutSeparators(t *testing.T) {
	msg := domain.NewAssistantMessage(strings.Repeat("x", 25), nil)
	parts := SplitMessage(msg, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, strings.Repeat("x", 10), parts[0].Content)
	assert.Equal(t, strings.Repeat("x", 10), parts[1].Content)
	assert.Equal(t, strings.Repeat("x", 5), parts[2].Content)
}

func TestSplitMessage_PartsInheritIdentity(t *testing.T) {
	msg := domain.NewAssistantMessage("alpha\n"+strings.Repeat("b", 20), nil)
	parts := SplitMessage(msg, 10)
	require.Greater(t, len(parts), 1)
	for _, part := range parts {
		assert.Equal(t, msg.Role, part.Role)
		assert.Equal(t, msg.ID, part.ID)
	}
}
