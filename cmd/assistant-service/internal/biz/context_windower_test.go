package biz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 按消息ID查成本的计量函数，让分割点完全可控
func costByID(costs map[string]int) func([]*domain.Message) int {
	return func(messages []*domain.Message) int {
		total := 0
		for _, m := range messages {
			total += costs[m.ID]
		}
		return total
	}
}

func newWindowerForTest(t *testing.T, llm *MockLLMClient, repo *MockMessageRepository) *ContextWindower {
	t.Helper()
	summarizer := NewSummarizer(llm, repo, log.DefaultLogger)
	return NewContextWindower(summarizer, domain.DefaultProcessingConfig(), log.DefaultLogger)
}

func newContextForTest(repo *MockMessageRepository, resolved *ResolvedContext, budget int) *ProcessingContext {
	user := &domain.UserProfile{ID: "user1", CurrentModel: "gpt-4"}
	conf := &domain.ContextConfiguration{
		ModelName:             "gpt-4",
		ShortTermMemoryTokens: budget,
		SummaryLength:         128,
	}
	return NewProcessingContext(resolved, user, conf, repo)
}

func TestWindow_UnresolvedContextRejected(t *testing.T) {
	w := newWindowerForTest(t, &MockLLMClient{}, &MockMessageRepository{})

	err := w.Window(context.Background(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrContextNotResolved)
}

func TestWindow_UnderBudgetUnchanged(t *testing.T) {
	summarized := 0
	llm := &MockLLMClient{
		SummarizeFunc: func(ctx context.Context, messages []*domain.Message, model string, maxTokens int) (string, error) {
			summarized++
			return "summary", nil
		},
	}
	repo := &MockMessageRepository{}
	w := newWindowerForTest(t, llm, repo)

	now := time.Now()
	messages := []*domain.Message{
		seededMessage("m1", 7, 1, nil, now.Add(-2*time.Minute)),
		seededMessage("m2", 7, 2, []string{"m1"}, now.Add(-time.Minute)),
	}
	w.countTokens = costByID(map[string]int{"m1": 10, "m2": 10})

	resolved := &ResolvedContext{ThreadID: "thr_test", ChatID: 7, Messages: messages}
	pc := newContextForTest(repo, resolved, 100)

	require.NoError(t, w.Window(context.Background(), pc, resolved))
	assert.Equal(t, messages, pc.Messages())
	assert.Zero(t, summarized)
}

func TestWindow_OverBudgetSummarizesPrefix(t *testing.T) {
	var summarizedIDs []string
	llm := &MockLLMClient{
		SummarizeFunc: func(ctx context.Context, messages []*domain.Message, model string, maxTokens int) (string, error) {
			for _, m := range messages {
				summarizedIDs = append(summarizedIDs, m.ID)
			}
			return "older messages condensed", nil
		},
	}
	repo := &MockMessageRepository{}
	w := newWindowerForTest(t, llm, repo)

	now := time.Now()
	messages := []*domain.Message{
		seededMessage("m1", 7, 1, nil, now.Add(-4*time.Minute)),
		seededMessage("m2", 7, 2, []string{"m1"}, now.Add(-3*time.Minute)),
		seededMessage("m3", 7, 3, []string{"m2"}, now.Add(-2*time.Minute)),
		seededMessage("m4", 7, 4, []string{"m3"}, now.Add(-time.Minute)),
	}
	// 总量40达到预算40，后缀预算20：下标2是后缀成本不超预算的最小分割点
	w.countTokens = costByID(map[string]int{"m1": 10, "m2": 10, "m3": 10, "m4": 10})

	resolved := &ResolvedContext{ThreadID: "thr_test", ChatID: 7, Messages: messages}
	pc := newContextForTest(repo, resolved, 40)

	require.NoError(t, w.Window(context.Background(), pc, resolved))

	assert.Equal(t, []string{"m1", "m2"}, summarizedIDs)

	windowed := pc.Messages()
	require.Len(t, windowed, 3)
	assert.True(t, strings.HasPrefix(windowed[0].Content, SummaryPrefix))
	assert.Equal(t, "m3", windowed[1].ID)
	assert.Equal(t, "m4", windowed[2].ID)
}

func TestWindow_NoSuffixFitsSummarizesAll(t *testing.T) {
	llm := &MockLLMClient{}
	repo := &MockMessageRepository{}
	w := newWindowerForTest(t, llm, repo)

	now := time.Now()
	messages := []*domain.Message{
		seededMessage("m1", 7, 1, nil, now.Add(-2*time.Minute)),
		seededMessage("m2", 7, 2, []string{"m1"}, now.Add(-time.Minute)),
	}
	// 每条都超过后缀预算：整个列表都进摘要，只剩合成消息
	w.countTokens = costByID(map[string]int{"m1": 100, "m2": 100})

	resolved := &ResolvedContext{ThreadID: "thr_test", ChatID: 7, Messages: messages}
	pc := newContextForTest(repo, resolved, 40)

	require.NoError(t, w.Window(context.Background(), pc, resolved))

	windowed := pc.Messages()
	require.Len(t, windowed, 1)
	assert.True(t, strings.HasPrefix(windowed[0].Content, SummaryPrefix))
}

func TestWindow_SummarizeErrorPropagates(t *testing.T) {
	backendErr := errors.New("backend unavailable")
	llm := &MockLLMClient{
		SummarizeFunc: func(ctx context.Context, messages []*domain.Message, model string, maxTokens int) (string, error) {
			return "", backendErr
		},
	}
	repo := &MockMessageRepository{}
	w := newWindowerForTest(t, llm, repo)

	now := time.Now()
	messages := []*domain.Message{
		seededMessage("m1", 7, 1, nil, now.Add(-2*time.Minute)),
		seededMessage("m2", 7, 2, []string{"m1"}, now.Add(-time.Minute)),
	}
	w.countTokens = costByID(map[string]int{"m1": 100, "m2": 100})

	resolved := &ResolvedContext{ThreadID: "thr_test", ChatID: 7, Messages: messages}
	pc := newContextForTest(repo, resolved, 40)

	err := w.Window(context.Background(), pc, resolved)
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)
}

func TestWindow_DynamicFiltersExpiredAfterReconstruction(t *testing.T) {
	llm := &MockLLMClient{}
	repo := &MockMessageRepository{}
	w := newWindowerForTest(t, llm, repo)

	now := time.Now()
	w.now = func() time.Time { return now }
	w.countTokens = func([]*domain.Message) int { return 1 }

	messages := []*domain.Message{
		seededMessage("old", 7, 1, nil, now.Add(-2*time.Hour)),
		seededMessage("fresh", 7, 2, []string{"old"}, now.Add(-time.Minute)),
	}

	resolved := &ResolvedContext{ThreadID: DynamicThreadStub, ChatID: 7, Messages: messages, Dynamic: true}
	pc := newContextForTest(repo, resolved, 100)

	require.NoError(t, w.Window(context.Background(), pc, resolved))

	windowed := pc.Messages()
	require.Len(t, windowed, 1)
	assert.Equal(t, "fresh", windowed[0].ID)
}

func TestWindow_NonDynamicKeepsOldMessages(t *testing.T) {
	llm := &MockLLMClient{}
	repo := &MockMessageRepository{}
	w := newWindowerForTest(t, llm, repo)

	now := time.Now()
	w.now = func() time.Time { return now }
	w.countTokens = func([]*domain.Message) int { return 1 }

	messages := []*domain.Message{
		seededMessage("old", 7, 1, nil, now.Add(-48*time.Hour)),
	}

	resolved := &ResolvedContext{ThreadID: "thr_test", ChatID: 7, Messages: messages}
	pc := newContextForTest(repo, resolved, 100)

	require.NoError(t, w.Window(context.Background(), pc, resolved))
	assert.Len(t, pc.Messages(), 1)
}

func TestWindow_AllExpiredYieldsEmptyContext(t *testing.T) {
	llm := &MockLLMClient{}
	repo := &MockMessageRepository{}
	w := newWindowerForTest(t, llm, repo)

	now := time.Now()
	w.now = func() time.Time { return now }

	messages := []*domain.Message{
		seededMessage("old", 7, 1, nil, now.Add(-3*time.Hour)),
	}

	resolved := &ResolvedContext{ThreadID: DynamicThreadStub, ChatID: 7, Messages: messages, Dynamic: true}
	pc := newContextForTest(repo, resolved, 100)

	require.NoError(t, w.Window(context.Background(), pc, resolved))
	assert.Empty(t, pc.Messages())
}
