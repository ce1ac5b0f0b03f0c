package biz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFixture struct {
	processor *MessageProcessor
	llm       *MockLLMClient
	runner    *MockFunctionRunner
	transport *MockTransport
	messages  *MockMessageRepository
	usage     *MockUsageRepository
	cancels   *CancelRegistry
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	logger := log.DefaultLogger
	config := domain.DefaultProcessingConfig()

	llm := &MockLLMClient{}
	runner := &MockFunctionRunner{}
	transport := &MockTransport{}
	messages := &MockMessageRepository{}
	usage := &MockUsageRepository{}
	threads := &MockThreadRepository{}

	summarizer := NewSummarizer(llm, messages, logger)
	windower := NewContextWindower(summarizer, config, logger)

	f := &processorFixture{
		llm:       llm,
		runner:    runner,
		transport: transport,
		messages:  messages,
		usage:     usage,
		cancels:   NewCancelRegistry(),
	}
	f.processor = NewMessageProcessor(
		NewLinearThreadResolver(threads, messages, nil, logger),
		NewDynamicThreadResolver(messages, nil, logger),
		windower,
		NewFunctionCallLoop(runner, transport, config, logger),
		NewStreamDeliverer(transport, config, logger),
		f.cancels,
		llm, runner, transport, messages, usage, logger,
	)
	return f
}

func testUser() *domain.UserProfile {
	return &domain.UserProfile{ID: "user1", CurrentModel: "gpt-4"}
}

func testInbound(text string) *InboundMessage {
	return &InboundMessage{UserID: "user1", ChatID: 7, Text: text, TransportMessageID: 1001}
}

func TestProcess_DeliversReplyAndPersistsBothSides(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		assert.Equal(t, "gpt-4", req.Model)
		return &CompletionResult{
			Message: domain.NewAssistantMessage("hello there", nil),
			Usage:   &domain.CompletionUsage{Model: "gpt-4", PromptTokens: 10, CompletionTokens: 3},
		}, nil
	}

	err := f.processor.Process(context.Background(), testUser(), testInbound("hi"))
	require.NoError(t, err)

	sends := f.transport.CallsOf("send")
	require.Len(t, sends, 1)
	assert.Equal(t, "hello there", sends[0].Text)

	// 入站消息与回复都写入历史，回复记录出站传输ID
	stored, err := f.messages.ListThreadMessages(context.Background(), mustThreadID(t, f))
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, domain.RoleUser, stored[0].Role)
	assert.Equal(t, int64(1001), stored[0].TransportMessageID)
	assert.Equal(t, domain.RoleAssistant, stored[1].Role)
	assert.Equal(t, sends[0].TransportMsgID, stored[1].TransportMessageID)
	// 回复的前驱覆盖此前的完整上下文
	assert.Equal(t, []string{stored[0].ID}, stored[1].PreviousMessageIDs)

	require.Len(t, f.usage.Completions, 1)
	assert.Equal(t, 10, f.usage.Completions[0].PromptTokens)
}

func mustThreadID(t *testing.T, f *processorFixture) string {
	t.Helper()
	f.messages.mu.Lock()
	defer f.messages.mu.Unlock()
	require.NotEmpty(t, f.messages.messages)
	return f.messages.messages[0].ThreadID
}

func TestProcess_EmptyReplyPersistedWithoutDelivery(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		return &CompletionResult{Message: domain.NewAssistantMessage("", nil)}, nil
	}

	err := f.processor.Process(context.Background(), testUser(), testInbound("hi"))
	require.NoError(t, err)

	assert.Empty(t, f.transport.Calls)
	stored, _ := f.messages.ListThreadMessages(context.Background(), mustThreadID(t, f))
	require.Len(t, stored, 2)
	assert.Equal(t, domain.TransportIDNone, stored[1].TransportMessageID)
}

func TestProcess_LongReplySplitIntoLinkedParts(t *testing.T) {
	f := newProcessorFixture(t)
	f.transport.MaxLength = 20
	f.llm.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		return &CompletionResult{
			Message: domain.NewAssistantMessage("first piece here.\nsecond piece there", nil),
		}, nil
	}

	err := f.processor.Process(context.Background(), testUser(), testInbound("hi"))
	require.NoError(t, err)

	sends := f.transport.CallsOf("send")
	require.Len(t, sends, 2)

	stored, _ := f.messages.ListThreadMessages(context.Background(), mustThreadID(t, f))
	require.Len(t, stored, 3)

	// 后续分段只挂在前一分段之后，形成单链
	firstPart, secondPart := stored[1], stored[2]
	assert.Equal(t, []string{firstPart.ID}, secondPart.PreviousMessageIDs)
	assert.Equal(t, sends[0].TransportMsgID, firstPart.TransportMessageID)
	assert.Equal(t, sends[1].TransportMsgID, secondPart.TransportMessageID)
}

func TestProcess_StreamedReplyReusesInProgressMessage(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.CompleteStreamFunc = func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionEvent, <-chan error) {
		return closedStream(
			&CompletionEvent{Content: "bootstrap"},
			&CompletionEvent{Content: strings.Repeat("alpha beta gamma delta ", 4)},
			&CompletionEvent{Content: strings.Repeat("alpha beta gamma delta ", 4) + "final tail"},
		)
	}
	user := testUser()
	user.StreamMessages = true

	err := f.processor.Process(context.Background(), user, testInbound("hi"))
	require.NoError(t, err)

	sends := f.transport.CallsOf("send")
	require.Len(t, sends, 1)

	// 终稿编辑到进行中的那条流式消息上
	edits := f.transport.CallsOf("edit")
	require.NotEmpty(t, edits)
	final := edits[len(edits)-1]
	assert.Equal(t, sends[0].TransportMsgID, final.TransportMsgID)
	assert.True(t, strings.HasSuffix(final.Text, "final tail"))

	// 流式路径按本地估算记录用量
	require.Len(t, f.usage.Completions, 1)
	assert.Positive(t, f.usage.Completions[0].CompletionTokens)
}

func TestProcess_CancelMidStreamDeliversPartialAsFinal(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.CompleteStreamFunc = func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionEvent, <-chan error) {
		events := make(chan *CompletionEvent)
		errs := make(chan error, 1)
		go func() {
			events <- &CompletionEvent{Content: "bootstrap"}
			events <- &CompletionEvent{Content: "partial answer x"}
			f.cancels.Cancel(7)
			// 通道保持打开：生成源观察到取消后才收尾
		}()
		return events, errs
	}

	// 真实传输层在上下文取消后拒绝请求；终态投递必须用未被取消的上下文
	var mu sync.Mutex
	var sent []string
	f.transport.SendFunc = func(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		mu.Lock()
		sent = append(sent, text)
		mu.Unlock()
		return 900, nil
	}

	user := testUser()
	user.StreamMessages = true

	err := f.processor.Process(context.Background(), user, testInbound("hi"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"partial answer x"}, sent)

	// 部分结果作为终态回写历史
	stored, _ := f.messages.ListThreadMessages(context.Background(), mustThreadID(t, f))
	require.Len(t, stored, 2)
	assert.Equal(t, "partial answer x", stored[1].Content)
	assert.Equal(t, int64(900), stored[1].TransportMessageID)
}

func TestProcess_CancelBeforeAnyContentReturnsCancelled(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.CompleteStreamFunc = func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionEvent, <-chan error) {
		go f.cancels.Cancel(7)
		return make(chan *CompletionEvent), make(chan error, 1)
	}
	user := testUser()
	user.StreamMessages = true

	err := f.processor.Process(context.Background(), user, testInbound("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGenerationCancelled)
}

func TestProcess_MarkdownRejectedFallsBackToPlainText(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		return &CompletionResult{
			Message: domain.NewAssistantMessage("see:\n```go\nfmt.Println(1)\n```", nil),
		}, nil
	}

	attempts := 0
	f.transport.SendFunc = func(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error) {
		attempts++
		if opts != nil && opts.Markdown {
			return 0, errors.New("can't parse entities")
		}
		return 555, nil
	}

	err := f.processor.Process(context.Background(), testUser(), testInbound("show me code"))
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestProcess_DeliveryFailurePropagates(t *testing.T) {
	f := newProcessorFixture(t)
	f.transport.SendFunc = func(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error) {
		return 0, errors.New("chat not found")
	}

	err := f.processor.Process(context.Background(), testUser(), testInbound("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliver response part")
}

func TestProcess_UnknownModelFailsFast(t *testing.T) {
	f := newProcessorFixture(t)
	user := testUser()
	user.CurrentModel = "gpt-99"

	err := f.processor.Process(context.Background(), user, testInbound("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownModel)
	assert.Empty(t, f.transport.Calls)
}

func TestProcess_SchemaLoadFailureContinuesWithoutFunctions(t *testing.T) {
	f := newProcessorFixture(t)
	f.runner.SchemasFunc = func(ctx context.Context) ([]FunctionSchema, error) {
		return nil, errors.New("registry down")
	}
	f.llm.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		assert.Empty(t, req.Functions)
		return &CompletionResult{Message: domain.NewAssistantMessage("ok without tools", nil)}, nil
	}
	user := testUser()
	user.UseFunctions = true

	err := f.processor.Process(context.Background(), user, testInbound("hi"))
	require.NoError(t, err)
	require.Len(t, f.transport.CallsOf("send"), 1)
}

func TestAppendContextOnly_PersistsWithoutModelCall(t *testing.T) {
	f := newProcessorFixture(t)
	f.llm.CompleteFunc = func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
		t.Fatal("model must not be called")
		return nil, nil
	}

	inbound := testInbound("forwarded article text")
	inbound.IsForward = true
	err := f.processor.AppendContextOnly(context.Background(), testUser(), inbound)
	require.NoError(t, err)

	assert.Empty(t, f.transport.Calls)
	stored, _ := f.messages.ListThreadMessages(context.Background(), mustThreadID(t, f))
	require.Len(t, stored, 1)
	assert.Equal(t, "forwarded article text", stored[0].Content)
}
