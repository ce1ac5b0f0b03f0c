package infra

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatassistant/cmd/assistant-service/internal/biz"
	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// LLMGatewayConfig 模型网关客户端配置
type LLMGatewayConfig struct {
	// 网关地址
	BaseURL string

	// 非流式请求超时
	RequestTimeout time.Duration

	// 流式请求的最长生命周期
	StreamTimeout time.Duration
}

// LLMGatewayClient 模型网关客户端
// 网关在内部把请求路由到具体的模型提供方
type LLMGatewayClient struct {
	httpClient *http.Client
	config     *LLMGatewayConfig
	log        *log.Helper
}

// NewLLMGatewayClient 创建模型网关客户端
func NewLLMGatewayClient(config *LLMGatewayConfig, logger log.Logger) *LLMGatewayClient {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 120 * time.Second
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = 10 * time.Minute
	}
	return &LLMGatewayClient{
		// 流式响应需要长连接，超时由每个请求的 context 控制
		httpClient: &http.Client{},
		config:     config,
		log:        log.NewHelper(log.With(logger, "module", "llm-gateway")),
	}
}

// completionRequestDTO 补全请求体
type completionRequestDTO struct {
	Model     string                `json:"model"`
	Mode      string                `json:"mode,omitempty"`
	Messages  []messageDTO          `json:"messages"`
	Functions []functionSchemaDTO   `json:"functions,omitempty"`
	MaxTokens int                   `json:"max_tokens,omitempty"`
	Stream    bool                  `json:"stream"`
}

type messageDTO struct {
	Role         string           `json:"role"`
	Content      string           `json:"content"`
	Name         string           `json:"name,omitempty"`
	FunctionCall *functionCallDTO `json:"function_call,omitempty"`
	Parts        []partDTO        `json:"parts,omitempty"`
}

type partDTO struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

type functionCallDTO struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type functionSchemaDTO struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// completionResponseDTO 非流式补全响应体
type completionResponseDTO struct {
	Content      string           `json:"content"`
	FunctionCall *functionCallDTO `json:"function_call,omitempty"`
	Usage        *usageDTO        `json:"usage,omitempty"`
}

type usageDTO struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// streamEventDTO 流式事件体（SSE data 行）
type streamEventDTO struct {
	Content      string           `json:"content"`
	FunctionCall *functionCallDTO `json:"function_call,omitempty"`
	Done         bool             `json:"done"`
}

// Complete 非流式补全
func (c *LLMGatewayClient) Complete(ctx context.Context, req *biz.CompletionRequest) (*biz.CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var resp completionResponseDTO
	if err := c.postJSON(ctx, "/v1/completions", c.toRequestDTO(req, false), &resp); err != nil {
		return nil, err
	}

	result := &biz.CompletionResult{
		Message: domain.NewAssistantMessage(resp.Content, toFunctionCall(resp.FunctionCall)),
	}
	if resp.Usage != nil {
		result.Usage = &domain.CompletionUsage{
			Model:            req.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	return result, nil
}

// CompleteStream 流式补全
// 事件通道承载累计内容；done 或连接结束后关闭两个通道
func (c *LLMGatewayClient) CompleteStream(ctx context.Context, req *biz.CompletionRequest) (<-chan *biz.CompletionEvent, <-chan error) {
	events := make(chan *biz.CompletionEvent, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		ctx, cancel := context.WithTimeout(ctx, c.config.StreamTimeout)
		defer cancel()

		body, err := json.Marshal(c.toRequestDTO(req, true))
		if err != nil {
			errs <- fmt.Errorf("marshal stream request: %w", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/completions", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errs <- fmt.Errorf("stream completions: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- fmt.Errorf("llm gateway returned status %d", resp.StatusCode)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}

			var ev streamEventDTO
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				c.log.WithContext(ctx).Warnf("skip malformed stream event: %v", err)
				continue
			}

			select {
			case events <- &biz.CompletionEvent{
				Content:      ev.Content,
				FunctionCall: toFunctionCall(ev.FunctionCall),
				Done:         ev.Done,
			}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			if ev.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("read stream: %w", err)
		}
	}()

	return events, errs
}

// summarizeRequestDTO 摘要请求体
type summarizeRequestDTO struct {
	Model     string       `json:"model"`
	Messages  []messageDTO `json:"messages"`
	MaxTokens int          `json:"max_tokens"`
}

type summarizeResponseDTO struct {
	Summary string `json:"summary"`
}

// Summarize 把一段历史消息压缩为摘要文本
func (c *LLMGatewayClient) Summarize(ctx context.Context, messages []*domain.Message, model string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req := &summarizeRequestDTO{
		Model:     model,
		Messages:  toMessageDTOs(messages),
		MaxTokens: maxTokens,
	}
	var resp summarizeResponseDTO
	if err := c.postJSON(ctx, "/v1/summarize", req, &resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

// postJSON 发送JSON请求并解码响应
func (c *LLMGatewayClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call llm gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm gateway returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// toRequestDTO 转换补全请求
func (c *LLMGatewayClient) toRequestDTO(req *biz.CompletionRequest, stream bool) *completionRequestDTO {
	dto := &completionRequestDTO{
		Model:    req.Model,
		Mode:     req.Mode,
		Messages: toMessageDTOs(req.Messages),
		Stream:   stream,
	}
	for _, schema := range req.Functions {
		dto.Functions = append(dto.Functions, functionSchemaDTO{
			Name:        schema.Name,
			Description: schema.Description,
			Parameters:  schema.Parameters,
		})
	}
	return dto
}

// toMessageDTOs 转换消息列表
func toMessageDTOs(messages []*domain.Message) []messageDTO {
	dtos := make([]messageDTO, len(messages))
	for i, m := range messages {
		dto := messageDTO{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.FunctionName,
		}
		if m.FunctionCall != nil {
			dto.FunctionCall = &functionCallDTO{Name: m.FunctionCall.Name, Arguments: m.FunctionCall.Arguments}
		}
		for _, part := range m.Parts {
			dto.Parts = append(dto.Parts, partDTO{Type: string(part.Type), Text: part.Text, URL: part.URL})
		}
		dtos[i] = dto
	}
	return dtos
}

// toFunctionCall 转换函数调用描述
func toFunctionCall(dto *functionCallDTO) *domain.FunctionCall {
	if dto == nil || dto.Name == "" {
		return nil
	}
	return &domain.FunctionCall{Name: dto.Name, Arguments: dto.Arguments}
}
