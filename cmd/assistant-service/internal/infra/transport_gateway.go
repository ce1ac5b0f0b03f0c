package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatassistant/cmd/assistant-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// TransportGatewayConfig 传输网关客户端配置
type TransportGatewayConfig struct {
	// 网关地址
	BaseURL string

	// 请求超时
	RequestTimeout time.Duration

	// 单条出站消息的最大长度
	MaxMessageLength int
}

// TransportGatewayClient 传输网关客户端
// 网关代理具体的聊天平台，这里只关心与平台无关的 send/edit/typing 语义
type TransportGatewayClient struct {
	httpClient *http.Client
	config     *TransportGatewayConfig
	log        *log.Helper
}

// NewTransportGatewayClient 创建传输网关客户端
func NewTransportGatewayClient(config *TransportGatewayConfig, logger log.Logger) biz.Transport {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.MaxMessageLength == 0 {
		config.MaxMessageLength = 4080
	}
	return &TransportGatewayClient{
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		config:     config,
		log:        log.NewHelper(log.With(logger, "module", "transport-gateway")),
	}
}

// sendRequestDTO 发送/编辑请求体
type sendRequestDTO struct {
	ChatID             int64  `json:"chat_id"`
	MessageID          int64  `json:"message_id,omitempty"`
	Text               string `json:"text"`
	ReplyToMessageID   int64  `json:"reply_to_message_id,omitempty"`
	WithCancelButton   bool   `json:"with_cancel_button,omitempty"`
	ParseMarkdown      bool   `json:"parse_markdown,omitempty"`
}

// sendResponseDTO 发送响应体
type sendResponseDTO struct {
	MessageID int64 `json:"message_id"`
}

// Send 发送新消息，返回传输层消息ID
func (c *TransportGatewayClient) Send(ctx context.Context, chatID int64, text string, opts *biz.SendOptions) (int64, error) {
	req := &sendRequestDTO{ChatID: chatID, Text: text}
	applyOptions(req, opts)

	var resp sendResponseDTO
	if err := c.postJSON(ctx, "/v1/messages/send", req, &resp); err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

// Edit 编辑已发送的消息
func (c *TransportGatewayClient) Edit(ctx context.Context, chatID int64, transportMsgID int64, text string, opts *biz.SendOptions) error {
	req := &sendRequestDTO{ChatID: chatID, MessageID: transportMsgID, Text: text}
	applyOptions(req, opts)
	return c.postJSON(ctx, "/v1/messages/edit", req, nil)
}

// SendTyping 发送输入中状态
func (c *TransportGatewayClient) SendTyping(ctx context.Context, chatID int64) error {
	return c.postJSON(ctx, "/v1/messages/typing", &sendRequestDTO{ChatID: chatID}, nil)
}

// MaxMessageLength 单条出站消息的最大长度
func (c *TransportGatewayClient) MaxMessageLength() int {
	return c.config.MaxMessageLength
}

// postJSON 发送JSON请求，out 为 nil 时丢弃响应体
func (c *TransportGatewayClient) postJSON(ctx context.Context, path string, in, out any) error {
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
		return fmt.Errorf("call transport gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("transport gateway returned status %d: %s", resp.StatusCode, detail)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// applyOptions 把发送选项映射到请求体
func applyOptions(req *sendRequestDTO, opts *biz.SendOptions) {
	if opts == nil {
		return
	}
	req.ReplyToMessageID = opts.ReplyToTransportID
	req.WithCancelButton = opts.WithCancelAffordance
	req.ParseMarkdown = opts.Markdown
}
