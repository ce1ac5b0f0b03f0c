package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"chatassistant/cmd/assistant-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// FunctionGatewayConfig 函数网关客户端配置
type FunctionGatewayConfig struct {
	// 网关地址
	BaseURL string

	// 单次函数执行的超时
	InvokeTimeout time.Duration
}

// FunctionGatewayClient 函数网关客户端
// 函数由网关侧注册与执行，这里只做发现与调用
type FunctionGatewayClient struct {
	httpClient *http.Client
	config     *FunctionGatewayConfig
	log        *log.Helper
}

// NewFunctionGatewayClient 创建函数网关客户端
func NewFunctionGatewayClient(config *FunctionGatewayConfig, logger log.Logger) biz.FunctionRunner {
	if config.InvokeTimeout == 0 {
		config.InvokeTimeout = 60 * time.Second
	}
	return &FunctionGatewayClient{
		httpClient: &http.Client{Timeout: config.InvokeTimeout},
		config:     config,
		log:        log.NewHelper(log.With(logger, "module", "function-gateway")),
	}
}

// functionListDTO 函数清单响应体
type functionListDTO struct {
	Functions []functionSchemaDTO `json:"functions"`
}

// invokeRequestDTO 函数调用请求体
type invokeRequestDTO struct {
	Arguments json.RawMessage `json:"arguments"`
}

// invokeResponseDTO 函数调用响应体
type invokeResponseDTO struct {
	Result string `json:"result"`
}

// Schemas 获取暴露给模型的函数描述清单
func (c *FunctionGatewayClient) Schemas(ctx context.Context) ([]biz.FunctionSchema, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/functions", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("function gateway returned status %d", resp.StatusCode)
	}

	var list functionListDTO
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode function list: %w", err)
	}

	schemas := make([]biz.FunctionSchema, len(list.Functions))
	for i, f := range list.Functions {
		schemas[i] = biz.FunctionSchema{
			Name:        f.Name,
			Description: f.Description,
			Parameters:  f.Parameters,
		}
	}
	return schemas, nil
}

// RunFunction 执行函数并返回文本结果
func (c *FunctionGatewayClient) RunFunction(ctx context.Context, name, argumentsJSON string) (string, error) {
	args := json.RawMessage(argumentsJSON)
	if !json.Valid(args) {
		// 模型偶尔产出裸文本参数，包装为字符串再转发
		wrapped, err := json.Marshal(argumentsJSON)
		if err != nil {
			return "", fmt.Errorf("wrap arguments: %w", err)
		}
		args = wrapped
	}

	body, err := json.Marshal(&invokeRequestDTO{Arguments: args})
	if err != nil {
		return "", fmt.Errorf("marshal invoke request: %w", err)
	}

	endpoint := c.config.BaseURL + "/v1/functions/" + url.PathEscape(name) + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoke function %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("function %s returned status %d", name, resp.StatusCode)
	}

	var result invokeResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode invoke response: %w", err)
	}
	return result.Result, nil
}
