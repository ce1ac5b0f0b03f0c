//go:build wireinject
// +build wireinject

package main

import (
	"chatassistant/cmd/assistant-service/internal/biz"
	"chatassistant/cmd/assistant-service/internal/data"
	"chatassistant/cmd/assistant-service/internal/domain"
	"chatassistant/cmd/assistant-service/internal/infra"
	"chatassistant/cmd/assistant-service/internal/server"
	"chatassistant/cmd/assistant-service/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// AppComponents 包含应用组件和资源
type AppComponents struct {
	Server *server.HTTPServer
	DB     *gorm.DB
	Redis  *redis.Client
}

// initApp 初始化应用
func initApp(
	dbConfig *data.DBConfig,
	redisConfig *data.RedisConfig,
	llmConfig *infra.LLMGatewayConfig,
	transportConfig *infra.TransportGatewayConfig,
	functionConfig *infra.FunctionGatewayConfig,
	processingConfig *domain.ProcessingConfig,
	logger log.Logger,
) (*AppComponents, error) {
	panic(wire.Build(
		// Data 层
		data.ProviderSet,

		// Infra 层
		infra.NewLLMGatewayClient,
		newResilientLLM,
		infra.NewTransportGatewayClient,
		infra.NewFunctionGatewayClient,

		// Biz 层
		biz.NewCancelRegistry,
		biz.NewSummarizer,
		biz.NewContextWindower,
		biz.NewLinearThreadResolver,
		biz.NewDynamicThreadResolver,
		biz.NewFunctionCallLoop,
		biz.NewStreamDeliverer,
		biz.NewMessageProcessor,
		biz.NewUsageUsecase,

		// Service 层
		service.NewAssistantService,

		// Server 层
		server.NewHTTPServer,

		// 组装 AppComponents
		wire.Struct(new(AppComponents), "*"),
	))
}
