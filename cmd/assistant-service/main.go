package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatassistant/cmd/assistant-service/internal/biz"
	"chatassistant/cmd/assistant-service/internal/data"
	"chatassistant/cmd/assistant-service/internal/domain"
	"chatassistant/cmd/assistant-service/internal/infra"
	"chatassistant/pkg/config"

	"github.com/go-kratos/kratos/v2/log"
)

func main() {
	configPath := config.GetEnv("CONFIG_PATH", "./configs/assistant-service.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	logger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service", "assistant-service",
	)
	helper := log.NewHelper(logger)

	components, err := initApp(
		&data.DBConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		},
		&data.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		&infra.LLMGatewayConfig{
			BaseURL:        cfg.Gateways.LLM.BaseURL,
			RequestTimeout: cfg.Gateways.LLM.Timeout,
		},
		&infra.TransportGatewayConfig{
			BaseURL:          cfg.Gateways.Transport.BaseURL,
			RequestTimeout:   cfg.Gateways.Transport.Timeout,
			MaxMessageLength: cfg.Processing.MaxMessageLength,
		},
		&infra.FunctionGatewayConfig{
			BaseURL:       cfg.Gateways.Functions.BaseURL,
			InvokeTimeout: cfg.Gateways.Functions.Timeout,
		},
		&domain.ProcessingConfig{
			MessageExpirationWindow: cfg.Processing.MessageExpirationWindow,
			MaxFunctionCalls:        cfg.Processing.MaxFunctionCalls,
			MinEditInterval:         cfg.Processing.MinEditInterval,
			MinStreamedChars:        cfg.Processing.MinStreamedChars,
		},
		logger,
	)
	if err != nil {
		stdlog.Fatalf("Failed to initialize app: %v", err)
	}

	helper.Infof("starting assistant-service on %s", cfg.Server.Addr)
	go func() {
		if err := components.Server.Start(cfg.Server.Addr); err != nil {
			helper.Errorf("http server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	helper.Info("shutting down assistant-service")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := components.Server.Shutdown(ctx); err != nil {
		helper.Warnf("http server forced to shutdown: %v", err)
	}
	if components.DB != nil {
		if sqlDB, err := components.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if components.Redis != nil {
		_ = components.Redis.Close()
	}

	helper.Info("assistant-service exited")
}

// newResilientLLM 默认弹性参数的模型客户端
func newResilientLLM(base *infra.LLMGatewayClient, logger log.Logger) biz.LLMClient {
	return infra.NewResilientLLMClient(base, nil, nil, logger)
}
