package server

import (
	"context"
	"net/http"
	"strconv"

	"chatassistant/cmd/assistant-service/internal/biz"
	"chatassistant/cmd/assistant-service/internal/domain"
	"chatassistant/cmd/assistant-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServer HTTP服务器
type HTTPServer struct {
	engine  *gin.Engine
	server  *http.Server
	service *service.AssistantService
	logger  log.Logger
}

// NewHTTPServer 创建HTTP服务器
func NewHTTPServer(srv *service.AssistantService, logger log.Logger) *HTTPServer {
	engine := gin.New()

	s := &HTTPServer{
		engine:  engine,
		service: srv,
		logger:  logger,
	}
	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// registerMiddleware 注册全局中间件
func (s *HTTPServer) registerMiddleware() {
	s.engine.Use(RecoveryMiddleware(s.logger))
	s.engine.Use(LoggingMiddleware(s.logger))
	s.engine.Use(MetricsMiddleware())
}

// registerRoutes 注册路由
func (s *HTTPServer) registerRoutes() {
	api := s.engine.Group("/api/v1")
	{
		api.POST("/inbound", s.handleInbound)
		api.POST("/chats/:chat_id/generation/cancel", s.cancelGeneration)

		users := api.Group("/users/:id")
		{
			users.POST("/thread/reset", s.resetThread)
			users.GET("/usage", s.getUsage)
			users.PATCH("/settings", s.updateSettings)
		}
	}

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// inboundRequest 入站消息请求体
type inboundRequest struct {
	UserID             string `json:"user_id" binding:"required"`
	ChatID             int64  `json:"chat_id" binding:"required"`
	Text               string `json:"text"`
	Parts              []struct {
		Type   string `json:"type"`
		Text   string `json:"text,omitempty"`
		URL    string `json:"url,omitempty"`
		Width  int    `json:"width,omitempty"`
		Height int    `json:"height,omitempty"`
	} `json:"parts,omitempty"`
	MessageID         int64 `json:"message_id" binding:"required"`
	ReplyToMessageID  int64 `json:"reply_to_message_id,omitempty"`
	IsForward         bool  `json:"is_forward,omitempty"`
	TranscriptSeconds int   `json:"transcript_seconds,omitempty"`
}

// handleInbound 处理入站消息
func (s *HTTPServer) handleInbound(c *gin.Context) {
	var req inboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	inbound := &biz.InboundMessage{
		UserID:             req.UserID,
		ChatID:             req.ChatID,
		Text:               req.Text,
		TransportMessageID: req.MessageID,
		ReplyToTransportID: req.ReplyToMessageID,
		IsForward:          req.IsForward,
		TranscriptSeconds:  req.TranscriptSeconds,
	}
	for _, p := range req.Parts {
		part := domain.ContentPart{
			Type: domain.ContentPartType(p.Type),
			Text: p.Text,
			URL:  p.URL,
		}
		// 图片的Token成本只有在知道尺寸的入口处能算
		if part.Type == domain.PartTypeImageURL {
			part.Tokens = domain.EstimateImageTokens(p.Width, p.Height)
		}
		inbound.Parts = append(inbound.Parts, part)
	}

	if err := s.service.HandleInbound(c.Request.Context(), inbound); err != nil {
		Error(c, err)
		return
	}
	Success(c, nil)
}

// cancelGeneration 中止会话内进行中的生成（传输层取消按钮回调）
func (s *HTTPServer) cancelGeneration(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		BadRequest(c, err)
		return
	}
	message := s.service.CancelGeneration(c.Request.Context(), chatID)
	Success(c, gin.H{"message": message})
}

// resetThread 归档当前活跃线程
func (s *HTTPServer) resetThread(c *gin.Context) {
	message, err := s.service.ResetThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"message": message})
}

// getUsage 获取当月用量
func (s *HTTPServer) getUsage(c *gin.Context) {
	report, err := s.service.GetUsage(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	completions := make([]gin.H, len(report.Completions))
	for i, u := range report.Completions {
		completions[i] = gin.H{
			"model":             u.Model,
			"prompt_tokens":     u.PromptTokens,
			"completion_tokens": u.CompletionTokens,
		}
	}
	Success(c, gin.H{
		"month":                 report.Month.Format("2006-01"),
		"completions":           completions,
		"transcription_seconds": report.TranscriptionSeconds,
	})
}

// settingsRequest 用户设置请求体
type settingsRequest struct {
	CurrentModel        *string `json:"current_model,omitempty"`
	SystemMode          *string `json:"system_mode,omitempty"`
	DynamicDialog       *bool   `json:"dynamic_dialog,omitempty"`
	StreamMessages      *bool   `json:"stream_messages,omitempty"`
	FunctionCallVerbose *bool   `json:"function_call_verbose,omitempty"`
	ForwardAsPrompt     *bool   `json:"forward_as_prompt,omitempty"`
	UseFunctions        *bool   `json:"use_functions,omitempty"`
}

// updateSettings 更新用户设置
func (s *HTTPServer) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	user, err := s.service.UpdateSettings(c.Request.Context(), c.Param("id"), &service.SettingsPatch{
		CurrentModel:        req.CurrentModel,
		SystemMode:          req.SystemMode,
		DynamicDialog:       req.DynamicDialog,
		StreamMessages:      req.StreamMessages,
		FunctionCallVerbose: req.FunctionCallVerbose,
		ForwardAsPrompt:     req.ForwardAsPrompt,
		UseFunctions:        req.UseFunctions,
	})
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{
		"current_model":         user.CurrentModel,
		"system_mode":           user.SystemMode,
		"dynamic_dialog":        user.DynamicDialog,
		"stream_messages":       user.StreamMessages,
		"function_call_verbose": user.FunctionCallVerbose,
		"forward_as_prompt":     user.ForwardAsPrompt,
		"use_functions":         user.UseFunctions,
	})
}

// Start 启动服务器
func (s *HTTPServer) Start(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭服务器
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
