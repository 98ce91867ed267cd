package router

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"fleet-rollout/internal/adapter/agent"
	"fleet-rollout/internal/api/handler"
	"fleet-rollout/internal/api/middleware"
	"fleet-rollout/internal/core/rollout"
	"fleet-rollout/internal/metrics"
	"fleet-rollout/internal/pkg/config"
	"fleet-rollout/internal/queue"
	"fleet-rollout/internal/service"
	"fleet-rollout/pkg/utils"
)

// Dependencies 路由依赖的组件, 由 main 统一装配
type Dependencies struct {
	Manager    *rollout.Manager
	Groups     *service.UpdateGroupService
	Channel    *queue.CommandChannel
	Connection *agent.Connection
	Metrics    *metrics.Metrics
	ServerID   string
}

// Setup 设置路由
func Setup(cfg *config.ServerConfig, deps Dependencies, logger *zap.Logger) *gin.Engine {
	// 设置Gin模式
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := utils.RegisterValidators(v); err != nil {
			logger.Warn("注册自定义校验失败", zap.Error(err))
		}
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware(logger))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 初始化Handler
	rolloutHandler := handler.NewRolloutHandler(deps.Manager)
	groupHandler := handler.NewUpdateGroupHandler(deps.Groups)
	commandHandler := handler.NewCommandHandler(deps.Channel, deps.Connection, deps.ServerID)

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 更新组管理
		groupUpdateGroups := v1.Group("/update-groups")
		{
			groupUpdateGroups.GET("", groupHandler.List)       // 列表(含成员数)
			groupUpdateGroups.POST("", groupHandler.Create)    // 创建更新组
			groupUpdateGroups.PUT("/:id", groupHandler.Update) // 更新策略
		}
		v1.PUT("/devices/:id/group", groupHandler.AssignDevice) // 设备分组

		// 发布管理
		groupRollouts := v1.Group("/rollouts")
		{
			groupRollouts.POST("", rolloutHandler.Create)
			groupRollouts.GET("", rolloutHandler.List)
			groupRollouts.GET("/:id", rolloutHandler.Get)

			// 状态操作
			groupRollouts.POST("/:id/start", rolloutHandler.Start)
			groupRollouts.POST("/:id/pause", rolloutHandler.Pause)
			groupRollouts.POST("/:id/resume", rolloutHandler.Resume)
			groupRollouts.POST("/:id/rollback", rolloutHandler.Rollback)
			groupRollouts.POST("/:id/stages/:stage_id/promote", rolloutHandler.Promote)

			groupRollouts.GET("/:id/events", rolloutHandler.Events)
			groupRollouts.GET("/:id/devices", rolloutHandler.Devices)

			// Agent 上报
			groupRollouts.POST("/report", rolloutHandler.Report)
			groupRollouts.POST("/progress", rolloutHandler.Progress)
		}

		// 指令通道
		groupCommands := v1.Group("/commands")
		{
			groupCommands.POST("", commandHandler.Publish)
			groupCommands.POST("/responses", commandHandler.Respond)
			groupCommands.GET("/stats", commandHandler.Stats)
		}

		v1.POST("/agents/:device_id/connected", commandHandler.Connected)
	}

	return r
}
