package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fleet-rollout/internal/adapter/agent"
	"fleet-rollout/internal/adapter/notification"
	"fleet-rollout/internal/api/router"
	"fleet-rollout/internal/core"
	"fleet-rollout/internal/core/rollout"
	"fleet-rollout/internal/metrics"
	"fleet-rollout/internal/pkg/config"
	"fleet-rollout/internal/pkg/database"
	"fleet-rollout/internal/pkg/logger"
	"fleet-rollout/internal/pkg/redis"
	"fleet-rollout/internal/queue"
	"fleet-rollout/internal/repository"
	"fleet-rollout/internal/scheduler"
	"fleet-rollout/internal/service"

	_ "fleet-rollout/docs" // Swagger docs
)

var (
	configFile = flag.String("config", "", "配置文件路径 (例如: -config=configs/config.yaml)")
	groupsFile = flag.String("groups", "", "启动时导入的更新组定义 (YAML)")
	version    = flag.Bool("version", false, "显示版本信息")
)

const (
	appVersion = "1.0.0"
	appName    = "fleet-rollout"
)

// @title Fleet Rollout API
// @version 1.0
// @description 设备分阶段版本发布 API 文档
// @description 提供更新组管理、发布编排、设备上报与指令通道等功能

// @host localhost:8080
// @BasePath /
func main() {
	// 解析命令行参数
	flag.Parse()

	// 显示版本信息
	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	// init config logger
	var cfg *config.Config
	{
		// 优先级: 命令行参数 > 环境变量 > 默认路径
		configPath := getConfigPath()

		c, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("加载配置失败: %v\n", err)
			fmt.Println("\n使用方式:")
			fmt.Println("  1. 命令行参数指定:")
			fmt.Println("     ./fleet-rollout -config=configs/config.yaml")
			fmt.Println("  2. 环境变量指定:")
			fmt.Println("     export CONFIG_FILE=configs/config.yaml")
			fmt.Println("     ./fleet-rollout")
			fmt.Println("  3. 使用默认配置:")
			fmt.Println("     ./fleet-rollout  (将使用 configs/config.yaml)")
			os.Exit(1)
		}
		cfg = c

		// 初始化日志
		if err := logger.Init(&cfg.Log); err != nil {
			fmt.Printf("初始化日志失败: %v\n", err)
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("Load config file: %s of %s", configPath, getConfigSource()))

		defer func() {
			_ = logger.Close()
		}()
	}

	serverID := cfg.Server.ID
	if serverID == "" {
		serverID, _ = os.Hostname()
	}
	logger.Info(fmt.Sprintf("服务 %s 启动中...", appName), zap.String("version", appVersion), zap.String("server_id", serverID))

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer func() {
		_ = database.Close()
	}()
	logger.Info(fmt.Sprintf("数据库连接成功 %s:%v", cfg.Database.Host, cfg.Database.Port), zap.String("database", cfg.Database.Database))

	// 初始化Redis
	if err := redis.Init(&cfg.Redis); err != nil {
		logger.Fatal("初始化Redis失败", zap.Error(err))
	}
	defer func() {
		_ = redis.Close()
	}()

	db := database.GetDB()
	m := metrics.New()

	// 导入更新组定义
	groupService := service.NewUpdateGroupService(db, logger.Named("update-group"))
	if *groupsFile != "" {
		if _, err := groupService.LoadSeedFile(context.Background(), *groupsFile); err != nil {
			logger.Fatal("导入更新组定义失败", zap.Error(err))
		}
	}

	// 指令通道
	channel, err := queue.NewCommandChannel(context.Background(), redis.GetClient(), logger.Named("channel"), m, queue.Options{
		ServerID:      serverID,
		BatchSize:     int64(cfg.Channel.BatchSize),
		BlockDuration: config.ParseDuration(cfg.Channel.BlockDuration, 5*time.Second),
		CommandTTL:    config.ParseDuration(cfg.Channel.CommandTTL, 5*time.Minute),
		ReclaimIdle:   config.ParseDuration(cfg.Channel.ReclaimIdle, 5*time.Minute),
		MaxDeliveries: cfg.Channel.MaxDeliveries,
	})
	if err != nil {
		logger.Fatal("初始化指令通道失败", zap.Error(err))
	}
	defer channel.Close()

	// Agent 连接适配: 在线写通道, 离线落库
	conn := agent.NewConnection(redis.GetClient(), channel, repository.NewDeviceRepository(db),
		repository.NewQueuedCommandRepository(db), logger.Named("agent"))
	handler := conn.CommandHandler(agent.NewDeliverer(cfg.Agent.Deliverer, redis.GetClient(), serverID, logger.Named("deliverer")))
	if err := channel.StartConsumer(handler); err != nil {
		logger.Fatal("启动指令消费失败", zap.Error(err))
	}

	// 发布编排
	notifier := notification.New(cfg.Core.Notification.Provider, cfg.Core.Notification.LarkWebhook,
		cfg.Core.Notification.Enabled, logger.Named("notification"))
	manager := rollout.NewManager(repository.NewRolloutRepository(db), conn, notifier, m, logger.Named("rollout"), rollout.Options{
		DispatchConcurrency: cfg.Core.DispatchConcurrency,
	})

	// 初始化Core引擎（监控扫描）
	coreEngine := core.NewCoreEngine(rollout.NewMonitor(manager, logger.Named("monitor")), logger.Log)
	scanInterval := config.ParseDuration(cfg.Core.ScanInterval, 30*time.Second)
	coreEngine.Start(scanInterval)
	logger.Info("Core引擎启动成功", zap.Duration("scan_interval", scanInterval))

	// 初始化并启动定时任务调度器
	taskScheduler := scheduler.NewScheduler(channel, handler, repository.NewQueuedCommandRepository(db), logger.Log)
	if err := taskScheduler.Start(&cfg.Scheduler); err != nil {
		logger.Warn("定时任务调度器启动失败", zap.Error(err))
	}

	// 设置路由
	r := router.Setup(&cfg.Server, router.Dependencies{
		Manager:    manager,
		Groups:     groupService,
		Channel:    channel,
		Connection: conn,
		Metrics:    m,
		ServerID:   serverID,
	}, logger.Log)

	// 创建HTTP服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// 启动服务器
	go func() {
		logger.Info(fmt.Sprintf("%s 服务启动成功", cfg.Server.Name),
			zap.String("address", addr),
			zap.String("mode", cfg.Server.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务正在关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 关闭定时任务调度器
	taskScheduler.Stop()

	// 关闭Core引擎
	coreEngine.Stop()
	logger.Info("Core引擎已停止")

	logger.Info("服务已关闭")
}

// getConfigPath 获取配置文件路径
// 优先级: 命令行参数 > 环境变量 > 默认路径
func getConfigPath() string {
	// 1. 命令行参数
	if *configFile != "" {
		return *configFile
	}

	// 2. 环境变量
	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		return envConfig
	}

	// 3. 默认路径
	return "configs/config.yaml"
}

// getConfigSource 获取配置来源说明
func getConfigSource() string {
	if *configFile != "" {
		return "命令行参数"
	}
	if os.Getenv("CONFIG_FILE") != "" {
		return "环境变量"
	}
	return "默认配置"
}
