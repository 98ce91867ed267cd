package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleet-rollout/internal/core/rollout"
)

// CoreEngine 发布编排核心引擎, 定时驱动发布监控
type CoreEngine struct {
	monitor *rollout.Monitor
	logger  *zap.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	stopChan chan struct{}
	done     chan struct{}
}

// NewCoreEngine 创建核心引擎
func NewCoreEngine(monitor *rollout.Monitor, logger *zap.Logger) *CoreEngine {
	return &CoreEngine{
		monitor: monitor,
		logger:  logger,
	}
}

// Start 启动核心引擎
func (e *CoreEngine) Start(scanInterval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.logger.Warn("核心引擎已在运行中")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.stopChan = make(chan struct{})
	e.done = make(chan struct{})
	e.logger.Info("CoreEngine starting...", zap.Duration("scan_interval", scanInterval))

	// 启动定时扫描
	go e.runScanner(ctx, scanInterval, e.stopChan, e.done)
}

// Stop 停止核心引擎, 等待进行中的扫描结束
func (e *CoreEngine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	e.cancel()
	done := e.done
	e.mu.Unlock()

	e.logger.Info("正在停止核心引擎...")
	<-done
	e.logger.Info("核心引擎已停止")
}

// runScanner 运行扫描器
func (e *CoreEngine) runScanner(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.monitor.Scan(ctx)
		case <-stop:
			return
		}
	}
}
