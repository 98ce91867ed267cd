package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fleet-rollout/internal/pkg/config"
	"fleet-rollout/internal/queue"
)

const (
	defaultReclaimCron = "0 * * * * *" // 每分钟
	defaultPurgeCron   = "0 0 * * * *" // 每小时
	jobTimeout         = 50 * time.Second
)

// Reclaimer 重新处理超时未确认的指令
type Reclaimer interface {
	ReprocessPending(ctx context.Context, handler queue.CommandHandler) (int, error)
}

// Purger 清理过期的离线暂存指令
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler 调度器
type Scheduler struct {
	cron          *cron.Cron
	logger        *zap.Logger
	reclaimer     Reclaimer
	handler       queue.CommandHandler
	purger        Purger
	cronSchedules map[string]cron.EntryID // 存储任务ID，便于管理
}

// NewScheduler 创建调度器
func NewScheduler(reclaimer Reclaimer, handler queue.CommandHandler, purger Purger, logger *zap.Logger) *Scheduler {
	// 创建 cron 实例（带秒级支持）
	c := cron.New(cron.WithSeconds())

	return &Scheduler{
		cron:          c,
		logger:        logger,
		reclaimer:     reclaimer,
		handler:       handler,
		purger:        purger,
		cronSchedules: make(map[string]cron.EntryID),
	}
}

// Start 注册任务并启动调度器
func (s *Scheduler) Start(cfg *config.SchedulerConfig) error {
	log := s.logger.Sugar()
	log.Info("启动定时任务调度器...")

	if err := s.register("reclaim", cfg.ReclaimCron, defaultReclaimCron, s.Reclaim); err != nil {
		return err
	}
	if err := s.register("purge", cfg.PurgeCron, defaultPurgeCron, s.Purge); err != nil {
		return err
	}

	s.cron.Start()
	log.Info("定时任务调度器启动成功")
	return nil
}

func (s *Scheduler) register(name, expr, fallback string, job func(ctx context.Context)) error {
	log := s.logger.Sugar()
	if expr == "" {
		expr = fallback
		log.Warnf("未配置 %s 任务 cron，使用默认值: %s", name, expr)
	}

	entryID, err := s.cron.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		job(ctx)
	})
	if err != nil {
		log.Errorf("注册定时任务 %s: %v 失败: %v", name, expr, err)
		return err
	}

	s.cronSchedules[name] = entryID
	log.Infof("定时任务已注册: %s %s entry_id=%d", name, expr, entryID)
	return nil
}

// Reclaim 认领并重新处理超时未确认的指令
func (s *Scheduler) Reclaim(ctx context.Context) {
	n, err := s.reclaimer.ReprocessPending(ctx, s.handler)
	if err != nil {
		s.logger.Error("重新处理未确认指令失败", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("已重新处理未确认指令", zap.Int("count", n))
	}
}

// Purge 清理过期的离线暂存指令
func (s *Scheduler) Purge(ctx context.Context) {
	n, err := s.purger.PurgeExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("清理过期暂存指令失败", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("已清理过期暂存指令", zap.Int64("count", n))
	}
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.logger.Info("正在停止定时任务调度器...")

	// 停止 cron（等待正在执行的任务完成）
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("定时任务调度器已停止")
}
