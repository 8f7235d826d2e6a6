package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/LJTian/NewsHub/internal/aggregator"
	"github.com/robfig/cron/v3"
)

// ErrRunInProgress 上一轮采集尚未结束（本进程或其它实例持有锁）
var ErrRunInProgress = errors.New("aggregation run already in progress")

const (
	// 锁的过期时间需覆盖一次完整运行，进程异常退出后也能自动释放
	defaultLockTTL = 30 * time.Minute
	// 延迟执行首轮采集，避免与服务启动时的初始化争抢资源
	defaultStartupDelay = 15 * time.Second
)

type Runner interface {
	Aggregate(ctx context.Context) (aggregator.RunStats, error)
}

// Locker 跨进程互斥，未配置 Redis 时实现方总是返回成功
type Locker interface {
	AcquireRunLock(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error)
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	locker Locker
	logger *slog.Logger

	lockTTL      time.Duration
	startupDelay time.Duration
	running      atomic.Bool
}

func New(spec string, runner Runner, locker Locker, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()

	s := &Scheduler{
		cron:         c,
		runner:       runner,
		locker:       locker,
		logger:       logger.With("component", "scheduler"),
		lockTTL:      defaultLockTTL,
		startupDelay: defaultStartupDelay,
	}

	_, err := c.AddFunc(spec, s.tick)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	time.AfterFunc(s.startupDelay, s.tick)
}

// Stop 停止定时器并等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// RunOnce 对外暴露的单次执行入口，方便手动触发采集
func (s *Scheduler) RunOnce(ctx context.Context) (aggregator.RunStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return aggregator.RunStats{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	if s.locker != nil {
		release, ok, err := s.locker.AcquireRunLock(ctx, s.lockTTL)
		if err != nil {
			// Redis 不可用时不阻塞采集，数据层的唯一约束保证结果正确
			s.logger.Warn("acquire run lock failed, continue without lock", "err", err)
		} else if !ok {
			return aggregator.RunStats{}, ErrRunInProgress
		} else {
			defer release()
		}
	}

	return s.runner.Aggregate(ctx)
}

func (s *Scheduler) tick() {
	s.logger.Info("start collect job")
	stats, err := s.RunOnce(context.Background())
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Info("skip collect job, previous run still in progress")
	case err != nil:
		s.logger.Error("collect job failed", "run_id", stats.RunID, "err", err)
	default:
		s.logger.Info("collect job done",
			"run_id", stats.RunID,
			"fetched", stats.TotalFetched,
			"stored", stats.TotalStored,
			"errors", len(stats.Errors),
		)
	}
}
