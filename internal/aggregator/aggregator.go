package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/processor"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

const (
	DefaultFetchLimit = 100
	DefaultPoolSize   = 4
)

// Store 是聚合器需要的存储能力
type Store interface {
	SaveBatch(ctx context.Context, items []processor.ProcessedNews) (int, error)
}

// Processor 把原始条目清洗成可入库的结构
type Processor interface {
	Process(items []collector.NewsItem) []processor.ProcessedNews
}

// AdapterStats 单个数据源在一次运行中的结果
type AdapterStats struct {
	Name     string        `json:"name"`
	Fetched  int           `json:"fetched"`
	Stored   int           `json:"stored"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunStats 一次聚合运行的汇总。Errors 非空不代表运行失败。
type RunStats struct {
	RunID        string         `json:"runId"`
	TotalFetched int            `json:"totalFetched"`
	TotalStored  int            `json:"totalStored"`
	Errors       []string       `json:"errors"`
	Adapters     []AdapterStats `json:"adapters"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
}

type Aggregator struct {
	store      Store
	processor  Processor
	pool       *ants.Pool
	fetchLimit int
	logger     *slog.Logger

	mu       sync.Mutex
	adapters []collector.Fetcher
}

type Option func(*Aggregator) error

// WithPoolSize 设置并发抓取的协程池大小，默认 4
func WithPoolSize(size int) Option {
	return func(a *Aggregator) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if a.pool != nil {
			a.pool.Release()
		}
		a.pool = pool
		return nil
	}
}

// WithFetchLimit 每个数据源单次请求的条数上限，适配器会再按各自的上限截断
func WithFetchLimit(limit int) Option {
	return func(a *Aggregator) error {
		if limit < 1 {
			limit = DefaultFetchLimit
		}
		a.fetchLimit = limit
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

func NewAggregator(store Store, p Processor, opts ...Option) (*Aggregator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if p == nil {
		return nil, ErrProcessorRequired
	}

	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, err
	}

	a := &Aggregator{
		store:      store,
		processor:  p,
		pool:       pool,
		fetchLimit: DefaultFetchLimit,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			a.Release()
			return nil, err
		}
	}
	return a, nil
}

// Release 释放协程池，之后不能再调用 Aggregate
func (a *Aggregator) Release() {
	if a.pool != nil {
		a.pool.Release()
	}
}

// RegisterAdapter 追加一个数据源；注册顺序决定结果的汇总顺序
func (a *Aggregator) RegisterAdapter(f collector.Fetcher) error {
	if f == nil {
		return ErrNilAdapter
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adapters = append(a.adapters, f)
	return nil
}

// Adapters 返回当前注册表的快照
func (a *Aggregator) Adapters() []collector.Fetcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]collector.Fetcher(nil), a.adapters...)
}

type fetchResult struct {
	name     string
	items    []collector.NewsItem
	err      error
	duration time.Duration
}

// Aggregate 并发抓取所有数据源，再按注册顺序依次清洗、入库。
// 单个数据源出错只记录到 Errors；只有存储层整体不可用或 ctx 取消时返回 error。
func (a *Aggregator) Aggregate(ctx context.Context) (RunStats, error) {
	stats := RunStats{
		RunID:     uuid.NewString(),
		Errors:    []string{},
		Adapters:  []AdapterStats{},
		StartedAt: time.Now().UTC(),
	}
	logger := a.logger.With("run_id", stats.RunID)

	adapters := a.Adapters()
	if len(adapters) == 0 {
		logger.Warn("aggregate skipped", "err", ErrNoAdapters)
		stats.Errors = append(stats.Errors, ErrNoAdapters.Error())
		stats.FinishedAt = time.Now().UTC()
		return stats, nil
	}

	logger.Info("aggregate start", "adapters", len(adapters), "limit", a.fetchLimit)
	results := a.fetchAll(ctx, adapters, logger)

	for i := range adapters {
		if err := ctx.Err(); err != nil {
			stats.FinishedAt = time.Now().UTC()
			logger.Warn("aggregate cancelled", "err", err)
			return stats, err
		}

		res := results[i]
		name := res.name
		as := AdapterStats{Name: name, Fetched: len(res.items), Duration: res.duration}

		if res.err != nil {
			msg := fmt.Sprintf("%s: %v", name, res.err)
			as.Error = res.err.Error()
			stats.Errors = append(stats.Errors, msg)
			logger.Error("adapter failed", "adapter", name, "err", res.err)
		}
		stats.TotalFetched += len(res.items)

		if len(res.items) > 0 {
			processed := a.processor.Process(res.items)
			stored, err := a.store.SaveBatch(ctx, processed)
			as.Stored = stored
			stats.TotalStored += stored
			if err != nil {
				stats.Adapters = append(stats.Adapters, as)
				stats.FinishedAt = time.Now().UTC()
				logger.Error("aggregate aborted", "adapter", name, "err", err)
				return stats, fmt.Errorf("store %s batch: %w", name, err)
			}
		}

		logger.Info("adapter done", "adapter", name, "fetched", as.Fetched, "stored", as.Stored, "duration", as.Duration)
		stats.Adapters = append(stats.Adapters, as)
	}

	stats.FinishedAt = time.Now().UTC()
	logger.Info("aggregate done",
		"fetched", stats.TotalFetched,
		"stored", stats.TotalStored,
		"errors", len(stats.Errors),
		"duration", stats.FinishedAt.Sub(stats.StartedAt),
	)
	return stats, nil
}

// fetchAll 在协程池里并发执行所有 Fetch，结果按注册位置存放
func (a *Aggregator) fetchAll(ctx context.Context, adapters []collector.Fetcher, logger *slog.Logger) []fetchResult {
	results := make([]fetchResult, len(adapters))

	var wg sync.WaitGroup
	for i, f := range adapters {
		wg.Add(1)
		err := a.pool.Submit(func() {
			defer wg.Done()
			results[i] = a.fetchOne(ctx, i, f, logger)
		})
		if err != nil {
			wg.Done()
			results[i] = fetchResult{name: adapterName(i, f), err: fmt.Errorf("submit fetch: %w", err)}
		}
	}
	wg.Wait()

	return results
}

// fetchOne 执行单个数据源的抓取。与 error 一起返回的条目照常入库。
func (a *Aggregator) fetchOne(ctx context.Context, idx int, f collector.Fetcher, logger *slog.Logger) (res fetchResult) {
	start := time.Now()
	res.name = adapterName(idx, f)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("adapter panicked", "adapter", res.name, "panic", r)
			res.items = nil
			res.err = fmt.Errorf("panic: %v", r)
		}
		res.duration = time.Since(start)
	}()

	res.items, res.err = f.Fetch(ctx, a.fetchLimit)
	return res
}

// adapterName 读取数据源名称；Name 本身出错时按注册位置命名
func adapterName(idx int, f collector.Fetcher) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = fmt.Sprintf("adapter #%d", idx+1)
		}
	}()
	name = f.Name()
	if name == "" {
		name = fmt.Sprintf("adapter #%d", idx+1)
	}
	return name
}
