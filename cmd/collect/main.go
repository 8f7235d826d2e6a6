package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/NewsHub/internal/aggregator"
	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/config"
	"github.com/LJTian/NewsHub/internal/logging"
	"github.com/LJTian/NewsHub/internal/processor"
	"github.com/LJTian/NewsHub/internal/storage"
	"github.com/urfave/cli/v2"
)

// 一个仅执行一次采集任务的命令行入口：适合手动触发或交给外部定时器
func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "collect",
		Usage: "Fetch articles from all configured providers once and store them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (environment variables still take precedence)",
				EnvVars: []string{"NEWSHUB_CONFIG"},
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of articles requested from each provider",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Action: collectCommand,
	}
}

func collectCommand(c *cli.Context) error {
	cfg, err := config.LoadFile(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), 1)
	}
	if c.IsSet("limit") {
		if c.Int("limit") < 1 {
			return cli.Exit("--limit must be positive", 1)
		}
		cfg.FetchLimit = c.Int("limit")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	logger := logging.New(cfg.LogLevel)

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("init store failed: %v", err), 1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = runCollect(ctx, store, collector.FromConfig(cfg, logger), cfg, logger, c.App.Writer)
	if err != nil {
		return cli.Exit(fmt.Sprintf("collect failed: %v", err), 1)
	}
	return nil
}

// runCollect 执行一轮聚合并把结果打印到 w。只有 Aggregate 返回 error 时才算失败。
func runCollect(ctx context.Context, store aggregator.Store, fetchers []collector.Fetcher, cfg *config.Config, logger *slog.Logger, w io.Writer) (aggregator.RunStats, error) {
	agg, err := aggregator.NewAggregator(store, processor.NewSimpleProcessor(logger),
		aggregator.WithLogger(logger),
		aggregator.WithFetchLimit(cfg.FetchLimit),
		aggregator.WithPoolSize(cfg.FetchConcurrency),
	)
	if err != nil {
		return aggregator.RunStats{}, err
	}
	defer agg.Release()

	for _, f := range fetchers {
		if err := agg.RegisterAdapter(f); err != nil {
			return aggregator.RunStats{}, err
		}
	}

	stats, err := agg.Aggregate(ctx)
	printStats(w, stats)
	return stats, err
}

func printStats(w io.Writer, stats aggregator.RunStats) {
	fmt.Fprintf(w, "run %s\n", stats.RunID)
	for _, a := range stats.Adapters {
		fmt.Fprintf(w, "  %-16s fetched=%d stored=%d\n", a.Name, a.Fetched, a.Stored)
	}
	fmt.Fprintf(w, "fetched: %d\nstored: %d\n", stats.TotalFetched, stats.TotalStored)
	if len(stats.Errors) > 0 {
		fmt.Fprintf(w, "errors (%d):\n", len(stats.Errors))
		for _, e := range stats.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}
