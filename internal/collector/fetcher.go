package collector

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultAuthor   = "Unknown"
	DefaultCategory = "general"
)

// NewsItem 各数据源归一化后的统一结构。可选字段用空字符串表示缺失，入库时写 NULL
type NewsItem struct {
	Title       string
	Description string
	Content     string
	Author      string
	URL         string
	ImageURL    string
	PublishedAt time.Time
	// ExternalID 数据源自身的稳定 ID；没有稳定 ID 的数据源用 URL 哈希
	ExternalID string
	SourceName string
	// SourceAPIID 数据源上报的来源标识（如 NewsAPI 的 source.id），首次创建 Source 时写入
	SourceAPIID string
	Category    string
	Extra       map[string]any
}

// Fetcher 抽象每一个数据源。
// 网络错误、非 2xx 响应与数据源返回的失败状态只记录 warn 日志并返回空列表；
// 返回 error 表示适配器自身的问题（例如缺少配置），由聚合器记录。
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]NewsItem, error)
}

// capLimit 将调用方请求的条数限制在数据源允许的上限内
func capLimit(limit, max int) int {
	if limit < 1 || limit > max {
		return max
	}
	return limit
}

func fetcherLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("fetcher", name)
}
