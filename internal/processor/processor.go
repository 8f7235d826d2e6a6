package processor

import (
	"log/slog"
	"strings"
	"time"

	"github.com/LJTian/NewsHub/internal/collector"
)

const (
	// 与 articles 表的 varchar 长度保持一致
	titleMaxRunes  = 255
	authorMaxRunes = 255
	urlMaxRunes    = 500
)

// ProcessedNews 是写入存储层前的统一结构
type ProcessedNews struct {
	collector.NewsItem
}

// SimpleProcessor 做最基础的数据清洗：UTF-8 修正、去空白、默认值、长度截断以及批内去重
type SimpleProcessor struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewSimpleProcessor(logger *slog.Logger) *SimpleProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimpleProcessor{logger: logger, now: time.Now}
}

// Process 清洗一批数据。同一批内 ExternalID 重复时保留最后一条（与入库的后写覆盖一致），
// 位置沿用第一次出现的位置；缺少必填字段的记录原样保留，由存储层跳过并记录。
func (p *SimpleProcessor) Process(items []collector.NewsItem) []ProcessedNews {
	out := make([]ProcessedNews, 0, len(items))
	seen := make(map[string]int, len(items))
	now := p.now()

	for _, it := range items {
		n := clean(it, now)
		if n.ExternalID != "" {
			if idx, ok := seen[n.ExternalID]; ok {
				p.logger.Debug("duplicate external id in batch", "external_id", n.ExternalID, "url", n.URL)
				out[idx] = n
				continue
			}
			seen[n.ExternalID] = len(out)
		}
		out = append(out, n)
	}

	return out
}

func clean(it collector.NewsItem, now time.Time) ProcessedNews {
	it.Title = truncateRunes(sanitize(it.Title), titleMaxRunes)
	it.Description = sanitize(it.Description)
	it.Content = sanitize(it.Content)
	it.Author = truncateRunes(sanitize(it.Author), authorMaxRunes)
	it.URL = strings.TrimSpace(it.URL)
	it.ImageURL = strings.TrimSpace(it.ImageURL)
	it.ExternalID = strings.TrimSpace(it.ExternalID)
	it.SourceName = sanitize(it.SourceName)
	it.SourceAPIID = strings.TrimSpace(it.SourceAPIID)
	it.Category = sanitize(it.Category)

	if it.Author == "" {
		it.Author = collector.DefaultAuthor
	}
	if it.Category == "" {
		it.Category = collector.DefaultCategory
	}
	if it.PublishedAt.IsZero() {
		it.PublishedAt = now
	}
	// 超长图片地址直接丢弃，避免整条文章入库失败
	if len([]rune(it.ImageURL)) > urlMaxRunes {
		it.ImageURL = ""
	}

	return ProcessedNews{NewsItem: it}
}

// sanitize 将字符串规范为合法 UTF-8 并去掉首尾空白，避免 PostgreSQL invalid byte sequence 错误
func sanitize(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, "\uFFFD"))
}

// truncateRunes 按 rune 截断并追加省略号，保证不超过 limit 个字符
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit-1]) + "…"
}
