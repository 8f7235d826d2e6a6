package collector

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700", // NYT pub_date
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
}

// parseTimestamp 解析数据源时间；缺失或无法解析时退回 now（允许的近似，不是静默错误）
func parseTimestamp(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return now
}

// firstNonEmpty 按优先级返回第一个非空值
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// hashURL 为没有稳定 ID 的数据源生成外部 ID，同一 URL 始终得到同一个值
func hashURL(u string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(u)))
	return hex.EncodeToString(sum[:])
}

// htmlToText 去掉数据源摘要中的 HTML 标签（Guardian trailText 常带 <strong> 等）
func htmlToText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
