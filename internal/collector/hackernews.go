package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	hnName        = "Hacker News"
	hnCategory    = "technology"
	hnMaxItems    = 100
	hnConcurrency = 10
	hnItemURL     = "https://news.ycombinator.com/item?id="
)

// HackerNewsFetcher 通过官方 Firebase API 抓取 Hacker News 热门故事
type HackerNewsFetcher struct {
	baseURL string

	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewHackerNewsFetcher(baseURL string, timeout time.Duration, logger *slog.Logger) *HackerNewsFetcher {
	return &HackerNewsFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
		logger:  fetcherLogger(logger, hnName),
		now:     time.Now,
	}
}

func (h *HackerNewsFetcher) Name() string {
	return hnName
}

type hnItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Type        string `json:"type"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

func (h *HackerNewsFetcher) Fetch(ctx context.Context, limit int) ([]NewsItem, error) {
	h.logger.Info("fetch top stories")

	var ids []int
	if err := getJSON(ctx, h.client, h.baseURL+"/topstories.json", &ids); err != nil {
		h.logger.Warn("fetch top stories failed", "err", err)
		return nil, nil
	}

	if max := capLimit(limit, hnMaxItems); len(ids) > max {
		ids = ids[:max]
	}

	type indexedItem struct {
		idx  int
		item hnItem
	}

	var (
		mu    sync.Mutex
		items = make([]indexedItem, 0, len(ids))
	)

	// 单条失败只跳过该条，不影响整体
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hnConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			var it hnItem
			if err := getJSON(gctx, h.client, fmt.Sprintf("%s/item/%d.json", h.baseURL, id), &it); err != nil {
				h.logger.Debug("fetch item failed", "id", id, "err", err)
				return nil
			}
			if it.Type != "story" || it.Dead || it.Deleted || strings.TrimSpace(it.Title) == "" {
				return nil
			}
			mu.Lock()
			items = append(items, indexedItem{idx: i, item: it})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// 按榜单顺序输出
	sort.Slice(items, func(a, b int) bool { return items[a].idx < items[b].idx })

	now := h.now()
	results := make([]NewsItem, 0, len(items))
	for _, ii := range items {
		results = append(results, h.transform(ii.item, ii.idx+1, now))
	}

	if len(results) == 0 {
		h.logger.Warn("no items fetched")
	}
	return results, nil
}

func (h *HackerNewsFetcher) transform(it hnItem, rank int, now time.Time) NewsItem {
	discussion := hnItemURL + strconv.Itoa(it.ID)

	published := now
	if it.Time > 0 {
		published = time.Unix(it.Time, 0).UTC()
	}

	text := htmlToText(it.Text)

	return NewsItem{
		Title:       strings.TrimSpace(it.Title),
		Description: text,
		Content:     text,
		Author:      firstNonEmpty(it.By, hnName),
		URL:         firstNonEmpty(it.URL, discussion),
		PublishedAt: published,
		ExternalID:  "hackernews:" + strconv.Itoa(it.ID),
		SourceName:  hnName,
		Category:    hnCategory,
		Extra: map[string]any{
			"provider":   hnName,
			"hn_id":      it.ID,
			"score":      it.Score,
			"comments":   it.Descendants,
			"rank":       rank,
			"discussion": discussion,
		},
	}
}
