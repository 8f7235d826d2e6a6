package collector

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	newsAPIName     = "NewsAPI"
	newsAPIMaxItems = 100
)

// NewsAPI 的 content 会被截断成 "... [+1234 chars]"
var newsAPITruncated = regexp.MustCompile(`\s*(…|\.\.\.)?\s*\[\+\d+ chars\]\s*$`)

// NewsAPIFetcher 调用 newsapi.org /top-headlines
type NewsAPIFetcher struct {
	apiKey   string
	baseURL  string
	language string
	category string

	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

type NewsAPIOptions struct {
	APIKey   string
	BaseURL  string
	Language string
	Category string
	Timeout  time.Duration
}

func NewNewsAPIFetcher(opts NewsAPIOptions, logger *slog.Logger) *NewsAPIFetcher {
	return &NewsAPIFetcher{
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		language: opts.Language,
		category: opts.Category,
		client:   newHTTPClient(opts.Timeout),
		logger:   fetcherLogger(logger, newsAPIName),
		now:      time.Now,
	}
}

func (n *NewsAPIFetcher) Name() string {
	return newsAPIName
}

type newsAPIResp struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

func (n *NewsAPIFetcher) Fetch(ctx context.Context, limit int) ([]NewsItem, error) {
	if n.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("apiKey", n.apiKey)
	q.Set("pageSize", strconv.Itoa(capLimit(limit, newsAPIMaxItems)))
	if n.language != "" {
		q.Set("language", n.language)
	}
	if n.category != "" {
		q.Set("category", n.category)
	}

	n.logger.Info("fetch top headlines", "page_size", q.Get("pageSize"))

	var data newsAPIResp
	if err := getJSON(ctx, n.client, n.baseURL+"/top-headlines?"+q.Encode(), &data); err != nil {
		n.logger.Warn("fetch failed", "err", err)
		return nil, nil
	}
	if data.Status != "ok" {
		n.logger.Warn("non-ok status", "status", data.Status, "code", data.Code, "message", data.Message)
		return nil, nil
	}

	now := n.now()
	results := make([]NewsItem, 0, len(data.Articles))
	for _, a := range data.Articles {
		results = append(results, n.transform(a, now))
	}
	return results, nil
}

func (n *NewsAPIFetcher) transform(a newsAPIArticle, now time.Time) NewsItem {
	category := DefaultCategory
	if n.category != "" {
		category = n.category
	}

	content := newsAPITruncated.ReplaceAllString(strings.TrimSpace(a.Content), "")

	return NewsItem{
		Title:       firstNonEmpty(a.Title, "Untitled"),
		Description: strings.TrimSpace(a.Description),
		Content:     firstNonEmpty(content, a.Description),
		Author:      firstNonEmpty(a.Author, DefaultAuthor),
		URL:         strings.TrimSpace(a.URL),
		ImageURL:    strings.TrimSpace(a.URLToImage),
		PublishedAt: parseTimestamp(a.PublishedAt, now),
		ExternalID:  hashURL(a.URL),
		SourceName:  firstNonEmpty(a.Source.Name, newsAPIName),
		SourceAPIID: strings.TrimSpace(a.Source.ID),
		Category:    category,
		Extra: map[string]any{
			"provider": newsAPIName,
		},
	}
}
