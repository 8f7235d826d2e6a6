package collector

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	guardianName     = "The Guardian"
	guardianMaxItems = 50
)

// GuardianFetcher 调用 Guardian Content API /search，按发布时间倒序
type GuardianFetcher struct {
	apiKey  string
	baseURL string

	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewGuardianFetcher(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *GuardianFetcher {
	return &GuardianFetcher{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
		logger:  fetcherLogger(logger, guardianName),
		now:     time.Now,
	}
}

func (g *GuardianFetcher) Name() string {
	return guardianName
}

type guardianResp struct {
	Response struct {
		Status  string            `json:"status"`
		Message string            `json:"message"`
		Results []guardianArticle `json:"results"`
	} `json:"response"`
}

type guardianArticle struct {
	ID                 string `json:"id"`
	SectionName        string `json:"sectionName"`
	WebTitle           string `json:"webTitle"`
	WebURL             string `json:"webUrl"`
	WebPublicationDate string `json:"webPublicationDate"`
	PillarName         string `json:"pillarName"`
	Fields             struct {
		Thumbnail string `json:"thumbnail"`
		TrailText string `json:"trailText"`
		BodyText  string `json:"bodyText"`
	} `json:"fields"`
	Tags []struct {
		Type     string `json:"type"`
		WebTitle string `json:"webTitle"`
	} `json:"tags"`
}

func (g *GuardianFetcher) Fetch(ctx context.Context, limit int) ([]NewsItem, error) {
	if g.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("api-key", g.apiKey)
	q.Set("page-size", strconv.Itoa(capLimit(limit, guardianMaxItems)))
	q.Set("show-fields", "thumbnail,trailText,bodyText")
	q.Set("show-tags", "contributor")
	q.Set("order-by", "newest")

	g.logger.Info("fetch search", "page_size", q.Get("page-size"))

	var data guardianResp
	if err := getJSON(ctx, g.client, g.baseURL+"/search?"+q.Encode(), &data); err != nil {
		g.logger.Warn("fetch failed", "err", err)
		return nil, nil
	}
	if data.Response.Status != "ok" {
		g.logger.Warn("non-ok status", "status", data.Response.Status, "message", data.Response.Message)
		return nil, nil
	}

	now := g.now()
	results := make([]NewsItem, 0, len(data.Response.Results))
	for _, a := range data.Response.Results {
		results = append(results, g.transform(a, now))
	}
	return results, nil
}

func (g *GuardianFetcher) transform(a guardianArticle, now time.Time) NewsItem {
	// 取第一个 contributor 标签作为作者
	author := guardianName
	for _, tag := range a.Tags {
		if tag.Type == "contributor" && strings.TrimSpace(tag.WebTitle) != "" {
			author = strings.TrimSpace(tag.WebTitle)
			break
		}
	}

	trail := htmlToText(a.Fields.TrailText)

	return NewsItem{
		Title:       firstNonEmpty(a.WebTitle, "Untitled"),
		Description: trail,
		Content:     firstNonEmpty(a.Fields.BodyText, trail),
		Author:      author,
		URL:         strings.TrimSpace(a.WebURL),
		ImageURL:    strings.TrimSpace(a.Fields.Thumbnail),
		PublishedAt: parseTimestamp(a.WebPublicationDate, now),
		ExternalID:  strings.TrimSpace(a.ID),
		SourceName:  guardianName,
		Category:    firstNonEmpty(a.SectionName, DefaultCategory),
		Extra: map[string]any{
			"provider": guardianName,
			"pillar":   a.PillarName,
		},
	}
}
