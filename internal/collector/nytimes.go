package collector

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	nytName    = "New York Times"
	nytBaseWeb = "https://www.nytimes.com/"
	// Article Search 每页固定 10 条，没有 page size 参数
	nytMaxItems = 10
)

// NYTimesFetcher 调用 NYT Article Search API
type NYTimesFetcher struct {
	apiKey  string
	baseURL string

	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewNYTimesFetcher(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *NYTimesFetcher {
	return &NYTimesFetcher{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
		logger:  fetcherLogger(logger, nytName),
		now:     time.Now,
	}
}

func (n *NYTimesFetcher) Name() string {
	return nytName
}

type nytResp struct {
	Status   string `json:"status"`
	Fault    any    `json:"fault"`
	Response struct {
		Docs []nytDoc `json:"docs"`
	} `json:"response"`
}

type nytDoc struct {
	ID            string `json:"_id"`
	WebURL        string `json:"web_url"`
	Abstract      string `json:"abstract"`
	Snippet       string `json:"snippet"`
	LeadParagraph string `json:"lead_paragraph"`
	PubDate       string `json:"pub_date"`
	SectionName   string `json:"section_name"`
	NewsDesk      string `json:"news_desk"`
	WordCount     int    `json:"word_count"`
	Headline      struct {
		Main string `json:"main"`
	} `json:"headline"`
	Byline struct {
		Original string `json:"original"`
		Person   []struct {
			Firstname string `json:"firstname"`
			Lastname  string `json:"lastname"`
		} `json:"person"`
	} `json:"byline"`
	Multimedia nytMultimedia `json:"multimedia"`
}

type nytMedia struct {
	URL string `json:"url"`
}

// nytMultimedia 旧版接口返回数组，新版返回 {default:{url}, thumbnail:{url}} 对象，这里两种都兼容
type nytMultimedia []nytMedia

func (m *nytMultimedia) UnmarshalJSON(b []byte) error {
	var list []nytMedia
	if err := json.Unmarshal(b, &list); err == nil {
		*m = list
		return nil
	}
	var obj struct {
		Default   nytMedia `json:"default"`
		Thumbnail nytMedia `json:"thumbnail"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		*m = nytMultimedia{obj.Default, obj.Thumbnail}
		return nil
	}
	// 结构无法识别时不影响整条文章
	*m = nil
	return nil
}

func (n *NYTimesFetcher) Fetch(ctx context.Context, limit int) ([]NewsItem, error) {
	if n.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("api-key", n.apiKey)
	q.Set("sort", "newest")
	q.Set("page", "0")

	n.logger.Info("fetch article search")

	var data nytResp
	if err := getJSON(ctx, n.client, n.baseURL+"/search/v2/articlesearch.json?"+q.Encode(), &data); err != nil {
		n.logger.Warn("fetch failed", "err", err)
		return nil, nil
	}
	if data.Status != "OK" {
		n.logger.Warn("non-OK status", "status", data.Status, "fault", data.Fault)
		return nil, nil
	}

	docs := data.Response.Docs
	if max := capLimit(limit, nytMaxItems); len(docs) > max {
		docs = docs[:max]
	}

	now := n.now()
	results := make([]NewsItem, 0, len(docs))
	for _, d := range docs {
		results = append(results, n.transform(d, now))
	}
	return results, nil
}

func (n *NYTimesFetcher) transform(d nytDoc, now time.Time) NewsItem {
	return NewsItem{
		Title:       firstNonEmpty(d.Headline.Main, "Untitled"),
		Description: strings.TrimSpace(d.Abstract),
		Content:     firstNonEmpty(d.LeadParagraph, d.Snippet, d.Abstract),
		Author:      nytAuthor(d),
		URL:         strings.TrimSpace(d.WebURL),
		ImageURL:    nytImage(d.Multimedia),
		PublishedAt: parseTimestamp(d.PubDate, now),
		ExternalID:  strings.TrimSpace(d.ID),
		SourceName:  nytName,
		Category:    firstNonEmpty(d.SectionName, d.NewsDesk, DefaultCategory),
		Extra: map[string]any{
			"provider":   nytName,
			"word_count": d.WordCount,
		},
	}
}

func nytAuthor(d nytDoc) string {
	if orig := strings.TrimSpace(d.Byline.Original); orig != "" {
		return strings.TrimSpace(strings.TrimPrefix(orig, "By "))
	}
	names := make([]string, 0, len(d.Byline.Person))
	for _, p := range d.Byline.Person {
		if name := strings.TrimSpace(p.Firstname + " " + p.Lastname); name != "" {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	return nytName
}

// nytImage 取第一个带 url 的媒体，相对路径补上 nytimes.com 前缀
func nytImage(media nytMultimedia) string {
	for _, m := range media {
		u := strings.TrimSpace(m.URL)
		if u == "" {
			continue
		}
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return u
		}
		return nytBaseWeb + strings.TrimLeft(u, "/")
	}
	return ""
}
