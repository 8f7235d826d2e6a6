package collector

import (
	"log/slog"

	"github.com/LJTian/NewsHub/internal/config"
)

// FromConfig 按配置构造需要注册的采集器，顺序固定：NewsAPI、Guardian、NYT、Hacker News。
// 没有配置 key 的数据源直接跳过。
func FromConfig(cfg *config.Config, logger *slog.Logger) []Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	p := cfg.Providers

	var fetchers []Fetcher
	if p.NewsAPI.Enabled() {
		fetchers = append(fetchers, NewNewsAPIFetcher(NewsAPIOptions{
			APIKey:   p.NewsAPI.Key,
			BaseURL:  p.NewsAPI.URL,
			Language: p.NewsAPI.Language,
			Category: p.NewsAPI.Category,
			Timeout:  cfg.HTTPTimeout,
		}, logger))
	} else {
		logger.Info("provider disabled, no api key", "provider", newsAPIName)
	}

	if p.Guardian.Enabled() {
		fetchers = append(fetchers, NewGuardianFetcher(p.Guardian.Key, p.Guardian.URL, cfg.HTTPTimeout, logger))
	} else {
		logger.Info("provider disabled, no api key", "provider", guardianName)
	}

	if p.NYT.Enabled() {
		fetchers = append(fetchers, NewNYTimesFetcher(p.NYT.Key, p.NYT.URL, cfg.HTTPTimeout, logger))
	} else {
		logger.Info("provider disabled, no api key", "provider", nytName)
	}

	if p.HackerNews.Enabled {
		fetchers = append(fetchers, NewHackerNewsFetcher(p.HackerNews.URL, cfg.HTTPTimeout, logger))
	}

	return fetchers
}
