package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "NEWSHUB_CONFIG"

type Config struct {
	AppPort string `yaml:"appPort"`

	PostgresDSN string `yaml:"postgresDsn"`
	RedisAddr   string `yaml:"redisAddr"`

	CronSpec string `yaml:"cronSpec"`
	LogLevel string `yaml:"logLevel"`

	// FetchLimit 每个数据源单次请求的条数上限，实际请求会再按各自 API 上限截断
	FetchLimit       int           `yaml:"fetchLimit"`
	FetchConcurrency int           `yaml:"fetchConcurrency"`
	HTTPTimeout      time.Duration `yaml:"httpTimeout"`

	// 同时配置用户名与密码时对 API 启用 Basic Auth（/health 除外）
	BasicAuthUser string `yaml:"basicAuthUser"`
	BasicAuthPass string `yaml:"basicAuthPass"`

	Providers ProvidersConfig `yaml:"providers"`
}

type ProvidersConfig struct {
	NewsAPI    NewsAPIConfig    `yaml:"newsapi"`
	Guardian   APIConfig        `yaml:"guardian"`
	NYT        APIConfig        `yaml:"nyt"`
	HackerNews HackerNewsConfig `yaml:"hackernews"`
}

// APIConfig 需要 key 的第三方新闻接口
type APIConfig struct {
	Key string `yaml:"key"`
	URL string `yaml:"url"`
}

type NewsAPIConfig struct {
	APIConfig `yaml:",inline"`
	Language  string `yaml:"language"`
	// Category 为空时请求综合头条，文章归入 general
	Category string `yaml:"category"`
}

type HackerNewsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Enabled 没有配置 key 的数据源不注册
func (c APIConfig) Enabled() bool {
	return c.Key != ""
}

func Load() *Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		}
	}

	cfg.applyEnv()

	log.Printf("config loaded: port=%s cron=%s limit=%d concurrency=%d", cfg.AppPort, cfg.CronSpec, cfg.FetchLimit, cfg.FetchConcurrency)
	return cfg
}

// LoadFile 显式指定配置文件（命令行 --config），环境变量仍然优先
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		AppPort:          "9000",
		PostgresDSN:      "host=localhost user=newshub password=newshub dbname=newshub port=5432 sslmode=disable TimeZone=UTC",
		RedisAddr:        "localhost:6379",
		CronSpec:         "0 * * * *",
		LogLevel:         "info",
		FetchLimit:       100,
		FetchConcurrency: 4,
		HTTPTimeout:      30 * time.Second,
		Providers: ProvidersConfig{
			NewsAPI: NewsAPIConfig{
				APIConfig: APIConfig{URL: "https://newsapi.org/v2"},
				Language:  "en",
			},
			Guardian:   APIConfig{URL: "https://content.guardianapis.com"},
			NYT:        APIConfig{URL: "https://api.nytimes.com/svc"},
			HackerNews: HackerNewsConfig{Enabled: true, URL: "https://hacker-news.firebaseio.com/v0"},
		},
	}
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// 在默认值之上解码，文件里没写的字段保持默认
	return yaml.Unmarshal(raw, c)
}

func (c *Config) applyEnv() {
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.PostgresDSN = getEnv("POSTGRES_DSN", c.PostgresDSN)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.CronSpec = getEnv("CRON_SPEC", c.CronSpec)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.BasicAuthUser = getEnv("APP_BASIC_USER", c.BasicAuthUser)
	c.BasicAuthPass = getEnv("APP_BASIC_PASS", c.BasicAuthPass)

	c.FetchLimit = getEnvInt("FETCH_LIMIT", c.FetchLimit)
	c.FetchConcurrency = getEnvInt("FETCH_CONCURRENCY", c.FetchConcurrency)
	c.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", c.HTTPTimeout)

	p := &c.Providers
	p.NewsAPI.Key = getEnv("NEWSAPI_KEY", p.NewsAPI.Key)
	p.NewsAPI.URL = getEnv("NEWSAPI_URL", p.NewsAPI.URL)
	p.NewsAPI.Category = getEnv("NEWSAPI_CATEGORY", p.NewsAPI.Category)
	p.Guardian.Key = getEnv("GUARDIAN_KEY", p.Guardian.Key)
	p.Guardian.URL = getEnv("GUARDIAN_URL", p.Guardian.URL)
	p.NYT.Key = getEnv("NYT_KEY", p.NYT.Key)
	p.NYT.URL = getEnv("NYT_URL", p.NYT.URL)
	p.HackerNews.Enabled = getEnvBool("HACKERNEWS_ENABLED", p.HackerNews.Enabled)
	p.HackerNews.URL = getEnv("HACKERNEWS_URL", p.HackerNews.URL)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}
