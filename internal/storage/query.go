package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	defaultPerPage = 15
	maxPerPage     = 100
	listCacheTTL   = 5 * time.Minute
)

// ArticleFilter 读接口的筛选条件，来源与分类按 slug 过滤
type ArticleFilter struct {
	Search   string    `json:"search,omitempty"`
	Source   string    `json:"source,omitempty"`
	Category string    `json:"category,omitempty"`
	Author   string    `json:"author,omitempty"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
	Page     int       `json:"page"`
	PerPage  int       `json:"perPage"`
}

type ArticlePage struct {
	Data     []Article `json:"data"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PerPage  int       `json:"perPage"`
	LastPage int       `json:"lastPage"`
}

type SourceSummary struct {
	Source
	ArticlesCount int64 `json:"articlesCount"`
}

type CategorySummary struct {
	Category
	ArticlesCount int64 `json:"articlesCount"`
}

// Stats 健康检查用的文章统计
type Stats struct {
	ArticlesCount int64      `json:"articlesCount"`
	LatestArticle *time.Time `json:"latestArticle"`
}

func (f *ArticleFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Source = strings.TrimSpace(f.Source)
	f.Category = strings.TrimSpace(f.Category)
	f.Author = strings.TrimSpace(f.Author)
}

// ListArticles 按发布时间倒序分页返回文章，并使用 Redis 做短 TTL 缓存
func (s *Store) ListArticles(ctx context.Context, f ArticleFilter) (*ArticlePage, error) {
	f.normalize()

	keyBytes, _ := json.Marshal(f)
	cacheKey := "newshub:articles:list:" + string(keyBytes)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached ArticlePage
			if err := json.Unmarshal(bs, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	page := &ArticlePage{Page: f.Page, PerPage: f.PerPage, Data: []Article{}}
	if err := s.filteredArticles(ctx, f).Count(&page.Total).Error; err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}
	if err := s.filteredArticles(ctx, f).Preload("Source").Preload("Category").
		Order("published_at DESC").Order("id DESC").
		Offset((f.Page - 1) * f.PerPage).Limit(f.PerPage).
		Find(&page.Data).Error; err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	page.LastPage = int((page.Total + int64(f.PerPage) - 1) / int64(f.PerPage))
	if page.LastPage == 0 {
		page.LastPage = 1
	}

	// 这里不做主动失效，依赖短 TTL 自然过期
	if s.Redis != nil && len(page.Data) > 0 {
		if bs, err := json.Marshal(page); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}

	return page, nil
}

// filteredArticles 每次返回新的查询链，Count 与 Find 不共用同一个 statement
func (s *Store) filteredArticles(ctx context.Context, f ArticleFilter) *gorm.DB {
	q := s.DB.WithContext(ctx).Model(&Article{})
	if f.Source != "" {
		q = q.Where("source_id IN (?)", s.DB.Model(&Source{}).Select("id").Where("slug = ?", f.Source))
	}
	if f.Category != "" {
		q = q.Where("category_id IN (?)", s.DB.Model(&Category{}).Select("id").Where("slug = ?", f.Category))
	}
	if f.Author != "" {
		q = q.Where("author = ?", f.Author)
	}
	if !f.From.IsZero() {
		q = q.Where("published_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("published_at <= ?", f.To)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ? OR LOWER(COALESCE(content, '')) LIKE ?", like, like, like)
	}
	return q
}

func (s *Store) GetArticle(ctx context.Context, id uint) (*Article, error) {
	var a Article
	err := s.DB.WithContext(ctx).Preload("Source").Preload("Category").Take(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListSources(ctx context.Context) ([]SourceSummary, error) {
	var list []SourceSummary
	err := s.DB.WithContext(ctx).Model(&Source{}).
		Select("sources.*, COUNT(articles.id) AS articles_count").
		Joins("LEFT JOIN articles ON articles.source_id = sources.id").
		Group("sources.id").
		Order("sources.name ASC").
		Scan(&list).Error
	return list, err
}

func (s *Store) ListCategories(ctx context.Context) ([]CategorySummary, error) {
	var list []CategorySummary
	err := s.DB.WithContext(ctx).Model(&Category{}).
		Select("categories.*, COUNT(articles.id) AS articles_count").
		Joins("LEFT JOIN articles ON articles.category_id = categories.id").
		Group("categories.id").
		Order("categories.name ASC").
		Scan(&list).Error
	return list, err
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	db := s.DB.WithContext(ctx)
	if err := db.Model(&Article{}).Count(&st.ArticlesCount).Error; err != nil {
		return nil, err
	}

	var latest Article
	err := db.Select("published_at").Order("published_at DESC").Limit(1).Take(&latest).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, err
	default:
		st.LatestArticle = &latest.PublishedAt
	}
	return st, nil
}
