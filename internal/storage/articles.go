package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/processor"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 重复出现同一 external_id 时整体覆盖的列
var upsertColumns = []string{
	"title",
	"description",
	"content",
	"author",
	"source_id",
	"category_id",
	"url",
	"image_url",
	"published_at",
	"extra",
	"updated_at",
}

// SaveBatch 逐条保存文章，每条一个事务，单条失败不影响其它条目。
// 返回成功提交的条数；只有数据库整体不可达或 ctx 被取消时才返回 error。
func (s *Store) SaveBatch(ctx context.Context, items []processor.ProcessedNews) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := s.Ping(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	stored := 0
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		err := s.saveOne(ctx, it)
		switch {
		case err == nil:
			stored++
		case errors.Is(err, ErrMalformedRecord):
			s.logger.Warn("skip malformed article", "err", err, "external_id", it.ExternalID, "source", it.SourceName)
		case errors.Is(err, ErrDuplicateURL):
			s.logger.Info("skip duplicate url", "url", it.URL, "external_id", it.ExternalID)
		case ctx.Err() != nil:
			return stored, ctx.Err()
		default:
			s.logger.Error("store article failed", "err", err, "external_id", it.ExternalID, "url", it.URL)
		}
	}
	return stored, nil
}

// saveOne 在一个事务中解析来源、分类并按 external_id upsert 文章
func (s *Store) saveOne(ctx context.Context, it processor.ProcessedNews) error {
	if err := validate(it); err != nil {
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		src, err := resolveSource(tx, it.SourceName, it.SourceAPIID)
		if err != nil {
			return fmt.Errorf("resolve source %q: %w", it.SourceName, err)
		}
		cat, err := resolveCategory(tx, it.Category)
		if err != nil {
			return fmt.Errorf("resolve category %q: %w", it.Category, err)
		}

		// URL 全局唯一：已被其它 external_id 占用时保留先入库的那条
		var taken int64
		if err := tx.Model(&Article{}).
			Where("url = ? AND external_id <> ?", it.URL, it.ExternalID).
			Count(&taken).Error; err != nil {
			return fmt.Errorf("check url: %w", err)
		}
		if taken > 0 {
			return ErrDuplicateURL
		}

		row := Article{
			Title:       it.Title,
			Description: nullable(it.Description),
			Content:     nullable(it.Content),
			Author:      nullable(it.Author),
			SourceID:    src.ID,
			CategoryID:  &cat.ID,
			URL:         it.URL,
			ImageURL:    nullable(it.ImageURL),
			PublishedAt: it.PublishedAt,
			ExternalID:  it.ExternalID,
			Extra:       datatypes.JSONMap(it.Extra),
		}

		err = tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("upsert article: %w", err)
		}
		return nil
	})
}

func validate(it processor.ProcessedNews) error {
	switch {
	case it.URL == "":
		return fmt.Errorf("%w: missing url", ErrMalformedRecord)
	case !isAbsoluteURL(it.URL):
		return fmt.Errorf("%w: invalid url %q", ErrMalformedRecord, it.URL)
	case it.Title == "":
		return fmt.Errorf("%w: missing title", ErrMalformedRecord)
	case it.ExternalID == "":
		return fmt.Errorf("%w: missing external id", ErrMalformedRecord)
	case Slugify(it.SourceName) == "":
		return fmt.Errorf("%w: missing source name", ErrMalformedRecord)
	case it.PublishedAt.IsZero():
		return fmt.Errorf("%w: missing published_at", ErrMalformedRecord)
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// resolveSource 原子地“插入或忽略”，再按 slug 读取，避免并发运行时重复创建
func resolveSource(tx *gorm.DB, name, apiID string) (*Source, error) {
	slug := Slugify(name)
	candidate := Source{
		Name:          name,
		Slug:          slug,
		APIIdentifier: nullable(apiID),
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate).Error; err != nil {
		return nil, err
	}

	var src Source
	if err := tx.Where("slug = ?", slug).Take(&src).Error; err != nil {
		return nil, err
	}
	return &src, nil
}

func resolveCategory(tx *gorm.DB, label string) (*Category, error) {
	slug := Slugify(label)
	if slug == "" {
		label = collector.DefaultCategory
		slug = collector.DefaultCategory
	}
	candidate := Category{
		Name: capitalize(label),
		Slug: slug,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate).Error; err != nil {
		return nil, err
	}

	var cat Category
	if err := tx.Where("slug = ?", slug).Take(&cat).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}
