package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Source 文章来源（维度表），按 slug 懒创建，流水线不会修改或删除
type Source struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Name          string  `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Slug          string  `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	APIIdentifier *string `gorm:"size:255;index" json:"apiIdentifier,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Category 文章分类（维度表），name 为首字母大写的原始标签
type Category struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255;not null" json:"name"`
	Slug string `gorm:"size:255;not null;uniqueIndex" json:"slug"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Article 文章（事实表），以 external_id 幂等写入；重复出现时整体覆盖
type Article struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Title       string  `gorm:"size:255;not null" json:"title"`
	Description *string `gorm:"type:text" json:"description"`
	Content     *string `gorm:"type:text" json:"content"`
	Author      *string `gorm:"size:255;index" json:"author"`

	SourceID uint    `gorm:"not null;index:idx_articles_source_published,priority:1" json:"sourceId"`
	Source   *Source `gorm:"constraint:OnDelete:CASCADE" json:"source,omitempty"`
	// 删除分类时置空，不级联删除文章
	CategoryID *uint     `gorm:"index:idx_articles_category_published,priority:1" json:"categoryId"`
	Category   *Category `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"category,omitempty"`

	URL         string    `gorm:"size:500;not null;uniqueIndex" json:"url"`
	ImageURL    *string   `gorm:"size:500" json:"imageUrl"`
	PublishedAt time.Time `gorm:"not null;index;index:idx_articles_source_published,priority:2;index:idx_articles_category_published,priority:2" json:"publishedAt"`
	ExternalID  string    `gorm:"size:255;not null;uniqueIndex" json:"externalId"`
	// Extra 数据源特有的字段（HN 分数、NYT 字数等）
	Extra datatypes.JSONMap `json:"extra,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *slog.Logger
}

func NewStore(dsn, redisAddr string, log *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Redis 只用于缓存与运行锁，不可用时继续运行
			if log != nil {
				log.Warn("redis ping failed", "err", err)
			}
		}
	}

	return NewStoreWithDB(db, rdb, log)
}

// NewStoreWithDB 使用已打开的连接构造 Store 并执行迁移（测试中传入 sqlite）
func NewStoreWithDB(db *gorm.DB, rdb *redis.Client, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Store{DB: db, Redis: rdb, logger: log.With("component", "store")}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate() error {
	if err := s.DB.AutoMigrate(&Source{}, &Category{}, &Article{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// 全文索引只给读接口使用，写路径不依赖
	if s.DB.Dialector.Name() == "postgres" {
		const ftsIndex = `CREATE INDEX IF NOT EXISTS idx_articles_fulltext ON articles USING GIN (
			to_tsvector('simple', coalesce(title, '') || ' ' || coalesce(description, '') || ' ' || coalesce(content, ''))
		)`
		if err := s.DB.Exec(ftsIndex).Error; err != nil {
			return fmt.Errorf("create fulltext index: %w", err)
		}
	}
	return nil
}

// Ping 检查数据库是否可达
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
