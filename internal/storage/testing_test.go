package storage

import (
	"testing"
	"time"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/logging"
	"github.com/LJTian/NewsHub/internal/processor"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestStore 使用内存 sqlite；单连接保证所有查询看到同一个库
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := NewStoreWithDB(db, nil, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

var testPublished = time.Date(2025, 10, 4, 12, 0, 0, 0, time.UTC)

func newsItem(externalID, url string) processor.ProcessedNews {
	return processor.ProcessedNews{NewsItem: collector.NewsItem{
		Title:       "Title " + externalID,
		Description: "Description " + externalID,
		Content:     "Content " + externalID,
		Author:      "Reporter",
		URL:         url,
		PublishedAt: testPublished,
		ExternalID:  externalID,
		SourceName:  "BBC News",
		Category:    "business",
	}}
}
