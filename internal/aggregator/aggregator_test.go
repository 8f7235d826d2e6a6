package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/logging"
	"github.com/LJTian/NewsHub/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	name  string
	items []collector.NewsItem
	err   error
	panic any
	delay time.Duration

	mu        sync.Mutex
	lastLimit int
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Fetch(ctx context.Context, limit int) ([]collector.NewsItem, error) {
	s.mu.Lock()
	s.lastLimit = limit
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.panic != nil {
		panic(s.panic)
	}
	return s.items, s.err
}

// memoryStore 记录每次 SaveBatch 的调用顺序
type memoryStore struct {
	mu      sync.Mutex
	batches [][]processor.ProcessedNews
	err     error
	reject  map[string]bool
}

func (m *memoryStore) SaveBatch(_ context.Context, items []processor.ProcessedNews) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.batches = append(m.batches, items)
	n := 0
	for _, it := range items {
		if !m.reject[it.ExternalID] {
			n++
		}
	}
	return n, nil
}

func makeItems(prefix string, n int) []collector.NewsItem {
	items := make([]collector.NewsItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, collector.NewsItem{
			Title:       fmt.Sprintf("%s title %d", prefix, i),
			URL:         fmt.Sprintf("https://%s.example.com/%d", prefix, i),
			ExternalID:  fmt.Sprintf("%s-%d", prefix, i),
			SourceName:  prefix,
			PublishedAt: time.Date(2025, 10, 4, 12, 0, 0, 0, time.UTC),
		})
	}
	return items
}

func newTestAggregator(t *testing.T, store Store, opts ...Option) *Aggregator {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	agg, err := NewAggregator(store, processor.NewSimpleProcessor(logging.Discard()), opts...)
	require.NoError(t, err)
	t.Cleanup(agg.Release)
	return agg
}

func TestAggregateAdapterIsolation(t *testing.T) {
	store := &memoryStore{}
	agg := newTestAggregator(t, store)

	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "A", items: makeItems("a", 10)}))
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "B", err: errors.New("boom")}))

	stats, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalFetched)
	assert.Equal(t, 10, stats.TotalStored)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "B: boom", stats.Errors[0])
	assert.NotEmpty(t, stats.RunID)
	require.Len(t, stats.Adapters, 2)
	assert.Equal(t, "boom", stats.Adapters[1].Error)
}

func TestAggregateRecoversPanics(t *testing.T) {
	store := &memoryStore{}
	agg := newTestAggregator(t, store)

	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "Broken", panic: "nil map"}))
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "A", items: makeItems("a", 3)}))

	stats, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalStored)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "Broken: panic: nil map")
}

func TestAggregateEmptyRegistry(t *testing.T) {
	agg := newTestAggregator(t, &memoryStore{})

	stats, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalFetched)
	assert.Zero(t, stats.TotalStored)
	assert.Equal(t, []string{ErrNoAdapters.Error()}, stats.Errors)
}

func TestAggregateFoldsInRegistrationOrder(t *testing.T) {
	store := &memoryStore{}
	agg := newTestAggregator(t, store, WithPoolSize(3))

	// 第一个数据源最慢，结果仍然先入库
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "slow", items: makeItems("slow", 2), delay: 50 * time.Millisecond}))
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "fast", items: makeItems("fast", 1)}))
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "failing", err: errors.New("x")}))
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "mid", items: makeItems("mid", 4)}))

	stats, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalFetched)

	require.Len(t, store.batches, 3)
	assert.Equal(t, "slow-0", store.batches[0][0].ExternalID)
	assert.Equal(t, "fast-0", store.batches[1][0].ExternalID)
	assert.Equal(t, "mid-0", store.batches[2][0].ExternalID)

	var names []string
	for _, a := range stats.Adapters {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"slow", "fast", "failing", "mid"}, names)
}

func TestAggregateCountsOnlyStoredItems(t *testing.T) {
	store := &memoryStore{reject: map[string]bool{"a-1": true, "a-2": true}}
	agg := newTestAggregator(t, store)
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "A", items: makeItems("a", 5)}))

	stats, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalFetched)
	assert.Equal(t, 3, stats.TotalStored)
	assert.Empty(t, stats.Errors)
}

func TestAggregatePassesFetchLimit(t *testing.T) {
	f := &stubFetcher{name: "A"}
	agg := newTestAggregator(t, &memoryStore{}, WithFetchLimit(25))
	require.NoError(t, agg.RegisterAdapter(f))

	_, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, f.lastLimit)

	g := &stubFetcher{name: "B"}
	def := newTestAggregator(t, &memoryStore{}, WithFetchLimit(0))
	require.NoError(t, def.RegisterAdapter(g))
	_, err = def.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultFetchLimit, g.lastLimit)
}

func TestAggregateStoreFailureIsHard(t *testing.T) {
	storeErr := errors.New("connection refused")
	agg := newTestAggregator(t, &memoryStore{err: storeErr})
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "A", items: makeItems("a", 2)}))
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "B", items: makeItems("b", 2)}))

	stats, err := agg.Aggregate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 2, stats.TotalFetched, "counts gathered before the fault are kept")
	assert.Zero(t, stats.TotalStored)
}

func TestAggregateCancelledContext(t *testing.T) {
	agg := newTestAggregator(t, &memoryStore{})
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "A"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.Aggregate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAggregatorValidation(t *testing.T) {
	_, err := NewAggregator(nil, processor.NewSimpleProcessor(nil))
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewAggregator(&memoryStore{}, nil)
	assert.ErrorIs(t, err, ErrProcessorRequired)

	agg := newTestAggregator(t, &memoryStore{})
	assert.ErrorIs(t, agg.RegisterAdapter(nil), ErrNilAdapter)
}

type panickyNameFetcher struct {
	items []collector.NewsItem
}

func (panickyNameFetcher) Name() string { panic("name unavailable") }

func (p panickyNameFetcher) Fetch(context.Context, int) ([]collector.NewsItem, error) {
	return p.items, errors.New("partial")
}

func TestAggregateSurvivesPanickingName(t *testing.T) {
	store := &memoryStore{}
	agg := newTestAggregator(t, store)

	require.NoError(t, agg.RegisterAdapter(panickyNameFetcher{}))
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "A", items: makeItems("a", 3)}))

	stats, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalStored)
	assert.Equal(t, []string{"adapter #1: partial"}, stats.Errors)
	assert.Equal(t, "adapter #1", stats.Adapters[0].Name)
}

func TestAggregateKeepsItemsReturnedWithError(t *testing.T) {
	store := &memoryStore{}
	agg := newTestAggregator(t, store)
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "Partial", items: makeItems("p", 2), err: errors.New("page 2 failed")}))

	stats, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFetched)
	assert.Equal(t, 2, stats.TotalStored)
	assert.Equal(t, []string{"Partial: page 2 failed"}, stats.Errors)
}

func TestAggregateRecoversTypedNilAdapter(t *testing.T) {
	store := &memoryStore{}
	agg := newTestAggregator(t, store)

	var broken *collector.GuardianFetcher
	require.NoError(t, agg.RegisterAdapter(broken))
	require.NoError(t, agg.RegisterAdapter(&stubFetcher{name: "A", items: makeItems("a", 3)}))

	stats, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalStored)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "panic:")
}
