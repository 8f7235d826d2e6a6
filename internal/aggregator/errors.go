package aggregator

import "errors"

var (
	// ErrNoAdapters 没有注册任何数据源时记入 RunStats.Errors
	ErrNoAdapters = errors.New("no adapters registered for article aggregation")

	ErrStoreRequired     = errors.New("aggregator: store is required")
	ErrProcessorRequired = errors.New("aggregator: processor is required")
	ErrNilAdapter        = errors.New("aggregator: adapter must not be nil")
)
