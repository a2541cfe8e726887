package batch

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/leagueledger/backend/pkg/logger"
)

const (
	defaultBatchSize   = 10
	defaultConcurrency = 3
)

// Options configure one ProcessBatch run. The zero value is usable.
type Options[T any] struct {
	BatchSize     int
	Concurrency   int
	OperationType string
	// DisableRetry processes each item exactly once; failures are collected
	// without invoking the retry policy.
	DisableRetry bool
	// BatchDelay is the pause between chunks (never applied after the last).
	BatchDelay time.Duration
	// PriorityOf, when set, sorts items by the returned rank before chunking.
	PriorityOf func(T) int
	Descending bool
	OnProgress func(Progress)
	Strategies *Registry
	Logger     *logger.Logger
}

// Progress carries cumulative counts after each completed chunk.
type Progress struct {
	Completed int
	Total     int
	Successes int
	Failures  int
}

// Failure pairs a failed item with its terminal error string.
type Failure[T any] struct {
	Item T
	Err  string
}

// Metrics summarize one batch run.
type Metrics struct {
	TotalItems      int
	SuccessCount    int
	FailureCount    int
	ProcessingTime  time.Duration
	AverageItemTime time.Duration
	PeakHeapMB      float64
}

// Result is the aggregate outcome of a batch run. Successful results are not
// ordered relative to the input once concurrency exceeds one.
type Result[T, R any] struct {
	Successful []R
	Failed     []Failure[T]
	Metrics    Metrics
}

type itemOutcome[T, R any] struct {
	ok     bool
	result R
	item   T
	err    error
}

// ProcessBatch executes items against the processor in ordered chunks with
// bounded concurrency and per-item retry. A failing item never aborts its
// siblings or the run; failures are collected and returned.
func ProcessBatch[T, R any](ctx context.Context, items []T, processor func(context.Context, T) (R, error), opts Options[T]) Result[T, R] {
	start := time.Now()
	reg := opts.Strategies
	if reg == nil {
		reg = NewRegistry()
	}

	requested := opts.BatchSize
	if requested <= 0 {
		requested = defaultBatchSize
	}
	requestedConc := opts.Concurrency
	if requestedConc <= 0 {
		requestedConc = defaultConcurrency
	}

	work := items
	if opts.PriorityOf != nil {
		work = make([]T, len(items))
		copy(work, items)
		sort.SliceStable(work, func(i, j int) bool {
			if opts.Descending {
				return opts.PriorityOf(work[i]) > opts.PriorityOf(work[j])
			}
			return opts.PriorityOf(work[i]) < opts.PriorityOf(work[j])
		})
	}

	size := optimizedBatchSize(len(work), requested)
	concurrency := optimizedConcurrency(requestedConc, size)

	if opts.Logger != nil {
		logCtx := opts.Logger.WithFields(ctx, map[string]any{
			"total_items":    len(work),
			"batch_size":     size,
			"concurrency":    concurrency,
			"operation_type": opts.OperationType,
		})
		opts.Logger.Info(logCtx, "batch processing starting")
	}

	result := Result[T, R]{}
	peakHeap := sampleHeapMB(0)

	for chunkStart := 0; chunkStart < len(work); chunkStart += size {
		chunkEnd := chunkStart + size
		if chunkEnd > len(work) {
			chunkEnd = len(work)
		}
		chunk := work[chunkStart:chunkEnd]

		outcomes := runWindowed(ctx, chunk, concurrency, func(ctx context.Context, item T) itemOutcome[T, R] {
			return processOne(ctx, reg, opts, processor, item)
		})

		for _, out := range outcomes {
			if out.ok {
				result.Successful = append(result.Successful, out.result)
			} else {
				result.Failed = append(result.Failed, Failure[T]{Item: out.item, Err: out.err.Error()})
			}
		}

		peakHeap = sampleHeapMB(peakHeap)

		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				Completed: chunkEnd,
				Total:     len(work),
				Successes: len(result.Successful),
				Failures:  len(result.Failed),
			})
		}

		if chunkEnd < len(work) && opts.BatchDelay > 0 {
			if err := sleep(ctx, opts.BatchDelay); err != nil {
				break
			}
		}
	}

	elapsed := time.Since(start)
	result.Metrics = Metrics{
		TotalItems:     len(work),
		SuccessCount:   len(result.Successful),
		FailureCount:   len(result.Failed),
		ProcessingTime: elapsed,
		PeakHeapMB:     peakHeap,
	}
	if len(work) > 0 {
		result.Metrics.AverageItemTime = elapsed / time.Duration(len(work))
	}

	if opts.Logger != nil {
		logCtx := opts.Logger.WithFields(ctx, map[string]any{
			"total_items":   result.Metrics.TotalItems,
			"success_count": result.Metrics.SuccessCount,
			"failure_count": result.Metrics.FailureCount,
			"duration_ms":   elapsed.Milliseconds(),
		})
		opts.Logger.Info(logCtx, "batch processing complete")
	}

	return result
}

func processOne[T, R any](ctx context.Context, reg *Registry, opts Options[T], processor func(context.Context, T) (R, error), item T) itemOutcome[T, R] {
	if opts.DisableRetry {
		result, err := processor(ctx, item)
		if err != nil {
			return itemOutcome[T, R]{item: item, err: err}
		}
		return itemOutcome[T, R]{ok: true, result: result}
	}

	outcome := RetryWithBackoff(ctx, reg, opts.OperationType, func(ctx context.Context) (R, error) {
		return processor(ctx, item)
	}, opts.Logger)
	if !outcome.Success {
		return itemOutcome[T, R]{item: item, err: outcome.Err}
	}
	return itemOutcome[T, R]{ok: true, result: outcome.Result}
}

// runWindowed partitions items into groups of the given size and awaits each
// group fully before starting the next. No early refill: the worst-case
// outstanding request count is always exactly the window size.
func runWindowed[T, R any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) itemOutcome[T, R]) []itemOutcome[T, R] {
	if concurrency < 1 {
		concurrency = 1
	}
	outcomes := make([]itemOutcome[T, R], len(items))
	for start := 0; start < len(items); start += concurrency {
		end := start + concurrency
		if end > len(items) {
			end = len(items)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				outcomes[idx] = fn(ctx, items[idx])
			}(i)
		}
		wg.Wait()
	}
	return outcomes
}

// optimizedBatchSize derives the effective chunk size from the input volume.
// The fixed ceilings are authoritative; the multipliers only raise the floor
// for small requested sizes as volume grows.
func optimizedBatchSize(total, requested int) int {
	if requested < 1 {
		requested = 1
	}
	var size int
	switch {
	case total <= 100:
		size = requested
		if total > 0 && total < size {
			size = total
		}
	case total <= 1000:
		size = capInt(requested*3/2, 25)
	case total <= 10000:
		size = capInt(requested*2, 50)
	default:
		size = capInt(requested*3, 100)
	}
	if size < 1 {
		size = 1
	}
	return size
}

func capInt(value, ceiling int) int {
	if value > ceiling {
		return ceiling
	}
	return value
}

// optimizedConcurrency bounds the window so a chunk is never processed in
// fewer than two windows.
func optimizedConcurrency(requested, batchSize int) int {
	limit := (batchSize + 1) / 2
	if limit < 1 {
		limit = 1
	}
	if requested < limit {
		limit = requested
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func sampleHeapMB(current float64) float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	mb := float64(stats.HeapAlloc) / (1024 * 1024)
	if mb > current {
		return mb
	}
	return current
}
