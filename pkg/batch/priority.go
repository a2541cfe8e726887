package batch

import "context"

// Priority tags a work item for priority-bucketed processing.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// PriorityItem pairs a work item with its optional priority. Items without an
// explicit priority are treated as low.
type PriorityItem[T any] struct {
	Item     T
	Priority Priority
}

// PriorityBreakdown counts items per bucket for one run.
type PriorityBreakdown struct {
	High   int
	Medium int
	Low    int
}

// PriorityResult extends Result with the per-bucket breakdown.
type PriorityResult[T, R any] struct {
	Result[T, R]
	Breakdown PriorityBreakdown
}

// ProcessPriorityBatch partitions items into high/medium/low buckets,
// concatenates them high to low, and delegates to ProcessBatch on the already
// ordered list. The per-run sort hook is not used; ordering comes from the
// concatenation.
func ProcessPriorityBatch[T, R any](ctx context.Context, items []PriorityItem[T], processor func(context.Context, T) (R, error), opts Options[T]) PriorityResult[T, R] {
	var high, medium, low []T
	breakdown := PriorityBreakdown{}
	for _, entry := range items {
		switch entry.Priority {
		case PriorityHigh:
			high = append(high, entry.Item)
			breakdown.High++
		case PriorityMedium:
			medium = append(medium, entry.Item)
			breakdown.Medium++
		default:
			low = append(low, entry.Item)
			breakdown.Low++
		}
	}

	ordered := make([]T, 0, len(items))
	ordered = append(ordered, high...)
	ordered = append(ordered, medium...)
	ordered = append(ordered, low...)

	opts.PriorityOf = nil

	return PriorityResult[T, R]{
		Result:    ProcessBatch(ctx, ordered, processor, opts),
		Breakdown: breakdown,
	}
}
