package alerting

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
)

// ErrInsufficientData indicates a metric could not be computed because the
// window holds no usable runs. Per-rule: one rule hitting this never blocks
// its siblings.
var ErrInsufficientData = errors.New("insufficient data in window")

// FailureRate returns the percentage (0–100) of completed runs whose
// conclusion is failure.
func FailureRate(runs []entities.WorkflowRun) (float64, error) {
	if len(runs) == 0 {
		return 0, ErrInsufficientData
	}
	var failures int
	for i := range runs {
		if runs[i].Conclusion != nil && *runs[i].Conclusion == entities.RunConclusionFailure {
			failures++
		}
	}
	return 100 * float64(failures) / float64(len(runs)), nil
}

// Percentile computes the p-th percentile (0 < p <= 1) of values using
// linear interpolation between order statistics: index = p × (n−1), with a
// fractional index interpolated between the two bracketing sorted values.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrInsufficientData
	}
	if p <= 0 || p > 1 {
		return 0, fmt.Errorf("percentile %v out of range (0, 1]", p)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), nil
}

// DurationP95 returns the 95th percentile of duration_ms across runs that
// carry one.
func DurationP95(runs []entities.WorkflowRun) (float64, error) {
	return p95Of(runs, func(r *entities.WorkflowRun) *int64 { return r.DurationMS })
}

// QueueWaitP95 returns the 95th percentile of queue_wait_ms across runs
// that carry one.
func QueueWaitP95(runs []entities.WorkflowRun) (float64, error) {
	return p95Of(runs, func(r *entities.WorkflowRun) *int64 { return r.QueueWaitMS })
}

func p95Of(runs []entities.WorkflowRun, field func(*entities.WorkflowRun) *int64) (float64, error) {
	values := make([]float64, 0, len(runs))
	for i := range runs {
		if v := field(&runs[i]); v != nil {
			values = append(values, float64(*v))
		}
	}
	return Percentile(values, 0.95)
}

// SuccessStreak counts consecutive successful runs from the most recent
// backwards, stopping at the first non-success. runs must be ordered by ID
// descending, which is how the repository returns them.
func SuccessStreak(runs []entities.WorkflowRun) float64 {
	var streak int
	for i := range runs {
		if runs[i].Conclusion == nil || *runs[i].Conclusion != entities.RunConclusionSuccess {
			break
		}
		streak++
	}
	return float64(streak)
}
