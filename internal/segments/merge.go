// Package segments computes which parts of a source stream are kept once
// sponsor and other skip intervals are removed.
package segments

import "sort"

// Interval is a region of the timeline in seconds. Start < End.
type Interval struct {
	Start float64
	End   float64
}

// Merge sorts intervals by start and coalesces any that overlap or touch.
// The input slice is not modified.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	merged := []Interval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if cur.Start <= last.End {
			last.End = max(last.End, cur.End)
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}
