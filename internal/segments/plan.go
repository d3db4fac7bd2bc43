package segments

import (
	"fmt"
	"strconv"
	"strings"
)

// OutputLabel is the stream label the filter graph writes its result to.
const OutputLabel = "out"

// Segment is a kept region. Open is true for the final, unbounded segment.
type Segment struct {
	Start float64
	End   float64
	Open  bool
}

// Plan is the suppression plan for one source.
type Plan struct {
	Keep []Segment
}

// NewPlan builds the keep-segments for the given skip intervals. The intervals
// are merged first, so callers may pass them unordered.
func NewPlan(skips []Interval) Plan {
	merged := Merge(skips)

	var keep []Segment
	cursor := 0.0
	for _, skip := range merged {
		if skip.Start > cursor {
			keep = append(keep, Segment{Start: cursor, End: skip.Start})
		}
		cursor = max(cursor, skip.End)
	}
	keep = append(keep, Segment{Start: cursor, Open: true})
	return Plan{Keep: keep}
}

// Suppresses reports whether the plan removes anything. A plan with a single
// open segment from zero leaves the stream untouched.
func (p Plan) Suppresses() bool {
	if len(p.Keep) == 0 {
		return false
	}
	return len(p.Keep) > 1 || p.Keep[0].Start > 0
}

// FilterGraph renders the plan as an ffmpeg filter_complex description: one
// atrim+asetpts per keep-segment, then a concat over all of them into
// OutputLabel. Returns "" when there is nothing to suppress.
func (p Plan) FilterGraph() string {
	if !p.Suppresses() {
		return ""
	}

	var b strings.Builder
	labels := make([]string, 0, len(p.Keep))
	for i, seg := range p.Keep {
		label := fmt.Sprintf("a%d", i)
		labels = append(labels, "["+label+"]")

		fmt.Fprintf(&b, "[0:a]atrim=start=%s", formatSeconds(seg.Start))
		if !seg.Open {
			fmt.Fprintf(&b, ":end=%s", formatSeconds(seg.End))
		}
		fmt.Fprintf(&b, ",asetpts=PTS-STARTPTS[%s];", label)
	}
	fmt.Fprintf(&b, "%sconcat=n=%d:v=0:a=1[%s]", strings.Join(labels, ""), len(labels), OutputLabel)
	return b.String()
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
