package segments

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []Interval
		want []Interval
	}{
		{name: "empty", in: nil, want: nil},
		{name: "single", in: []Interval{{5, 8}}, want: []Interval{{5, 8}}},
		{
			name: "overlap and gap",
			in:   []Interval{{10, 20}, {15, 25}, {40, 50}},
			want: []Interval{{10, 25}, {40, 50}},
		},
		{
			name: "unordered",
			in:   []Interval{{40, 50}, {15, 25}, {10, 20}},
			want: []Interval{{10, 25}, {40, 50}},
		},
		{
			name: "touching coalesced",
			in:   []Interval{{0, 10}, {10, 20}},
			want: []Interval{{0, 20}},
		},
		{
			name: "nested absorbed",
			in:   []Interval{{10, 100}, {20, 30}, {200, 210}},
			want: []Interval{{10, 100}, {200, 210}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	in := []Interval{{40, 50}, {10, 20}}
	Merge(in)
	if in[0] != (Interval{40, 50}) {
		t.Errorf("input was reordered: %v", in)
	}
}

// covered reports whether x lies inside any interval.
func covered(ivs []Interval, x float64) bool {
	for _, iv := range ivs {
		if x >= iv.Start && x <= iv.End {
			return true
		}
	}
	return false
}

func TestMergeProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var in []Interval
		for i := 0; i < r.Intn(12); i++ {
			start := float64(r.Intn(100))
			in = append(in, Interval{Start: start, End: start + float64(1+r.Intn(20))})
		}

		out := Merge(in)
		for i := 1; i < len(out); i++ {
			if out[i].Start <= out[i-1].End {
				t.Fatalf("round %d: intervals overlap or touch: %v", round, out)
			}
		}
		for x := 0.0; x < 130; x += 0.5 {
			if covered(in, x) != covered(out, x) {
				t.Fatalf("round %d: coverage differs at %v: in=%v out=%v", round, x, in, out)
			}
		}
	}
}

func TestNewPlan(t *testing.T) {
	plan := NewPlan([]Interval{{40, 50}, {10, 25}})
	want := []Segment{
		{Start: 0, End: 10},
		{Start: 25, End: 40},
		{Start: 50, Open: true},
	}
	if !reflect.DeepEqual(plan.Keep, want) {
		t.Errorf("Keep = %v, want %v", plan.Keep, want)
	}
	if !plan.Suppresses() {
		t.Error("expected plan to suppress")
	}
}

func TestNewPlanNoSkips(t *testing.T) {
	plan := NewPlan(nil)
	if len(plan.Keep) != 1 || !plan.Keep[0].Open || plan.Keep[0].Start != 0 {
		t.Fatalf("Keep = %v, want single open segment", plan.Keep)
	}
	if plan.Suppresses() {
		t.Error("empty plan should not suppress")
	}
	if g := plan.FilterGraph(); g != "" {
		t.Errorf("FilterGraph() = %q, want empty", g)
	}
}

func TestNewPlanLeadingSkip(t *testing.T) {
	plan := NewPlan([]Interval{{0, 12.5}})
	if len(plan.Keep) != 1 || plan.Keep[0].Start != 12.5 || !plan.Keep[0].Open {
		t.Fatalf("Keep = %v", plan.Keep)
	}
	if !plan.Suppresses() {
		t.Error("leading skip should suppress")
	}
}

func TestFilterGraph(t *testing.T) {
	plan := NewPlan([]Interval{{10, 25}, {40, 50}})
	want := "[0:a]atrim=start=0:end=10,asetpts=PTS-STARTPTS[a0];" +
		"[0:a]atrim=start=25:end=40,asetpts=PTS-STARTPTS[a1];" +
		"[0:a]atrim=start=50,asetpts=PTS-STARTPTS[a2];" +
		"[a0][a1][a2]concat=n=3:v=0:a=1[out]"
	if got := plan.FilterGraph(); got != want {
		t.Errorf("FilterGraph() =\n%s\nwant\n%s", got, want)
	}
}

func TestSponsorBlockSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("videoID") != "dQw4w9WgXcQ" {
			t.Errorf("videoID = %q", q.Get("videoID"))
		}
		if q.Get("categories") != `["sponsor"]` {
			t.Errorf("categories = %q", q.Get("categories"))
		}
		w.Write([]byte(`[
			{"category":"sponsor","segment":[15.2,25],"UUID":"a"},
			{"category":"sponsor","segment":[3,1],"UUID":"bad"},
			{"category":"sponsor","segment":[40,50],"UUID":"b"}
		]`))
	}))
	defer srv.Close()

	sb := NewSponsorBlock()
	sb.apiURL = srv.URL

	got, err := sb.Segments(context.Background(), "dQw4w9WgXcQ", []string{"sponsor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Interval{{15.2, 25}, {40, 50}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segments() = %v, want %v", got, want)
	}
}

func TestSponsorBlockNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Not Found"))
	}))
	defer srv.Close()

	sb := NewSponsorBlock()
	sb.apiURL = srv.URL

	got, err := sb.Segments(context.Background(), "abc", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no segments, got %v", got)
	}
}

func TestSponsorBlockServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sb := NewSponsorBlock()
	sb.apiURL = srv.URL

	if _, err := sb.Segments(context.Background(), "abc", nil); err == nil {
		t.Error("expected error for 500 response")
	}
}
