package pipeline

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"spotifydl/internal/model"
)

// Failure is one failed item with its list context.
type Failure struct {
	List   string
	Item   model.Item
	Reason string
}

// Failures lists every failed item in list order.
func (r Result) Failures() []Failure {
	var out []Failure
	for _, lr := range r.Lists {
		for i, o := range lr.Outcomes {
			if o.Status == model.StatusFailed && i < len(lr.List.Items) {
				out = append(out, Failure{List: lr.List.Name, Item: lr.List.Items[i], Reason: o.Reason})
			}
		}
	}
	return out
}

// WriteReport renders the end-of-run summary: one row per list, then the
// failed items and inputs that could not be processed.
func WriteReport(w io.Writer, r Result) {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"List", "Type", "Succeeded", "Cached", "Failed", "Size"})

	var totalBytes int64
	for _, lr := range r.Lists {
		var size int64
		for _, o := range lr.Outcomes {
			size += o.Size
		}
		totalBytes += size
		ok := lr.Outcomes.Count(model.StatusSucceeded) + lr.Outcomes.Count(model.StatusCached)
		tw.AppendRow(table.Row{
			lr.List.Name,
			lr.List.Type.String(),
			fmt.Sprintf("%d/%d", ok, len(lr.List.Items)),
			lr.Outcomes.Count(model.StatusCached),
			lr.Outcomes.Count(model.StatusFailed),
			humanize.Bytes(uint64(size)),
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "Total", humanize.Bytes(uint64(totalBytes))})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	fmt.Fprintln(w, tw.Render())

	if failures := r.Failures(); len(failures) > 0 {
		fmt.Fprintf(w, "\nFailed (%d):\n", len(failures))
		for i, f := range failures {
			fmt.Fprintf(w, "%3d. %s - %s - %s (%s)\n", i+1, f.Item.ArtistList(), f.Item.AlbumName, f.Item.Name, f.Reason)
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "\nSkipped inputs (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}
}
