package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/vlikcc/yargisalzeka.V2/internal/bedesten"
	"github.com/vlikcc/yargisalzeka.V2/internal/indexer"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion/pipeline"
	"github.com/vlikcc/yargisalzeka.V2/pkg/health"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printSummary(w io.Writer, s pipeline.Summary) {
	tw := table(w)
	fmt.Fprintln(tw, "FAMILY\tTYPE\tYEAR\tPAGES\tFETCHED\tINSERTED\tUPDATED\tFAILED\tREJECTED\tNO BODY\tPAGE ERROR")
	for _, seg := range s.Segments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			seg.Family, seg.ItemType, yearLabel(seg.Year), seg.Pages, seg.Fetched,
			seg.Inserted, seg.Updated, seg.Failed, seg.Rejected, seg.ContentMissing, seg.PageError)
	}
	t := s.Totals()
	fmt.Fprintf(tw, "TOTAL\t\t\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
		t.Pages, t.Fetched, t.Inserted, t.Updated, t.Failed, t.Rejected, t.ContentMissing)
	tw.Flush()

	status := "completed"
	switch {
	case s.Cancelled:
		status = "interrupted"
	case s.DryRun:
		status = "completed (dry run)"
	}
	fmt.Fprintf(w, "run %s %s in %s\n", s.RunID, status, s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
}

func yearLabel(y int) string {
	if y == 0 {
		return "-"
	}
	return fmt.Sprint(y)
}

func printStats(w io.Writer, s ingestion.Stats) {
	fmt.Fprintf(w, "\nstored %s records: %d\n", s.Family, s.Total)
	tw := table(w)
	for _, tc := range s.ByType {
		name := tc.ItemType
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(tw, "  %s\t%d\n", name, tc.Count)
	}
	tw.Flush()
}

func printEstimate(w io.Writer, e pipeline.Estimate) {
	tw := table(w)
	fmt.Fprintln(tw, "FAMILY\tTYPE\tYEAR\tRECORDS\tREQUESTS\tERROR")
	for _, l := range e.Lines {
		errText := ""
		if l.Err != nil {
			errText = l.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", l.Family, l.ItemType, yearLabel(l.Year), l.Total, l.Requests, errText)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d records, %d requests, about %s\n", e.Records, e.Requests, e.Duration.Round(time.Second))
}

func printCatalogue(w io.Writer, title string, catalogue map[string]string) {
	fmt.Fprintln(w, title)
	tw := table(w)
	for _, k := range bedesten.SortedKeys(catalogue) {
		fmt.Fprintf(tw, "  %s\t%s\n", k, catalogue[k])
	}
	tw.Flush()
}

func printEntries(w io.Writer, title string, entries []bedesten.CatalogEntry) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func printReport(w io.Writer, r health.Report) {
	tw := table(w)
	for _, name := range r.Names() {
		c := r.Components[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, c.Status, c.Latency, c.Message)
	}
	tw.Flush()
	fmt.Fprintf(w, "overall: %s\n", r.Status)
}

func printResults(w io.Writer, results []indexer.Result) {
	tw := table(w)
	fmt.Fprintln(tw, "TABLE\tINDEX\tROWS\tINDEXED\tFAILED\tIN INDEX\tTOOK")
	for _, r := range results {
		if r.Skipped {
			fmt.Fprintf(tw, "%s\t%s\tskipped (table not found)\t\t\t\t\n", r.Table, r.Index)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.Table, r.Index, r.Rows, r.Indexed, r.Failed, r.IndexCount, r.Took.Round(time.Millisecond))
	}
	tw.Flush()
	for _, r := range results {
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s: %s\n", r.Index, e)
		}
	}
}
