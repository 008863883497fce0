package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SakshiRa/neurotk/internal/validate"
)

// RenderSummaryText produces the terminal summary printed for
// --summary-only runs. Purely presentational: everything shown comes
// straight from the report structure.
func RenderSummaryText(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "neurotk report (schema %s)\n", r.Meta.SchemaVersion)
	fmt.Fprintf(&b, "run mode: %s\n", r.RunMode)
	fmt.Fprintf(&b, "images dir: %s\n", r.Meta.ImagesDir)
	if r.Meta.LabelsDir != "" {
		fmt.Fprintf(&b, "labels dir: %s\n", r.Meta.LabelsDir)
	}
	b.WriteString("\n")

	writeScope(&b, "Original inputs", r.Summary)
	if r.SummaryProcessed != nil {
		b.WriteString("\n")
		writeScope(&b, "Processed outputs", r.SummaryProcessed)
	}

	if n := len(r.Warnings); n > 0 {
		fmt.Fprintf(&b, "\nWarnings (%d):\n", n)
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}

func writeScope(b *strings.Builder, title string, s *validate.DatasetSummary) {
	fmt.Fprintf(b, "%s\n", title)
	fmt.Fprintf(b, "  images: %d, labels: %d\n", s.NumImages, s.NumLabels)
	fmt.Fprintf(b, "  files with issues: %d\n", s.FilesWithIssues)
	fmt.Fprintf(b, "  spacing consistent: %t, orientation consistent: %t\n",
		s.SpacingConsistency, s.OrientationConsistency)
	if len(s.IssueHistogram) > 0 {
		codes := make([]string, 0, len(s.IssueHistogram))
		for code := range s.IssueHistogram {
			codes = append(codes, string(code))
		}
		sort.Strings(codes)
		b.WriteString("  issues:\n")
		for _, code := range codes {
			fmt.Fprintf(b, "    %-24s %d\n", code, s.IssueHistogram[validate.IssueCode(code)])
		}
	}
}
