package pipeline

import (
	"fmt"
	"io"
	"time"
)

// PrintSummary writes the operator-facing run summary.
func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\n=== rebuild summary (%s) ===\n", s.Mode)
	fmt.Fprintf(w, "run id:                   %s\n", s.RunID)
	fmt.Fprintf(w, "final stage:              %s\n", s.Stage)
	fmt.Fprintf(w, "source courses:           %d\n", s.SourceCourses)
	fmt.Fprintf(w, "resolved courses:         %d\n", s.Targets)
	fmt.Fprintf(w, "courses created:          %d\n", s.CoursesCreated)
	fmt.Fprintf(w, "instructors created:      %d\n", s.InstructorsCreated)
	fmt.Fprintf(w, "aliases upserted:         %d\n", s.AliasesUpserted)
	fmt.Fprintf(w, "cross-list groups:        %d\n", s.CrossListGroupsUpserted)
	fmt.Fprintf(w, "aggregated records:       %d\n", s.AggregatedRecords)
	fmt.Fprintf(w, "fetch errors:             %d\n", s.FetchErrors)
	fmt.Fprintf(w, "unresolved departments:   %d\n", s.UnresolvedDepartments)
	fmt.Fprintf(w, "unresolved canonical:     %d\n", s.UnresolvedCanonical)
	if s.Mode == "commit" && s.Stage == StageDone {
		fmt.Fprintf(w, "live grade rows:          %d\n", s.LiveRows)
	}
	for _, b := range s.Backups {
		fmt.Fprintf(w, "backup:                   %s\n", b)
	}
	for _, r := range s.Reports {
		fmt.Fprintf(w, "report:                   %s\n", r)
	}
	fmt.Fprintf(w, "duration:                 %s\n", s.Duration.Round(time.Millisecond))
	if s.Mode != "commit" {
		fmt.Fprintln(w, "dry run: no changes written. Re-run with --commit to apply.")
	}
}
