package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Reasons recorded in unresolved reports.
const (
	ReasonDepartmentNotFound     = "department-not-found"
	ReasonCannotResolveCanonical = "cannot-resolve-canonical-course-id"
	ReasonNoSourceCodes          = "no-source-codes"
)

// UnresolvedRow is one line of an operator-facing audit report.
type UnresolvedRow struct {
	SourceCourseUUID   string
	SourceCode         string
	SourceSubjectAbbr  string
	CourseName         string
	Reason             string
	ResolvedSchoolName string
}

// Keep header order EXACT.
var unresolvedHeader = []string{
	"sourceCourseUuid",
	"sourceCode",
	"sourceSubjectAbbr",
	"courseName",
	"reason",
	"resolvedSchoolName",
}

func (r UnresolvedRow) record() []string {
	return []string{
		r.SourceCourseUUID,
		r.SourceCode,
		r.SourceSubjectAbbr,
		r.CourseName,
		r.Reason,
		r.ResolvedSchoolName,
	}
}

func sortedRows(rows []UnresolvedRow) []UnresolvedRow {
	sorted := make([]UnresolvedRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SourceCourseUUID != sorted[j].SourceCourseUUID {
			return sorted[i].SourceCourseUUID < sorted[j].SourceCourseUUID
		}
		return sorted[i].SourceCode < sorted[j].SourceCode
	})
	return sorted
}

// WriteUnresolvedCSV writes rows sorted by uuid then code so reports from two
// runs over the same snapshot diff cleanly.
func WriteUnresolvedCSV(w io.Writer, rows []UnresolvedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(unresolvedHeader); err != nil {
		return err
	}
	for _, r := range sortedRows(rows) {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUnresolvedFile writes the report to path, creating parent directories.
// The header is written even when rows is empty.
func WriteUnresolvedFile(path string, rows []UnresolvedRow) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := WriteUnresolvedCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return f.Close()
}
