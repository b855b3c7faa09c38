package domain

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Subject is one department listing of a source course.
type Subject struct {
	Code         string // numeric registrar code, e.g. "266"
	Name         string
	Abbreviation string // e.g. "COMP SCI"
}

// SourceCourse is a course as the external catalog reports it. It is fetched
// fresh every run and never persisted as-is.
type SourceCourse struct {
	UUID     string
	Number   int
	Name     string
	Subjects []Subject
}

// SourceCode is one "<abbreviation> <number>" listing of a source course.
type SourceCode struct {
	Code        string
	SubjectCode string
	SubjectAbbr string
}

// SourceCodes derives the normalized codes of c, one per subject it is listed
// under, deduplicated and sorted.
func (c SourceCourse) SourceCodes() []SourceCode {
	seen := map[string]bool{}
	out := make([]SourceCode, 0, len(c.Subjects))
	for _, s := range c.Subjects {
		abbr := NormalizeCode(s.Abbreviation)
		if abbr == "" || c.Number <= 0 {
			continue
		}
		code := NormalizeCode(abbr + " " + strconv.Itoa(c.Number))
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, SourceCode{Code: code, SubjectCode: strings.TrimSpace(s.Code), SubjectAbbr: abbr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// UniqueCourses drops every course whose UUID was already seen, keeping the
// first occurrence and the original order. It also returns the dropped UUIDs.
func UniqueCourses(courses []SourceCourse) (out []SourceCourse, dropped []string) {
	seen := make(map[string]bool, len(courses))
	out = make([]SourceCourse, 0, len(courses))
	for _, c := range courses {
		if seen[c.UUID] {
			dropped = append(dropped, c.UUID)
			continue
		}
		seen[c.UUID] = true
		out = append(out, c)
	}
	return out, dropped
}

// NormalizeCode uppercases s and collapses internal whitespace to single spaces.
func NormalizeCode(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// LooseKey keeps only letters and digits of s, uppercased. "E C E" and "ECE"
// share a loose key.
func LooseKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NoInstructorKey marks aggregates whose sections listed no instructor.
const NoInstructorKey = ""

// NormalizeName folds a person's name into a matching key: diacritics
// removed, lowercased, punctuation other than hyphen/apostrophe dropped,
// whitespace collapsed.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '\'':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '.', r == ',':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
