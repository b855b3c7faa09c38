package resolve

import (
	"sort"

	"madgrades-sync/internal/store"
)

// Candidate is an existing course that a source course could feed.
type Candidate struct {
	CourseID  uint
	Code      string
	GradeRows int64
	Reviews   int64
}

// outranks reports whether a should win over b as the canonical course:
// having grade rows beats none, then more grade rows, then more reviews,
// then the lexicographically smaller code.
func outranks(a, b Candidate) bool {
	aHas, bHas := a.GradeRows > 0, b.GradeRows > 0
	if aHas != bHas {
		return aHas
	}
	if a.GradeRows != b.GradeRows {
		return a.GradeRows > b.GradeRows
	}
	if a.Reviews != b.Reviews {
		return a.Reviews > b.Reviews
	}
	return a.Code < b.Code
}

// ChooseCanonical returns the winning candidate. ok is false for an empty list.
func ChooseCanonical(cands []Candidate) (best Candidate, ok bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool { return outranks(sorted[i], sorted[j]) })
	return sorted[0], true
}

// candidatesFor collects the distinct courses reachable from codes, either by
// direct code match or through a recorded alias.
func candidatesFor(codes []string, l *store.Lookups) []Candidate {
	seen := map[uint]bool{}
	var out []Candidate
	add := func(id uint) {
		if id == 0 || seen[id] {
			return
		}
		c, ok := l.CoursesByID[id]
		if !ok {
			return
		}
		seen[id] = true
		out = append(out, Candidate{
			CourseID:  id,
			Code:      c.Code,
			GradeRows: l.GradeRowsByCourse[id],
			Reviews:   l.ReviewCountByCourse[id],
		})
	}
	for _, code := range codes {
		if c, ok := l.CoursesByCode[code]; ok {
			add(c.ID)
		}
		add(l.AliasByCode[code])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
