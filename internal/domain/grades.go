package domain

import (
	"fmt"
	"math"
)

// Grade-point weights for the seven letter buckets.
const (
	PointsA  = 4.0
	PointsAB = 3.5
	PointsB  = 3.0
	PointsBC = 2.5
	PointsC  = 2.0
	PointsD  = 1.0
	PointsF  = 0.0
)

// Buckets holds letter-grade counts.
type Buckets struct {
	A, AB, B, BC, C, D, F int
}

func (b Buckets) Sum() int {
	return b.A + b.AB + b.B + b.BC + b.C + b.D + b.F
}

func (b *Buckets) Add(o Buckets) {
	b.A += o.A
	b.AB += o.AB
	b.B += o.B
	b.BC += o.BC
	b.C += o.C
	b.D += o.D
	b.F += o.F
}

func (b Buckets) points() float64 {
	return PointsA*float64(b.A) +
		PointsAB*float64(b.AB) +
		PointsB*float64(b.B) +
		PointsBC*float64(b.BC) +
		PointsC*float64(b.C) +
		PointsD*float64(b.D) +
		PointsF*float64(b.F)
}

// AvgGPA is the enrollment-weighted mean grade point, rounded to 2 decimals.
// ok is false when there are no graded students.
func (b Buckets) AvgGPA() (gpa float64, ok bool) {
	total := b.Sum()
	if total <= 0 {
		return 0, false
	}
	return Round2(b.points() / float64(total)), true
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (b Buckets) String() string {
	return fmt.Sprintf("A=%d AB=%d B=%d BC=%d C=%d D=%d F=%d", b.A, b.AB, b.B, b.BC, b.C, b.D, b.F)
}

// GradePayload is the per-course grade history reported by the catalog.
type GradePayload struct {
	CourseUUID string
	Offerings  []Offering
}

type Offering struct {
	TermCode int
	Sections []Section
}

type Section struct {
	Number      int
	Instructors []string // display names, in listed order
	Grades      Buckets
	// Total is the reported enrollment count; nil when the source omits it.
	Total *int
}

// EffectiveTotal prefers the reported total and falls back to the bucket sum.
func (s Section) EffectiveTotal() int {
	if s.Total != nil {
		return *s.Total
	}
	return s.Grades.Sum()
}
