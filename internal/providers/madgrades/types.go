package madgrades

import (
	"strings"

	"madgrades-sync/internal/domain"
)

/* -------- Response -------- */

type ListCoursesResponse struct {
	CurrentPage int      `json:"currentPage"`
	TotalPages  int      `json:"totalPages"`
	TotalCount  int      `json:"totalCount"`
	Results     []Course `json:"results"`
}

type Course struct {
	UUID     string    `json:"uuid"`
	Number   int       `json:"number"`
	Name     string    `json:"name"`
	Subjects []Subject `json:"subjects"`
	URL      string    `json:"url"`
}

type Subject struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

type GradesResponse struct {
	CourseUUID      string           `json:"courseUuid"`
	CourseOfferings []CourseOffering `json:"courseOfferings"`
}

type CourseOffering struct {
	TermCode int       `json:"termCode"`
	Sections []Section `json:"sections"`
}

type Section struct {
	SectionNumber int          `json:"sectionNumber"`
	Instructors   []Instructor `json:"instructors"`
	Total         *int         `json:"total"`
	ACount        int          `json:"aCount"`
	ABCount       int          `json:"abCount"`
	BCount        int          `json:"bCount"`
	BCCount       int          `json:"bcCount"`
	CCount        int          `json:"cCount"`
	DCount        int          `json:"dCount"`
	FCount        int          `json:"fCount"`
}

type Instructor struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

/* -------- Mapping -------- */

func (c Course) toDomain() domain.SourceCourse {
	subjects := make([]domain.Subject, 0, len(c.Subjects))
	for _, s := range c.Subjects {
		subjects = append(subjects, domain.Subject{
			Code:         strings.TrimSpace(s.Code),
			Name:         strings.TrimSpace(s.Name),
			Abbreviation: strings.TrimSpace(s.Abbreviation),
		})
	}
	return domain.SourceCourse{
		UUID:     strings.ToLower(strings.TrimSpace(c.UUID)),
		Number:   c.Number,
		Name:     strings.TrimSpace(c.Name),
		Subjects: subjects,
	}
}

func (g GradesResponse) toDomain(courseUUID string) domain.GradePayload {
	out := domain.GradePayload{CourseUUID: courseUUID}
	for _, o := range g.CourseOfferings {
		off := domain.Offering{TermCode: o.TermCode}
		for _, s := range o.Sections {
			var names []string
			for _, in := range s.Instructors {
				if n := strings.TrimSpace(in.Name); n != "" {
					names = append(names, n)
				}
			}
			off.Sections = append(off.Sections, domain.Section{
				Number:      s.SectionNumber,
				Instructors: names,
				Total:       s.Total,
				Grades: domain.Buckets{
					A:  s.ACount,
					AB: s.ABCount,
					B:  s.BCount,
					BC: s.BCCount,
					C:  s.CCount,
					D:  s.DCount,
					F:  s.FCount,
				},
			})
		}
		out.Offerings = append(out.Offerings, off)
	}
	return out
}
