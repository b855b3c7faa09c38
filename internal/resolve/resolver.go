package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"madgrades-sync/internal/domain"
	"madgrades-sync/internal/export"
	"madgrades-sync/internal/logger"
	"madgrades-sync/internal/store"
)

// ErrNoDefaultSchool is returned when a course needs the fallback school and
// it can neither be found nor created.
var ErrNoDefaultSchool = errors.New("resolve: default school unavailable")

const defaultBatchSize = 500

type Options struct {
	// Commit enables database writes. Without it every write is planned,
	// counted and applied to the in-memory lookups only.
	Commit bool

	DefaultSchoolName string
	SubjectOverrides  map[string]string
	Source            string
	BatchSize         int
	Now               func() time.Time
}

// Target is a source course bound to the internal course that will own its
// grade history.
type Target struct {
	Course      domain.SourceCourse
	CanonicalID uint
	Codes       []string
}

type Result struct {
	Targets []Target

	CoursesCreated          int
	DepartmentLinksCreated  int
	AliasesUpserted         int
	CrossListGroupsUpserted int

	UnresolvedDepartments []export.UnresolvedRow
	UnresolvedCanonical   []export.UnresolvedRow
}

type Resolver struct {
	DB   *gorm.DB
	Log  *logger.Logger
	Opts Options

	overrides map[string]string
}

func New(db *gorm.DB, log *logger.Logger, opts Options) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Source == "" {
		opts.Source = "madgrades"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{DB: db, Log: log, Opts: opts, overrides: mergeOverrides(opts.SubjectOverrides)}
}

type plannedCourse struct {
	course       store.Course
	departmentID uint
}

// Resolve binds every source course to a canonical internal course, creating
// missing courses and recording aliases and cross-list groups on the way.
// l is updated in place so later stages see the same view.
func (r *Resolver) Resolve(ctx context.Context, courses []domain.SourceCourse, l *store.Lookups) (*Result, error) {
	res := &Result{}

	planned, err := r.planCourses(ctx, courses, l, res)
	if err != nil {
		return nil, err
	}
	if err := r.createCourses(ctx, planned, l, res); err != nil {
		return nil, err
	}

	now := r.Opts.Now().UTC()
	aliases := map[string]store.CourseCodeAlias{}
	var aliasOrder []string
	var groups []store.CrossListGroup
	groupMembers := map[string][]uint{}

	for _, c := range courses {
		codes := c.SourceCodes()
		if len(codes) == 0 {
			res.UnresolvedCanonical = append(res.UnresolvedCanonical, export.UnresolvedRow{
				SourceCourseUUID: c.UUID,
				CourseName:       c.Name,
				Reason:           export.ReasonNoSourceCodes,
			})
			continue
		}
		codeList := make([]string, len(codes))
		for i, sc := range codes {
			codeList[i] = sc.Code
		}

		cands := candidatesFor(codeList, l)
		best, ok := ChooseCanonical(cands)
		if !ok {
			for _, sc := range codes {
				res.UnresolvedCanonical = append(res.UnresolvedCanonical, export.UnresolvedRow{
					SourceCourseUUID:  c.UUID,
					SourceCode:        sc.Code,
					SourceSubjectAbbr: sc.SubjectAbbr,
					CourseName:        c.Name,
					Reason:            export.ReasonCannotResolveCanonical,
				})
			}
			continue
		}

		res.Targets = append(res.Targets, Target{Course: c, CanonicalID: best.CourseID, Codes: codeList})

		for _, sc := range codes {
			if _, seen := aliases[sc.Code]; !seen {
				aliasOrder = append(aliasOrder, sc.Code)
			}
			// last writer wins when two source courses share a code
			aliases[sc.Code] = store.CourseCodeAlias{
				SourceCode:        sc.Code,
				CourseID:          best.CourseID,
				SourceCourseUUID:  c.UUID,
				SourceSubjectCode: sc.SubjectCode,
				SourceSubjectAbbr: sc.SubjectAbbr,
				Source:            r.Opts.Source,
				LastSeenAt:        now,
			}
		}

		if len(cands) >= 2 {
			ids := make([]uint, len(cands))
			for i, cand := range cands {
				ids[i] = cand.CourseID
			}
			groups = append(groups, store.CrossListGroup{
				SourceCourseUUID: c.UUID,
				DisplayCode:      strings.Join(codeList, " / "),
			})
			groupMembers[c.UUID] = ids
		}
	}

	aliasRows := make([]store.CourseCodeAlias, 0, len(aliasOrder))
	for _, code := range aliasOrder {
		aliasRows = append(aliasRows, aliases[code])
	}
	if err := r.upsertAliases(ctx, aliasRows, l, res); err != nil {
		return nil, err
	}
	if err := r.upsertCrossListGroups(ctx, groups, groupMembers, res); err != nil {
		return nil, err
	}

	r.Log.Info("identity resolved",
		"targets", len(res.Targets),
		"coursesCreated", res.CoursesCreated,
		"aliases", res.AliasesUpserted,
		"crossListGroups", res.CrossListGroupsUpserted,
		"unresolvedDepartments", len(res.UnresolvedDepartments),
		"unresolvedCanonical", len(res.UnresolvedCanonical),
		"commit", r.Opts.Commit,
	)
	return res, nil
}

// planCourses lists every source code without an internal course, resolving
// the department and school each new course belongs to.
func (r *Resolver) planCourses(ctx context.Context, courses []domain.SourceCourse, l *store.Lookups, res *Result) ([]plannedCourse, error) {
	var planned []plannedCourse
	seen := map[string]bool{}
	var fallback *store.School

	for _, c := range courses {
		for _, sc := range c.SourceCodes() {
			if _, exists := l.CoursesByCode[sc.Code]; exists || seen[sc.Code] {
				continue
			}
			seen[sc.Code] = true

			p := plannedCourse{course: store.Course{Code: sc.Code, Name: strings.TrimSpace(c.Name)}}
			if dept, ok := departmentFor(sc.SubjectAbbr, r.overrides, l); ok {
				p.course.SchoolID = dept.SchoolID
				p.departmentID = dept.ID
			} else {
				if fallback == nil {
					s, err := r.defaultSchool(ctx, l)
					if err != nil {
						return nil, err
					}
					fallback = &s
				}
				p.course.SchoolID = fallback.ID
				res.UnresolvedDepartments = append(res.UnresolvedDepartments, export.UnresolvedRow{
					SourceCourseUUID:   c.UUID,
					SourceCode:         sc.Code,
					SourceSubjectAbbr:  sc.SubjectAbbr,
					CourseName:         c.Name,
					Reason:             export.ReasonDepartmentNotFound,
					ResolvedSchoolName: fallback.Name,
				})
			}
			planned = append(planned, p)
		}
	}
	sort.Slice(planned, func(i, j int) bool { return planned[i].course.Code < planned[j].course.Code })
	return planned, nil
}

func (r *Resolver) defaultSchool(ctx context.Context, l *store.Lookups) (store.School, error) {
	name := strings.TrimSpace(r.Opts.DefaultSchoolName)
	if name == "" {
		return store.School{}, fmt.Errorf("%w: no default school name configured", ErrNoDefaultSchool)
	}
	if s, ok := l.SchoolsByName[name]; ok {
		return s, nil
	}
	if !r.Opts.Commit {
		return store.School{Name: name}, nil
	}
	s := store.School{Name: name}
	if err := r.DB.WithContext(ctx).Where(store.School{Name: name}).FirstOrCreate(&s).Error; err != nil {
		return store.School{}, fmt.Errorf("%w: %v", ErrNoDefaultSchool, err)
	}
	l.AddSchool(s)
	r.Log.Info("default school ready", "school", s.Name, "id", s.ID)
	return s, nil
}
