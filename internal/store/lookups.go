package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"madgrades-sync/internal/domain"
)

// Lookups are the in-memory tables a run consults. One value is built per
// run and passed to each stage; nothing here is shared between runs.
type Lookups struct {
	CoursesByCode map[string]*Course
	CoursesByID   map[uint]*Course
	AliasByCode   map[string]uint

	DepartmentsByCode  map[string]Department
	DepartmentsByLoose map[string]Department
	SchoolsByID        map[uint]School
	SchoolsByName      map[string]School

	InstructorsByKey map[string]uint

	GradeRowsByCourse   map[uint]int64
	ReviewCountByCourse map[uint]int64

	nextCourseID     uint
	nextInstructorID uint
}

func NewLookups() *Lookups {
	return &Lookups{
		CoursesByCode:       map[string]*Course{},
		CoursesByID:         map[uint]*Course{},
		AliasByCode:         map[string]uint{},
		DepartmentsByCode:   map[string]Department{},
		DepartmentsByLoose:  map[string]Department{},
		SchoolsByID:         map[uint]School{},
		SchoolsByName:       map[string]School{},
		InstructorsByKey:    map[string]uint{},
		GradeRowsByCourse:   map[uint]int64{},
		ReviewCountByCourse: map[uint]int64{},
		nextCourseID:        1,
		nextInstructorID:    1,
	}
}

type countRow struct {
	CourseID uint
	N        int64
}

// LoadLookups reads the current state of every table the resolver and
// aggregator match against.
func LoadLookups(ctx context.Context, db *gorm.DB) (*Lookups, error) {
	l := NewLookups()
	q := db.WithContext(ctx)

	var schools []School
	if err := q.Find(&schools).Error; err != nil {
		return nil, fmt.Errorf("store: load schools: %w", err)
	}
	for _, s := range schools {
		l.AddSchool(s)
	}

	var depts []Department
	if err := q.Order("id").Find(&depts).Error; err != nil {
		return nil, fmt.Errorf("store: load departments: %w", err)
	}
	for _, d := range depts {
		l.AddDepartment(d)
	}

	var courses []Course
	if err := q.Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("store: load courses: %w", err)
	}
	for i := range courses {
		l.AddCourse(courses[i])
	}

	var aliases []CourseCodeAlias
	if err := q.Select("source_code", "course_id").Find(&aliases).Error; err != nil {
		return nil, fmt.Errorf("store: load aliases: %w", err)
	}
	for _, a := range aliases {
		l.AliasByCode[domain.NormalizeCode(a.SourceCode)] = a.CourseID
	}

	var instructors []Instructor
	if err := q.Select("id", "name_key").Find(&instructors).Error; err != nil {
		return nil, fmt.Errorf("store: load instructors: %w", err)
	}
	for _, in := range instructors {
		l.AddInstructor(in.NameKey, in.ID)
	}

	var gd []countRow
	if err := q.Model(&GradeDistribution{}).Select("course_id, COUNT(*) AS n").Group("course_id").Scan(&gd).Error; err != nil {
		return nil, fmt.Errorf("store: count grade rows: %w", err)
	}
	for _, r := range gd {
		l.GradeRowsByCourse[r.CourseID] = r.N
	}

	var rv []countRow
	if err := q.Model(&Review{}).Select("course_id, COUNT(*) AS n").Group("course_id").Scan(&rv).Error; err != nil {
		return nil, fmt.Errorf("store: count reviews: %w", err)
	}
	for _, r := range rv {
		l.ReviewCountByCourse[r.CourseID] = r.N
	}

	return l, nil
}

func (l *Lookups) AddSchool(s School) {
	l.SchoolsByID[s.ID] = s
	l.SchoolsByName[s.Name] = s
}

// AddDepartment indexes d by exact and loose code. The first department seen
// for a key wins.
func (l *Lookups) AddDepartment(d Department) {
	code := domain.NormalizeCode(d.Code)
	if _, ok := l.DepartmentsByCode[code]; !ok && code != "" {
		l.DepartmentsByCode[code] = d
	}
	loose := domain.LooseKey(d.Code)
	if _, ok := l.DepartmentsByLoose[loose]; !ok && loose != "" {
		l.DepartmentsByLoose[loose] = d
	}
}

func (l *Lookups) AddCourse(c Course) {
	cp := c
	l.CoursesByCode[domain.NormalizeCode(c.Code)] = &cp
	l.CoursesByID[c.ID] = &cp
	if c.ID >= l.nextCourseID {
		l.nextCourseID = c.ID + 1
	}
}

func (l *Lookups) AddInstructor(key string, id uint) {
	l.InstructorsByKey[key] = id
	if id >= l.nextInstructorID {
		l.nextInstructorID = id + 1
	}
}

// ProvisionalCourseID hands out an id above every known course. Dry runs use
// it in place of a database insert.
func (l *Lookups) ProvisionalCourseID() uint {
	id := l.nextCourseID
	l.nextCourseID++
	return id
}

func (l *Lookups) ProvisionalInstructorID() uint {
	id := l.nextInstructorID
	l.nextInstructorID++
	return id
}
