package store

import "time"

type School struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
}

type Department struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"not null"`
	Code     string `gorm:"not null;index"` // subject abbreviation, e.g. "COMP SCI"
	SchoolID uint   `gorm:"not null;index"`
}

type CrossListGroup struct {
	ID               uint   `gorm:"primaryKey"`
	SourceCourseUUID string `gorm:"column:source_course_uuid;not null;uniqueIndex"`
	DisplayCode      string `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Course struct {
	ID               uint     `gorm:"primaryKey"`
	Code             string   `gorm:"not null;uniqueIndex"`
	Name             string   `gorm:"not null"`
	SchoolID         uint     `gorm:"not null;index"`
	AvgGPA           *float64 `gorm:"column:avg_gpa"`
	CrossListGroupID *uint    `gorm:"index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CourseDepartment struct {
	CourseID     uint `gorm:"primaryKey"`
	DepartmentID uint `gorm:"primaryKey"`
}

// Review is owned by the web application; the pipeline only counts rows.
type Review struct {
	ID        uint `gorm:"primaryKey"`
	CourseID  uint `gorm:"not null;index"`
	CreatedAt time.Time
}

type CourseCodeAlias struct {
	ID                uint   `gorm:"primaryKey"`
	SourceCode        string `gorm:"not null;uniqueIndex"`
	CourseID          uint   `gorm:"not null;index"`
	SourceCourseUUID  string `gorm:"column:source_course_uuid;not null;index"`
	SourceSubjectCode string
	SourceSubjectAbbr string
	Source            string    `gorm:"not null"`
	LastSeenAt        time.Time `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Instructor struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	NameKey   string `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
}

type GradeDistribution struct {
	ID           uint    `gorm:"primaryKey"`
	CourseID     uint    `gorm:"not null;index"`
	Term         string  `gorm:"not null"`
	InstructorID *uint   `gorm:"index"`
	ACount       int     `gorm:"column:a_count;not null"`
	ABCount      int     `gorm:"column:ab_count;not null"`
	BCount       int     `gorm:"column:b_count;not null"`
	BCCount      int     `gorm:"column:bc_count;not null"`
	CCount       int     `gorm:"column:c_count;not null"`
	DCount       int     `gorm:"column:d_count;not null"`
	FCount       int     `gorm:"column:f_count;not null"`
	TotalGraded  int     `gorm:"not null"`
	AvgGPA       float64 `gorm:"column:avg_gpa;not null"`
}

// GradeDistributionStaging mirrors GradeDistribution and refuses rows whose
// buckets do not add up to the total.
type GradeDistributionStaging struct {
	ID           uint    `gorm:"primaryKey"`
	CourseID     uint    `gorm:"not null"`
	Term         string  `gorm:"not null"`
	InstructorID *uint
	ACount       int     `gorm:"column:a_count;not null;check:chk_gds_bucket_sum,a_count + ab_count + b_count + bc_count + c_count + d_count + f_count = total_graded"`
	ABCount      int     `gorm:"column:ab_count;not null"`
	BCount       int     `gorm:"column:b_count;not null"`
	BCCount      int     `gorm:"column:bc_count;not null"`
	CCount       int     `gorm:"column:c_count;not null"`
	DCount       int     `gorm:"column:d_count;not null"`
	FCount       int     `gorm:"column:f_count;not null"`
	TotalGraded  int     `gorm:"not null;check:chk_gds_total_positive,total_graded > 0"`
	AvgGPA       float64 `gorm:"column:avg_gpa;not null"`
}

func (GradeDistributionStaging) TableName() string {
	return "grade_distribution_staging"
}

type CourseInstructor struct {
	CourseID     uint `gorm:"primaryKey"`
	InstructorID uint `gorm:"primaryKey"`
}

// AllModels lists every table the pipeline reads or writes.
func AllModels() []any {
	return []any{
		&School{},
		&Department{},
		&CrossListGroup{},
		&Course{},
		&CourseDepartment{},
		&Review{},
		&CourseCodeAlias{},
		&Instructor{},
		&GradeDistribution{},
		&CourseInstructor{},
	}
}
