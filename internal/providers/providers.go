package providers

import (
	"context"

	"madgrades-sync/internal/domain"
)

// Progress is reported while the course index is paged through.
type Progress struct {
	Page       int
	TotalPages int
	Fetched    int
	TotalCount int
}

// CourseSource is the external catalog the pipeline reads from.
type CourseSource interface {
	Name() string
	FetchAllCourses(ctx context.Context, limit int, progress func(Progress)) ([]domain.SourceCourse, error)
	FetchCourseGrades(ctx context.Context, courseUUID string) (domain.GradePayload, error)
}
