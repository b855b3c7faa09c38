// Package rewrite swaps the live grade distribution table for a freshly
// aggregated candidate set in one transaction.
package rewrite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"madgrades-sync/internal/aggregate"
	"madgrades-sync/internal/logger"
	"madgrades-sync/internal/store"
)

const (
	liveTable    = "grade_distributions"
	stagingTable = "grade_distribution_staging"
)

type Options struct {
	BatchSize int
	// Timeout bounds the swap transaction on Postgres.
	Timeout time.Duration
	Now     func() time.Time
}

type Result struct {
	RowsLive         int64
	CourseInstructor int64
	CoursesWithGPA   int64
}

type Rewriter struct {
	DB   *gorm.DB
	Log  *logger.Logger
	Opts Options

	// beforeCommit runs as the last statement of the swap transaction.
	beforeCommit func(tx *gorm.DB) error
}

func New(db *gorm.DB, log *logger.Logger, opts Options) *Rewriter {
	if log == nil {
		log = logger.Nop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Rewriter{DB: db, Log: log, Opts: opts}
}

// BackupSuffix formats t as a table-name-safe UTC timestamp with
// millisecond precision.
func BackupSuffix(t time.Time) string {
	return strings.ToLower(strings.Replace(t.UTC().Format("20060102T150405.000"), ".", "", 1))
}

// Backup snapshots the live grade distribution and alias tables. Call it
// before anything rewrites either table.
func (r *Rewriter) Backup(ctx context.Context) ([]string, error) {
	suffix := BackupSuffix(r.Opts.Now())
	var names []string
	for _, model := range []any{&store.GradeDistribution{}, &store.CourseCodeAlias{}} {
		t, err := store.TableName(r.DB, model)
		if err != nil {
			return names, fmt.Errorf("rewrite: backup: %w", err)
		}
		name, err := store.BackupTable(ctx, r.DB, t, suffix)
		if err != nil {
			return names, fmt.Errorf("rewrite: backup: %w", err)
		}
		r.Log.Info("backup created", "table", t, "backup", name)
		names = append(names, name)
	}
	return names, nil
}

// Stage replaces the staging table contents with rows. Constraint violations
// surface as errors.
func (r *Rewriter) Stage(ctx context.Context, rows []store.GradeDistribution) error {
	db := r.DB.WithContext(ctx)
	if err := db.AutoMigrate(&store.GradeDistributionStaging{}); err != nil {
		return fmt.Errorf("rewrite: migrate staging: %w", err)
	}
	if err := store.Truncate(db, stagingTable); err != nil {
		return fmt.Errorf("rewrite: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	staged := make([]store.GradeDistributionStaging, len(rows))
	for i, row := range rows {
		if err := aggregate.CheckRow(row); err != nil {
			return fmt.Errorf("rewrite: stage row %d: %w", i, err)
		}
		staged[i] = toStaging(row)
	}
	if err := db.CreateInBatches(&staged, r.Opts.BatchSize).Error; err != nil {
		return fmt.Errorf("rewrite: insert staging: %w", err)
	}
	r.Log.Info("staging loaded", "rows", len(staged), "batchSize", r.Opts.BatchSize)
	return nil
}

func toStaging(g store.GradeDistribution) store.GradeDistributionStaging {
	return store.GradeDistributionStaging{
		CourseID:     g.CourseID,
		Term:         g.Term,
		InstructorID: g.InstructorID,
		ACount:       g.ACount,
		ABCount:      g.ABCount,
		BCount:       g.BCount,
		BCCount:      g.BCCount,
		CCount:       g.CCount,
		DCount:       g.DCount,
		FCount:       g.FCount,
		TotalGraded:  g.TotalGraded,
		AvgGPA:       g.AvgGPA,
	}
}

const (
	copyStaging = `INSERT INTO grade_distributions
	(course_id, term, instructor_id, a_count, ab_count, b_count, bc_count, c_count, d_count, f_count, total_graded, avg_gpa)
SELECT course_id, term, instructor_id, a_count, ab_count, b_count, bc_count, c_count, d_count, f_count, total_graded, avg_gpa
FROM grade_distribution_staging`

	rebuildCourseInstructors = `INSERT INTO course_instructors (course_id, instructor_id)
SELECT DISTINCT course_id, instructor_id FROM grade_distributions WHERE instructor_id IS NOT NULL`

	resetCourseGPA = `UPDATE courses SET avg_gpa = NULL`

	recomputeCourseGPA = `UPDATE courses SET avg_gpa = (
	SELECT (4.0*SUM(g.a_count) + 3.5*SUM(g.ab_count) + 3.0*SUM(g.b_count) + 2.5*SUM(g.bc_count)
		+ 2.0*SUM(g.c_count) + 1.0*SUM(g.d_count)) * 1.0 / SUM(g.total_graded)
	FROM grade_distributions g WHERE g.course_id = courses.id
)
WHERE id IN (
	SELECT course_id FROM grade_distributions GROUP BY course_id HAVING SUM(total_graded) > 0
)`
)

// Swap replaces the live table with staging and rebuilds everything derived
// from it. On error the transaction rolls back and the live table is unchanged.
func (r *Rewriter) Swap(ctx context.Context) (*Result, error) {
	res := &Result{}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := store.SetLocalStatementTimeout(tx, r.Opts.Timeout); err != nil {
			return err
		}
		if err := store.Truncate(tx, liveTable); err != nil {
			return err
		}
		q := tx.Exec(copyStaging)
		if q.Error != nil {
			return fmt.Errorf("copy staging: %w", q.Error)
		}
		res.RowsLive = q.RowsAffected

		if err := store.Truncate(tx, "course_instructors"); err != nil {
			return err
		}
		q = tx.Exec(rebuildCourseInstructors)
		if q.Error != nil {
			return fmt.Errorf("rebuild course_instructors: %w", q.Error)
		}
		res.CourseInstructor = q.RowsAffected

		if err := tx.Exec(resetCourseGPA).Error; err != nil {
			return fmt.Errorf("reset avg_gpa: %w", err)
		}
		q = tx.Exec(recomputeCourseGPA)
		if q.Error != nil {
			return fmt.Errorf("recompute avg_gpa: %w", q.Error)
		}
		res.CoursesWithGPA = q.RowsAffected

		if r.beforeCommit != nil {
			return r.beforeCommit(tx)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rewrite: swap rolled back: %w", err)
	}
	r.Log.Info("live grades replaced",
		"rows", res.RowsLive,
		"courseInstructors", res.CourseInstructor,
		"coursesWithGpa", res.CoursesWithGPA,
	)
	return res, nil
}
