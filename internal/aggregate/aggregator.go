package aggregate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"madgrades-sync/internal/concurrency"
	"madgrades-sync/internal/domain"
	"madgrades-sync/internal/httpx"
	"madgrades-sync/internal/logger"
	"madgrades-sync/internal/resolve"
	"madgrades-sync/internal/store"
)

// ErrBucketSumMismatch marks a candidate row whose buckets do not add up to
// its graded total. It always indicates an aggregation bug.
var ErrBucketSumMismatch = errors.New("aggregate: bucket sum does not match total graded")

// ErrGradesUnavailable is returned when every grade fetch failed or the
// source rejected the credentials.
var ErrGradesUnavailable = errors.New("aggregate: grade source unavailable")

// GradeSource fetches one course's grade history.
type GradeSource interface {
	FetchCourseGrades(ctx context.Context, courseUUID string) (domain.GradePayload, error)
}

// Key is the aggregation grain. Sections sharing a key are summed.
type Key struct {
	CourseID      uint
	Term          string
	InstructorKey string
}

type Aggregate struct {
	Key
	InstructorName string
	Grades         domain.Buckets
	TotalGraded    int
}

type Options struct {
	Commit      bool
	Concurrency int
	BatchSize   int
}

type Result struct {
	Rows []store.GradeDistribution

	CoursesFetched     int
	FetchErrors        int
	SectionsSkipped    int
	InstructorsCreated int
}

type Aggregator struct {
	DB     *gorm.DB
	Source GradeSource
	Log    *logger.Logger
	Opts   Options
}

func New(db *gorm.DB, src GradeSource, log *logger.Logger, opts Options) *Aggregator {
	if log == nil {
		log = logger.Nop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	return &Aggregator{DB: db, Source: src, Log: log, Opts: opts}
}

type fetched struct {
	payload domain.GradePayload
	err     error
}

// Run fetches grade payloads for every target and folds them into candidate
// GradeDistribution rows. A failed fetch only drops that course.
func (a *Aggregator) Run(ctx context.Context, targets []resolve.Target, l *store.Lookups) (*Result, error) {
	res := &Result{}

	opts := concurrency.ParallelOptions{MaxWorkers: a.Opts.Concurrency}
	payloads, _ := concurrency.ProcessParallel(ctx, targets, opts,
		func(ctx context.Context, _ int, t resolve.Target) (fetched, error) {
			p, err := a.Source.FetchCourseGrades(ctx, t.Course.UUID)
			return fetched{payload: p, err: err}, nil
		})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregate: fetch grades: %w", err)
	}

	acc := map[Key]*Aggregate{}
	for i, t := range targets {
		f := payloads[i]
		if f.err != nil {
			if isAuthFailure(f.err) {
				return nil, fmt.Errorf("%w: %s: %v", ErrGradesUnavailable, t.Course.UUID, f.err)
			}
			res.FetchErrors++
			a.Log.Warn("grade fetch failed", "uuid", t.Course.UUID, "courseId", t.CanonicalID, "error", f.err)
			continue
		}
		res.CoursesFetched++
		res.SectionsSkipped += accumulate(acc, t.CanonicalID, f.payload)
	}
	if len(targets) > 0 && res.FetchErrors == len(targets) {
		return nil, fmt.Errorf("%w: all %d grade fetches failed", ErrGradesUnavailable, len(targets))
	}

	if err := a.ensureInstructors(ctx, acc, l, res); err != nil {
		return nil, err
	}

	rows, err := buildRows(acc, l)
	if err != nil {
		return nil, err
	}
	res.Rows = rows

	a.Log.Info("grades aggregated",
		"courses", res.CoursesFetched,
		"fetchErrors", res.FetchErrors,
		"sectionsSkipped", res.SectionsSkipped,
		"rows", len(res.Rows),
		"instructorsCreated", res.InstructorsCreated,
	)
	return res, nil
}

func isAuthFailure(err error) bool {
	var herr *httpx.HTTPError
	return errors.As(err, &herr) && herr.StatusCode == http.StatusUnauthorized
}

// accumulate folds payload into acc under courseID and returns how many
// sections were skipped for having no enrollment.
func accumulate(acc map[Key]*Aggregate, courseID uint, payload domain.GradePayload) (skipped int) {
	for _, off := range payload.Offerings {
		term := domain.TermCodeToString(off.TermCode)
		for _, s := range off.Sections {
			if s.EffectiveTotal() <= 0 {
				skipped++
				continue
			}
			instrKey, instrName := instructorOf(s)
			k := Key{CourseID: courseID, Term: term, InstructorKey: instrKey}
			agg, ok := acc[k]
			if !ok {
				agg = &Aggregate{Key: k, InstructorName: instrName}
				acc[k] = agg
			}
			agg.Grades.Add(s.Grades)
			agg.TotalGraded += s.Grades.Sum()
		}
	}
	return skipped
}

func instructorOf(s domain.Section) (key, name string) {
	if len(s.Instructors) == 0 {
		return domain.NoInstructorKey, ""
	}
	name = strings.TrimSpace(s.Instructors[0])
	return domain.NormalizeName(name), name
}

// ensureInstructors creates every instructor key not yet in l and records
// the resulting ids there.
func (a *Aggregator) ensureInstructors(ctx context.Context, acc map[Key]*Aggregate, l *store.Lookups, res *Result) error {
	missing := map[string]string{}
	for k, agg := range acc {
		if k.InstructorKey == domain.NoInstructorKey || agg.TotalGraded <= 0 {
			continue
		}
		if _, ok := l.InstructorsByKey[k.InstructorKey]; ok {
			continue
		}
		if prev, ok := missing[k.InstructorKey]; !ok || agg.InstructorName < prev {
			missing[k.InstructorKey] = agg.InstructorName
		}
	}
	if len(missing) == 0 {
		return nil
	}

	keys := make([]string, 0, len(missing))
	for k := range missing {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if !a.Opts.Commit {
		for _, k := range keys {
			l.AddInstructor(k, l.ProvisionalInstructorID())
		}
		res.InstructorsCreated = len(keys)
		return nil
	}

	rows := make([]store.Instructor, len(keys))
	for i, k := range keys {
		rows[i] = store.Instructor{Name: missing[k], NameKey: k}
	}
	db := a.DB.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name_key"}}, DoNothing: true}).
		CreateInBatches(&rows, a.Opts.BatchSize)
	if tx.Error != nil {
		return fmt.Errorf("aggregate: create instructors: %w", tx.Error)
	}
	res.InstructorsCreated = int(tx.RowsAffected)

	for start := 0; start < len(keys); start += a.Opts.BatchSize {
		end := min(start+a.Opts.BatchSize, len(keys))
		var loaded []store.Instructor
		if err := db.Select("id", "name_key").Where("name_key IN ?", keys[start:end]).Find(&loaded).Error; err != nil {
			return fmt.Errorf("aggregate: reload instructors: %w", err)
		}
		for _, in := range loaded {
			l.AddInstructor(in.NameKey, in.ID)
		}
	}
	for _, k := range keys {
		if _, ok := l.InstructorsByKey[k]; !ok {
			return fmt.Errorf("aggregate: instructor %q missing after insert", k)
		}
	}
	return nil
}

func buildRows(acc map[Key]*Aggregate, l *store.Lookups) ([]store.GradeDistribution, error) {
	keys := make([]Key, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CourseID != keys[j].CourseID {
			return keys[i].CourseID < keys[j].CourseID
		}
		if keys[i].Term != keys[j].Term {
			return keys[i].Term < keys[j].Term
		}
		return keys[i].InstructorKey < keys[j].InstructorKey
	})

	rows := make([]store.GradeDistribution, 0, len(keys))
	for _, k := range keys {
		agg := acc[k]
		if agg.TotalGraded <= 0 {
			continue
		}
		row := store.GradeDistribution{
			CourseID:    k.CourseID,
			Term:        k.Term,
			ACount:      agg.Grades.A,
			ABCount:     agg.Grades.AB,
			BCount:      agg.Grades.B,
			BCCount:     agg.Grades.BC,
			CCount:      agg.Grades.C,
			DCount:      agg.Grades.D,
			FCount:      agg.Grades.F,
			TotalGraded: agg.TotalGraded,
		}
		row.AvgGPA, _ = agg.Grades.AvgGPA()
		if k.InstructorKey != domain.NoInstructorKey {
			id, ok := l.InstructorsByKey[k.InstructorKey]
			if !ok {
				return nil, fmt.Errorf("aggregate: no instructor id for %q", k.InstructorKey)
			}
			row.InstructorID = &id
		}
		if err := CheckRow(row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CheckRow enforces the bucket-sum invariant on one candidate row.
func CheckRow(r store.GradeDistribution) error {
	sum := r.ACount + r.ABCount + r.BCount + r.BCCount + r.CCount + r.DCount + r.FCount
	if sum != r.TotalGraded {
		return fmt.Errorf("%w: course %d term %q: buckets %d, total %d",
			ErrBucketSumMismatch, r.CourseID, r.Term, sum, r.TotalGraded)
	}
	return nil
}
