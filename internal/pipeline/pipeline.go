// Package pipeline drives one rebuild run from fetch to rewrite.
//
// Runs assume a single operator: nothing stops two runs from overlapping, and
// the rewrite transaction expects to be the only writer of grade data.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"madgrades-sync/internal/aggregate"
	"madgrades-sync/internal/domain"
	"madgrades-sync/internal/export"
	"madgrades-sync/internal/logger"
	"madgrades-sync/internal/providers"
	"madgrades-sync/internal/resolve"
	"madgrades-sync/internal/rewrite"
	"madgrades-sync/internal/store"
)

const (
	DefaultUnresolvedDepartments = "unresolved-departments.csv"
	DefaultUnresolvedCanonical   = "unresolved-canonical.csv"
	DefaultUnresolvedWorkbook    = "unresolved.xlsx"
)

type Options struct {
	// Commit enables every database write. Runs are dry by default.
	Commit           bool
	SkipGradeRebuild bool
	OutputDir        string
	UnresolvedReport string
	LimitCourses     int
	// Workbook also writes both reports as sheets of one xlsx file.
	Workbook bool

	Concurrency       int
	StagingBatchSize  int
	RewriteTimeout    time.Duration
	DefaultSchoolName string
	SubjectOverrides  map[string]string
	Now               func() time.Time
}

func (o Options) departmentsReport() string {
	if o.UnresolvedReport != "" {
		return o.UnresolvedReport
	}
	return filepath.Join(o.outputDir(), DefaultUnresolvedDepartments)
}

func (o Options) canonicalReport() string {
	return filepath.Join(o.outputDir(), DefaultUnresolvedCanonical)
}

func (o Options) outputDir() string {
	if o.OutputDir == "" {
		return "."
	}
	return o.OutputDir
}

type Summary struct {
	RunID string
	Mode  string
	Stage Stage

	SourceCourses           int
	Targets                 int
	CoursesCreated          int
	InstructorsCreated      int
	AliasesUpserted         int
	CrossListGroupsUpserted int
	AggregatedRecords       int
	FetchErrors             int
	SectionsSkipped         int
	UnresolvedDepartments   int
	UnresolvedCanonical     int
	LiveRows                int64

	Backups  []string
	Reports  []string
	Duration time.Duration
}

type Pipeline struct {
	DB     *gorm.DB
	Source providers.CourseSource
	Log    *logger.Logger
	// Out receives the console summary. Nil discards it.
	Out io.Writer
}

func New(db *gorm.DB, src providers.CourseSource, log *logger.Logger, out io.Writer) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{DB: db, Source: src, Log: log, Out: out}
}

// Run executes one rebuild. The summary is printed and returned even when a
// stage fails; the error is then a *StageError.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	started := opts.Now()
	sum := Summary{RunID: uuid.NewString(), Mode: "dry-run"}
	if opts.Commit {
		sum.Mode = "commit"
	}
	log := p.Log.With("runId", sum.RunID, "mode", sum.Mode)

	err := p.run(ctx, opts, log, &sum)
	sum.Duration = opts.Now().Sub(started)
	if err != nil {
		log.Error("run failed", "stage", sum.Stage, "error", err)
	} else {
		log.Info("run finished", "stage", sum.Stage, "duration", sum.Duration.String())
	}
	PrintSummary(p.Out, sum)
	return sum, err
}

func (p *Pipeline) run(ctx context.Context, opts Options, log *logger.Logger, sum *Summary) error {
	sum.Stage = StageFetching
	log.Info("fetching course index", "source", p.Source.Name(), "limit", opts.LimitCourses)
	courses, err := p.Source.FetchAllCourses(ctx, opts.LimitCourses, func(pr providers.Progress) {
		log.Info("course index progress", "page", pr.Page, "totalPages", pr.TotalPages, "fetched", pr.Fetched, "totalCount", pr.TotalCount)
	})
	if err != nil {
		return fail(StageFetching, err)
	}
	courses, dropped := domain.UniqueCourses(courses)
	if len(dropped) > 0 {
		log.Warn("dropped repeated catalog entries", "count", len(dropped), "uuids", dropped)
	}
	sum.SourceCourses = len(courses)

	sum.Stage = StageResolving
	rw := rewrite.New(p.DB, log, rewrite.Options{
		BatchSize: opts.StagingBatchSize,
		Timeout:   opts.RewriteTimeout,
		Now:       opts.Now,
	})
	if opts.Commit {
		// the resolver re-points aliases, so snapshot first
		if sum.Backups, err = rw.Backup(ctx); err != nil {
			return fail(StageResolving, err)
		}
	}
	lookups, err := store.LoadLookups(ctx, p.DB)
	if err != nil {
		return fail(StageResolving, err)
	}
	resolver := resolve.New(p.DB, log, resolve.Options{
		Commit:            opts.Commit,
		DefaultSchoolName: opts.DefaultSchoolName,
		SubjectOverrides:  opts.SubjectOverrides,
		Source:            p.Source.Name(),
		BatchSize:         opts.StagingBatchSize,
		Now:               opts.Now,
	})
	resolved, err := resolver.Resolve(ctx, courses, lookups)
	if err != nil {
		return fail(StageResolving, err)
	}
	sum.Targets = len(resolved.Targets)
	sum.CoursesCreated = resolved.CoursesCreated
	sum.AliasesUpserted = resolved.AliasesUpserted
	sum.CrossListGroupsUpserted = resolved.CrossListGroupsUpserted
	sum.UnresolvedDepartments = len(resolved.UnresolvedDepartments)
	sum.UnresolvedCanonical = len(resolved.UnresolvedCanonical)

	if err := p.writeReports(opts, resolved, sum); err != nil {
		return fail(StageResolving, err)
	}

	if opts.SkipGradeRebuild {
		log.Info("grade rebuild skipped")
		sum.Stage = finalStage(opts)
		return nil
	}

	sum.Stage = StageAggregating
	agg := aggregate.New(p.DB, p.Source, log, aggregate.Options{
		Commit:      opts.Commit,
		Concurrency: opts.Concurrency,
		BatchSize:   opts.StagingBatchSize,
	})
	aggregated, err := agg.Run(ctx, resolved.Targets, lookups)
	if err != nil {
		return fail(StageAggregating, err)
	}
	sum.AggregatedRecords = len(aggregated.Rows)
	sum.FetchErrors = aggregated.FetchErrors
	sum.SectionsSkipped = aggregated.SectionsSkipped
	sum.InstructorsCreated = aggregated.InstructorsCreated

	if !opts.Commit {
		sum.Stage = StageDryRun
		log.Info("dry run: stopping before staging", "rows", sum.AggregatedRecords)
		return nil
	}

	sum.Stage = StageStaging
	if err := rw.Stage(ctx, aggregated.Rows); err != nil {
		return fail(StageStaging, err)
	}

	sum.Stage = StageRewriting
	swapped, err := rw.Swap(ctx)
	if err != nil {
		return fail(StageRewriting, err)
	}
	sum.LiveRows = swapped.RowsLive

	sum.Stage = StageDone
	return nil
}

func finalStage(opts Options) Stage {
	if opts.Commit {
		return StageDone
	}
	return StageDryRun
}

func (p *Pipeline) writeReports(opts Options, res *resolve.Result, sum *Summary) error {
	reports := []struct {
		path string
		rows []export.UnresolvedRow
	}{
		{opts.departmentsReport(), res.UnresolvedDepartments},
		{opts.canonicalReport(), res.UnresolvedCanonical},
	}
	for _, r := range reports {
		if err := export.WriteUnresolvedFile(r.path, r.rows); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		p.Log.Info("report written", "path", r.path, "rows", len(r.rows))
		sum.Reports = append(sum.Reports, r.path)
	}

	if opts.Workbook {
		path := filepath.Join(opts.outputDir(), DefaultUnresolvedWorkbook)
		err := export.WriteUnresolvedWorkbook(path, []export.Sheet{
			{Name: "departments", Rows: res.UnresolvedDepartments},
			{Name: "canonical", Rows: res.UnresolvedCanonical},
		})
		if err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		p.Log.Info("report written", "path", path)
		sum.Reports = append(sum.Reports, path)
	}
	return nil
}
