package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"madgrades-sync/internal/config"
	"madgrades-sync/internal/logger"
	"madgrades-sync/internal/pipeline"
	"madgrades-sync/internal/providers/madgrades"
	"madgrades-sync/internal/sftpclient"
	"madgrades-sync/internal/store"
)

type flags struct {
	commit           bool
	skipGradeRebuild bool
	outputDir        string
	unresolvedReport string
	limitCourses     int
	configPath       string
	concurrency      int
	uploadSFTP       bool
	workbook         bool
}

func main() {
	// generous ceiling for a full-catalog rebuild
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Hour)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "rebuildcanonical",
		Short: "Reconcile Madgrades courses and rebuild grade distributions",
		Long: `Fetches the Madgrades course catalog, maps every course onto a canonical
internal course and rebuilds grade distributions from scratch.

Without --commit nothing is written to the database; reports and the summary
are still produced.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.commit, "commit", false, "write changes to the database (default is a dry run)")
	fl.BoolVar(&f.skipGradeRebuild, "skip-grade-rebuild", false, "only resolve courses, aliases and cross-list groups")
	fl.StringVar(&f.outputDir, "output-dir", "reports", "directory for report CSVs")
	fl.StringVar(&f.unresolvedReport, "unresolved-report", "", "path of the unresolved-departments CSV (default <output-dir>/"+pipeline.DefaultUnresolvedDepartments+")")
	fl.IntVar(&f.limitCourses, "limit-courses", 0, "process at most N source courses (0 = all)")
	fl.StringVar(&f.configPath, "config", "", "optional YAML config file")
	fl.IntVar(&f.concurrency, "concurrency", 0, "parallel grade fetches (0 = GRADE_FETCH_CONCURRENCY)")
	fl.BoolVar(&f.uploadSFTP, "sftp", false, "upload the reports via SFTP after the run")
	fl.BoolVar(&f.workbook, "xlsx", false, "also write the reports as one xlsx workbook")
	return cmd
}

func run(ctx context.Context, f flags, out io.Writer) error {
	cfg, err := config.LoadFile(f.configPath)
	if err != nil {
		return err
	}
	if cfg.MadgradesToken == "" {
		return errors.New("missing env var: MADGRADES_API_TOKEN")
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	db, err := store.Open(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := prepareStore(ctx, db, f.commit); err != nil {
		return err
	}

	sum, err := pipeline.New(db, newClient(cfg, log), log, out).Run(ctx, pipelineOptions(cfg, f))
	if err != nil {
		return err
	}

	if f.uploadSFTP {
		if err := sftpclient.UploadFiles(ctx, sftpclient.FromConfig(cfg), sum.Reports...); err != nil {
			return err
		}
		log.Info("reports uploaded", "host", cfg.SFTPHost, "dir", cfg.SFTPDir, "files", len(sum.Reports))
	}
	return nil
}

// prepareStore migrates the schema on commit runs. Dry runs only read it.
func prepareStore(ctx context.Context, db *gorm.DB, commit bool) error {
	if commit {
		return store.Migrate(ctx, db)
	}
	if err := store.CheckSchema(ctx, db); err != nil {
		return fmt.Errorf("%w (run once with --commit to create it)", err)
	}
	return nil
}

func newClient(cfg config.Config, log *logger.Logger) *madgrades.Client {
	c := madgrades.New(cfg.MadgradesBaseURL, cfg.MadgradesToken, cfg.HTTPTimeout, log)
	if cfg.PerPage > 0 {
		c.PerPage = cfg.PerPage
	}
	if cfg.ProgressEvery > 0 {
		c.ProgressEvery = cfg.ProgressEvery
	}
	if cfg.MaxAttempts > 0 {
		c.Retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		c.Retry.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		c.Retry.MaxDelay = cfg.MaxDelay
	}
	return c
}

func pipelineOptions(cfg config.Config, f flags) pipeline.Options {
	concurrency := cfg.GradeFetchConcurrency
	if f.concurrency > 0 {
		concurrency = f.concurrency
	}
	return pipeline.Options{
		Commit:            f.commit,
		SkipGradeRebuild:  f.skipGradeRebuild,
		OutputDir:         f.outputDir,
		UnresolvedReport:  f.unresolvedReport,
		LimitCourses:      f.limitCourses,
		Workbook:          f.workbook,
		Concurrency:       concurrency,
		StagingBatchSize:  cfg.StagingBatchSize,
		RewriteTimeout:    cfg.RewriteTimeout,
		DefaultSchoolName: cfg.DefaultSchoolName,
		SubjectOverrides:  cfg.SubjectOverrides,
	}
}
