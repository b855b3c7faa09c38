package resolve

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"madgrades-sync/internal/store"
)

func (r *Resolver) createCourses(ctx context.Context, planned []plannedCourse, l *store.Lookups, res *Result) error {
	if len(planned) == 0 {
		return nil
	}

	if !r.Opts.Commit {
		for _, p := range planned {
			c := p.course
			c.ID = l.ProvisionalCourseID()
			l.AddCourse(c)
			if p.departmentID != 0 {
				res.DepartmentLinksCreated++
			}
		}
		res.CoursesCreated += len(planned)
		r.Log.Info("dry run: courses planned", "count", len(planned))
		return nil
	}

	rows := make([]store.Course, len(planned))
	codes := make([]string, len(planned))
	for i, p := range planned {
		rows[i] = p.course
		codes[i] = p.course.Code
	}

	db := r.DB.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		CreateInBatches(&rows, r.Opts.BatchSize)
	if tx.Error != nil {
		return fmt.Errorf("resolve: create courses: %w", tx.Error)
	}
	res.CoursesCreated += int(tx.RowsAffected)

	// Reload so ids are right even for rows another writer inserted first.
	byCode := map[string]store.Course{}
	for start := 0; start < len(codes); start += r.Opts.BatchSize {
		end := min(start+r.Opts.BatchSize, len(codes))
		var loaded []store.Course
		if err := db.Where("code IN ?", codes[start:end]).Find(&loaded).Error; err != nil {
			return fmt.Errorf("resolve: reload courses: %w", err)
		}
		for _, c := range loaded {
			byCode[c.Code] = c
		}
	}

	var links []store.CourseDepartment
	for _, p := range planned {
		c, ok := byCode[p.course.Code]
		if !ok {
			return fmt.Errorf("resolve: course %q missing after insert", p.course.Code)
		}
		l.AddCourse(c)
		if p.departmentID != 0 {
			links = append(links, store.CourseDepartment{CourseID: c.ID, DepartmentID: p.departmentID})
		}
	}

	if len(links) > 0 {
		tx := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&links, r.Opts.BatchSize)
		if tx.Error != nil {
			return fmt.Errorf("resolve: link departments: %w", tx.Error)
		}
		res.DepartmentLinksCreated += int(tx.RowsAffected)
	}

	r.Log.Info("courses created", "count", res.CoursesCreated, "departmentLinks", res.DepartmentLinksCreated)
	return nil
}

func (r *Resolver) upsertAliases(ctx context.Context, rows []store.CourseCodeAlias, l *store.Lookups, res *Result) error {
	if len(rows) == 0 {
		return nil
	}
	for _, a := range rows {
		l.AliasByCode[a.SourceCode] = a.CourseID
	}
	res.AliasesUpserted = len(rows)
	if !r.Opts.Commit {
		return nil
	}

	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"course_id",
			"source_course_uuid",
			"source_subject_code",
			"source_subject_abbr",
			"source",
			"last_seen_at",
			"updated_at",
		}),
	}).CreateInBatches(&rows, r.Opts.BatchSize).Error
	if err != nil {
		return fmt.Errorf("resolve: upsert aliases: %w", err)
	}
	return nil
}

func (r *Resolver) upsertCrossListGroups(ctx context.Context, groups []store.CrossListGroup, members map[string][]uint, res *Result) error {
	if len(groups) == 0 {
		return nil
	}
	res.CrossListGroupsUpserted = len(groups)
	if !r.Opts.Commit {
		return nil
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_course_uuid"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_code", "updated_at"}),
		}).CreateInBatches(&groups, r.Opts.BatchSize).Error
		if err != nil {
			return fmt.Errorf("resolve: upsert cross-list groups: %w", err)
		}

		uuids := make([]string, len(groups))
		for i, g := range groups {
			uuids[i] = g.SourceCourseUUID
		}
		var stored []store.CrossListGroup
		if err := tx.Where("source_course_uuid IN ?", uuids).Find(&stored).Error; err != nil {
			return fmt.Errorf("resolve: reload cross-list groups: %w", err)
		}
		for _, g := range stored {
			ids := members[g.SourceCourseUUID]
			if len(ids) == 0 {
				continue
			}
			if err := tx.Model(&store.Course{}).Where("id IN ?", ids).
				Update("cross_list_group_id", g.ID).Error; err != nil {
				return fmt.Errorf("resolve: tag cross-listed courses: %w", err)
			}
		}
		return nil
	})
}
