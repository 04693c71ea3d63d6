package sqlxdb

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

const (
	subjectsTable    = "subjects"
	classesTable     = "classes"
	enrollmentsTable = "enrollments"
	assignmentsTable = "assignments"
)

type (
	subjectRow struct {
		ID          string      `db:"id"`
		Seq         int64       `db:"seq"`
		Name        string      `db:"name"`
		Code        string      `db:"code"`
		Description null.String `db:"description"`
		CreatedAt   int64       `db:"created_at"`
	}

	classRow struct {
		ID         string   `db:"id"`
		Seq        int64    `db:"seq"`
		Name       string   `db:"name"`
		GradeLevel string   `db:"grade_level"`
		SchoolYear null.Int `db:"school_year"`
		CreatedAt  int64    `db:"created_at"`
	}

	enrollmentRow struct {
		ID        string `db:"id"`
		Seq       int64  `db:"seq"`
		StudentID string `db:"student_id"`
		ClassID   string `db:"class_id"`
		CreatedAt int64  `db:"created_at"`
	}

	assignmentRow struct {
		ID        string `db:"id"`
		Seq       int64  `db:"seq"`
		TeacherID string `db:"teacher_id"`
		SubjectID string `db:"subject_id"`
		ClassID   string `db:"class_id"`
		CreatedAt int64  `db:"created_at"`
	}
)

func (r subjectRow) subject() school.Subject {
	return school.Subject{
		ID:          r.ID,
		Name:        r.Name,
		Code:        r.Code,
		Description: r.Description.String,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

func (r classRow) class() school.Class {
	return school.Class{
		ID:         r.ID,
		Name:       r.Name,
		GradeLevel: r.GradeLevel,
		SchoolYear: r.SchoolYear.Int,
		CreatedAt:  fromMillis(r.CreatedAt),
	}
}

func (r enrollmentRow) enrollment() school.Enrollment {
	return school.Enrollment{
		ID:        r.ID,
		StudentID: r.StudentID,
		ClassID:   r.ClassID,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

func (r assignmentRow) assignment() school.Assignment {
	return school.Assignment{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		SubjectID: r.SubjectID,
		ClassID:   r.ClassID,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

type schoolRepository struct {
	store *Store
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(store *Store) *schoolRepository {
	return &schoolRepository{store: store}
}

// Subjects

func querySubjects(ctx context.Context, ext sqlx.ExtContext, f school.SubjectFilter) ([]school.Subject, error) {
	var w where
	w.in("id", f.IDs)
	if f.Code != "" {
		w.eq("code", school.NormalizeCode(f.Code))
	}
	var rows []subjectRow
	if err := selectWhere(ctx, ext, &rows, subjectsTable, w); err != nil {
		return nil, err
	}
	subjects := make([]school.Subject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, r.subject())
	}
	return subjects, nil
}

func codeTaken(ctx context.Context, tx *sqlx.Tx, codes []string, excluded ...string) (bool, error) {
	var w where
	w.in("code", codes)
	if len(excluded) > 0 {
		w.add("id NOT IN (?)", excluded)
	}
	var rows []subjectRow
	if err := selectWhere(ctx, tx, &rows, subjectsTable, w); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (repo *schoolRepository) QuerySubjects(ctx context.Context, f school.SubjectFilter) ([]school.Subject, error) {
	return querySubjects(ctx, repo.store.db, f)
}

func (repo *schoolRepository) CreateSubjects(ctx context.Context, subjects ...school.Subject) ([]school.Subject, error) {
	rows := make([]subjectRow, 0, len(subjects))
	codes := make([]string, 0, len(subjects))
	seen := make(map[string]bool, len(subjects))
	for _, sub := range subjects {
		if seen[sub.Code] {
			return nil, school.CodeExistsError()
		}
		seen[sub.Code] = true
		codes = append(codes, sub.Code)
		rows = append(rows, subjectRow{
			ID:          newID(sub.ID),
			Seq:         repo.store.nextSeq(),
			Name:        sub.Name,
			Code:        sub.Code,
			Description: null.NewString(sub.Description, sub.Description != ""),
			CreatedAt:   toMillis(sub.CreatedAt),
		})
	}

	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		if len(codes) > 0 {
			taken, err := codeTaken(ctx, tx, codes)
			if err != nil {
				return err
			}
			if taken {
				return school.CodeExistsError()
			}
		}
		for _, row := range rows {
			_, err := tx.NamedExecContext(ctx, `INSERT INTO subjects (id, seq, name, code, description, created_at)
				VALUES (:id, :seq, :name, :code, :description, :created_at)`, row)
			if err = mapErr(err, "inserting subject", school.CodeExistsError); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := make([]school.Subject, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.subject())
	}
	return created, nil
}

func (repo *schoolRepository) UpdateSubjects(ctx context.Context, patch school.SubjectPatch, f school.SubjectFilter) ([]school.Subject, error) {
	updated := []school.Subject{}
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		matches, err := querySubjects(ctx, tx, f)
		if err != nil || len(matches) == 0 {
			return err
		}
		ids := make([]string, 0, len(matches))
		for _, sub := range matches {
			ids = append(ids, sub.ID)
		}

		var s set
		if patch.Name != nil {
			s.add("name", *patch.Name)
		}
		if patch.Code != nil {
			probe := matches[0]
			patch.Apply(&probe)
			if len(ids) > 1 {
				return school.CodeExistsError()
			}
			taken, err := codeTaken(ctx, tx, []string{probe.Code}, ids...)
			if err != nil {
				return err
			}
			if taken {
				return school.CodeExistsError()
			}
			s.add("code", probe.Code)
		}
		if patch.Description != nil {
			s.add("description", null.NewString(*patch.Description, *patch.Description != ""))
		}
		if err := mapErr(updateByIDs(ctx, tx, subjectsTable, s, ids), "updating subjects", school.CodeExistsError); err != nil {
			return err
		}
		updated, err = querySubjects(ctx, tx, school.SubjectFilter{IDs: ids})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSubjects removes the subjects and their teaching assignments.
func (repo *schoolRepository) DeleteSubjects(ctx context.Context, f school.SubjectFilter) ([]school.Subject, error) {
	deleted := []school.Subject{}
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if deleted, err = querySubjects(ctx, tx, f); err != nil || len(deleted) == 0 {
			return err
		}
		ids := make([]string, 0, len(deleted))
		for _, sub := range deleted {
			ids = append(ids, sub.ID)
		}
		if err := deleteWhere(ctx, tx, assignmentsTable, "subject_id", ids); err != nil {
			return err
		}
		return deleteWhere(ctx, tx, subjectsTable, "id", ids)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Classes

func queryClasses(ctx context.Context, ext sqlx.ExtContext, f school.ClassFilter) ([]school.Class, error) {
	var w where
	w.in("id", f.IDs)
	if f.SchoolYear != 0 {
		w.add("school_year = ?", f.SchoolYear)
	}
	var rows []classRow
	if err := selectWhere(ctx, ext, &rows, classesTable, w); err != nil {
		return nil, err
	}
	classes := make([]school.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.class())
	}
	return classes, nil
}

func (repo *schoolRepository) QueryClasses(ctx context.Context, f school.ClassFilter) ([]school.Class, error) {
	return queryClasses(ctx, repo.store.db, f)
}

func (repo *schoolRepository) CreateClasses(ctx context.Context, classes ...school.Class) ([]school.Class, error) {
	rows := make([]classRow, 0, len(classes))
	for _, cls := range classes {
		rows = append(rows, classRow{
			ID:         newID(cls.ID),
			Seq:        repo.store.nextSeq(),
			Name:       cls.Name,
			GradeLevel: cls.GradeLevel,
			SchoolYear: null.NewInt(cls.SchoolYear, cls.SchoolYear != 0),
			CreatedAt:  toMillis(cls.CreatedAt),
		})
	}

	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, row := range rows {
			_, err := tx.NamedExecContext(ctx, `INSERT INTO classes (id, seq, name, grade_level, school_year, created_at)
				VALUES (:id, :seq, :name, :grade_level, :school_year, :created_at)`, row)
			if err = mapErr(err, "inserting class", nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := make([]school.Class, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.class())
	}
	return created, nil
}

func (repo *schoolRepository) UpdateClasses(ctx context.Context, patch school.ClassPatch, f school.ClassFilter) ([]school.Class, error) {
	updated := []school.Class{}
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		matches, err := queryClasses(ctx, tx, f)
		if err != nil || len(matches) == 0 {
			return err
		}
		ids := make([]string, 0, len(matches))
		for _, cls := range matches {
			ids = append(ids, cls.ID)
		}

		var s set
		if patch.Name != nil {
			s.add("name", *patch.Name)
		}
		if patch.GradeLevel != nil {
			s.add("grade_level", *patch.GradeLevel)
		}
		if patch.SchoolYear != nil {
			s.add("school_year", null.NewInt(*patch.SchoolYear, *patch.SchoolYear != 0))
		}
		if err := mapErr(updateByIDs(ctx, tx, classesTable, s, ids), "updating classes", nil); err != nil {
			return err
		}
		updated, err = queryClasses(ctx, tx, school.ClassFilter{IDs: ids})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteClasses removes the classes with their enrollments and teaching assignments.
func (repo *schoolRepository) DeleteClasses(ctx context.Context, f school.ClassFilter) ([]school.Class, error) {
	deleted := []school.Class{}
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if deleted, err = queryClasses(ctx, tx, f); err != nil || len(deleted) == 0 {
			return err
		}
		ids := make([]string, 0, len(deleted))
		for _, cls := range deleted {
			ids = append(ids, cls.ID)
		}
		for _, table := range []string{enrollmentsTable, assignmentsTable} {
			if err := deleteWhere(ctx, tx, table, "class_id", ids); err != nil {
				return err
			}
		}
		return deleteWhere(ctx, tx, classesTable, "id", ids)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Enrollments

func queryEnrollments(ctx context.Context, ext sqlx.ExtContext, f school.EnrollmentFilter) ([]school.Enrollment, error) {
	var w where
	w.in("id", f.IDs)
	w.in("student_id", f.StudentIDs)
	w.in("class_id", f.ClassIDs)
	var rows []enrollmentRow
	if err := selectWhere(ctx, ext, &rows, enrollmentsTable, w); err != nil {
		return nil, err
	}
	enrollments := make([]school.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.enrollment())
	}
	return enrollments, nil
}

func (repo *schoolRepository) QueryEnrollments(ctx context.Context, f school.EnrollmentFilter) ([]school.Enrollment, error) {
	return queryEnrollments(ctx, repo.store.db, f)
}

func enrollmentConflict(enr school.Enrollment) func() error {
	return func() error {
		return core.NewConflictError("student %s is already enrolled in class %s", enr.StudentID, enr.ClassID)
	}
}

func (repo *schoolRepository) CreateEnrollments(ctx context.Context, enrollments ...school.Enrollment) ([]school.Enrollment, error) {
	rows := make([]enrollmentRow, 0, len(enrollments))
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		seen := make(map[string]bool, len(enrollments))
		for _, enr := range enrollments {
			key := core.CompositeKey(enr.StudentID, enr.ClassID)
			existing, err := queryEnrollments(ctx, tx, school.EnrollmentFilter{
				StudentIDs: []string{enr.StudentID},
				ClassIDs:   []string{enr.ClassID},
			})
			if err != nil {
				return err
			}
			if seen[key] || len(existing) > 0 {
				return enrollmentConflict(enr)()
			}
			seen[key] = true

			row := enrollmentRow{
				ID:        newID(enr.ID),
				Seq:       repo.store.nextSeq(),
				StudentID: enr.StudentID,
				ClassID:   enr.ClassID,
				CreatedAt: toMillis(enr.CreatedAt),
			}
			_, err = tx.NamedExecContext(ctx, `INSERT INTO enrollments (id, seq, student_id, class_id, created_at)
				VALUES (:id, :seq, :student_id, :class_id, :created_at)`, row)
			if err = mapErr(err, "inserting enrollment", enrollmentConflict(enr)); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := make([]school.Enrollment, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.enrollment())
	}
	return created, nil
}

func (repo *schoolRepository) DeleteEnrollments(ctx context.Context, f school.EnrollmentFilter) ([]school.Enrollment, error) {
	deleted := []school.Enrollment{}
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if deleted, err = queryEnrollments(ctx, tx, f); err != nil || len(deleted) == 0 {
			return err
		}
		ids := make([]string, 0, len(deleted))
		for _, enr := range deleted {
			ids = append(ids, enr.ID)
		}
		return deleteWhere(ctx, tx, enrollmentsTable, "id", ids)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Assignments

func queryAssignments(ctx context.Context, ext sqlx.ExtContext, f school.AssignmentFilter) ([]school.Assignment, error) {
	var w where
	w.in("id", f.IDs)
	w.in("teacher_id", f.TeacherIDs)
	w.in("subject_id", f.SubjectIDs)
	w.in("class_id", f.ClassIDs)
	var rows []assignmentRow
	if err := selectWhere(ctx, ext, &rows, assignmentsTable, w); err != nil {
		return nil, err
	}
	assignments := make([]school.Assignment, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, r.assignment())
	}
	return assignments, nil
}

func (repo *schoolRepository) QueryAssignments(ctx context.Context, f school.AssignmentFilter) ([]school.Assignment, error) {
	return queryAssignments(ctx, repo.store.db, f)
}

func assignmentConflict(asg school.Assignment) func() error {
	return func() error {
		return core.NewConflictError(
			"teacher %s is already assigned to subject %s in class %s", asg.TeacherID, asg.SubjectID, asg.ClassID)
	}
}

func (repo *schoolRepository) CreateAssignments(ctx context.Context, assignments ...school.Assignment) ([]school.Assignment, error) {
	rows := make([]assignmentRow, 0, len(assignments))
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		seen := make(map[string]bool, len(assignments))
		for _, asg := range assignments {
			key := core.CompositeKey(asg.TeacherID, asg.SubjectID, asg.ClassID)
			existing, err := queryAssignments(ctx, tx, school.AssignmentFilter{
				TeacherIDs: []string{asg.TeacherID},
				SubjectIDs: []string{asg.SubjectID},
				ClassIDs:   []string{asg.ClassID},
			})
			if err != nil {
				return err
			}
			if seen[key] || len(existing) > 0 {
				return assignmentConflict(asg)()
			}
			seen[key] = true

			row := assignmentRow{
				ID:        newID(asg.ID),
				Seq:       repo.store.nextSeq(),
				TeacherID: asg.TeacherID,
				SubjectID: asg.SubjectID,
				ClassID:   asg.ClassID,
				CreatedAt: toMillis(asg.CreatedAt),
			}
			_, err = tx.NamedExecContext(ctx, `INSERT INTO assignments (id, seq, teacher_id, subject_id, class_id, created_at)
				VALUES (:id, :seq, :teacher_id, :subject_id, :class_id, :created_at)`, row)
			if err = mapErr(err, "inserting assignment", assignmentConflict(asg)); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := make([]school.Assignment, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.assignment())
	}
	return created, nil
}

func (repo *schoolRepository) DeleteAssignments(ctx context.Context, f school.AssignmentFilter) ([]school.Assignment, error) {
	deleted := []school.Assignment{}
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if deleted, err = queryAssignments(ctx, tx, f); err != nil || len(deleted) == 0 {
			return err
		}
		ids := make([]string, 0, len(deleted))
		for _, asg := range deleted {
			ids = append(ids, asg.ID)
		}
		return deleteWhere(ctx, tx, assignmentsTable, "id", ids)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
