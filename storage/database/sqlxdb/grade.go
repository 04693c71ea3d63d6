package sqlxdb

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/grade"
)

const gradesTable = "grades"

type gradeRow struct {
	ID         string      `db:"id"`
	Seq        int64       `db:"seq"`
	StudentID  string      `db:"student_id"`
	SubjectID  string      `db:"subject_id"`
	Value      float64     `db:"value"`
	Kind       null.String `db:"kind"`
	Notes      null.String `db:"notes"`
	RecordedBy null.String `db:"recorded_by"`
	CreatedAt  int64       `db:"created_at"`
}

func (r gradeRow) grade() grade.Grade {
	return grade.Grade{
		ID:         r.ID,
		StudentID:  r.StudentID,
		SubjectID:  r.SubjectID,
		Value:      r.Value,
		Kind:       r.Kind.String,
		Notes:      r.Notes.String,
		RecordedBy: r.RecordedBy.String,
		CreatedAt:  fromMillis(r.CreatedAt),
	}
}

type gradeRepository struct {
	store *Store
}

var _ grade.Repository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(store *Store) *gradeRepository {
	return &gradeRepository{store: store}
}

func queryGrades(ctx context.Context, ext sqlx.ExtContext, f grade.Filter) ([]grade.Grade, error) {
	var w where
	w.in("id", f.IDs)
	w.in("student_id", f.StudentIDs)
	w.in("subject_id", f.SubjectIDs)
	w.eq("recorded_by", f.RecordedBy)
	w.eq("kind", f.Kind)

	var rows []gradeRow
	if err := selectWhere(ctx, ext, &rows, gradesTable, w); err != nil {
		return nil, err
	}
	grades := make([]grade.Grade, 0, len(rows))
	for _, r := range rows {
		grades = append(grades, r.grade())
	}
	return grades, nil
}

func (repo *gradeRepository) QueryGrades(ctx context.Context, f grade.Filter) ([]grade.Grade, error) {
	return queryGrades(ctx, repo.store.db, f)
}

func (repo *gradeRepository) CreateGrades(ctx context.Context, grades ...grade.Grade) ([]grade.Grade, error) {
	rows := make([]gradeRow, 0, len(grades))
	for _, g := range grades {
		rows = append(rows, gradeRow{
			ID:         newID(g.ID),
			Seq:        repo.store.nextSeq(),
			StudentID:  g.StudentID,
			SubjectID:  g.SubjectID,
			Value:      g.Value,
			Kind:       null.NewString(g.Kind, g.Kind != ""),
			Notes:      null.NewString(g.Notes, g.Notes != ""),
			RecordedBy: null.NewString(g.RecordedBy, g.RecordedBy != ""),
			CreatedAt:  toMillis(g.CreatedAt),
		})
	}

	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, row := range rows {
			_, err := tx.NamedExecContext(ctx, `INSERT INTO grades
				(id, seq, student_id, subject_id, value, kind, notes, recorded_by, created_at)
				VALUES (:id, :seq, :student_id, :subject_id, :value, :kind, :notes, :recorded_by, :created_at)`, row)
			if err = mapErr(err, "inserting grade", nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := make([]grade.Grade, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.grade())
	}
	return created, nil
}

func (repo *gradeRepository) DeleteGrades(ctx context.Context, f grade.Filter) ([]grade.Grade, error) {
	deleted := []grade.Grade{}
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if deleted, err = queryGrades(ctx, tx, f); err != nil || len(deleted) == 0 {
			return err
		}
		ids := make([]string, 0, len(deleted))
		for _, g := range deleted {
			ids = append(ids, g.ID)
		}
		return deleteWhere(ctx, tx, gradesTable, "id", ids)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
