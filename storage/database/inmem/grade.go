package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core/grade"
)

type gradeRepository struct {
	db *DB
}

var _ grade.Repository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(db *DB) *gradeRepository {
	return &gradeRepository{db: db}
}

func (repo *gradeRepository) QueryGrades(_ context.Context, f grade.Filter) ([]grade.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return filter(repo.db.grades, f.Match), nil
}

func (repo *gradeRepository) CreateGrades(_ context.Context, grades ...grade.Grade) ([]grade.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	created := make([]grade.Grade, 0, len(grades))
	for _, g := range grades {
		g.ID = newID(g.ID)
		repo.db.grades = append(repo.db.grades, g)
		created = append(created, g)
	}
	return created, nil
}

func (repo *gradeRepository) DeleteGrades(_ context.Context, f grade.Filter) ([]grade.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var deleted []grade.Grade
	repo.db.grades, deleted = remove(repo.db.grades, f.Match)
	return deleted, nil
}
