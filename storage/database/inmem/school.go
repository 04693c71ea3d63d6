package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

// Subjects

func (repo *schoolRepository) codeTaken(code string, excluded ...string) bool {
	for _, sub := range repo.db.subjects {
		if sub.Code == code && !core.InStrings(sub.ID, excluded) {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) QuerySubjects(_ context.Context, f school.SubjectFilter) ([]school.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return filter(repo.db.subjects, f.Match), nil
}

func (repo *schoolRepository) CreateSubjects(_ context.Context, subjects ...school.Subject) ([]school.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	seen := make(map[string]bool, len(subjects))
	for _, sub := range subjects {
		if seen[sub.Code] || repo.codeTaken(sub.Code) {
			return nil, school.CodeExistsError()
		}
		seen[sub.Code] = true
	}

	created := make([]school.Subject, 0, len(subjects))
	for _, sub := range subjects {
		sub.ID = newID(sub.ID)
		repo.db.subjects = append(repo.db.subjects, sub)
		created = append(created, sub)
	}
	return created, nil
}

func (repo *schoolRepository) UpdateSubjects(_ context.Context, patch school.SubjectPatch, f school.SubjectFilter) ([]school.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if patch.Code != nil {
		matches := filter(repo.db.subjects, f.Match)
		if len(matches) > 1 {
			return nil, school.CodeExistsError()
		}
		if len(matches) == 1 {
			probe := matches[0]
			patch.Apply(&probe)
			if repo.codeTaken(probe.Code, probe.ID) {
				return nil, school.CodeExistsError()
			}
		}
	}
	return update(repo.db.subjects, f.Match, patch.Apply), nil
}

func (repo *schoolRepository) DeleteSubjects(_ context.Context, f school.SubjectFilter) ([]school.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var deleted []school.Subject
	repo.db.subjects, deleted = remove(repo.db.subjects, f.Match)
	if len(deleted) > 0 {
		ids := make([]string, 0, len(deleted))
		for _, sub := range deleted {
			ids = append(ids, sub.ID)
		}
		repo.db.assignments, _ = remove(repo.db.assignments, school.AssignmentFilter{SubjectIDs: ids}.Match)
	}
	return deleted, nil
}

// Classes

func (repo *schoolRepository) QueryClasses(_ context.Context, f school.ClassFilter) ([]school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return filter(repo.db.classes, f.Match), nil
}

func (repo *schoolRepository) CreateClasses(_ context.Context, classes ...school.Class) ([]school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	created := make([]school.Class, 0, len(classes))
	for _, cls := range classes {
		cls.ID = newID(cls.ID)
		repo.db.classes = append(repo.db.classes, cls)
		created = append(created, cls)
	}
	return created, nil
}

func (repo *schoolRepository) UpdateClasses(_ context.Context, patch school.ClassPatch, f school.ClassFilter) ([]school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	return update(repo.db.classes, f.Match, patch.Apply), nil
}

func (repo *schoolRepository) DeleteClasses(_ context.Context, f school.ClassFilter) ([]school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var deleted []school.Class
	repo.db.classes, deleted = remove(repo.db.classes, f.Match)
	if len(deleted) > 0 {
		ids := make([]string, 0, len(deleted))
		for _, cls := range deleted {
			ids = append(ids, cls.ID)
		}
		repo.db.enrollments, _ = remove(repo.db.enrollments, school.EnrollmentFilter{ClassIDs: ids}.Match)
		repo.db.assignments, _ = remove(repo.db.assignments, school.AssignmentFilter{ClassIDs: ids}.Match)
	}
	return deleted, nil
}

// Enrollments

func (repo *schoolRepository) QueryEnrollments(_ context.Context, f school.EnrollmentFilter) ([]school.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return filter(repo.db.enrollments, f.Match), nil
}

func (repo *schoolRepository) CreateEnrollments(_ context.Context, enrollments ...school.Enrollment) ([]school.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	seen := make(map[string]bool, len(enrollments))
	for _, enr := range enrollments {
		key := core.CompositeKey(enr.StudentID, enr.ClassID)
		taken := len(filter(repo.db.enrollments, school.EnrollmentFilter{
			StudentIDs: []string{enr.StudentID},
			ClassIDs:   []string{enr.ClassID},
		}.Match)) > 0
		if seen[key] || taken {
			return nil, core.NewConflictError("student %s is already enrolled in class %s", enr.StudentID, enr.ClassID)
		}
		seen[key] = true
	}

	created := make([]school.Enrollment, 0, len(enrollments))
	for _, enr := range enrollments {
		enr.ID = newID(enr.ID)
		repo.db.enrollments = append(repo.db.enrollments, enr)
		created = append(created, enr)
	}
	return created, nil
}

func (repo *schoolRepository) DeleteEnrollments(_ context.Context, f school.EnrollmentFilter) ([]school.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var deleted []school.Enrollment
	repo.db.enrollments, deleted = remove(repo.db.enrollments, f.Match)
	return deleted, nil
}

// Assignments

func (repo *schoolRepository) QueryAssignments(_ context.Context, f school.AssignmentFilter) ([]school.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return filter(repo.db.assignments, f.Match), nil
}

func (repo *schoolRepository) CreateAssignments(_ context.Context, assignments ...school.Assignment) ([]school.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	seen := make(map[string]bool, len(assignments))
	for _, asg := range assignments {
		key := core.CompositeKey(asg.TeacherID, asg.SubjectID, asg.ClassID)
		taken := len(filter(repo.db.assignments, school.AssignmentFilter{
			TeacherIDs: []string{asg.TeacherID},
			SubjectIDs: []string{asg.SubjectID},
			ClassIDs:   []string{asg.ClassID},
		}.Match)) > 0
		if seen[key] || taken {
			return nil, core.NewConflictError("teacher %s is already assigned to subject %s in class %s", asg.TeacherID, asg.SubjectID, asg.ClassID)
		}
		seen[key] = true
	}

	created := make([]school.Assignment, 0, len(assignments))
	for _, asg := range assignments {
		asg.ID = newID(asg.ID)
		repo.db.assignments = append(repo.db.assignments, asg)
		created = append(created, asg)
	}
	return created, nil
}

func (repo *schoolRepository) DeleteAssignments(_ context.Context, f school.AssignmentFilter) ([]school.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var deleted []school.Assignment
	repo.db.assignments, deleted = remove(repo.db.assignments, f.Match)
	return deleted, nil
}
