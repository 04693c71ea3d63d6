package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

// emailTaken reports whether a user other than the excluded ones owns the email.
func (repo *userRepository) emailTaken(email string, excluded ...string) bool {
	for _, usr := range repo.db.users {
		if usr.Email == email && !core.InStrings(usr.ID, excluded) {
			return true
		}
	}
	return false
}

func (repo *userRepository) QueryUsers(_ context.Context, f user.Filter) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return filter(repo.db.users, f.Match), nil
}

func (repo *userRepository) CreateUsers(_ context.Context, users ...user.User) ([]user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	seen := make(map[string]bool, len(users))
	for _, usr := range users {
		if seen[usr.Email] || repo.emailTaken(usr.Email) {
			return nil, user.EmailExistsError()
		}
		seen[usr.Email] = true
	}

	created := make([]user.User, 0, len(users))
	for _, usr := range users {
		usr.ID = newID(usr.ID)
		repo.db.users = append(repo.db.users, usr)
		created = append(created, usr)
	}
	return created, nil
}

func (repo *userRepository) UpdateUsers(_ context.Context, patch user.Patch, f user.Filter) ([]user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if patch.Email != nil {
		matches := filter(repo.db.users, f.Match)
		if len(matches) > 1 {
			return nil, user.EmailExistsError()
		}
		if len(matches) == 1 && repo.emailTaken(*patch.Email, matches[0].ID) {
			return nil, user.EmailExistsError()
		}
	}
	return update(repo.db.users, f.Match, patch.Apply), nil
}

func (repo *userRepository) DeleteUsers(_ context.Context, f user.Filter) ([]user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var deleted []user.User
	repo.db.users, deleted = remove(repo.db.users, f.Match)
	if len(deleted) == 0 {
		return deleted, nil
	}

	ids := make([]string, 0, len(deleted))
	for _, usr := range deleted {
		ids = append(ids, usr.ID)
	}
	repo.db.enrollments, _ = remove(repo.db.enrollments, school.EnrollmentFilter{StudentIDs: ids}.Match)
	repo.db.assignments, _ = remove(repo.db.assignments, school.AssignmentFilter{TeacherIDs: ids}.Match)
	repo.db.presences, _ = remove(repo.db.presences, attendance.PresenceFilter{StudentIDs: ids}.Match)
	repo.db.grades, _ = remove(repo.db.grades, grade.Filter{StudentIDs: ids}.Match)
	return deleted, nil
}
