package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// Tokens

func (repo *attendanceRepository) QueryTokens(_ context.Context, f attendance.TokenFilter) ([]attendance.Token, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return filter(repo.db.tokens, f.Match), nil
}

func (repo *attendanceRepository) CreateTokens(_ context.Context, tokens ...attendance.Token) ([]attendance.Token, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		if seen[tok.Code] || len(filter(repo.db.tokens, attendance.TokenFilter{Code: tok.Code}.Match)) > 0 {
			return nil, core.NewConflictError("attendance token code already in use")
		}
		seen[tok.Code] = true
	}

	created := make([]attendance.Token, 0, len(tokens))
	for _, tok := range tokens {
		tok.ID = newID(tok.ID)
		repo.db.tokens = append(repo.db.tokens, tok)
		created = append(created, tok)
	}
	return created, nil
}

func (repo *attendanceRepository) UpdateTokens(_ context.Context, patch attendance.TokenPatch, f attendance.TokenFilter) ([]attendance.Token, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	return update(repo.db.tokens, f.Match, patch.Apply), nil
}

// Presences

func presenceKey(p attendance.Presence) string {
	return core.CompositeKey(p.StudentID, p.SubjectID, p.ClassID, p.LessonDate)
}

func (repo *attendanceRepository) QueryPresences(_ context.Context, f attendance.PresenceFilter) ([]attendance.Presence, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return filter(repo.db.presences, f.Match), nil
}

func (repo *attendanceRepository) CreatePresences(_ context.Context, presences ...attendance.Presence) ([]attendance.Presence, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	existing := make(map[string]bool, len(repo.db.presences)+len(presences))
	for _, p := range repo.db.presences {
		existing[presenceKey(p)] = true
	}
	for _, p := range presences {
		key := presenceKey(p)
		if existing[key] {
			return nil, core.NewConflictError(
				"presence of student %s in subject %s, class %s on %s already recorded", p.StudentID, p.SubjectID, p.ClassID, p.LessonDate)
		}
		existing[key] = true
	}

	created := make([]attendance.Presence, 0, len(presences))
	for _, p := range presences {
		p.ID = newID(p.ID)
		repo.db.presences = append(repo.db.presences, p)
		created = append(created, p)
	}
	return created, nil
}

func (repo *attendanceRepository) UpdatePresences(_ context.Context, patch attendance.PresencePatch, f attendance.PresenceFilter) ([]attendance.Presence, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	return update(repo.db.presences, f.Match, patch.Apply), nil
}
