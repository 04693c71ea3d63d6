package sqlxdb

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

const (
	tokensTable    = "attendance_tokens"
	presencesTable = "presences"
)

type (
	tokenRow struct {
		ID         string `db:"id"`
		Seq        int64  `db:"seq"`
		Code       string `db:"code"`
		SubjectID  string `db:"subject_id"`
		ClassID    string `db:"class_id"`
		LessonDate string `db:"lesson_date"`
		TeacherID  string `db:"teacher_id"`
		CreatedAt  int64  `db:"created_at"`
		ExpiresAt  int64  `db:"expires_at"`
		Active     bool   `db:"active"`
	}

	presenceRow struct {
		ID         string      `db:"id"`
		Seq        int64       `db:"seq"`
		StudentID  string      `db:"student_id"`
		SubjectID  string      `db:"subject_id"`
		ClassID    string      `db:"class_id"`
		LessonDate string      `db:"lesson_date"`
		Present    bool        `db:"present"`
		TokenUsed  bool        `db:"token_used"`
		Notes      null.String `db:"notes"`
		CreatedAt  int64       `db:"created_at"`
		UpdatedAt  int64       `db:"updated_at"`
	}
)

func (r tokenRow) token() attendance.Token {
	return attendance.Token{
		ID:         r.ID,
		Code:       r.Code,
		SubjectID:  r.SubjectID,
		ClassID:    r.ClassID,
		LessonDate: r.LessonDate,
		TeacherID:  r.TeacherID,
		CreatedAt:  fromMillis(r.CreatedAt),
		ExpiresAt:  fromMillis(r.ExpiresAt),
		Active:     r.Active,
	}
}

func (r presenceRow) presence() attendance.Presence {
	return attendance.Presence{
		ID:         r.ID,
		StudentID:  r.StudentID,
		SubjectID:  r.SubjectID,
		ClassID:    r.ClassID,
		LessonDate: r.LessonDate,
		Present:    r.Present,
		TokenUsed:  r.TokenUsed,
		Notes:      r.Notes.String,
		CreatedAt:  fromMillis(r.CreatedAt),
		UpdatedAt:  fromMillis(r.UpdatedAt),
	}
}

type attendanceRepository struct {
	store *Store
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(store *Store) *attendanceRepository {
	return &attendanceRepository{store: store}
}

// Tokens

func queryTokens(ctx context.Context, ext sqlx.ExtContext, f attendance.TokenFilter) ([]attendance.Token, error) {
	var w where
	w.in("id", f.IDs)
	w.eq("code", f.Code)
	w.eq("teacher_id", f.TeacherID)
	w.eq("subject_id", f.SubjectID)
	w.eq("class_id", f.ClassID)
	w.eq("lesson_date", f.LessonDate)
	w.boolean("active", f.Active)
	if !f.ExpiresAfter.IsZero() {
		w.add("expires_at > ?", toMillis(f.ExpiresAfter))
	}
	if !f.ExpiresBefore.IsZero() {
		w.add("expires_at < ?", toMillis(f.ExpiresBefore))
	}

	var rows []tokenRow
	if err := selectWhere(ctx, ext, &rows, tokensTable, w); err != nil {
		return nil, err
	}
	tokens := make([]attendance.Token, 0, len(rows))
	for _, r := range rows {
		tokens = append(tokens, r.token())
	}
	return tokens, nil
}

func tokenConflict() error {
	return core.NewConflictError("attendance token code already in use")
}

func (repo *attendanceRepository) QueryTokens(ctx context.Context, f attendance.TokenFilter) ([]attendance.Token, error) {
	return queryTokens(ctx, repo.store.db, f)
}

func (repo *attendanceRepository) CreateTokens(ctx context.Context, tokens ...attendance.Token) ([]attendance.Token, error) {
	rows := make([]tokenRow, 0, len(tokens))
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		seen := make(map[string]bool, len(tokens))
		for _, tok := range tokens {
			existing, err := queryTokens(ctx, tx, attendance.TokenFilter{Code: tok.Code})
			if err != nil {
				return err
			}
			if seen[tok.Code] || len(existing) > 0 {
				return tokenConflict()
			}
			seen[tok.Code] = true

			row := tokenRow{
				ID:         newID(tok.ID),
				Seq:        repo.store.nextSeq(),
				Code:       tok.Code,
				SubjectID:  tok.SubjectID,
				ClassID:    tok.ClassID,
				LessonDate: tok.LessonDate,
				TeacherID:  tok.TeacherID,
				CreatedAt:  toMillis(tok.CreatedAt),
				ExpiresAt:  toMillis(tok.ExpiresAt),
				Active:     tok.Active,
			}
			_, err = tx.NamedExecContext(ctx, `INSERT INTO attendance_tokens
				(id, seq, code, subject_id, class_id, lesson_date, teacher_id, created_at, expires_at, active)
				VALUES (:id, :seq, :code, :subject_id, :class_id, :lesson_date, :teacher_id, :created_at, :expires_at, :active)`, row)
			if err = mapErr(err, "inserting attendance token", tokenConflict); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := make([]attendance.Token, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.token())
	}
	return created, nil
}

func (repo *attendanceRepository) UpdateTokens(ctx context.Context, patch attendance.TokenPatch, f attendance.TokenFilter) ([]attendance.Token, error) {
	updated := []attendance.Token{}
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		matches, err := queryTokens(ctx, tx, f)
		if err != nil || len(matches) == 0 {
			return err
		}
		ids := make([]string, 0, len(matches))
		for _, tok := range matches {
			ids = append(ids, tok.ID)
		}

		var s set
		if patch.Active != nil {
			s.add("active", *patch.Active)
		}
		if err := mapErr(updateByIDs(ctx, tx, tokensTable, s, ids), "updating attendance tokens", nil); err != nil {
			return err
		}
		updated, err = queryTokens(ctx, tx, attendance.TokenFilter{IDs: ids})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Presences

func queryPresences(ctx context.Context, ext sqlx.ExtContext, f attendance.PresenceFilter) ([]attendance.Presence, error) {
	var w where
	w.in("id", f.IDs)
	w.in("student_id", f.StudentIDs)
	w.in("subject_id", f.SubjectIDs)
	w.in("class_id", f.ClassIDs)
	w.eq("lesson_date", f.LessonDate)
	w.boolean("present", f.Present)

	var rows []presenceRow
	if err := selectWhere(ctx, ext, &rows, presencesTable, w); err != nil {
		return nil, err
	}
	presences := make([]attendance.Presence, 0, len(rows))
	for _, r := range rows {
		presences = append(presences, r.presence())
	}
	return presences, nil
}

func presenceConflict(p attendance.Presence) func() error {
	return func() error {
		return core.NewConflictError(
			"presence of student %s in subject %s, class %s on %s already recorded", p.StudentID, p.SubjectID, p.ClassID, p.LessonDate)
	}
}

func (repo *attendanceRepository) QueryPresences(ctx context.Context, f attendance.PresenceFilter) ([]attendance.Presence, error) {
	return queryPresences(ctx, repo.store.db, f)
}

func (repo *attendanceRepository) CreatePresences(ctx context.Context, presences ...attendance.Presence) ([]attendance.Presence, error) {
	rows := make([]presenceRow, 0, len(presences))
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		seen := make(map[string]bool, len(presences))
		for _, p := range presences {
			key := core.CompositeKey(p.StudentID, p.SubjectID, p.ClassID, p.LessonDate)
			existing, err := queryPresences(ctx, tx, attendance.PresenceFilter{
				StudentIDs: []string{p.StudentID},
				SubjectIDs: []string{p.SubjectID},
				ClassIDs:   []string{p.ClassID},
				LessonDate: p.LessonDate,
			})
			if err != nil {
				return err
			}
			if seen[key] || len(existing) > 0 {
				return presenceConflict(p)()
			}
			seen[key] = true

			row := presenceRow{
				ID:         newID(p.ID),
				Seq:        repo.store.nextSeq(),
				StudentID:  p.StudentID,
				SubjectID:  p.SubjectID,
				ClassID:    p.ClassID,
				LessonDate: p.LessonDate,
				Present:    p.Present,
				TokenUsed:  p.TokenUsed,
				Notes:      null.NewString(p.Notes, p.Notes != ""),
				CreatedAt:  toMillis(p.CreatedAt),
				UpdatedAt:  toMillis(p.UpdatedAt),
			}
			_, err = tx.NamedExecContext(ctx, `INSERT INTO presences
				(id, seq, student_id, subject_id, class_id, lesson_date, present, token_used, notes, created_at, updated_at)
				VALUES (:id, :seq, :student_id, :subject_id, :class_id, :lesson_date, :present, :token_used, :notes, :created_at, :updated_at)`, row)
			if err = mapErr(err, "inserting presence", presenceConflict(p)); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := make([]attendance.Presence, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.presence())
	}
	return created, nil
}

func (repo *attendanceRepository) UpdatePresences(ctx context.Context, patch attendance.PresencePatch, f attendance.PresenceFilter) ([]attendance.Presence, error) {
	updated := []attendance.Presence{}
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		matches, err := queryPresences(ctx, tx, f)
		if err != nil || len(matches) == 0 {
			return err
		}
		ids := make([]string, 0, len(matches))
		for _, p := range matches {
			ids = append(ids, p.ID)
		}

		var s set
		if patch.Present != nil {
			s.add("present", *patch.Present)
		}
		if patch.TokenUsed != nil {
			s.add("token_used", *patch.TokenUsed)
		}
		if patch.Notes != nil {
			s.add("notes", null.NewString(*patch.Notes, *patch.Notes != ""))
		}
		if !patch.UpdatedAt.IsZero() {
			s.add("updated_at", toMillis(patch.UpdatedAt))
		}
		if err := mapErr(updateByIDs(ctx, tx, presencesTable, s, ids), "updating presences", nil); err != nil {
			return err
		}
		updated, err = queryPresences(ctx, tx, attendance.PresenceFilter{IDs: ids})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
