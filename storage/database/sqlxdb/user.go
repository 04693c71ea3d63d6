package sqlxdb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/user"
)

const usersTable = "users"

type userRow struct {
	ID           string     `db:"id"`
	Seq          int64      `db:"seq"`
	Name         string     `db:"name"`
	Email        string     `db:"email"`
	Role         string     `db:"role"`
	IsActive     bool       `db:"is_active"`
	PasswordHash string     `db:"password_hash"`
	CreatedAt    int64      `db:"created_at"`
	UpdatedAt    int64      `db:"updated_at"`
	LastLogin    null.Int64 `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Role:         r.Role,
		IsActive:     r.IsActive,
		PasswordHash: []byte(r.PasswordHash),
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
		LastLogin:    fromMillis(r.LastLogin.Int64),
	}
}

func usersFromRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users
}

type userRepository struct {
	store *Store
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(store *Store) *userRepository {
	return &userRepository{store: store}
}

func userWhere(f user.Filter) where {
	var w where
	w.in("id", f.IDs)
	w.eq("email", f.Email)
	w.eq("role", f.Role)
	w.boolean("is_active", f.IsActive)
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		w.add("(LOWER(name) LIKE ? OR email LIKE ?)", pattern, pattern)
	}
	return w
}

func queryUsers(ctx context.Context, ext sqlx.ExtContext, f user.Filter) ([]user.User, error) {
	var rows []userRow
	if err := selectWhere(ctx, ext, &rows, usersTable, userWhere(f)); err != nil {
		return nil, err
	}
	return usersFromRows(rows), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, f user.Filter) ([]user.User, error) {
	return queryUsers(ctx, repo.store.db, f)
}

// emailTaken reports whether a user other than the excluded ones owns one of the emails.
func emailTaken(ctx context.Context, tx *sqlx.Tx, emails []string, excluded ...string) (bool, error) {
	var w where
	w.in("email", emails)
	if len(excluded) > 0 {
		w.add("id NOT IN (?)", excluded)
	}
	var rows []userRow
	if err := selectWhere(ctx, tx, &rows, usersTable, w); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (repo *userRepository) CreateUsers(ctx context.Context, users ...user.User) ([]user.User, error) {
	if len(users) == 0 {
		return []user.User{}, nil
	}

	rows := make([]userRow, 0, len(users))
	seen := make(map[string]bool, len(users))
	emails := make([]string, 0, len(users))
	for _, usr := range users {
		if seen[usr.Email] {
			return nil, user.EmailExistsError()
		}
		seen[usr.Email] = true
		emails = append(emails, usr.Email)

		row := userRow{
			ID:           newID(usr.ID),
			Seq:          repo.store.nextSeq(),
			Name:         usr.Name,
			Email:        usr.Email,
			Role:         usr.Role,
			IsActive:     usr.IsActive,
			PasswordHash: string(usr.PasswordHash),
			CreatedAt:    toMillis(usr.CreatedAt),
			UpdatedAt:    toMillis(usr.UpdatedAt),
		}
		if !usr.LastLogin.IsZero() {
			row.LastLogin = null.Int64From(toMillis(usr.LastLogin))
		}
		rows = append(rows, row)
	}

	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		taken, err := emailTaken(ctx, tx, emails)
		if err != nil {
			return err
		}
		if taken {
			return user.EmailExistsError()
		}
		for _, row := range rows {
			_, err := tx.NamedExecContext(ctx, `INSERT INTO users
				(id, seq, name, email, role, is_active, password_hash, created_at, updated_at, last_login)
				VALUES (:id, :seq, :name, :email, :role, :is_active, :password_hash, :created_at, :updated_at, :last_login)`, row)
			if err = mapErr(err, "inserting user", user.EmailExistsError); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return usersFromRows(rows), nil
}

func (repo *userRepository) UpdateUsers(ctx context.Context, patch user.Patch, f user.Filter) ([]user.User, error) {
	var updated []user.User
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		matches, err := queryUsers(ctx, tx, f)
		if err != nil || len(matches) == 0 {
			return err
		}
		ids := make([]string, 0, len(matches))
		for _, usr := range matches {
			ids = append(ids, usr.ID)
		}

		var s set
		if patch.Name != nil {
			s.add("name", *patch.Name)
		}
		if patch.Email != nil {
			if len(ids) > 1 {
				return user.EmailExistsError()
			}
			taken, err := emailTaken(ctx, tx, []string{*patch.Email}, ids...)
			if err != nil {
				return err
			}
			if taken {
				return user.EmailExistsError()
			}
			s.add("email", *patch.Email)
		}
		if patch.IsActive != nil {
			s.add("is_active", *patch.IsActive)
		}
		if patch.PasswordHash != nil {
			s.add("password_hash", string(patch.PasswordHash))
		}
		if patch.LastLogin != nil {
			s.add("last_login", null.Int64From(toMillis(*patch.LastLogin)))
		}
		if !patch.UpdatedAt.IsZero() {
			s.add("updated_at", toMillis(patch.UpdatedAt))
		}
		if err := mapErr(updateByIDs(ctx, tx, usersTable, s, ids), "updating users", user.EmailExistsError); err != nil {
			return err
		}
		updated, err = queryUsers(ctx, tx, user.Filter{IDs: ids})
		return err
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = []user.User{}
	}
	return updated, nil
}

// DeleteUsers removes the users with their enrollments, assignments, presences and grades.
func (repo *userRepository) DeleteUsers(ctx context.Context, f user.Filter) ([]user.User, error) {
	var deleted []user.User
	err := repo.store.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if deleted, err = queryUsers(ctx, tx, f); err != nil || len(deleted) == 0 {
			return err
		}
		ids := make([]string, 0, len(deleted))
		for _, usr := range deleted {
			ids = append(ids, usr.ID)
		}

		cascade := []struct{ table, col string }{
			{enrollmentsTable, "student_id"},
			{assignmentsTable, "teacher_id"},
			{presencesTable, "student_id"},
			{gradesTable, "student_id"},
			{usersTable, "id"},
		}
		for _, c := range cascade {
			if err := deleteWhere(ctx, tx, c.table, c.col, ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		deleted = []user.User{}
	}
	return deleted, nil
}
