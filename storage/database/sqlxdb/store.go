// Package sqlxdb implements the repositories on top of sqlx, for postgres and sqlite.
package sqlxdb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store shares a connection pool between the repositories.
type Store struct {
	db *sqlx.DB

	seqMu   sync.Mutex
	lastSeq int64
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sqlx.DB { return s.db }

// nextSeq returns an increasing number recording the insertion order.
func (s *Store) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := time.Now().UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

// inTx runs fn in a transaction, committed when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// isUniqueViolation reports whether err is a postgres or sqlite unique constraint failure.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// mapErr turns unique violations into conflict() and wraps the other errors with msg.
func mapErr(err error, msg string, conflict func() error) error {
	if err == nil {
		return nil
	}
	if conflict != nil && isUniqueViolation(err) {
		return conflict()
	}
	return errors.Wrap(err, msg)
}

// where accumulates ANDed conditions. Slice arguments are expanded by sqlx.In.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, args ...interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) eq(col string, v string) {
	if v != "" {
		w.add(col+" = ?", v)
	}
}

func (w *where) in(col string, vals []string) {
	if len(vals) > 0 {
		w.add(col+" IN (?)", vals)
	}
}

func (w *where) boolean(col string, v *bool) {
	if v != nil {
		w.add(col+" = ?", *v)
	}
}

func (w where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// set accumulates the assignments of an UPDATE.
type set struct {
	cols []string
	args []interface{}
}

func (s *set) add(col string, v interface{}) {
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, v)
}

func (s set) empty() bool { return len(s.cols) == 0 }

func (s set) String() string { return strings.Join(s.cols, ", ") }

// bind expands the slice arguments of query and rebinds it for the driver.
func bind(ext sqlx.ExtContext, query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, errors.Wrap(err, "expanding query")
	}
	return ext.Rebind(q), a, nil
}

// selectWhere loads the rows of table matching w, in insertion order.
func selectWhere(ctx context.Context, ext sqlx.ExtContext, dest interface{}, table string, w where) error {
	q, args, err := bind(ext, "SELECT * FROM "+table+w.String()+" ORDER BY seq", w.args...)
	if err != nil {
		return err
	}
	return errors.Wrapf(sqlx.SelectContext(ctx, ext, dest, q, args...), "selecting %s", table)
}

func updateByIDs(ctx context.Context, tx *sqlx.Tx, table string, s set, ids []string) error {
	if s.empty() || len(ids) == 0 {
		return nil
	}
	args := append(append([]interface{}{}, s.args...), ids)
	q, a, err := bind(tx, "UPDATE "+table+" SET "+s.String()+" WHERE id IN (?)", args...)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, q, a...)
	return err
}

func deleteWhere(ctx context.Context, tx *sqlx.Tx, table string, col string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q, a, err := bind(tx, "DELETE FROM "+table+" WHERE "+col+" IN (?)", ids)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, q, a...)
	return errors.Wrapf(err, "deleting from %s", table)
}
