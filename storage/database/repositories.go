package database

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	"github.com/trezcool/shule/storage/database/sqlxdb"
)

// Repositories gathers the repositories of the configured engine.
// DB is nil for the memory engine.
type Repositories struct {
	DB         *sqlx.DB
	Users      user.Repository
	School     school.Repository
	Attendance attendance.Repository
	Grades     grade.Repository
}

// Close releases the SQL connections, if any.
func (r *Repositories) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// NewMemoryRepositories returns repositories sharing a fresh in-memory DB.
func NewMemoryRepositories() *Repositories {
	db := inmemdb.Open()
	return &Repositories{
		Users:      inmemdb.NewUserRepository(db),
		School:     inmemdb.NewSchoolRepository(db),
		Attendance: inmemdb.NewAttendanceRepository(db),
		Grades:     inmemdb.NewGradeRepository(db),
	}
}

// NewSQLRepositories returns repositories sharing db.
func NewSQLRepositories(db *sqlx.DB) *Repositories {
	store := sqlxdb.NewStore(db)
	return &Repositories{
		DB:         db,
		Users:      sqlxdb.NewUserRepository(store),
		School:     sqlxdb.NewSchoolRepository(store),
		Attendance: sqlxdb.NewAttendanceRepository(store),
		Grades:     sqlxdb.NewGradeRepository(store),
	}
}

// Setup prepares the configured engine: creates the postgres database when missing,
// connects and brings the schema up to date.
func Setup(conf *core.Config) (*Repositories, error) {
	if conf.Database.Engine == core.EngineMemory {
		return NewMemoryRepositories(), nil
	}

	if err := CreateIfNotExist(conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = Migrate(db.DB, conf.Database.Engine); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	return NewSQLRepositories(db), nil
}
