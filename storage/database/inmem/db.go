// Package inmemdb is a volatile implementation of the repositories, used by tests and the memory engine.
package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

// DB holds every collection behind a single lock, so a call that spans several
// collections (a cascading delete) is atomic.
type DB struct {
	mu sync.RWMutex

	users       []user.User
	subjects    []school.Subject
	classes     []school.Class
	enrollments []school.Enrollment
	assignments []school.Assignment
	tokens      []attendance.Token
	presences   []attendance.Presence
	grades      []grade.Grade
}

func Open() *DB {
	return new(DB)
}

// Reset empties every collection.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = nil
	db.subjects = nil
	db.classes = nil
	db.enrollments = nil
	db.assignments = nil
	db.tokens = nil
	db.presences = nil
	db.grades = nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

// filter returns the rows matching, in insertion order.
func filter[T any](rows []T, match func(T) bool) []T {
	res := make([]T, 0)
	for _, row := range rows {
		if match(row) {
			res = append(res, row)
		}
	}
	return res
}

// update applies fn to the rows matching and returns their new values.
func update[T any](rows []T, match func(T) bool, fn func(*T)) []T {
	res := make([]T, 0)
	for i := range rows {
		if match(rows[i]) {
			fn(&rows[i])
			res = append(res, rows[i])
		}
	}
	return res
}

// remove splits rows into the kept and the removed ones.
func remove[T any](rows []T, match func(T) bool) (kept, removed []T) {
	kept = rows[:0:0]
	removed = make([]T, 0)
	for _, row := range rows {
		if match(row) {
			removed = append(removed, row)
		} else {
			kept = append(kept, row)
		}
	}
	return kept, removed
}
