// Package testutil holds the fixtures shared by the tests of the other packages.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

// Validator returns a validator with every custom tag of the app registered.
func Validator() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.RegisterValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, role, pwd string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	users, err := repo.CreateUsers(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return users[0]
}

func CreateSubject(t *testing.T, repo school.Repository, name, code string) school.Subject {
	t.Helper()
	subjects, err := repo.CreateSubjects(context.Background(), school.Subject{
		Name:      name,
		Code:      school.NormalizeCode(code),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return subjects[0]
}

func CreateClass(t *testing.T, repo school.Repository, name, gradeLevel string) school.Class {
	t.Helper()
	classes, err := repo.CreateClasses(context.Background(), school.Class{
		Name:       name,
		GradeLevel: gradeLevel,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return classes[0]
}

func Enroll(t *testing.T, repo school.Repository, studentID, classID string) school.Enrollment {
	t.Helper()
	enrollments, err := repo.CreateEnrollments(context.Background(), school.Enrollment{
		StudentID: studentID,
		ClassID:   classID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return enrollments[0]
}

func Assign(t *testing.T, repo school.Repository, teacherID, subjectID, classID string) school.Assignment {
	t.Helper()
	assignments, err := repo.CreateAssignments(context.Background(), school.Assignment{
		TeacherID: teacherID,
		SubjectID: subjectID,
		ClassID:   classID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	return assignments[0]
}
