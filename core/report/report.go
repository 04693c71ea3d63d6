// Package report aggregates attendance and grades per student, subject and class.
package report

import (
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

// Dataset is everything a report is computed from.
type Dataset struct {
	Students    []user.User
	Subjects    []school.Subject
	Classes     []school.Class
	Enrollments []school.Enrollment
	Assignments []school.Assignment
	Presences   []attendance.Presence
	Grades      []grade.Grade
}

// Criteria selects the rows of a report and sets the pass thresholds.
// Zero-valued ids select everything.
type Criteria struct {
	ClassID       string
	SubjectID     string
	TeacherID     string
	PassAverage   float64
	PassFrequency float64 // percent
}

// Row is the standing of a student in a subject taught in their class.
type Row struct {
	StudentID    string   `json:"student_id"`
	StudentName  string   `json:"student_name"`
	SubjectID    string   `json:"subject_id"`
	SubjectName  string   `json:"subject_name"`
	ClassID      string   `json:"class_id"`
	ClassName    string   `json:"class_name"`
	TotalLessons int      `json:"total_lessons"`
	Presences    int      `json:"presences"`
	Frequency    float64  `json:"frequency"` // percent
	Average      *float64 `json:"average"`   // nil: no grades
	TotalGrades  int      `json:"total_grades"`
	Passed       bool     `json:"passed"`
}

type lessonKey struct{ subjectID, classID string }

type studentKey struct{ studentID, subjectID, classID string }

type gradeKey struct{ studentID, subjectID string }

// Build computes one row per enrolled student and subject taught in the class.
// A lesson is a date with at least one presence record for the subject and class.
func Build(ds Dataset, c Criteria) []Row {
	names := make(map[string]string, len(ds.Students)+len(ds.Subjects)+len(ds.Classes))
	for _, s := range ds.Students {
		names[s.ID] = s.Name
	}
	for _, s := range ds.Subjects {
		names[s.ID] = s.Name
	}
	for _, cls := range ds.Classes {
		names[cls.ID] = cls.Name
	}

	// subjects taught per class, in assignment order
	classSubjects := make(map[string][]string)
	for _, asg := range ds.Assignments {
		if (c.TeacherID != "" && asg.TeacherID != c.TeacherID) || (c.SubjectID != "" && asg.SubjectID != c.SubjectID) {
			continue
		}
		subjects := classSubjects[asg.ClassID]
		if !contains(subjects, asg.SubjectID) {
			classSubjects[asg.ClassID] = append(subjects, asg.SubjectID)
		}
	}

	lessons := make(map[lessonKey]map[string]struct{})
	presences := make(map[studentKey]int)
	for _, p := range ds.Presences {
		lk := lessonKey{p.SubjectID, p.ClassID}
		dates, ok := lessons[lk]
		if !ok {
			dates = make(map[string]struct{})
			lessons[lk] = dates
		}
		dates[p.LessonDate] = struct{}{}
		if p.Present {
			presences[studentKey{p.StudentID, p.SubjectID, p.ClassID}]++
		}
	}

	grades := make(map[gradeKey][]grade.Grade)
	for _, g := range ds.Grades {
		gk := gradeKey{g.StudentID, g.SubjectID}
		grades[gk] = append(grades[gk], g)
	}

	var rows []Row
	for _, enr := range ds.Enrollments {
		if c.ClassID != "" && enr.ClassID != c.ClassID {
			continue
		}
		for _, subjectID := range classSubjects[enr.ClassID] {
			row := Row{
				StudentID:    enr.StudentID,
				StudentName:  names[enr.StudentID],
				SubjectID:    subjectID,
				SubjectName:  names[subjectID],
				ClassID:      enr.ClassID,
				ClassName:    names[enr.ClassID],
				TotalLessons: len(lessons[lessonKey{subjectID, enr.ClassID}]),
				Presences:    presences[studentKey{enr.StudentID, subjectID, enr.ClassID}],
			}
			if row.TotalLessons > 0 {
				row.Frequency = float64(row.Presences) / float64(row.TotalLessons) * 100
			}
			summary := grade.Summarize(grades[gradeKey{enr.StudentID, subjectID}])
			row.Average = summary.Average
			row.TotalGrades = summary.Count
			row.Passed = row.Average != nil && *row.Average >= c.PassAverage && row.Frequency >= c.PassFrequency
			rows = append(rows, row)
		}
	}
	return rows
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
