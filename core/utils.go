package core

import (
	"math"
	"strings"
	"time"
)

// LessonDateLayout is the layout of lesson dates (calendar day, no time).
const LessonDateLayout = "2006-01-02"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Round2 rounds f to two decimal places.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Today returns t's calendar day formatted as a lesson date.
func Today(t time.Time) string {
	return t.Format(LessonDateLayout)
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// InStrings reports whether s is in list.
func InStrings(s string, list []string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
