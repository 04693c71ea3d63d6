package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/school"
)

type gradeApi struct {
	recorder *grade.Recorder
	school   *school.Service
	validate *validator.Validate
}

func registerGradeAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := gradeApi{
		recorder: opts.Grades,
		school:   opts.SchoolSvc,
		validate: opts.Validate,
	}

	gg := g.Group("/grades", jwt)
	gg.POST("", api.create, staffMiddleware())
	gg.GET("", api.query)
	gg.GET("/summary", api.summary)
	gg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *gradeApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data grade.NewGrade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	data.RecordedBy = claims.Subject

	if claims.IsTeacher() {
		if err := api.checkTeaches(ctx, claims.Subject, data.StudentID, data.SubjectID); err != nil {
			return err
		}
	}

	g, err := api.recorder.RecordGrade(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording grade")
	}
	return ctx.JSON(http.StatusCreated, g)
}

// query only shows students their own grades.
func (api *gradeApi) query(ctx echo.Context) error {
	var filter grade.Filter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []grade.Grade{})
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.IsStudent() {
		filter.StudentIDs = []string{claims.Subject}
	}

	grades, err := api.recorder.QueryGrades(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	if grades == nil {
		grades = []grade.Grade{}
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradeApi) summary(ctx echo.Context) error {
	var query SummaryRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to SummaryRequest")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.IsStudent() {
		query.StudentID = claims.Subject
	}
	if err := api.validate.Struct(query); err != nil {
		return err
	}

	s, err := api.recorder.Summary(ctx.Request().Context(), query.StudentID, query.SubjectID)
	if err != nil {
		return errors.Wrap(err, "summarizing grades")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *gradeApi) destroy(ctx echo.Context) error {
	if _, err := api.recorder.DeleteGrades(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// checkTeaches makes sure the teacher teaches the subject in one of the student's classes.
func (api *gradeApi) checkTeaches(ctx echo.Context, teacherID, studentID, subjectID string) error {
	reqCtx := ctx.Request().Context()
	enrollments, err := api.school.QueryEnrollments(reqCtx, school.EnrollmentFilter{StudentIDs: []string{studentID}})
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	for _, enr := range enrollments {
		ok, err := api.school.IsAssigned(reqCtx, teacherID, subjectID, enr.ClassID)
		if err != nil {
			return errors.Wrap(err, "checking assignment")
		}
		if ok {
			return nil
		}
	}
	return core.NewFieldError("subject_id", "you do not teach this subject to this student")
}

type SummaryRequest struct {
	StudentID string `query:"student_id" json:"student_id" validate:"required"`
	SubjectID string `query:"subject_id" json:"subject_id" validate:"required"`
}
