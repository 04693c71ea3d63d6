package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/school"
)

type schoolApi struct {
	svc      *school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := schoolApi{
		svc:      opts.SchoolSvc,
		validate: opts.Validate,
	}

	sg := g.Group("/subjects", jwt)
	sg.GET("", api.querySubjects)
	sg.POST("", api.createSubject, adminMiddleware())
	sg.PUT("/:id", api.updateSubject, adminMiddleware())
	sg.DELETE("/:id", api.destroySubject, adminMiddleware())

	cg := g.Group("/classes", jwt)
	cg.GET("", api.queryClasses)
	cg.POST("", api.createClass, adminMiddleware())
	cg.PUT("/:id", api.updateClass, adminMiddleware())
	cg.DELETE("/:id", api.destroyClass, adminMiddleware())

	eg := g.Group("/enrollments", jwt)
	eg.GET("", api.queryEnrollments)
	eg.POST("", api.enroll, adminMiddleware())
	eg.DELETE("/:id", api.destroyEnrollment, adminMiddleware())

	ag := g.Group("/assignments", jwt)
	ag.GET("", api.queryAssignments, staffMiddleware())
	ag.POST("", api.assign, adminMiddleware())
	ag.DELETE("/:id", api.destroyAssignment, adminMiddleware())
}

// Subjects

func (api *schoolApi) querySubjects(ctx echo.Context) error {
	var filter school.SubjectFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Subject{})
	}
	subjects, err := api.svc.QuerySubjects(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []school.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *schoolApi) createSubject(ctx echo.Context) error {
	var data school.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sub, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *schoolApi) updateSubject(ctx echo.Context) error {
	var data school.UpdateSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sub, err := api.svc.UpdateSubject(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *schoolApi) destroySubject(ctx echo.Context) error {
	if err := api.svc.DeleteSubject(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Classes

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	var filter school.ClassFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Class{})
	}
	classes, err := api.svc.QueryClasses(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []school.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) createClass(ctx echo.Context) error {
	var data school.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cls, err := api.svc.CreateClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *schoolApi) updateClass(ctx echo.Context) error {
	var data school.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cls, err := api.svc.UpdateClass(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *schoolApi) destroyClass(ctx echo.Context) error {
	if err := api.svc.DeleteClass(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Enrollments

// queryEnrollments only shows students their own enrollments.
func (api *schoolApi) queryEnrollments(ctx echo.Context) error {
	var filter school.EnrollmentFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Enrollment{})
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.IsStudent() {
		filter.StudentIDs = []string{claims.Subject}
	}

	enrollments, err := api.svc.QueryEnrollments(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []school.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *schoolApi) enroll(ctx echo.Context) error {
	var data school.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	enr, err := api.svc.Enroll(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *schoolApi) destroyEnrollment(ctx echo.Context) error {
	if err := api.svc.DeleteEnrollment(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Assignments

// queryAssignments only shows teachers their own assignments.
func (api *schoolApi) queryAssignments(ctx echo.Context) error {
	var filter school.AssignmentFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Assignment{})
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.IsTeacher() {
		filter.TeacherIDs = []string{claims.Subject}
	}

	assignments, err := api.svc.QueryAssignments(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []school.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *schoolApi) assign(ctx echo.Context) error {
	var data school.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	asg, err := api.svc.Assign(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "assigning teacher")
	}
	return ctx.JSON(http.StatusCreated, asg)
}

func (api *schoolApi) destroyAssignment(ctx echo.Context) error {
	if err := api.svc.DeleteAssignment(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
