package echoapi

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/report"
)

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := reportApi{svc: opts.Reports}

	g.GET("/reports", api.query, jwt, staffMiddleware())
	g.GET("/reports.csv", api.export, jwt, staffMiddleware())
}

// generate restricts teachers to the lessons they teach.
func (api *reportApi) generate(ctx echo.Context) ([]report.Row, error) {
	var filter report.Filter
	if err := ctx.Bind(&filter); err != nil {
		return nil, errors.Wrap(err, "binding to report.Filter")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context claims")
	}
	if claims.IsTeacher() {
		filter.TeacherID = claims.Subject
	}

	rows, err := api.svc.Generate(ctx.Request().Context(), filter)
	return rows, errors.Wrap(err, "generating report")
}

func (api *reportApi) query(ctx echo.Context) error {
	rows, err := api.generate(ctx)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []report.Row{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *reportApi) export(ctx echo.Context) error {
	rows, err := api.generate(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rows); err != nil {
		return errors.Wrap(err, "writing csv")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="report.csv"`)
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
