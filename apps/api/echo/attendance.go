package echoapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/user"
)

const qrCodeSize = 256

type attendanceApi struct {
	conf     *core.Config
	issuer   *attendance.Issuer
	recorder *attendance.Recorder
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := attendanceApi{
		conf:     opts.Conf,
		issuer:   opts.TokenIssuer,
		recorder: opts.Attendance,
		validate: opts.Validate,
	}

	ag := g.Group("/attendance", jwt)

	tg := ag.Group("/tokens")
	tg.POST("", api.issueToken, roleMiddleware(user.RoleTeacher))
	tg.GET("", api.queryTokens, staffMiddleware())
	tg.GET("/:code/qr.png", api.tokenQRCode, staffMiddleware())
	tg.POST("/:code/close", api.closeToken, staffMiddleware())

	ag.POST("/redeem", api.redeem, roleMiddleware(user.RoleStudent))
	ag.POST("/roll-call", api.rollCall, staffMiddleware())
	ag.GET("/presences", api.queryPresences)
}

func (api *attendanceApi) issueToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data attendance.NewToken
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewToken")
	}
	data.TeacherID = claims.Subject
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tok, err := api.issuer.IssueToken(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}
	return ctx.JSON(http.StatusCreated, TokenResponse{Token: tok, RedeemURL: api.redeemURL(tok.Code)})
}

// queryTokens only shows teachers the tokens they issued.
func (api *attendanceApi) queryTokens(ctx echo.Context) error {
	var filter attendance.TokenFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []attendance.Token{})
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.IsTeacher() {
		filter.TeacherID = claims.Subject
	}

	tokens, err := api.issuer.QueryTokens(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying tokens")
	}
	if tokens == nil {
		tokens = []attendance.Token{}
	}
	return ctx.JSON(http.StatusOK, tokens)
}

// tokenQRCode renders the redeem URL of the token as a PNG QR code.
func (api *attendanceApi) tokenQRCode(ctx echo.Context) error {
	tok, err := api.ownToken(ctx)
	if err != nil {
		return err
	}
	png, err := qrcode.Encode(api.redeemURL(tok.Code), qrcode.Medium, qrCodeSize)
	if err != nil {
		return errors.Wrap(err, "encoding QR code")
	}
	return ctx.Blob(http.StatusOK, "image/png", png)
}

func (api *attendanceApi) closeToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var teacherID string // admins close any token
	if claims.IsTeacher() {
		teacherID = claims.Subject
	}

	tok, err := api.issuer.CloseToken(ctx.Request().Context(), ctx.Param("code"), teacherID)
	if err != nil {
		return errors.Wrap(err, "closing token")
	}
	return ctx.JSON(http.StatusOK, tok)
}

func (api *attendanceApi) redeem(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data attendance.Redemption
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Redemption")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.issuer.RedeemToken(ctx.Request().Context(), data.Code, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "redeeming token")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// rollCall answers 207 when some of the entries could not be recorded.
func (api *attendanceApi) rollCall(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data attendance.RollCall
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RollCall")
	}
	if claims.IsTeacher() {
		data.TeacherID = claims.Subject
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	records, err := api.recorder.RecordRollCall(ctx.Request().Context(), data)
	resp := RollCallResponse{Recorded: records, Failed: []RollCallFailure{}}
	if resp.Recorded == nil {
		resp.Recorded = []attendance.Presence{}
	}
	if err != nil {
		var rcErr *attendance.RollCallError
		if !errors.As(err, &rcErr) {
			return errors.Wrap(err, "recording roll-call")
		}
		for _, f := range rcErr.Failures {
			resp.Failed = append(resp.Failed, RollCallFailure{StudentID: f.StudentID, Error: f.Err.Error()})
		}
		return ctx.JSON(http.StatusMultiStatus, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// queryPresences only shows students their own records.
func (api *attendanceApi) queryPresences(ctx echo.Context) error {
	var filter attendance.PresenceFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []attendance.Presence{})
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.IsStudent() {
		filter.StudentIDs = []string{claims.Subject}
	}

	records, err := api.recorder.QueryPresences(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying presences")
	}
	if records == nil {
		records = []attendance.Presence{}
	}
	return ctx.JSON(http.StatusOK, records)
}

// ownToken finds the token of the path, hiding the tokens of the other teachers.
func (api *attendanceApi) ownToken(ctx echo.Context) (attendance.Token, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return attendance.Token{}, errors.Wrap(err, "getting context claims")
	}
	tok, err := api.issuer.GetToken(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return attendance.Token{}, errors.Wrap(err, "finding token")
	}
	if claims.IsTeacher() && tok.TeacherID != claims.Subject {
		return attendance.Token{}, errHttpNotFound
	}
	return tok, nil
}

// redeemURL is the frontend page students land on when scanning the QR code.
func (api *attendanceApi) redeemURL(code string) string {
	return strings.TrimRight(api.conf.FrontendBaseURL, "/") + "/attendance/redeem?" + url.Values{"code": {code}}.Encode()
}

type (
	TokenResponse struct {
		attendance.Token
		RedeemURL string `json:"redeem_url"`
	}

	RollCallFailure struct {
		StudentID string `json:"student_id"`
		Error     string `json:"error"`
	}

	RollCallResponse struct {
		Recorded []attendance.Presence `json:"recorded"`
		Failed   []RollCallFailure     `json:"failed"`
	}
)
