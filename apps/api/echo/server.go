package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/report"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
		Registerer     prometheus.Registerer // nil: no request metrics

		UserSvc     *user.Service
		SchoolSvc   *school.Service
		TokenIssuer *attendance.Issuer
		Attendance  *attendance.Recorder
		Grades      *grade.Recorder
		Reports     *report.Service
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(opts *Options) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Conf, "Conf"),
		vala.IsNotNil(opts.Logger, "Logger"),
		vala.IsNotNil(opts.Validate, "Validate"),
		vala.IsNotNil(opts.Translator, "Translator"),
		vala.IsNotNil(opts.UserSvc, "UserSvc"),
		vala.IsNotNil(opts.SchoolSvc, "SchoolSvc"),
		vala.IsNotNil(opts.TokenIssuer, "TokenIssuer"),
		vala.IsNotNil(opts.Attendance, "Attendance"),
		vala.IsNotNil(opts.Grades, "Grades"),
		vala.IsNotNil(opts.Reports, "Reports"),
	).CheckAndPanic()

	s := &Server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.opts.Registerer != nil {
		s.app.Use(newMetrics(s.opts.Registerer, strings.ToLower(conf.AppName)).middleware())
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	registerUserAPI(v1, jwt, s.opts)
	registerSchoolAPI(v1, jwt, s.opts)
	registerAttendanceAPI(v1, jwt, s.opts)
	registerGradeAPI(v1, jwt, s.opts)
	registerReportAPI(v1, jwt, s.opts)
}

// Start listens on the configured address; a failure is sent to Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
