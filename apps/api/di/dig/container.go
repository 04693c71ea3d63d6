package dig_container

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/report"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	Validate    *validator.Validate
	Translator  ut.Translator
	UserSvc     *user.Service
	SchoolSvc   *school.Service
	TokenIssuer *attendance.Issuer
	Attendance  *attendance.Recorder
	Grades      *grade.Recorder
	Reports     *report.Service
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf).Enable(!conf.Debug)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf).Enable(!conf.Debug)
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) *database.Repositories {
	repos, err := database.Setup(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return repos
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := core.NewValidator(translator)
	user.RegisterValidators(validate, translator)
	return validate
}

func newUserService(repos *database.Repositories) *user.Service {
	return user.NewService(repos.Users)
}

func newSchoolService(repos *database.Repositories, usrSvc *user.Service) *school.Service {
	return school.NewService(repos.School, usrSvc)
}

func newAttendance(conf *core.Config, repos *database.Repositories, schoolSvc *school.Service) (*attendance.Recorder, *attendance.Issuer) {
	recorder := attendance.NewRecorder(repos.Attendance, schoolSvc)
	return recorder, attendance.NewIssuer(repos.Attendance, recorder, schoolSvc, conf.Attendance)
}

func newGradeRecorder(
	repos *database.Repositories,
	usrSvc *user.Service,
	schoolSvc *school.Service,
	mailer core.EmailService,
	logger core.Logger,
) *grade.Recorder {
	return grade.NewRecorder(repos.Grades).WithNotifications(usrSvc, schoolSvc, mailer, logger)
}

func newReportService(conf *core.Config, repos *database.Repositories) *report.Service {
	return report.NewService(repos.Users, repos.School, repos.Attendance, repos.Grades, conf.Report)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		Registerer:  prometheus.DefaultRegisterer,
		UserSvc:     p.UserSvc,
		SchoolSvc:   p.SchoolSvc,
		TokenIssuer: p.TokenIssuer,
		Attendance:  p.Attendance,
		Grades:      p.Grades,
		Reports:     p.Reports,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newUserService))
	must(c.Provide(newSchoolService))
	must(c.Provide(newAttendance))
	must(c.Provide(newGradeRecorder))
	must(c.Provide(newReportService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
