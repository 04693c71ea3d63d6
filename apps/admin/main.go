package main

import (
	"log"
	"os"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/report"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
)

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf).Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(err.Error(), err)
	}
	var repos *database.Repositories
	if conf.Database.Engine == core.EngineMemory {
		repos = database.NewMemoryRepositories()
	} else {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal(err.Error(), err)
		}
		if err = database.Ping(db); err != nil {
			logger.Fatal(err.Error(), err)
		}
		repos = database.NewSQLRepositories(db)
	}
	defer func() { _ = repos.Close() }()

	// start CLI
	cli := newCommandLine(conf, repos)
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("error: "+err.Error(), err)
		}
		os.Exit(1)
	}
}

func newCommandLine(conf *core.Config, repos *database.Repositories) *commandLine {
	usrSvc := user.NewService(repos.Users)
	schoolSvc := school.NewService(repos.School, usrSvc)
	recorder := attendance.NewRecorder(repos.Attendance, schoolSvc)

	return &commandLine{
		conf:    conf,
		repos:   repos,
		usrSvc:  usrSvc,
		issuer:  attendance.NewIssuer(repos.Attendance, recorder, schoolSvc, conf.Attendance),
		reports: report.NewService(repos.Users, repos.School, repos.Attendance, repos.Grades, conf.Report),
		out:     os.Stdout,
	}
}
