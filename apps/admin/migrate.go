package main

import (
	"errors"

	"github.com/trezcool/shule/storage/database"
)

var (
	runMigrationsFunc = database.RunMigrations // mockable

	errNoSQLDatabase = errors.New("migrations need a SQL database engine (postgres or sqlite)")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.repos.DB == nil {
		return errNoSQLDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return runMigrationsFunc(cli.repos.DB.DB, cli.conf.Database.Engine, args[0], arguments...)
}
