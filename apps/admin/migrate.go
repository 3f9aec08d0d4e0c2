package main

import (
	"errors"

	"github.com/trezcool/schoolfees/storage/database"
)

var (
	runMigrationsFunc = database.RunMigrations // mockable

	errNoSQLDatabase = errors.New("migrations need a SQL database engine")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLDatabase
	}
	return runMigrationsFunc(cli.db, args[0], args[1:]...)
}
