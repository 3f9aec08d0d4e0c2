package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/trezcool/schoolfees/apps/api/di/dig"
	"github.com/trezcool/schoolfees/core/duedate"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	c := dig_container.New()
	err := c.Invoke(func(storage dig_container.StorageParam, scanner *duedate.Scanner) {
		if storage.DB != nil {
			defer storage.DB.Close()
		}
		db, _ := storage.DB.(*sqlx.DB) // nil with the in-memory engine

		// start CLI
		cli := commandLine{
			db:       db,
			students: storage.Students,
			scanner:  scanner,
			out:      os.Stdout,
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				logger.Printf("\nerror: %s\n", err)
			}
			os.Exit(1)
		}
	})
	errAndDie(err)
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
