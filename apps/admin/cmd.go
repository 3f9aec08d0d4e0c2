package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/schoolfees/core/duedate"
	"github.com/trezcool/schoolfees/core/notification"
	"github.com/trezcool/schoolfees/core/student"
)

var errHelp = errors.New("help provided")

// dueDateScanner is the part of duedate.Scanner the CLI drives.
type dueDateScanner interface {
	Run(ctx context.Context) (duedate.ScanResult, error)
	RemindStudent(ctx context.Context, studentID string) (notification.Notification, error)
	RemindAllPending(ctx context.Context) (notification.BulkResult, error)
}

type commandLine struct {
	db       *sqlx.DB
	students student.Repository
	scanner  dueDateScanner
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)")
	fmt.Println("  addstudent -id ID -name NAME [-email EMAIL] [-phone PHONE] - add or update a student")
	fmt.Println("  scan - run the due-date scan now")
	fmt.Println("  remind -student ID | -all - send fee reminders")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addStudentCmd := flag.NewFlagSet("addstudent", flag.ContinueOnError)
	addStudentID := addStudentCmd.String("id", "", "The student's ID in the school records.")
	addStudentName := addStudentCmd.String("name", "", "The student's full name.")
	addStudentEmail := addStudentCmd.String("email", "", "Where EMAIL notifications are sent.")
	addStudentPhone := addStudentCmd.String("phone", "", "Where SMS notifications are sent.")

	remindCmd := flag.NewFlagSet("remind", flag.ContinueOnError)
	remindStudent := remindCmd.String("student", "", "Remind this student only.")
	remindAll := remindCmd.Bool("all", false, "Remind every student with a pending balance.")

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addstudent":
		if err := addStudentCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addStudentID == "" || *addStudentName == "" {
			addStudentCmd.Usage()
			return errHelp
		}
		return cli.addStudent(ctx, *addStudentID, *addStudentName, *addStudentEmail, *addStudentPhone)
	case "scan":
		return cli.scan(ctx)
	case "remind":
		if err := remindCmd.Parse(args[2:]); err != nil {
			return err
		}
		switch {
		case *remindStudent != "" && !*remindAll:
			return cli.remindStudent(ctx, *remindStudent)
		case *remindAll && *remindStudent == "":
			return cli.remindAllPending(ctx)
		default:
			remindCmd.Usage()
			return errHelp
		}
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) print(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
