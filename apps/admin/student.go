package main

import (
	"context"
	"fmt"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/student"
)

// addStudent updates or creates a student.Student mirrored from the school records.
func (cli *commandLine) addStudent(ctx context.Context, id, name, email, phone string) error {
	stu := student.Student{
		ID:    core.CleanString(id),
		Name:  core.CleanString(name),
		Email: core.CleanString(email, true /* lower */),
		Phone: core.CleanString(phone),
	}
	stu, err := cli.students.SaveStudent(ctx, stu)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "student %s saved\n", stu.ID)
	return nil
}
