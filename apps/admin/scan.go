package main

import (
	"context"
)

func (cli *commandLine) scan(ctx context.Context) error {
	res, err := cli.scanner.Run(ctx)
	if err != nil {
		return err
	}
	return cli.print(res)
}

func (cli *commandLine) remindStudent(ctx context.Context, studentID string) error {
	n, err := cli.scanner.RemindStudent(ctx, studentID)
	if err != nil {
		return err
	}
	return cli.print(n)
}

func (cli *commandLine) remindAllPending(ctx context.Context) error {
	res, err := cli.scanner.RemindAllPending(ctx)
	if err != nil {
		return err
	}
	return cli.print(res)
}
