// Package scheduler triggers the periodic due-date scan.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/duedate"
)

// DueDateScanner is the part of duedate.Scanner the scheduler needs.
type DueDateScanner interface {
	Run(ctx context.Context) (duedate.ScanResult, error)
}

type Scheduler struct {
	cron    *cron.Cron
	scanner DueDateScanner
	timeout time.Duration
	logger  core.Logger
}

// New registers the scan on conf.Scheduler.DueDateSpec (standard 5-field cron syntax, UTC).
// A run still going when the next one fires makes the latter a no-op.
func New(conf *core.Config, scanner DueDateScanner, std *log.Logger, logger core.Logger) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.PrintfLogger(std)), cron.SkipIfStillRunning(cron.PrintfLogger(std))),
	)
	s := &Scheduler{
		cron:    c,
		scanner: scanner,
		timeout: conf.Scheduler.LockTTL,
		logger:  logger,
	}
	if _, err := c.AddFunc(conf.Scheduler.DueDateSpec, s.runScan); err != nil {
		return nil, errors.Wrapf(err, "scheduling due-date scan %q", conf.Scheduler.DueDateSpec)
	}
	return s, nil
}

func (s *Scheduler) runScan() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.scanner.Run(ctx)
	switch {
	case errors.Is(err, duedate.ErrScanInProgress):
		s.logger.Info("due-date scan skipped: another scan is running")
	case err != nil:
		s.logger.Error("running due-date scan", err)
	default:
		s.logger.Info("due-date scan completed", map[string]interface{}{
			"ledgers":       res.Ledgers,
			"dueToday":      res.DueToday,
			"overdue":       res.Overdue,
			"sent":          res.RemindersSent,
			"failed":        res.RemindersFailed,
			"skipped":       res.DuplicatesSkipped,
			"lateFeeAmount": res.LateFeeAmount,
			"failures":      len(res.Failures),
		})
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs & waits for the running one, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for the running scan")
	}
}

// Next returns the time of the next scheduled scan (zero before Start).
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
