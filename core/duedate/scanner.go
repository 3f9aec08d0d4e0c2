// Package duedate watches installments: it flags overdue ones, accrues late fees and sends reminders.
package duedate

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/notification"
)

const scanLockKey = "schoolfees:duedate-scan"

var (
	ErrScanInProgress = errors.New("a due-date scan is already running")

	errUnchanged = errors.New("ledger unchanged")
)

type (
	// ScanResult summarizes one scan. Failures are per ledger or installment; the scan itself went on.
	ScanResult struct {
		StartedAt         time.Time     `json:"started_at"`
		FinishedAt        time.Time     `json:"finished_at"`
		Ledgers           int           `json:"ledgers"`
		Installments      int           `json:"installments"`
		DueToday          int           `json:"due_today"`
		Overdue           int           `json:"overdue"`
		MarkedOverdue     int           `json:"marked_overdue"`
		LateFeesApplied   int           `json:"late_fees_applied"`
		LateFeeAmount     int64         `json:"late_fee_amount"`
		RemindersSent     int           `json:"reminders_sent"`
		RemindersFailed   int           `json:"reminders_failed"`
		DuplicatesSkipped int           `json:"duplicates_skipped"`
		Failures          []ScanFailure `json:"failures"`
	}

	ScanFailure struct {
		LedgerID      string `json:"ledger_id"`
		StudentID     string `json:"student_id"`
		InstallmentID string `json:"installment_id,omitempty"`
		Error         string `json:"error"`
	}

	// ledgerScan is what scanning one ledger produced, merged into the ScanResult once committed.
	ledgerScan struct {
		installments    int
		dueToday        int
		overdue         int
		markedOverdue   int
		lateFeesApplied int
		lateFeeAmount   int64
		reminders       []reminderRequest
	}

	reminderRequest struct {
		typ      notification.Type
		reminder notification.Reminder
	}

	Scanner struct {
		ledgers       fee.Repository
		notifications notification.Service
		policy        LateFeePolicy
		lock          core.Locker
		lockTTL       time.Duration
		metrics       *Metrics
		logger        core.Logger
	}
)

func (res *ScanResult) addFailure(ldg fee.Ledger, installmentID string, err error) {
	res.Failures = append(res.Failures, ScanFailure{
		LedgerID:      ldg.ID,
		StudentID:     ldg.StudentID,
		InstallmentID: installmentID,
		Error:         err.Error(),
	})
}

func NewScanner(
	conf *core.Config,
	ledgers fee.Repository,
	notifications notification.Service,
	policy LateFeePolicy,
	lock core.Locker,
	metrics *Metrics,
	logger core.Logger,
) *Scanner {
	ttl := conf.Scheduler.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Scanner{
		ledgers:       ledgers,
		notifications: notifications,
		policy:        policy,
		lock:          lock,
		lockTTL:       ttl,
		metrics:       metrics,
		logger:        logger,
	}
}

// Run scans every ledger with an outstanding balance. It returns ErrScanInProgress when another scan holds the
// run-lock. A failing ledger or reminder is recorded in the result and does not stop the scan.
// Once the lock is held the scan ignores ctx cancellation; it is bounded by the lock TTL instead.
func (s *Scanner) Run(ctx context.Context) (ScanResult, error) {
	started := time.Now()
	unlock, err := s.lock.Lock(ctx, scanLockKey, s.lockTTL)
	if err != nil {
		if core.IsLocked(err) {
			s.metrics.observeRun("skipped", started)
			return ScanResult{}, ErrScanInProgress
		}
		s.metrics.observeRun("failed", started)
		return ScanResult{}, errors.Wrap(err, "acquiring scan lock")
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			s.logger.Warn("releasing scan lock", err)
		}
	}()

	ctx, cancel := context.WithTimeout(core.WithoutCancel(ctx), s.lockTTL)
	defer cancel()

	res := ScanResult{StartedAt: core.NowFunc().UTC(), Failures: []ScanFailure{}}
	today := core.Today()

	ledgers, err := s.ledgers.QueryLedgers(
		ctx,
		&fee.QueryFilter{Balance: fee.BalancePending},
		[]core.DBOrdering{{Field: "created_at", Ascending: true}},
	)
	if err != nil {
		s.metrics.observeRun("failed", started)
		return ScanResult{}, errors.Wrap(err, "listing ledgers with a pending balance")
	}

	for _, ldg := range ledgers {
		res.Ledgers++
		s.scanLedger(ctx, ldg, today, &res)
	}

	res.FinishedAt = core.NowFunc().UTC()
	s.metrics.observeRun("completed", started)
	if len(res.Failures) > 0 {
		s.logger.Warn("due-date scan completed with failures", map[string]interface{}{
			"ledgers":  res.Ledgers,
			"failures": len(res.Failures),
		})
	}
	return res, nil
}

// scanLedger flags & charges the ledger's installments in one atomic update, then sends the reminders.
func (s *Scanner) scanLedger(ctx context.Context, ldg fee.Ledger, today time.Time, res *ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("panic while scanning ledger: %v", r)
			res.addFailure(ldg, "", err)
			s.logger.Error("scanning ledger", err, map[string]interface{}{"ledger": ldg.ID})
		}
	}()

	var scan ledgerScan
	_, err := s.ledgers.UpdateLedger(ctx, ldg.ID, func(l *fee.Ledger) error {
		scan = ledgerScan{}
		changed, err := s.classify(l, today, &scan)
		if err != nil {
			return err
		}
		if !changed {
			return errUnchanged
		}
		l.Recompute()
		l.UpdatedAt = core.NowFunc().UTC()
		return nil
	})
	if err != nil && err != errUnchanged {
		res.addFailure(ldg, "", err)
		s.logger.Error("scanning ledger", err, map[string]interface{}{"ledger": ldg.ID})
		return
	}

	res.Installments += scan.installments
	res.DueToday += scan.dueToday
	res.Overdue += scan.overdue
	res.MarkedOverdue += scan.markedOverdue
	res.LateFeesApplied += scan.lateFeesApplied
	res.LateFeeAmount += scan.lateFeeAmount
	s.metrics.observeLateFee(scan.lateFeeAmount)

	for _, req := range scan.reminders {
		_, outcome, err := s.notifications.SendInstallmentReminder(ctx, ldg.StudentID, req.typ, req.reminder)
		s.metrics.observeReminder(string(req.typ), string(outcome))
		switch {
		case err != nil:
			res.RemindersFailed++
			res.addFailure(ldg, req.reminder.InstallmentID, err)
		case outcome == notification.OutcomeSkipped:
			res.DuplicatesSkipped++
		case outcome == notification.OutcomeFailed:
			res.RemindersFailed++
		default:
			res.RemindersSent++
		}
	}
}

// classify runs on the locked ledger, so installment statuses are those at the time of the mutation:
// one paid since the enumeration is terminal here and left untouched.
func (s *Scanner) classify(l *fee.Ledger, today time.Time, scan *ledgerScan) (changed bool, err error) {
	for i := range l.Installments {
		inst := &l.Installments[i]
		// nothing is owed on an installment discounted down to zero
		if inst.Status.IsTerminal() || inst.DueAmount == 0 {
			continue
		}
		scan.installments++

		switch {
		case inst.IsDueToday(today):
			scan.dueToday++
			scan.reminders = append(scan.reminders, reminderRequest{
				typ:      notification.TypeInstallmentDue,
				reminder: newReminder(l, inst, today),
			})

		case inst.IsOverdue(today):
			scan.overdue++
			if inst.MarkAsOverdue(today) {
				scan.markedOverdue++
				changed = true
			}
			target, err := s.policy.LateFee(inst.DaysOverdue(today), inst.Amount)
			if err != nil {
				return false, errors.Wrapf(err, "computing late fee of installment %s", inst.ID)
			}
			// the policy yields the cumulative fee, so re-scanning the same day adds nothing
			if delta := target - inst.AddonAmount; delta > 0 && inst.AddLateFee(delta) {
				scan.lateFeesApplied++
				scan.lateFeeAmount += delta
				changed = true
			}
			scan.reminders = append(scan.reminders, reminderRequest{
				typ:      notification.TypeOverdueReminder,
				reminder: newReminder(l, inst, today),
			})
		}
	}
	return changed, nil
}

func newReminder(l *fee.Ledger, inst *fee.Installment, today time.Time) notification.Reminder {
	return notification.Reminder{
		LedgerID:      l.ID,
		InstallmentID: inst.ID,
		AcademicYear:  l.AcademicYear,
		DueDate:       inst.DueDate,
		AmountDue:     inst.DueAmount,
		LateFee:       inst.AddonAmount,
		DaysOverdue:   inst.DaysOverdue(today),
		RemainingFees: l.RemainingFees,
	}
}
