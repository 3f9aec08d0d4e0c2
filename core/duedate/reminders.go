package duedate

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/notification"
)

// RemindStudent sends a FEE_REMINDER about the student's outstanding balance.
func (s *Scanner) RemindStudent(ctx context.Context, studentID string) (notification.Notification, error) {
	ldg, err := s.ledgers.GetLedgerByStudent(ctx, core.CleanString(studentID))
	if err != nil {
		return notification.Notification{}, err
	}
	if ldg.IsFullyPaid() {
		return notification.Notification{}, core.NewInvalidStateError("student %s has no outstanding fees", ldg.StudentID)
	}
	return s.notifications.SendReminder(ctx, ldg.StudentID, notification.TypeFeeReminder, feeReminder(ldg))
}

// RemindAllPending sends a FEE_REMINDER to every student with an outstanding balance. A failed dispatch
// counts as a failure; the batch carries on.
func (s *Scanner) RemindAllPending(ctx context.Context) (notification.BulkResult, error) {
	ledgers, err := s.ledgers.QueryLedgers(ctx, &fee.QueryFilter{Balance: fee.BalancePending}, nil)
	if err != nil {
		return notification.BulkResult{}, errors.Wrap(err, "listing ledgers with a pending balance")
	}

	res := notification.BulkResult{Failures: []notification.BulkFailure{}}
	for _, ldg := range ledgers {
		n, err := s.notifications.SendReminder(ctx, ldg.StudentID, notification.TypeFeeReminder, feeReminder(ldg))
		switch {
		case err != nil:
			res.AddFailure(ldg.StudentID, err)
		case n.Status == notification.StatusFailed:
			res.AddFailure(ldg.StudentID, errors.New(n.ErrorMessage))
		default:
			res.SuccessCount++
		}
	}
	return res, nil
}

// feeReminder points the reminder at the earliest unsettled installment, if any.
func feeReminder(ldg fee.Ledger) notification.Reminder {
	r := notification.Reminder{
		LedgerID:      ldg.ID,
		AcademicYear:  ldg.AcademicYear,
		AmountDue:     ldg.RemainingFees,
		RemainingFees: ldg.RemainingFees,
	}
	today := core.Today()
	var next *fee.Installment
	for i := range ldg.Installments {
		inst := &ldg.Installments[i]
		if inst.Status.IsTerminal() {
			continue
		}
		if next == nil || inst.DueDate.Before(next.DueDate) {
			next = inst
		}
	}
	if next != nil {
		r.InstallmentID = next.ID
		r.DueDate = next.DueDate
		r.LateFee = next.AddonAmount
		r.DaysOverdue = next.DaysOverdue(today)
	}
	return r
}
