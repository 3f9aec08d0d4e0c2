package notification

import (
	"fmt"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/student"
)

func recipientName(stu student.Student) string {
	if stu.Name == "" {
		return "Student"
	}
	return stu.Name
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// renderReminder fills the title & message of an installment or fee reminder.
func renderReminder(n *Notification, stu student.Student, r Reminder) {
	name := recipientName(stu)
	switch n.Type {
	case TypeInstallmentDue:
		n.Title = "Installment due today"
		n.Message = fmt.Sprintf(
			"Dear %s, your fee installment of %d is due today (%s). Please pay it to avoid late fees.",
			name, r.AmountDue, r.DueDate.Format(core.DateLayout),
		)
	case TypeOverdueReminder:
		n.Title = "Installment overdue"
		n.Message = fmt.Sprintf(
			"Dear %s, your fee installment due on %s is %s overdue. A late fee of %d applies; the amount due is now %d.",
			name, r.DueDate.Format(core.DateLayout), pluralDays(r.DaysOverdue), r.LateFee, r.AmountDue,
		)
	default:
		n.Title = "Fee payment reminder"
		msg := fmt.Sprintf("Dear %s, you have an outstanding fee balance of %d", name, r.RemainingFees)
		if r.AcademicYear != "" {
			msg += " for the academic year " + r.AcademicYear
		}
		n.Message = msg + "."
	}
}

func renderPaymentConfirmation(n *Notification, stu student.Student, pc PaymentConfirmation) {
	n.Title = "Payment received"
	msg := fmt.Sprintf(
		"Dear %s, we received your payment of %d on %s",
		recipientName(stu), pc.Amount, pc.PaidDate.Format(core.DateLayout),
	)
	if pc.TransactionID != "" {
		msg += fmt.Sprintf(" (transaction %s)", pc.TransactionID)
	}
	n.Message = msg + fmt.Sprintf(". Your remaining balance is %d.", pc.RemainingFees)
}
