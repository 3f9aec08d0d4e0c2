package fee

import (
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/schoolfees/core"
)

type InstallmentStatus string

const (
	StatusPending   InstallmentStatus = "PENDING"
	StatusPaid      InstallmentStatus = "PAID"
	StatusOverdue   InstallmentStatus = "OVERDUE"
	StatusCancelled InstallmentStatus = "CANCELLED"
)

// installmentTransitions lists the statuses each status may move to. PAID & CANCELLED are terminal.
var installmentTransitions = map[InstallmentStatus][]InstallmentStatus{
	StatusPending:   {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue:   {StatusPaid, StatusCancelled},
	StatusPaid:      nil,
	StatusCancelled: nil,
}

func (s InstallmentStatus) IsValid() bool {
	_, ok := installmentTransitions[s]
	return ok
}

func (s InstallmentStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

func (s InstallmentStatus) CanTransitionTo(to InstallmentStatus) bool {
	for _, st := range installmentTransitions[s] {
		if st == to {
			return true
		}
	}
	return false
}

// Installment is one scheduled partial payment of a Ledger.
type Installment struct {
	ID                   string            `json:"installment_id"`
	Amount               int64             `json:"amount"`
	AddonAmount          int64             `json:"addon_amount"` // accumulated late fee
	DueAmount            int64             `json:"due_amount"`
	DueDate              time.Time         `json:"due_date"`
	PaidDate             *time.Time        `json:"paid_date"`
	Status               InstallmentStatus `json:"status"`
	PaymentMode          string            `json:"payment_mode"`
	TransactionReference string            `json:"transaction_reference"`
	Remarks              string            `json:"remarks"`
}

func NewInstallment(amount int64, dueDate time.Time, remarks string) Installment {
	return Installment{
		ID:        uuid.New().String(),
		Amount:    amount,
		DueAmount: amount,
		DueDate:   core.DateOf(dueDate),
		Status:    StatusPending,
		Remarks:   remarks,
	}
}

// TotalAmount is the principal plus any late fee.
func (inst *Installment) TotalAmount() int64 {
	return inst.Amount + inst.AddonAmount
}

// MarkAsPaid settles the installment. Calling it on an already paid installment changes nothing.
func (inst *Installment) MarkAsPaid(on time.Time, paymentMode, reference string) error {
	if inst.Status == StatusPaid {
		return nil
	}
	if !inst.Status.CanTransitionTo(StatusPaid) {
		return core.NewInvalidStateError("installment %s is %s and cannot be paid", inst.ID, inst.Status)
	}
	paidOn := core.DateOf(on)
	inst.Status = StatusPaid
	inst.PaidDate = &paidOn
	inst.DueAmount = 0
	if paymentMode != "" {
		inst.PaymentMode = paymentMode
	}
	if reference != "" {
		inst.TransactionReference = reference
	}
	return nil
}

// MarkAsOverdue flags a pending installment whose due date has passed. It reports whether the status changed.
func (inst *Installment) MarkAsOverdue(today time.Time) bool {
	if inst.Status != StatusPending || !inst.DueDate.Before(core.DateOf(today)) {
		return false
	}
	inst.Status = StatusOverdue
	return true
}

// AddLateFee adds amount to both the addon and the due amount of a non-terminal installment.
func (inst *Installment) AddLateFee(amount int64) bool {
	if amount <= 0 || inst.Status.IsTerminal() {
		return false
	}
	inst.AddonAmount += amount
	inst.DueAmount += amount
	return true
}

// ApplyDiscount lowers the due amount, never below zero.
func (inst *Installment) ApplyDiscount(amount int64) bool {
	if amount <= 0 || inst.Status.IsTerminal() {
		return false
	}
	inst.DueAmount -= amount
	if inst.DueAmount < 0 {
		inst.DueAmount = 0
	}
	return true
}

// Cancel writes the installment off. Cancelling twice is a no-op; a paid installment cannot be cancelled.
func (inst *Installment) Cancel(remarks string) error {
	if inst.Status == StatusCancelled {
		return nil
	}
	if !inst.Status.CanTransitionTo(StatusCancelled) {
		return core.NewInvalidStateError("installment %s is %s and cannot be cancelled", inst.ID, inst.Status)
	}
	inst.Status = StatusCancelled
	inst.DueAmount = 0
	if remarks != "" {
		inst.Remarks = remarks
	}
	return nil
}

func (inst *Installment) IsOverdue(today time.Time) bool {
	return !inst.Status.IsTerminal() && inst.DueDate.Before(core.DateOf(today))
}

func (inst *Installment) IsDueToday(today time.Time) bool {
	return !inst.Status.IsTerminal() && inst.DueDate.Equal(core.DateOf(today))
}

// RemainingDays is the number of days left until the due date; negative once overdue.
func (inst *Installment) RemainingDays(today time.Time) int {
	return core.DaysBetween(today, inst.DueDate)
}

func (inst *Installment) DaysOverdue(today time.Time) int {
	if !inst.IsOverdue(today) {
		return 0
	}
	return -inst.RemainingDays(today)
}
