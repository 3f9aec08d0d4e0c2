package fee

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core"
)

type ComponentKind string

const (
	ComponentAdmission ComponentKind = "ADMISSION"
	ComponentUniform   ComponentKind = "UNIFORM"
	ComponentBook      ComponentKind = "BOOK"
	ComponentTuition   ComponentKind = "TUITION"
)

type PaymentStatus string

const (
	PaymentStatusFullyPaid     PaymentStatus = "FULLY_PAID"
	PaymentStatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentStatusPending       PaymentStatus = "PENDING"
)

var (
	errNegativeAmount    = errors.New("amount cannot be negative")
	errUnknownComponent  = errors.New("unknown fee component")
	errInitialExceeds    = errors.New("initial amount cannot exceed the total fees")
	errDuplicateInstallm = errors.New("an installment with this ID already exists")
)

type AdditionalFee struct {
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	Category    string `json:"category"`
	IsMandatory bool   `json:"is_mandatory"`
	Description string `json:"description"`
}

// Ledger tracks one student's fee balance. TotalFees & RemainingFees are derived; every mutator
// recomputes them before returning.
type Ledger struct {
	ID             string          `json:"id"`
	StudentID      string          `json:"student_id"`
	AcademicYear   string          `json:"academic_year"`
	AdmissionFees  int64           `json:"admission_fees"`
	UniformFees    int64           `json:"uniform_fees"`
	BookFees       int64           `json:"book_fees"`
	TuitionFees    int64           `json:"tuition_fees"`
	AdditionalFees []AdditionalFee `json:"additional_fees"`
	TotalFees      int64           `json:"total_fees"`
	InitialAmount  int64           `json:"initial_amount"`
	RemainingFees  int64           `json:"remaining_fees"`
	Installments   []Installment   `json:"installments"`
	PaymentMode    string          `json:"payment_mode"`
	CashierName    string          `json:"cashier_name"`
	TransactionID  string          `json:"transaction_id"`
	CreatedAt      time.Time       `json:"created_at"` // UTC
	UpdatedAt      time.Time       `json:"updated_at"` // UTC
}

func amountError(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

func (l *Ledger) SetComponent(kind ComponentKind, amount int64) error {
	if amount < 0 {
		return amountError(string(kind), errNegativeAmount)
	}
	switch kind {
	case ComponentAdmission:
		l.AdmissionFees = amount
	case ComponentUniform:
		l.UniformFees = amount
	case ComponentBook:
		l.BookFees = amount
	case ComponentTuition:
		l.TuitionFees = amount
	default:
		return amountError(string(kind), errUnknownComponent)
	}
	l.Recompute()
	return nil
}

func (l *Ledger) AddAdditionalFee(f AdditionalFee) error {
	if f.Amount < 0 {
		return amountError("amount", errNegativeAmount)
	}
	l.AdditionalFees = append(l.AdditionalFees, f)
	l.Recompute()
	return nil
}

// ReplaceAdditionalFees swaps the whole additional fee list.
func (l *Ledger) ReplaceAdditionalFees(fees []AdditionalFee) error {
	for _, f := range fees {
		if f.Amount < 0 {
			return amountError("additional_fees", errNegativeAmount)
		}
	}
	l.AdditionalFees = append([]AdditionalFee(nil), fees...)
	l.Recompute()
	return nil
}

func (l *Ledger) SetInitialAmount(amount int64) error {
	if amount < 0 {
		return amountError("initial_amount", errNegativeAmount)
	}
	l.InitialAmount = amount
	l.Recompute()
	return nil
}

// AddInstallment appends to the payment schedule; installments are not new charges so TotalFees is unchanged.
func (l *Ledger) AddInstallment(inst Installment) error {
	if inst.Amount < 0 {
		return amountError("amount", errNegativeAmount)
	}
	if _, ok := l.Installment(inst.ID); ok {
		return amountError("installment_id", errDuplicateInstallm)
	}
	if inst.Status == "" {
		inst.Status = StatusPending
	}
	l.Installments = append(l.Installments, inst)
	l.Recompute()
	return nil
}

// Installment returns a pointer into the ledger's schedule so callers can mutate it in place.
func (l *Ledger) Installment(id string) (*Installment, bool) {
	for i := range l.Installments {
		if l.Installments[i].ID == id {
			return &l.Installments[i], true
		}
	}
	return nil, false
}

// Recompute derives TotalFees & RemainingFees from the current state.
func (l *Ledger) Recompute() {
	total := l.AdmissionFees + l.UniformFees + l.BookFees + l.TuitionFees
	for _, f := range l.AdditionalFees {
		total += f.Amount
	}
	l.TotalFees = total

	remaining := total - l.InitialAmount - l.PaidInstallmentsTotal()
	if remaining < 0 {
		remaining = 0
	}
	l.RemainingFees = remaining
}

func (l *Ledger) PaidInstallmentsTotal() int64 {
	var paid int64
	for i := range l.Installments {
		if l.Installments[i].Status == StatusPaid {
			paid += l.Installments[i].TotalAmount()
		}
	}
	return paid
}

// CheckInitialAmount enforces initialAmount <= totalFees.
func (l *Ledger) CheckInitialAmount() error {
	if l.InitialAmount > l.TotalFees {
		return amountError("initial_amount", errInitialExceeds)
	}
	return nil
}

func (l *Ledger) IsFullyPaid() bool {
	return l.RemainingFees == 0
}

func (l *Ledger) PaymentStatus() PaymentStatus {
	switch {
	case l.IsFullyPaid():
		return PaymentStatusFullyPaid
	case l.InitialAmount > 0:
		return PaymentStatusPartiallyPaid
	default:
		return PaymentStatusPending
	}
}

// Clone returns a deep copy of the ledger.
func (l Ledger) Clone() Ledger {
	c := l
	c.AdditionalFees = append([]AdditionalFee(nil), l.AdditionalFees...)
	c.Installments = make([]Installment, len(l.Installments))
	for i, inst := range l.Installments {
		if inst.PaidDate != nil {
			pd := *inst.PaidDate
			inst.PaidDate = &pd
		}
		c.Installments[i] = inst
	}
	return c
}
