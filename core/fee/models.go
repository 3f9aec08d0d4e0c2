package fee

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolfees/core"
)

// Payment modes
const (
	PaymentModeCash         = "CASH"
	PaymentModeCard         = "CARD"
	PaymentModeCheque       = "CHEQUE"
	PaymentModeBankTransfer = "BANK_TRANSFER"
	PaymentModeUPI          = "UPI"
	PaymentModeOnline       = "ONLINE"
)

var PaymentModes = []string{
	PaymentModeCash, PaymentModeCard, PaymentModeCheque, PaymentModeBankTransfer, PaymentModeUPI, PaymentModeOnline,
}

// LedgerView is the API representation of a Ledger.
type LedgerView struct {
	Ledger
	PaymentStatus PaymentStatus `json:"payment_status"`
}

func (l Ledger) View() LedgerView {
	if l.AdditionalFees == nil {
		l.AdditionalFees = []AdditionalFee{}
	}
	if l.Installments == nil {
		l.Installments = []Installment{}
	}
	return LedgerView{Ledger: l, PaymentStatus: l.PaymentStatus()}
}

type NewAdditionalFee struct {
	Name        string `json:"name" validate:"required,notblank"`
	Amount      int64  `json:"amount" validate:"gte=0"`
	Category    string `json:"category"`
	IsMandatory bool   `json:"is_mandatory"`
	Description string `json:"description"`
}

func (naf *NewAdditionalFee) clean() {
	naf.Name = core.CleanString(naf.Name)
	naf.Category = core.CleanString(naf.Category)
	naf.Description = core.CleanString(naf.Description)
}

func (naf *NewAdditionalFee) Validate(validate *validator.Validate) error {
	naf.clean()
	return validate.Struct(naf)
}

func (naf NewAdditionalFee) toAdditionalFee() AdditionalFee {
	return AdditionalFee{
		Name:        naf.Name,
		Amount:      naf.Amount,
		Category:    naf.Category,
		IsMandatory: naf.IsMandatory,
		Description: naf.Description,
	}
}

// ScheduledInstallment contains information needed to add an Installment to a Ledger.
type ScheduledInstallment struct {
	Amount  int64     `json:"amount" validate:"gt=0"`
	DueDate core.Date `json:"due_date"`
	Remarks string    `json:"remarks"`
}

func (si *ScheduledInstallment) Validate(validate *validator.Validate) error {
	si.Remarks = core.CleanString(si.Remarks)
	if err := validate.Struct(si); err != nil {
		return err
	}
	return si.checkDueDate()
}

// checkDueDate stands in for `required`, which validator does not apply to struct types.
func (si ScheduledInstallment) checkDueDate() error {
	if si.DueDate.IsZero() {
		return core.NewValidationError(nil, core.FieldError{Field: "due_date", Error: "this field is required"})
	}
	return nil
}

func (si ScheduledInstallment) toInstallment() Installment {
	return NewInstallment(si.Amount, si.DueDate.Time, si.Remarks)
}

// NewLedger contains information needed to create a new Ledger.
type NewLedger struct {
	StudentID      string                 `json:"student_id" validate:"required,notblank"`
	AcademicYear   string                 `json:"academic_year" validate:"required,academicyear"`
	AdmissionFees  int64                  `json:"admission_fees" validate:"gte=0"`
	UniformFees    int64                  `json:"uniform_fees" validate:"gte=0"`
	BookFees       int64                  `json:"book_fees" validate:"gte=0"`
	TuitionFees    int64                  `json:"tuition_fees" validate:"gte=0"`
	AdditionalFees []NewAdditionalFee     `json:"additional_fees" validate:"omitempty,dive"`
	InitialAmount  int64                  `json:"initial_amount" validate:"gte=0"`
	Installments   []ScheduledInstallment `json:"installments" validate:"omitempty,dive"`
	PaymentMode    string                 `json:"payment_mode" validate:"omitempty,paymentmode"`
	CashierName    string                 `json:"cashier_name"`
	TransactionID  string                 `json:"transaction_id"`
}

func (nl *NewLedger) Validate(validate *validator.Validate) error {
	nl.StudentID = core.CleanString(nl.StudentID)
	nl.AcademicYear = core.CleanString(nl.AcademicYear)
	nl.PaymentMode = core.CleanString(nl.PaymentMode)
	nl.CashierName = core.CleanString(nl.CashierName)
	nl.TransactionID = core.CleanString(nl.TransactionID)
	for i := range nl.AdditionalFees {
		nl.AdditionalFees[i].clean()
	}
	if err := validate.Struct(nl); err != nil {
		return err
	}
	for _, si := range nl.Installments {
		if err := si.checkDueDate(); err != nil {
			return err
		}
	}
	return nil
}

func (nl NewLedger) baseTotal() int64 {
	total := nl.AdmissionFees + nl.UniformFees + nl.BookFees + nl.TuitionFees
	for _, af := range nl.AdditionalFees {
		total += af.Amount
	}
	return total
}

// UpdateLedger replaces the fee components of an existing Ledger. Its installments are left untouched.
// Empty strings keep the current value; a nil AdditionalFees keeps the current list.
type UpdateLedger struct {
	AcademicYear   string             `json:"academic_year" validate:"omitempty,academicyear"`
	AdmissionFees  int64              `json:"admission_fees" validate:"gte=0"`
	UniformFees    int64              `json:"uniform_fees" validate:"gte=0"`
	BookFees       int64              `json:"book_fees" validate:"gte=0"`
	TuitionFees    int64              `json:"tuition_fees" validate:"gte=0"`
	AdditionalFees []NewAdditionalFee `json:"additional_fees" validate:"omitempty,dive"`
	InitialAmount  int64              `json:"initial_amount" validate:"gte=0"`
	PaymentMode    string             `json:"payment_mode" validate:"omitempty,paymentmode"`
	CashierName    string             `json:"cashier_name"`
	TransactionID  string             `json:"transaction_id"`
}

func (ul *UpdateLedger) Validate(validate *validator.Validate) error {
	ul.AcademicYear = core.CleanString(ul.AcademicYear)
	ul.PaymentMode = core.CleanString(ul.PaymentMode)
	ul.CashierName = core.CleanString(ul.CashierName)
	ul.TransactionID = core.CleanString(ul.TransactionID)
	for i := range ul.AdditionalFees {
		ul.AdditionalFees[i].clean()
	}
	return validate.Struct(ul)
}

// InstallmentPayment holds the optional details recorded when paying an installment.
type InstallmentPayment struct {
	PaymentMode    string `query:"paymentMode" validate:"omitempty,paymentmode"`
	TransactionRef string `query:"transactionRef"`
}

func (ip *InstallmentPayment) Validate(validate *validator.Validate) error {
	ip.PaymentMode = core.CleanString(ip.PaymentMode)
	ip.TransactionRef = core.CleanString(ip.TransactionRef)
	return validate.Struct(ip)
}

type Discount struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

type Cancellation struct {
	Remarks string `json:"remarks"`
}

// Balance selects ledgers by whether something is still owed.
type Balance string

const (
	BalanceAny     Balance = ""
	BalancePending Balance = "pending" // remaining_fees > 0
	BalancePaid    Balance = "paid"    // remaining_fees = 0
)

type QueryFilter struct {
	AcademicYear string  `query:"academic_year"`
	Balance      Balance `query:"balance"`
}

func (qf *QueryFilter) Clean() {
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
	qf.Balance = Balance(core.CleanString(string(qf.Balance), true /* lower */))
}

// OrderingFields maps API ordering fields to their storage column.
var OrderingFields = map[string]string{
	"created_at":     "created_at",
	"updated_at":     "updated_at",
	"academic_year":  "academic_year",
	"total_fees":     "total_fees",
	"remaining_fees": "remaining_fees",
}

// DueInstallment is a read-only projection of an outstanding installment.
type DueInstallment struct {
	LedgerID      string            `json:"ledger_id"`
	InstallmentID string            `json:"installment_id"`
	Amount        int64             `json:"amount"`
	LateFee       int64             `json:"late_fee"`
	DueAmount     int64             `json:"due_amount"`
	DueDate       core.Date         `json:"due_date"`
	Status        InstallmentStatus `json:"status"`
	DaysOverdue   int               `json:"days_overdue"`
	RemainingDays int               `json:"remaining_days"`
}

// DueSummary totals a student's outstanding installments.
type DueSummary struct {
	StudentID      string `json:"student_id"`
	TotalDueAmount int64  `json:"total_due_amount"`
	TotalLateFee   int64  `json:"total_late_fee"`
	GrandTotal     int64  `json:"grand_total"`
	RemainingFees  int64  `json:"remaining_fees"`
	Installments   int    `json:"installments"`
}

func newDueInstallment(ledgerID string, inst Installment, today time.Time) DueInstallment {
	return DueInstallment{
		LedgerID:      ledgerID,
		InstallmentID: inst.ID,
		Amount:        inst.Amount,
		LateFee:       inst.AddonAmount,
		DueAmount:     inst.DueAmount,
		DueDate:       core.NewDate(inst.DueDate),
		Status:        inst.Status,
		DaysOverdue:   inst.DaysOverdue(today),
		RemainingDays: inst.RemainingDays(today),
	}
}
