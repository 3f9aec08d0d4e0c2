package fee

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/notification"
	"github.com/trezcool/schoolfees/core/student"
)

var errLedgerExists = errors.New("a fee ledger already exists for this student")

type (
	Repository interface {
		// CreateLedger assigns the ledger & installment IDs when missing.
		// It returns a *core.ValidationError when the student already has a ledger.
		CreateLedger(ctx context.Context, ldg Ledger) (Ledger, error)
		GetLedger(ctx context.Context, id string) (Ledger, error)
		GetLedgerByStudent(ctx context.Context, studentID string) (Ledger, error)
		// QueryLedgers applies AND operation on available QueryFilter fields.
		QueryLedgers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Ledger, error)
		// UpdateLedger loads the ledger with an exclusive lock, applies fn to it and persists the result
		// in the same transaction. Nothing is written when fn returns an error.
		UpdateLedger(ctx context.Context, id string, fn func(ldg *Ledger) error) (Ledger, error)
	}

	// ConfirmationSender dispatches PAYMENT_CONFIRMATION notifications.
	ConfirmationSender interface {
		SendPaymentConfirmation(ctx context.Context, studentID string, pc notification.PaymentConfirmation) (notification.Notification, error)
	}

	Service interface {
		Create(ctx context.Context, nl NewLedger) (Ledger, error)
		Get(ctx context.Context, id string) (Ledger, error)
		GetByStudent(ctx context.Context, studentID string) (Ledger, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Ledger, error)
		Update(ctx context.Context, id string, ul UpdateLedger) (Ledger, error)
		AddAdditionalFee(ctx context.Context, id string, naf NewAdditionalFee) (Ledger, error)
		AddInstallment(ctx context.Context, id string, si ScheduledInstallment) (Ledger, error)
		// ProcessInstallmentPayment is the only way an installment becomes PAID.
		ProcessInstallmentPayment(ctx context.Context, ledgerID, installmentID string, payment InstallmentPayment) (Ledger, error)
		CancelInstallment(ctx context.Context, ledgerID, installmentID, remarks string) (Ledger, error)
		ApplyInstallmentDiscount(ctx context.Context, ledgerID, installmentID string, amount int64) (Ledger, error)
		DueInstallments(ctx context.Context, studentID string) ([]DueInstallment, error)
		TotalDue(ctx context.Context, studentID string) (DueSummary, error)
	}

	service struct {
		repo          Repository
		students      student.Directory
		confirmations ConfirmationSender
		logger        core.Logger
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, students student.Directory, confirmations ConfirmationSender, logger core.Logger) Service {
	return &service{
		repo:          repo,
		students:      students,
		confirmations: confirmations,
		logger:        logger,
	}
}

func (svc *service) Create(ctx context.Context, nl NewLedger) (Ledger, error) {
	if _, err := svc.students.GetStudent(ctx, nl.StudentID); err != nil {
		return Ledger{}, err
	}
	if _, err := svc.repo.GetLedgerByStudent(ctx, nl.StudentID); err == nil {
		return Ledger{}, core.NewValidationError(errLedgerExists, core.FieldError{Field: "student_id", Error: errLedgerExists.Error()})
	} else if !core.IsNotFound(err) {
		return Ledger{}, err
	}

	now := core.NowFunc().UTC()
	ldg := Ledger{
		StudentID:     nl.StudentID,
		AcademicYear:  nl.AcademicYear,
		PaymentMode:   nl.PaymentMode,
		CashierName:   nl.CashierName,
		TransactionID: nl.TransactionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	components := map[ComponentKind]int64{
		ComponentAdmission: nl.AdmissionFees,
		ComponentUniform:   nl.UniformFees,
		ComponentBook:      nl.BookFees,
		ComponentTuition:   nl.TuitionFees,
	}
	for kind, amount := range components {
		if err := ldg.SetComponent(kind, amount); err != nil {
			return Ledger{}, err
		}
	}
	for _, naf := range nl.AdditionalFees {
		if err := ldg.AddAdditionalFee(naf.toAdditionalFee()); err != nil {
			return Ledger{}, err
		}
	}
	for _, si := range nl.Installments {
		if err := ldg.AddInstallment(si.toInstallment()); err != nil {
			return Ledger{}, err
		}
	}
	if err := ldg.SetInitialAmount(nl.InitialAmount); err != nil {
		return Ledger{}, err
	}
	if err := ldg.CheckInitialAmount(); err != nil {
		return Ledger{}, err
	}
	return svc.repo.CreateLedger(ctx, ldg)
}

func (svc *service) Get(ctx context.Context, id string) (Ledger, error) {
	return svc.repo.GetLedger(ctx, id)
}

func (svc *service) GetByStudent(ctx context.Context, studentID string) (Ledger, error) {
	return svc.repo.GetLedgerByStudent(ctx, core.CleanString(studentID))
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Ledger, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryLedgers(ctx, filter, core.CleanOrderings(ordering, OrderingFields))
}

func (svc *service) Update(ctx context.Context, id string, ul UpdateLedger) (Ledger, error) {
	return svc.repo.UpdateLedger(ctx, id, func(ldg *Ledger) error {
		components := map[ComponentKind]int64{
			ComponentAdmission: ul.AdmissionFees,
			ComponentUniform:   ul.UniformFees,
			ComponentBook:      ul.BookFees,
			ComponentTuition:   ul.TuitionFees,
		}
		for kind, amount := range components {
			if err := ldg.SetComponent(kind, amount); err != nil {
				return err
			}
		}
		if ul.AdditionalFees != nil {
			fees := make([]AdditionalFee, 0, len(ul.AdditionalFees))
			for _, naf := range ul.AdditionalFees {
				fees = append(fees, naf.toAdditionalFee())
			}
			if err := ldg.ReplaceAdditionalFees(fees); err != nil {
				return err
			}
		}
		if err := ldg.SetInitialAmount(ul.InitialAmount); err != nil {
			return err
		}
		if err := ldg.CheckInitialAmount(); err != nil {
			return err
		}

		if ul.AcademicYear != "" {
			ldg.AcademicYear = ul.AcademicYear
		}
		if ul.PaymentMode != "" {
			ldg.PaymentMode = ul.PaymentMode
		}
		if ul.CashierName != "" {
			ldg.CashierName = ul.CashierName
		}
		if ul.TransactionID != "" {
			ldg.TransactionID = ul.TransactionID
		}
		ldg.UpdatedAt = core.NowFunc().UTC()
		return nil
	})
}

func (svc *service) AddAdditionalFee(ctx context.Context, id string, naf NewAdditionalFee) (Ledger, error) {
	return svc.repo.UpdateLedger(ctx, id, func(ldg *Ledger) error {
		if err := ldg.AddAdditionalFee(naf.toAdditionalFee()); err != nil {
			return err
		}
		ldg.UpdatedAt = core.NowFunc().UTC()
		return nil
	})
}

func (svc *service) AddInstallment(ctx context.Context, id string, si ScheduledInstallment) (Ledger, error) {
	return svc.repo.UpdateLedger(ctx, id, func(ldg *Ledger) error {
		if err := ldg.AddInstallment(si.toInstallment()); err != nil {
			return err
		}
		ldg.UpdatedAt = core.NowFunc().UTC()
		return nil
	})
}

// applyPayment settles the installment under the ledger lock and returns the confirmation to send.
func (svc *service) applyPayment(ctx context.Context, ledgerID, installmentID string, payment InstallmentPayment) (Ledger, notification.PaymentConfirmation, error) {
	var pc notification.PaymentConfirmation
	ldg, err := svc.repo.UpdateLedger(ctx, ledgerID, func(ldg *Ledger) error {
		inst, ok := ldg.Installment(installmentID)
		if !ok {
			return core.NewNotFoundError("installment", installmentID)
		}
		switch inst.Status {
		case StatusPaid:
			return core.NewInvalidStateError("installment %s is already paid", installmentID)
		case StatusCancelled:
			return core.NewInvalidStateError("installment %s is cancelled", installmentID)
		}

		now := core.NowFunc().UTC()
		amount := inst.DueAmount
		if err := inst.MarkAsPaid(now, payment.PaymentMode, payment.TransactionRef); err != nil {
			return err
		}
		ldg.Recompute()
		ldg.UpdatedAt = now

		pc = notification.PaymentConfirmation{
			LedgerID:      ldg.ID,
			InstallmentID: inst.ID,
			Amount:        amount,
			TransactionID: inst.TransactionReference,
			PaymentMode:   inst.PaymentMode,
			PaidDate:      *inst.PaidDate,
			RemainingFees: ldg.RemainingFees,
		}
		return nil
	})
	if err != nil {
		return Ledger{}, pc, err
	}
	return ldg, pc, nil
}

func (svc *service) ProcessInstallmentPayment(ctx context.Context, ledgerID, installmentID string, payment InstallmentPayment) (Ledger, error) {
	ldg, pc, err := svc.applyPayment(ctx, ledgerID, installmentID, payment)
	if err != nil {
		return Ledger{}, err
	}
	go svc.sendPaymentConfirmation(ldg.StudentID, pc)
	return ldg, nil
}

// sendPaymentConfirmation outlives the request that triggered it, hence the fresh context.
func (svc *service) sendPaymentConfirmation(studentID string, pc notification.PaymentConfirmation) {
	if svc.confirmations == nil {
		return
	}
	if _, err := svc.confirmations.SendPaymentConfirmation(context.Background(), studentID, pc); err != nil {
		svc.logger.Error("sending payment confirmation", errors.Wrapf(err, "installment %s", pc.InstallmentID))
	}
}

func (svc *service) CancelInstallment(ctx context.Context, ledgerID, installmentID, remarks string) (Ledger, error) {
	return svc.repo.UpdateLedger(ctx, ledgerID, func(ldg *Ledger) error {
		inst, ok := ldg.Installment(installmentID)
		if !ok {
			return core.NewNotFoundError("installment", installmentID)
		}
		if err := inst.Cancel(core.CleanString(remarks)); err != nil {
			return err
		}
		ldg.Recompute()
		ldg.UpdatedAt = core.NowFunc().UTC()
		return nil
	})
}

func (svc *service) ApplyInstallmentDiscount(ctx context.Context, ledgerID, installmentID string, amount int64) (Ledger, error) {
	if amount <= 0 {
		err := errors.New("discount must be greater than 0")
		return Ledger{}, core.NewValidationError(err, core.FieldError{Field: "amount", Error: err.Error()})
	}
	return svc.repo.UpdateLedger(ctx, ledgerID, func(ldg *Ledger) error {
		inst, ok := ldg.Installment(installmentID)
		if !ok {
			return core.NewNotFoundError("installment", installmentID)
		}
		if !inst.ApplyDiscount(amount) {
			return core.NewInvalidStateError("installment %s is %s and cannot be discounted", installmentID, inst.Status)
		}
		ldg.UpdatedAt = core.NowFunc().UTC()
		return nil
	})
}

// DueInstallments lists the student's unsettled installments, earliest due first.
func (svc *service) DueInstallments(ctx context.Context, studentID string) ([]DueInstallment, error) {
	ldg, err := svc.GetByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return dueInstallments(ldg, core.Today()), nil
}

func dueInstallments(ldg Ledger, today time.Time) []DueInstallment {
	due := make([]DueInstallment, 0, len(ldg.Installments))
	for _, inst := range ldg.Installments {
		if inst.Status.IsTerminal() || inst.DueAmount == 0 {
			continue
		}
		due = append(due, newDueInstallment(ldg.ID, inst, today))
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].DueDate.Before(due[j].DueDate.Time)
	})
	return due
}

func (svc *service) TotalDue(ctx context.Context, studentID string) (DueSummary, error) {
	ldg, err := svc.GetByStudent(ctx, studentID)
	if err != nil {
		return DueSummary{}, err
	}
	summary := DueSummary{StudentID: ldg.StudentID, RemainingFees: ldg.RemainingFees}
	for _, di := range dueInstallments(ldg, core.Today()) {
		lateFee := di.LateFee
		if lateFee > di.DueAmount {
			lateFee = di.DueAmount
		}
		summary.TotalDueAmount += di.DueAmount - lateFee
		summary.TotalLateFee += lateFee
		summary.Installments++
	}
	summary.GrandTotal = summary.TotalDueAmount + summary.TotalLateFee
	return summary, nil
}
