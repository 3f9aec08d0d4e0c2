package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
)

const (
	ledgerColumns = `id, student_id, academic_year, admission_fees, uniform_fees, book_fees, tuition_fees,
		total_fees, initial_amount, remaining_fees, payment_mode, cashier_name, transaction_id, created_at, updated_at`

	insertLedgerSQL = `INSERT INTO fee_ledgers (` + ledgerColumns + `) VALUES (
		:id, :student_id, :academic_year, :admission_fees, :uniform_fees, :book_fees, :tuition_fees,
		:total_fees, :initial_amount, :remaining_fees, :payment_mode, :cashier_name, :transaction_id, :created_at, :updated_at)`

	updateLedgerSQL = `UPDATE fee_ledgers SET
		academic_year = :academic_year, admission_fees = :admission_fees, uniform_fees = :uniform_fees,
		book_fees = :book_fees, tuition_fees = :tuition_fees, total_fees = :total_fees,
		initial_amount = :initial_amount, remaining_fees = :remaining_fees, payment_mode = :payment_mode,
		cashier_name = :cashier_name, transaction_id = :transaction_id, updated_at = :updated_at
		WHERE id = :id`

	insertAdditionalFeeSQL = `INSERT INTO fee_additional_fees
		(ledger_id, position, name, amount, category, is_mandatory, description) VALUES
		(:ledger_id, :position, :name, :amount, :category, :is_mandatory, :description)`

	insertInstallmentSQL = `INSERT INTO fee_installments
		(id, ledger_id, position, amount, addon_amount, due_amount, due_date, paid_date, status,
		payment_mode, transaction_reference, remarks) VALUES
		(:id, :ledger_id, :position, :amount, :addon_amount, :due_amount, :due_date, :paid_date, :status,
		:payment_mode, :transaction_reference, :remarks)`
)

type (
	ledgerRow struct {
		ID            string    `db:"id"`
		StudentID     string    `db:"student_id"`
		AcademicYear  string    `db:"academic_year"`
		AdmissionFees int64     `db:"admission_fees"`
		UniformFees   int64     `db:"uniform_fees"`
		BookFees      int64     `db:"book_fees"`
		TuitionFees   int64     `db:"tuition_fees"`
		TotalFees     int64     `db:"total_fees"`
		InitialAmount int64     `db:"initial_amount"`
		RemainingFees int64     `db:"remaining_fees"`
		PaymentMode   string    `db:"payment_mode"`
		CashierName   string    `db:"cashier_name"`
		TransactionID string    `db:"transaction_id"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`
	}

	additionalFeeRow struct {
		LedgerID    string `db:"ledger_id"`
		Position    int    `db:"position"`
		Name        string `db:"name"`
		Amount      int64  `db:"amount"`
		Category    string `db:"category"`
		IsMandatory bool   `db:"is_mandatory"`
		Description string `db:"description"`
	}

	installmentRow struct {
		ID                   string    `db:"id"`
		LedgerID             string    `db:"ledger_id"`
		Position             int       `db:"position"`
		Amount               int64     `db:"amount"`
		AddonAmount          int64     `db:"addon_amount"`
		DueAmount            int64     `db:"due_amount"`
		DueDate              time.Time `db:"due_date"`
		PaidDate             null.Time `db:"paid_date"`
		Status               string    `db:"status"`
		PaymentMode          string    `db:"payment_mode"`
		TransactionReference string    `db:"transaction_reference"`
		Remarks              string    `db:"remarks"`
	}
)

func toLedgerRow(ldg fee.Ledger) ledgerRow {
	return ledgerRow{
		ID:            ldg.ID,
		StudentID:     ldg.StudentID,
		AcademicYear:  ldg.AcademicYear,
		AdmissionFees: ldg.AdmissionFees,
		UniformFees:   ldg.UniformFees,
		BookFees:      ldg.BookFees,
		TuitionFees:   ldg.TuitionFees,
		TotalFees:     ldg.TotalFees,
		InitialAmount: ldg.InitialAmount,
		RemainingFees: ldg.RemainingFees,
		PaymentMode:   ldg.PaymentMode,
		CashierName:   ldg.CashierName,
		TransactionID: ldg.TransactionID,
		CreatedAt:     ldg.CreatedAt.UTC(),
		UpdatedAt:     ldg.UpdatedAt.UTC(),
	}
}

func (row ledgerRow) toLedger() fee.Ledger {
	return fee.Ledger{
		ID:            row.ID,
		StudentID:     row.StudentID,
		AcademicYear:  row.AcademicYear,
		AdmissionFees: row.AdmissionFees,
		UniformFees:   row.UniformFees,
		BookFees:      row.BookFees,
		TuitionFees:   row.TuitionFees,
		TotalFees:     row.TotalFees,
		InitialAmount: row.InitialAmount,
		RemainingFees: row.RemainingFees,
		PaymentMode:   row.PaymentMode,
		CashierName:   row.CashierName,
		TransactionID: row.TransactionID,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func toInstallmentRow(ledgerID string, pos int, inst fee.Installment) installmentRow {
	row := installmentRow{
		ID:                   inst.ID,
		LedgerID:             ledgerID,
		Position:             pos,
		Amount:               inst.Amount,
		AddonAmount:          inst.AddonAmount,
		DueAmount:            inst.DueAmount,
		DueDate:              core.DateOf(inst.DueDate),
		Status:               string(inst.Status),
		PaymentMode:          inst.PaymentMode,
		TransactionReference: inst.TransactionReference,
		Remarks:              inst.Remarks,
	}
	if inst.PaidDate != nil {
		row.PaidDate = null.TimeFrom(core.DateOf(*inst.PaidDate))
	}
	return row
}

func (row installmentRow) toInstallment() fee.Installment {
	inst := fee.Installment{
		ID:                   row.ID,
		Amount:               row.Amount,
		AddonAmount:          row.AddonAmount,
		DueAmount:            row.DueAmount,
		DueDate:              core.DateOf(row.DueDate),
		Status:               fee.InstallmentStatus(row.Status),
		PaymentMode:          row.PaymentMode,
		TransactionReference: row.TransactionReference,
		Remarks:              row.Remarks,
	}
	if row.PaidDate.Valid {
		paid := core.DateOf(row.PaidDate.Time)
		inst.PaidDate = &paid
	}
	return inst
}

type ledgerRepository struct {
	db core.DB
}

var _ fee.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db core.DB) *ledgerRepository {
	return &ledgerRepository{db: db}
}

func (repo ledgerRepository) CreateLedger(ctx context.Context, ldg fee.Ledger) (fee.Ledger, error) {
	if ldg.ID == "" {
		ldg.ID = uuid.New().String()
	}
	for i := range ldg.Installments {
		if ldg.Installments[i].ID == "" {
			ldg.Installments[i].ID = uuid.New().String()
		}
	}

	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertLedgerSQL, toLedgerRow(ldg)); err != nil {
			switch pqErrorCode(err) {
			case uniqueViolation:
				err := errors.New("a fee ledger already exists for this student")
				return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
			case foreignKeyViolation:
				return core.NewNotFoundError("student", ldg.StudentID)
			}
			return errors.Wrap(err, "inserting ledger")
		}
		return repo.insertChildren(ctx, tx, ldg)
	})
	if err != nil {
		return fee.Ledger{}, err
	}
	return ldg, nil
}

func (repo ledgerRepository) insertChildren(ctx context.Context, tx *sqlx.Tx, ldg fee.Ledger) error {
	for pos, af := range ldg.AdditionalFees {
		row := additionalFeeRow{
			LedgerID:    ldg.ID,
			Position:    pos,
			Name:        af.Name,
			Amount:      af.Amount,
			Category:    af.Category,
			IsMandatory: af.IsMandatory,
			Description: af.Description,
		}
		if _, err := tx.NamedExecContext(ctx, insertAdditionalFeeSQL, row); err != nil {
			return errors.Wrap(err, "inserting additional fee")
		}
	}
	for pos, inst := range ldg.Installments {
		if _, err := tx.NamedExecContext(ctx, insertInstallmentSQL, toInstallmentRow(ldg.ID, pos, inst)); err != nil {
			return errors.Wrap(err, "inserting installment")
		}
	}
	return nil
}

func (repo ledgerRepository) deleteChildren(ctx context.Context, tx *sqlx.Tx, ledgerID string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM fee_additional_fees WHERE ledger_id = $1", ledgerID); err != nil {
		return errors.Wrap(err, "deleting additional fees")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM fee_installments WHERE ledger_id = $1", ledgerID); err != nil {
		return errors.Wrap(err, "deleting installments")
	}
	return nil
}

// loadChildren fills the additional fees & installments of ledgers, in their stored order.
func (repo ledgerRepository) loadChildren(ctx context.Context, exec sqlx.QueryerContext, ledgers []fee.Ledger) error {
	if len(ledgers) == 0 {
		return nil
	}
	ids := make([]string, 0, len(ledgers))
	index := make(map[string]int, len(ledgers))
	for i, ldg := range ledgers {
		ids = append(ids, ldg.ID)
		index[ldg.ID] = i
	}

	var feeRows []additionalFeeRow
	err := sqlx.SelectContext(ctx, exec, &feeRows,
		"SELECT * FROM fee_additional_fees WHERE ledger_id = ANY($1) ORDER BY ledger_id, position", pq.Array(ids))
	if err != nil {
		return errors.Wrap(err, "querying additional fees")
	}
	for _, row := range feeRows {
		ldg := &ledgers[index[row.LedgerID]]
		ldg.AdditionalFees = append(ldg.AdditionalFees, fee.AdditionalFee{
			Name:        row.Name,
			Amount:      row.Amount,
			Category:    row.Category,
			IsMandatory: row.IsMandatory,
			Description: row.Description,
		})
	}

	var instRows []installmentRow
	err = sqlx.SelectContext(ctx, exec, &instRows,
		"SELECT * FROM fee_installments WHERE ledger_id = ANY($1) ORDER BY ledger_id, position", pq.Array(ids))
	if err != nil {
		return errors.Wrap(err, "querying installments")
	}
	for _, row := range instRows {
		ldg := &ledgers[index[row.LedgerID]]
		ldg.Installments = append(ldg.Installments, row.toInstallment())
	}
	return nil
}

func (repo ledgerRepository) getLedger(ctx context.Context, exec sqlx.QueryerContext, cond, arg string, forUpdate bool) (fee.Ledger, error) {
	q := "SELECT " + ledgerColumns + " FROM fee_ledgers WHERE " + cond
	if forUpdate {
		q += " FOR UPDATE"
	}
	var row ledgerRow
	if err := sqlx.GetContext(ctx, exec, &row, q, arg); err != nil {
		return fee.Ledger{}, trapNoRowsErr(err, "ledger", arg, "finding ledger")
	}
	ledgers := []fee.Ledger{row.toLedger()}
	if err := repo.loadChildren(ctx, exec, ledgers); err != nil {
		return fee.Ledger{}, err
	}
	return ledgers[0], nil
}

func (repo ledgerRepository) GetLedger(ctx context.Context, id string) (fee.Ledger, error) {
	if _, err := uuid.Parse(id); err != nil {
		return fee.Ledger{}, core.NewNotFoundError("ledger", id)
	}
	return repo.getLedger(ctx, repo.db, "id = $1", id, false)
}

func (repo ledgerRepository) GetLedgerByStudent(ctx context.Context, studentID string) (fee.Ledger, error) {
	ldg, err := repo.getLedger(ctx, repo.db, "student_id = $1", studentID, false)
	if core.IsNotFound(err) {
		return fee.Ledger{}, core.NewNotFoundError("ledger of student", studentID)
	}
	return ldg, err
}

func (repo ledgerRepository) QueryLedgers(ctx context.Context, filter *fee.QueryFilter, ordering []core.DBOrdering) ([]fee.Ledger, error) {
	var w where
	if filter != nil {
		if filter.AcademicYear != "" {
			w.add("academic_year = ?", filter.AcademicYear)
		}
		switch filter.Balance {
		case fee.BalancePending:
			w.addRaw("remaining_fees > 0")
		case fee.BalancePaid:
			w.addRaw("remaining_fees = 0")
		}
	}

	q := "SELECT " + ledgerColumns + " FROM fee_ledgers" + w.String() + orderBy(ordering, fee.OrderingFields, "created_at DESC")
	var rows []ledgerRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying ledgers")
	}

	ledgers := make([]fee.Ledger, 0, len(rows))
	for _, row := range rows {
		ledgers = append(ledgers, row.toLedger())
	}
	if err := repo.loadChildren(ctx, repo.db, ledgers); err != nil {
		return nil, err
	}
	return ledgers, nil
}

// UpdateLedger locks the ledger row (SELECT ... FOR UPDATE) for the whole read-modify-write.
func (repo ledgerRepository) UpdateLedger(ctx context.Context, id string, fn func(ldg *fee.Ledger) error) (fee.Ledger, error) {
	if _, err := uuid.Parse(id); err != nil {
		return fee.Ledger{}, core.NewNotFoundError("ledger", id)
	}

	var updated fee.Ledger
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		ldg, err := repo.getLedger(ctx, tx, "id = $1", id, true)
		if err != nil {
			return err
		}
		if err := fn(&ldg); err != nil {
			return err
		}
		for i := range ldg.Installments {
			if ldg.Installments[i].ID == "" {
				ldg.Installments[i].ID = uuid.New().String()
			}
		}

		if _, err := tx.NamedExecContext(ctx, updateLedgerSQL, toLedgerRow(ldg)); err != nil {
			return errors.Wrap(err, "updating ledger")
		}
		if err := repo.deleteChildren(ctx, tx, ldg.ID); err != nil {
			return err
		}
		if err := repo.insertChildren(ctx, tx, ldg); err != nil {
			return err
		}
		updated = ldg
		return nil
	})
	if err != nil {
		return fee.Ledger{}, err
	}
	return updated, nil
}
