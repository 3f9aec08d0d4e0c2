package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/student"
)

type studentRow struct {
	ID          string      `db:"id"`
	Name        string      `db:"name"`
	Email       string      `db:"email"`
	Phone       string      `db:"phone"`
	FeeLedgerID null.String `db:"fee_ledger_id"`
}

type studentRepository struct {
	exec core.DBExecutor
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{exec: exec}
}

func (repo studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var row studentRow
	q := `SELECT s.id, s.name, s.email, s.phone, l.id AS fee_ledger_id
		FROM students s LEFT JOIN fee_ledgers l ON l.student_id = s.id
		WHERE s.id = $1`
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return student.Student{}, trapNoRowsErr(err, "student", id, "finding student")
	}
	return student.Student{
		ID:          row.ID,
		Name:        row.Name,
		Email:       row.Email,
		Phone:       row.Phone,
		FeeLedgerID: row.FeeLedgerID.String,
	}, nil
}

func (repo studentRepository) SaveStudent(ctx context.Context, stu student.Student) (student.Student, error) {
	q := `INSERT INTO students (id, name, email, phone) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone`
	if _, err := repo.exec.ExecContext(ctx, q, stu.ID, stu.Name, stu.Email, stu.Phone); err != nil {
		return student.Student{}, errors.Wrap(err, "saving student")
	}
	return repo.GetStudent(ctx, stu.ID)
}
