// Package student exposes the student lookup consumed by the fee and notification engines.
// Student CRUD itself lives outside of this service.
package student

import (
	"context"
	"net/mail"
)

type Student struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Email       string `json:"email" db:"email"`
	Phone       string `json:"phone" db:"phone"`
	FeeLedgerID string `json:"fee_ledger_id" db:"fee_ledger_id"`
}

// EmailAddress returns the Student's mail.Address, ok is false when no email is on file.
func (s Student) EmailAddress() (mail.Address, bool) {
	if s.Email == "" {
		return mail.Address{}, false
	}
	return mail.Address{Name: s.Name, Address: s.Email}, true
}

// Directory looks students up by ID.
type Directory interface {
	// GetStudent returns a *core.NotFoundError when no student matches.
	GetStudent(ctx context.Context, id string) (Student, error)
}

// Repository is the Directory plus the upsert used to mirror students from the school records.
type Repository interface {
	Directory
	SaveStudent(ctx context.Context, stu Student) (Student, error)
}
