package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
)

type ledgerRepository struct {
	db *ledgerTable
}

var _ fee.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *DB) *ledgerRepository {
	return &ledgerRepository{db: db.ledgers}
}

func (repo *ledgerRepository) findByStudent(studentID string) (*fee.Ledger, bool) {
	for _, ldg := range repo.db.table {
		if ldg.StudentID == studentID {
			return ldg, true
		}
	}
	return nil, false
}

func (repo *ledgerRepository) CreateLedger(_ context.Context, ldg fee.Ledger) (fee.Ledger, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.findByStudent(ldg.StudentID); ok {
		err := errors.New("a fee ledger already exists for this student")
		return fee.Ledger{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
	}
	if ldg.ID == "" {
		ldg.ID = uuid.New().String()
	}
	for i := range ldg.Installments {
		if ldg.Installments[i].ID == "" {
			ldg.Installments[i].ID = uuid.New().String()
		}
	}
	stored := ldg.Clone()
	repo.db.table[ldg.ID] = &stored
	return ldg.Clone(), nil
}

func (repo *ledgerRepository) GetLedger(_ context.Context, id string) (fee.Ledger, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ldg, ok := repo.db.table[id]; ok {
		return ldg.Clone(), nil
	}
	return fee.Ledger{}, core.NewNotFoundError("ledger", id)
}

func (repo *ledgerRepository) GetLedgerByStudent(_ context.Context, studentID string) (fee.Ledger, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ldg, ok := repo.findByStudent(studentID); ok {
		return ldg.Clone(), nil
	}
	return fee.Ledger{}, core.NewNotFoundError("ledger of student", studentID)
}

func (repo *ledgerRepository) QueryLedgers(_ context.Context, filter *fee.QueryFilter, ordering []core.DBOrdering) ([]fee.Ledger, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ledgers := make([]fee.Ledger, 0, len(repo.db.table))
	for _, ldg := range repo.db.table {
		if filter != nil {
			if filter.AcademicYear != "" && ldg.AcademicYear != filter.AcademicYear {
				continue
			}
			if filter.Balance == fee.BalancePending && ldg.RemainingFees == 0 {
				continue
			}
			if filter.Balance == fee.BalancePaid && ldg.RemainingFees != 0 {
				continue
			}
		}
		ledgers = append(ledgers, ldg.Clone())
	}

	ordering = core.CleanOrderings(ordering, fee.OrderingFields)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(ledgers, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareLedgers(ledgers[i], ledgers[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
	return ledgers, nil
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareLedgers(a, b fee.Ledger, field string) int {
	switch field {
	case "updated_at":
		return compareInt64(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	case "academic_year":
		return strings.Compare(a.AcademicYear, b.AcademicYear)
	case "total_fees":
		return compareInt64(a.TotalFees, b.TotalFees)
	case "remaining_fees":
		return compareInt64(a.RemainingFees, b.RemainingFees)
	default:
		return compareInt64(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	}
}

// UpdateLedger holds the table's write lock for the whole read-modify-write; fn works on a copy.
func (repo *ledgerRepository) UpdateLedger(_ context.Context, id string, fn func(ldg *fee.Ledger) error) (fee.Ledger, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.table[id]
	if !ok {
		return fee.Ledger{}, core.NewNotFoundError("ledger", id)
	}
	ldg := stored.Clone()
	if err := fn(&ldg); err != nil {
		return fee.Ledger{}, err
	}
	for i := range ldg.Installments {
		if ldg.Installments[i].ID == "" {
			ldg.Installments[i].ID = uuid.New().String()
		}
	}
	saved := ldg.Clone()
	repo.db.table[id] = &saved
	return ldg, nil
}
