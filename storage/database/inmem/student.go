package inmemdb

import (
	"context"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/student"
)

type studentRepository struct {
	db      *studentTable
	ledgers *ledgerTable
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db.students, ledgers: db.ledgers}
}

func (repo *studentRepository) GetStudent(_ context.Context, id string) (student.Student, error) {
	repo.db.RLock()
	stu, ok := repo.db.table[id]
	repo.db.RUnlock()
	if !ok {
		return student.Student{}, core.NewNotFoundError("student", id)
	}

	found := *stu
	repo.ledgers.RLock()
	defer repo.ledgers.RUnlock()
	for _, ldg := range repo.ledgers.table {
		if ldg.StudentID == id {
			found.FeeLedgerID = ldg.ID
			break
		}
	}
	return found, nil
}

func (repo *studentRepository) SaveStudent(ctx context.Context, stu student.Student) (student.Student, error) {
	repo.db.Lock()
	stored := stu
	stored.FeeLedgerID = ""
	repo.db.table[stu.ID] = &stored
	repo.db.Unlock()
	return repo.GetStudent(ctx, stu.ID)
}
