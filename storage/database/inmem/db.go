// Package inmemdb keeps every table in memory. It backs the tests & the API when no database is configured.
package inmemdb

import (
	"sync"

	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/notification"
	"github.com/trezcool/schoolfees/core/student"
)

type (
	DB struct {
		ledgers       *ledgerTable
		notifications *notificationTable
		students      *studentTable
	}

	ledgerTable struct {
		sync.RWMutex
		table map[string]*fee.Ledger
	}

	notificationTable struct {
		sync.RWMutex
		table map[string]*notification.Notification
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*student.Student
	}
)

func Open() *DB {
	return &DB{
		ledgers:       &ledgerTable{table: make(map[string]*fee.Ledger)},
		notifications: &notificationTable{table: make(map[string]*notification.Notification)},
		students:      &studentTable{table: make(map[string]*student.Student)},
	}
}

// Truncate empties every table.
func (db *DB) Truncate() {
	db.ledgers.Lock()
	db.ledgers.table = make(map[string]*fee.Ledger)
	db.ledgers.Unlock()

	db.notifications.Lock()
	db.notifications.table = make(map[string]*notification.Notification)
	db.notifications.Unlock()

	db.students.Lock()
	db.students.table = make(map[string]*student.Student)
	db.students.Unlock()
}
