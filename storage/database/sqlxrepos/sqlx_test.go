package sqlxrepos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/notification"
	"github.com/trezcool/schoolfees/storage/database"
	"github.com/trezcool/schoolfees/tests"
)

// openTestDB connects to TEST_DATABASE_URL, migrates it and empties every table.
func openTestDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db))
	_, err = db.Exec("TRUNCATE students CASCADE")
	require.NoError(t, err)
	return db
}

func Test_where(t *testing.T) {
	var w where
	assert.Equal(t, "", w.String())

	w.add("academic_year = ?", "2024-2025")
	w.addRaw("remaining_fees > 0")
	w.add("student_id = ?", "stu-1")
	assert.Equal(t, " WHERE academic_year = $1 AND remaining_fees > 0 AND student_id = $2", w.String())
	assert.Equal(t, []interface{}{"2024-2025", "stu-1"}, w.args)
}

func Test_orderBy(t *testing.T) {
	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     string
	}{
		{name: "fallback", want: " ORDER BY created_at DESC"},
		{name: "unknown fields", ordering: []core.DBOrdering{{Field: "password"}}, want: " ORDER BY created_at DESC"},
		{
			name:     "mapped",
			ordering: []core.DBOrdering{{Field: "remaining_fees", Ascending: true}, {Field: "lol"}, {Field: "academic_year"}},
			want:     " ORDER BY remaining_fees ASC, academic_year DESC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderBy(tt.ordering, fee.OrderingFields, "created_at DESC"))
		})
	}
}

func TestLedgerRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	students := NewStudentRepository(db)
	repo := NewLedgerRepository(db)

	stu := testutil.CreateStudent(t, students, "Hero", "hero@test.cd", "")
	due := testutil.Date(2024, 7, 1)
	ldg := testutil.CreateLedger(t, repo, stu.ID, 5000, fee.NewInstallment(2000, due, "first"))

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetLedger(ctx, ldg.ID)
		require.NoError(t, err)
		assert.Equal(t, stu.ID, got.StudentID)
		assert.Equal(t, int64(5000), got.TotalFees)
		require.Len(t, got.Installments, 1)
		assert.True(t, due.Equal(got.Installments[0].DueDate))
		assert.Equal(t, fee.StatusPending, got.Installments[0].Status)

		byStudent, err := repo.GetLedgerByStudent(ctx, stu.ID)
		require.NoError(t, err)
		assert.Equal(t, ldg.ID, byStudent.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetLedger(ctx, "not-a-uuid")
		assert.True(t, core.IsNotFound(err))
		_, err = repo.GetLedgerByStudent(ctx, "ghost")
		assert.EqualError(t, err, `ledger of student "ghost" not found`)
	})

	t.Run("one ledger per student", func(t *testing.T) {
		_, err := repo.CreateLedger(ctx, fee.Ledger{StudentID: stu.ID, AcademicYear: "2024-2025"})
		var verr *core.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := repo.CreateLedger(ctx, fee.Ledger{StudentID: "ghost", AcademicYear: "2024-2025"})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("update", func(t *testing.T) {
		paidOn := testutil.Date(2024, 6, 10)
		got, err := repo.UpdateLedger(ctx, ldg.ID, func(l *fee.Ledger) error {
			inst, _ := l.Installment(ldg.Installments[0].ID)
			if err := inst.MarkAsPaid(paidOn, "UPI", "UPI-1"); err != nil {
				return err
			}
			l.Recompute()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3000), got.RemainingFees)

		reloaded, err := repo.GetLedger(ctx, ldg.ID)
		require.NoError(t, err)
		assert.Equal(t, fee.StatusPaid, reloaded.Installments[0].Status)
		require.NotNil(t, reloaded.Installments[0].PaidDate)
		assert.True(t, paidOn.Equal(*reloaded.Installments[0].PaidDate))
	})

	t.Run("failed update rolls back", func(t *testing.T) {
		_, err := repo.UpdateLedger(ctx, ldg.ID, func(l *fee.Ledger) error {
			l.AcademicYear = "1999-2000"
			return assert.AnError
		})
		assert.Equal(t, assert.AnError, err)

		reloaded, err := repo.GetLedger(ctx, ldg.ID)
		require.NoError(t, err)
		assert.Equal(t, "2024-2025", reloaded.AcademicYear)
	})

	t.Run("query", func(t *testing.T) {
		pending, err := repo.QueryLedgers(ctx, &fee.QueryFilter{Balance: fee.BalancePending}, nil)
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		paid, err := repo.QueryLedgers(ctx, &fee.QueryFilter{Balance: fee.BalancePaid}, nil)
		require.NoError(t, err)
		assert.Empty(t, paid)

		other, err := repo.QueryLedgers(ctx, &fee.QueryFilter{AcademicYear: "2023-2024"}, nil)
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}

func TestNotificationRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)
	stu := testutil.CreateStudent(t, NewStudentRepository(db), "Hero", "hero@test.cd", "")

	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	instID := "5f1c1cf0-1d2e-4a4b-9a4a-1d7d1b2e3f40"
	newNotif := func(typ notification.Type, status notification.Status, createdAt time.Time) notification.Notification {
		n, err := repo.CreateNotification(ctx, notification.Notification{
			StudentID:     stu.ID,
			Title:         "Fee due",
			Message:       "Please pay",
			Type:          typ,
			Channel:       notification.ChannelEmail,
			Status:        status,
			AmountDue:     1000,
			InstallmentID: instID,
			CreatedAt:     createdAt,
			UpdatedAt:     createdAt,
		})
		require.NoError(t, err)
		return n
	}

	sent := newNotif(notification.TypeInstallmentDue, notification.StatusSent, now)
	newNotif(notification.TypeFeeReminder, notification.StatusDelivered, now.Add(-time.Hour))
	newNotif(notification.TypeOverdueReminder, notification.StatusFailed, now.Add(-48*time.Hour))

	t.Run("unknown student", func(t *testing.T) {
		_, err := repo.CreateNotification(ctx, notification.Notification{
			StudentID: "ghost",
			Type:      notification.TypeFeeReminder,
			Channel:   notification.ChannelEmail,
			Status:    notification.StatusPending,
		})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetNotification(ctx, sent.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.TypeInstallmentDue, got.Type)
		assert.Equal(t, instID, got.InstallmentID)
		assert.True(t, now.Equal(got.CreatedAt))

		_, err = repo.GetNotification(ctx, "lol")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("installment reminder", func(t *testing.T) {
		got, err := repo.FindInstallmentReminder(ctx, stu.ID, instID, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, sent.ID, got.ID)

		_, err = repo.FindInstallmentReminder(ctx, stu.ID, instID, now.Add(time.Minute))
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("query", func(t *testing.T) {
		all, err := repo.QueryNotifications(ctx, stu.ID, nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, sent.ID, all[0].ID, "newest first")

		failed, err := repo.QueryNotifications(ctx, stu.ID, &notification.QueryFilter{Status: notification.StatusFailed})
		require.NoError(t, err)
		assert.Len(t, failed, 1)
	})

	t.Run("update", func(t *testing.T) {
		n := sent
		n.RetryCount = 2
		n.ErrorMessage = "smtp down"
		_, err := repo.UpdateNotification(ctx, n)
		require.NoError(t, err)

		got, err := repo.GetNotification(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.RetryCount)
		assert.Equal(t, "smtp down", got.ErrorMessage)

		n.ID = "0e5b1a52-98a1-4bb4-8a57-0b3b1b1b1b1b"
		_, err = repo.UpdateNotification(ctx, n)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("read tracking", func(t *testing.T) {
		cnt, err := repo.CountUnread(ctx, stu.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, cnt)

		updated, err := repo.MarkAllAsRead(ctx, stu.ID, now)
		require.NoError(t, err)
		assert.Equal(t, 2, updated)

		cnt, err = repo.CountUnread(ctx, stu.ID)
		require.NoError(t, err)
		assert.Zero(t, cnt)
	})
}
