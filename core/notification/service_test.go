package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/notification"
	"github.com/trezcool/schoolfees/core/student"
	"github.com/trezcool/schoolfees/services/messaging"
	"github.com/trezcool/schoolfees/storage/database/inmem"
	"github.com/trezcool/schoolfees/tests"
)

var now = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      notification.Service
	repo     notification.Repository
	students student.Repository
	email    *messaging.SenderMock
	sms      *messaging.SenderMock
	reg      *prometheus.Registry
}

func setup(t *testing.T) fixture {
	testutil.FreezeTime(t, now)

	db := inmemdb.Open()
	fx := fixture{
		repo:     inmemdb.NewNotificationRepository(db),
		students: inmemdb.NewStudentRepository(db),
		email:    new(messaging.SenderMock),
		sms:      new(messaging.SenderMock),
		reg:      prometheus.NewRegistry(),
	}
	fx.svc = notification.NewService(
		testutil.NewConfig(),
		fx.repo,
		fx.students,
		map[notification.Channel]notification.Sender{
			notification.ChannelEmail: fx.email,
			notification.ChannelSMS:   fx.sms,
		},
		notification.NewMetrics(fx.reg),
		testutil.NewLogger(),
	)
	return fx
}

func overdueReminder(installmentID string) notification.Reminder {
	return notification.Reminder{
		LedgerID:      "ledger",
		InstallmentID: installmentID,
		DueDate:       now.AddDate(0, 0, -1),
		AmountDue:     1050,
		LateFee:       50,
		DaysOverdue:   1,
		RemainingFees: 5050,
	}
}

func Test_service_SendReminder(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	stu := testutil.CreateStudent(t, fx.students, "Hero", "hero@test.cd", "+243000")

	n, err := fx.svc.SendReminder(ctx, stu.ID, notification.TypeOverdueReminder, overdueReminder("inst-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Equal(t, notification.ChannelEmail, n.Channel, "default channel")
	require.NotNil(t, n.SentDate)
	assert.Equal(t, now, *n.SentDate)
	require.NotNil(t, n.DueDate)
	assert.Equal(t, core.DateOf(now.AddDate(0, 0, -1)), *n.DueDate)
	assert.Equal(t, "Installment overdue", n.Title)
	assert.Contains(t, n.Message, "1 day overdue")
	assert.Equal(t, int64(50), n.LateFee)

	require.Len(t, fx.email.Sent(), 1)
	assert.Equal(t, stu.ID, fx.email.Sent()[0].Recipient.ID)

	t.Run("explicit channel", func(t *testing.T) {
		r := overdueReminder("inst-2")
		r.Channel = notification.ChannelSMS
		n, err := fx.svc.SendReminder(ctx, stu.ID, notification.TypeOverdueReminder, r)
		require.NoError(t, err)
		assert.Equal(t, notification.ChannelSMS, n.Channel)
		assert.Len(t, fx.sms.Sent(), 1)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := fx.svc.SendReminder(ctx, "ghost", notification.TypeFeeReminder, notification.Reminder{})
		assert.True(t, core.IsNotFound(err), "error = %v", err)
	})

	t.Run("no sender for channel", func(t *testing.T) {
		r := overdueReminder("inst-3")
		r.Channel = notification.ChannelPush
		n, err := fx.svc.SendReminder(ctx, stu.ID, notification.TypeOverdueReminder, r)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailed, n.Status)
		assert.Contains(t, n.ErrorMessage, "no sender configured")
	})

	assert.Equal(t, float64(1), metricCounter(t, fx.reg, notification.ChannelEmail, notification.TypeOverdueReminder, notification.StatusSent))
	assert.Equal(t, float64(1), metricCounter(t, fx.reg, notification.ChannelSMS, notification.TypeOverdueReminder, notification.StatusSent))
	assert.Equal(t, float64(1), metricCounter(t, fx.reg, notification.ChannelPush, notification.TypeOverdueReminder, notification.StatusFailed))
}

// metricCounter reads a dispatched_total sample straight from the registry.
func metricCounter(t *testing.T, reg *prometheus.Registry, ch notification.Channel, typ notification.Type, st notification.Status) float64 {
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "schoolfees_notifications_dispatched_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["channel"] == string(ch) && labels["type"] == string(typ) && labels["status"] == string(st) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func Test_service_DispatchFailure(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	stu := testutil.CreateStudent(t, fx.students, "Hero", "hero@test.cd", "")

	fx.email.Fail(assert.AnError)
	n, err := fx.svc.SendReminder(ctx, stu.ID, notification.TypeInstallmentDue, overdueReminder("inst-1"))
	require.NoError(t, err, "dispatch failures are recorded, not returned")
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	assert.Contains(t, n.ErrorMessage, assert.AnError.Error())
	assert.Nil(t, n.SentDate)

	stored, err := fx.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, stored.Status)

	t.Run("retry succeeds", func(t *testing.T) {
		fx.email.Fail(nil)
		retried, err := fx.svc.Retry(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, n.ID, retried.ID, "the same row is re-attempted")
		assert.Equal(t, notification.StatusSent, retried.Status)
		assert.Empty(t, retried.ErrorMessage)
		assert.Equal(t, 1, retried.RetryCount)
	})

	t.Run("only failed notifications are retried", func(t *testing.T) {
		_, err := fx.svc.Retry(ctx, n.ID)
		assert.True(t, core.IsInvalidState(err), "error = %v", err)
	})
}

func Test_service_RetryExhausted(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	stu := testutil.CreateStudent(t, fx.students, "Hero", "hero@test.cd", "")

	fx.email.Fail(assert.AnError)
	n, err := fx.svc.SendReminder(ctx, stu.ID, notification.TypeFeeReminder, notification.Reminder{RemainingFees: 10})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		n, err = fx.svc.Retry(ctx, n.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, n.RetryCount)

	_, err = fx.svc.Retry(ctx, n.ID)
	assert.True(t, core.IsInvalidState(err), "error = %v", err)
}

func Test_service_SendInstallmentReminder(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	stu := testutil.CreateStudent(t, fx.students, "Hero", "hero@test.cd", "")
	r := overdueReminder("inst-1")

	first, outcome, err := fx.svc.SendInstallmentReminder(ctx, stu.ID, notification.TypeOverdueReminder, r)
	require.NoError(t, err)
	assert.Equal(t, notification.OutcomeSent, outcome)

	again, outcome, err := fx.svc.SendInstallmentReminder(ctx, stu.ID, notification.TypeOverdueReminder, r)
	require.NoError(t, err)
	assert.Equal(t, notification.OutcomeSkipped, outcome)
	assert.Equal(t, first.ID, again.ID)

	t.Run("other installment", func(t *testing.T) {
		_, outcome, err := fx.svc.SendInstallmentReminder(ctx, stu.ID, notification.TypeOverdueReminder, overdueReminder("inst-2"))
		require.NoError(t, err)
		assert.Equal(t, notification.OutcomeSent, outcome)
	})

	t.Run("next day", func(t *testing.T) {
		testutil.FreezeTime(t, now.AddDate(0, 0, 1))
		_, outcome, err := fx.svc.SendInstallmentReminder(ctx, stu.ID, notification.TypeOverdueReminder, r)
		require.NoError(t, err)
		assert.Equal(t, notification.OutcomeSent, outcome)
	})

	notifs, err := fx.svc.ListByStudent(ctx, stu.ID, &notification.QueryFilter{Type: notification.TypeOverdueReminder})
	require.NoError(t, err)
	assert.Len(t, notifs, 3)
}

func Test_service_SendInstallmentReminder_retriesFailure(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	stu := testutil.CreateStudent(t, fx.students, "Hero", "hero@test.cd", "")
	r := overdueReminder("inst-1")

	fx.email.Fail(assert.AnError)
	failed, outcome, err := fx.svc.SendInstallmentReminder(ctx, stu.ID, notification.TypeOverdueReminder, r)
	require.NoError(t, err)
	assert.Equal(t, notification.OutcomeFailed, outcome)

	fx.email.Fail(nil)
	sent, outcome, err := fx.svc.SendInstallmentReminder(ctx, stu.ID, notification.TypeOverdueReminder, r)
	require.NoError(t, err)
	assert.Equal(t, notification.OutcomeSent, outcome)
	assert.Equal(t, failed.ID, sent.ID)

	notifs, err := fx.svc.ListByStudent(ctx, stu.ID, nil)
	require.NoError(t, err)
	assert.Len(t, notifs, 1, "a retried reminder is not duplicated")
}

func Test_service_ReadTracking(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	stu := testutil.CreateStudent(t, fx.students, "Hero", "hero@test.cd", "")

	n1, err := fx.svc.SendReminder(ctx, stu.ID, notification.TypeFeeReminder, notification.Reminder{RemainingFees: 10})
	require.NoError(t, err)
	n2, err := fx.svc.SendReminder(ctx, stu.ID, notification.TypeFeeReminder, notification.Reminder{RemainingFees: 10})
	require.NoError(t, err)
	fx.email.Fail(assert.AnError)
	failed, err := fx.svc.SendReminder(ctx, stu.ID, notification.TypeFeeReminder, notification.Reminder{RemainingFees: 10})
	require.NoError(t, err)

	cnt, err := fx.svc.UnreadCount(ctx, stu.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt, "failed notifications are not unread")

	t.Run("delivered", func(t *testing.T) {
		n, err := fx.svc.MarkAsDelivered(ctx, n1.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusDelivered, n.Status)

		n, err = fx.svc.MarkAsDelivered(ctx, n1.ID)
		require.NoError(t, err, "repeated acks are ignored")
		assert.Equal(t, notification.StatusDelivered, n.Status)
	})

	t.Run("read", func(t *testing.T) {
		n, err := fx.svc.MarkAsRead(ctx, n1.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusRead, n.Status)
		require.NotNil(t, n.ReadAt)

		again, err := fx.svc.MarkAsRead(ctx, n1.ID)
		require.NoError(t, err)
		assert.Equal(t, n.ReadAt, again.ReadAt)
	})

	t.Run("a failed notification cannot be read", func(t *testing.T) {
		_, err := fx.svc.MarkAsRead(ctx, failed.ID)
		assert.True(t, core.IsInvalidState(err), "error = %v", err)
	})

	t.Run("all", func(t *testing.T) {
		changed, err := fx.svc.MarkAllAsRead(ctx, stu.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, changed)

		n, err := fx.svc.Get(ctx, n2.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusRead, n.Status)

		cnt, err := fx.svc.UnreadCount(ctx, stu.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, cnt)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := fx.svc.MarkAsRead(ctx, "nope")
		assert.True(t, core.IsNotFound(err), "error = %v", err)
	})
}

func Test_service_SendPaymentConfirmation(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	stu := testutil.CreateStudent(t, fx.students, "Hero", "hero@test.cd", "")

	n, err := fx.svc.SendPaymentConfirmation(ctx, stu.ID, notification.PaymentConfirmation{
		LedgerID:      "ledger",
		InstallmentID: "inst-1",
		Amount:        4000,
		TransactionID: "TX-9",
		PaidDate:      now,
		RemainingFees: 4500,
	})
	require.NoError(t, err)
	assert.Equal(t, notification.TypePaymentConfirmation, n.Type)
	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Equal(t, "Payment received", n.Title)
	assert.Equal(t,
		"Dear Hero, we received your payment of 4000 on 2024-06-10 (transaction TX-9). Your remaining balance is 4500.",
		n.Message,
	)
}
