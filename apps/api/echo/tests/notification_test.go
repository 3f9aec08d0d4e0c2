package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolfees/apps/api/echo"
	"github.com/trezcool/schoolfees/core/duedate"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/notification"
	"github.com/trezcool/schoolfees/tests"
)

func Test_notificationApi_checkDueDates(t *testing.T) {
	e := setup(t)
	stu := testutil.CreateStudent(t, e.students, "Hero", "hero@test.cd", "")
	overdue := fee.NewInstallment(1000, now.AddDate(0, 0, -1), "")
	dueToday := fee.NewInstallment(2000, now, "")
	ldg := testutil.CreateLedger(t, e.ledgers, stu.ID, 3000, overdue, dueToday)

	t.Run("cashiers cannot scan", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/notifications/check-due-dates", e.cashierToken)
		e.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	req, rec := newAuthRequest(http.MethodPost, "/api/notifications/check-due-dates", e.adminToken)
	e.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res duedate.ScanResult
	unmarshallObj(t, rec, &res)
	assert.Equal(t, 1, res.Ledgers)
	assert.Equal(t, 1, res.Overdue)
	assert.Equal(t, 1, res.DueToday)
	assert.Equal(t, 1, res.MarkedOverdue)
	assert.Equal(t, 1, res.LateFeesApplied)
	assert.Equal(t, int64(50), res.LateFeeAmount)
	assert.Equal(t, 2, res.RemindersSent)
	assert.Empty(t, res.Failures)

	got := e.ledger(t, ldg.ID)
	inst, _ := got.Installment(overdue.ID)
	assert.Equal(t, fee.StatusOverdue, inst.Status)
	assert.Equal(t, int64(1050), inst.DueAmount)

	t.Run("scan in progress", func(t *testing.T) {
		unlock, err := e.locker.Lock(context.Background(), "schoolfees:duedate-scan", time.Minute)
		require.NoError(t, err)
		defer func() { _ = unlock(context.Background()) }()

		req, rec := newAuthRequest(http.MethodPost, "/api/notifications/check-due-dates", e.adminToken)
		e.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: duedate.ErrScanInProgress.Error()}),
		}, rec)
	})

	t.Run("metrics", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/metrics")
		e.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "schoolfees_notifications_dispatched_total")
	})
}

func Test_notificationApi_dueAmounts(t *testing.T) {
	e := setup(t)
	stu := testutil.CreateStudent(t, e.students, "Hero", "hero@test.cd", "")
	stuToken := getToken(t, stu.ID, echoapi.RoleStudent)
	inst1 := fee.NewInstallment(1000, now.AddDate(0, 0, -3), "")
	inst2 := fee.NewInstallment(2000, now.AddDate(0, 0, 4), "")
	testutil.CreateLedger(t, e.ledgers, stu.ID, 3000, inst1, inst2)

	req, rec := newAuthRequest(http.MethodGet, "/api/notifications/due-installments/"+stu.ID, stuToken)
	e.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var due []fee.DueInstallment
	unmarshallObj(t, rec, &due)
	require.Len(t, due, 2)
	assert.Equal(t, inst1.ID, due[0].InstallmentID)
	assert.Equal(t, 3, due[0].DaysOverdue)
	assert.Equal(t, inst2.ID, due[1].InstallmentID)
	assert.Equal(t, 4, due[1].RemainingDays)

	tests := []httpTest{
		{
			name:     "total due",
			method:   http.MethodGet,
			path:     "/api/notifications/total-due-amount/" + stu.ID,
			token:    stuToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, fee.DueSummary{
				StudentID:      stu.ID,
				TotalDueAmount: 3000,
				GrandTotal:     3000,
				RemainingFees:  3000,
				Installments:   2,
			}),
		},
		{
			name:     "other student",
			method:   http.MethodGet,
			path:     "/api/notifications/total-due-amount/" + stu.ID,
			token:    getToken(t, "someone-else", echoapi.RoleStudent),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "no ledger",
			method:   http.MethodGet,
			path:     "/api/notifications/due-installments/ghost",
			token:    e.cashierToken,
			wantCode: http.StatusNotFound,
		},
	}
	runHTTPTests(t, e, tests)
}

func Test_notificationApi_feeReminders(t *testing.T) {
	e := setup(t)
	stu1 := testutil.CreateStudent(t, e.students, "One", "one@test.cd", "")
	stu2 := testutil.CreateStudent(t, e.students, "Two", "two@test.cd", "")
	paidUp := testutil.CreateStudent(t, e.students, "Three", "three@test.cd", "")
	testutil.CreateLedger(t, e.ledgers, stu1.ID, 1000, fee.NewInstallment(1000, now.AddDate(0, 0, 7), ""))
	testutil.CreateLedger(t, e.ledgers, stu2.ID, 2000)
	testutil.CreateLedger(t, e.ledgers, paidUp.ID, 0)

	req, rec := newAuthRequest(http.MethodPost, "/api/notifications/fee-reminder/student/"+stu1.ID, e.cashierToken)
	e.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var n notification.Notification
	unmarshallObj(t, rec, &n)
	assert.Equal(t, notification.TypeFeeReminder, n.Type)
	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Equal(t, int64(1000), n.AmountDue)

	tests := []httpTest{
		{
			name:     "fully paid",
			method:   http.MethodPost,
			path:     "/api/notifications/fee-reminder/student/" + paidUp.ID,
			token:    e.cashierToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "student token",
			method:   http.MethodPost,
			path:     "/api/notifications/fee-reminder/student/" + stu1.ID,
			token:    getToken(t, stu1.ID, echoapi.RoleStudent),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "all pending",
			method:   http.MethodPost,
			path:     "/api/notifications/fee-reminder/all-pending",
			token:    e.cashierToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, notification.BulkResult{SuccessCount: 2, Failures: []notification.BulkFailure{}}),
		},
	}
	runHTTPTests(t, e, tests)
	assert.Len(t, e.sender.Sent(), 3)
}

func Test_notificationApi_readTracking(t *testing.T) {
	e := setup(t)
	stu := testutil.CreateStudent(t, e.students, "Hero", "hero@test.cd", "")
	stuToken := getToken(t, stu.ID, echoapi.RoleStudent)
	otherToken := getToken(t, "someone-else", echoapi.RoleStudent)
	testutil.CreateLedger(t, e.ledgers, stu.ID, 1000)

	remind := func() notification.Notification {
		req, rec := newAuthRequest(http.MethodPost, "/api/notifications/fee-reminder/student/"+stu.ID, e.cashierToken)
		e.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var n notification.Notification
		unmarshallObj(t, rec, &n)
		return n
	}
	n1 := remind()
	n2 := remind()
	n3 := remind()

	tests := []httpTest{
		{
			name:     "unread count",
			method:   http.MethodGet,
			path:     "/api/notifications/student/" + stu.ID + "/unread-count",
			token:    stuToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.UnreadCountResponse{UnreadCount: 3}),
		},
		{
			name:     "others cannot read",
			method:   http.MethodPut,
			path:     "/api/notifications/" + n1.ID + "/read",
			token:    otherToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "students cannot ack delivery",
			method:   http.MethodPut,
			path:     "/api/notifications/" + n2.ID + "/delivered",
			token:    stuToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown notification",
			method:   http.MethodPut,
			path:     "/api/notifications/nope/read",
			token:    stuToken,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "only failed notifications can be retried",
			method:   http.MethodPost,
			path:     "/api/notifications/" + n3.ID + "/retry",
			token:    e.cashierToken,
			wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, e, tests)

	t.Run("read", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/notifications/"+n1.ID+"/read", stuToken)
		e.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var n notification.Notification
		unmarshallObj(t, rec, &n)
		assert.Equal(t, notification.StatusRead, n.Status)
		assert.NotNil(t, n.ReadAt)
	})

	t.Run("delivered", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/notifications/"+n2.ID+"/delivered", e.cashierToken)
		e.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var n notification.Notification
		unmarshallObj(t, rec, &n)
		assert.Equal(t, notification.StatusDelivered, n.Status)
	})

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/notifications/student/"+stu.ID+"?status=READ", stuToken)
		e.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var notifs []notification.Notification
		unmarshallObj(t, rec, &notifs)
		require.Len(t, notifs, 1)
		assert.Equal(t, n1.ID, notifs[0].ID)
	})

	t.Run("read all", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/notifications/student/"+stu.ID+"/read-all", stuToken)
		e.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, echoapi.UpdatedResponse{Updated: 2})}, rec)

		req, rec = newAuthRequest(http.MethodGet, "/api/notifications/student/"+stu.ID+"/unread-count", stuToken)
		e.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, echoapi.UnreadCountResponse{})}, rec)
	})
}

func Test_notificationApi_retry(t *testing.T) {
	e := setup(t)
	stu := testutil.CreateStudent(t, e.students, "Hero", "hero@test.cd", "")
	testutil.CreateLedger(t, e.ledgers, stu.ID, 1000)

	e.sender.Fail(assert.AnError)
	req, rec := newAuthRequest(http.MethodPost, "/api/notifications/fee-reminder/student/"+stu.ID, e.cashierToken)
	e.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var n notification.Notification
	unmarshallObj(t, rec, &n)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Equal(t, 1, n.RetryCount)

	e.sender.Fail(nil)
	req, rec = newAuthRequest(http.MethodPost, "/api/notifications/"+n.ID+"/retry", e.cashierToken)
	e.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var retried notification.Notification
	unmarshallObj(t, rec, &retried)
	assert.Equal(t, n.ID, retried.ID)
	assert.Equal(t, notification.StatusSent, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
}
