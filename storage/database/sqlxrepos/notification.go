package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/notification"
)

const (
	notificationColumns = `id, student_id, title, message, notification_type, channel, status, due_date, amount_due,
		installment_id, days_overdue, late_fee, retry_count, error_message, created_at, updated_at, sent_date, read_at`

	insertNotificationSQL = `INSERT INTO notifications (` + notificationColumns + `) VALUES (
		:id, :student_id, :title, :message, :notification_type, :channel, :status, :due_date, :amount_due,
		:installment_id, :days_overdue, :late_fee, :retry_count, :error_message, :created_at, :updated_at,
		:sent_date, :read_at)`

	updateNotificationSQL = `UPDATE notifications SET
		title = :title, message = :message, channel = :channel, status = :status, retry_count = :retry_count,
		error_message = :error_message, updated_at = :updated_at, sent_date = :sent_date, read_at = :read_at
		WHERE id = :id`
)

type notificationRow struct {
	ID            string      `db:"id"`
	StudentID     string      `db:"student_id"`
	Title         string      `db:"title"`
	Message       string      `db:"message"`
	Type          string      `db:"notification_type"`
	Channel       string      `db:"channel"`
	Status        string      `db:"status"`
	DueDate       null.Time   `db:"due_date"`
	AmountDue     int64       `db:"amount_due"`
	InstallmentID null.String `db:"installment_id"`
	DaysOverdue   int         `db:"days_overdue"`
	LateFee       int64       `db:"late_fee"`
	RetryCount    int         `db:"retry_count"`
	ErrorMessage  string      `db:"error_message"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
	SentDate      null.Time   `db:"sent_date"`
	ReadAt        null.Time   `db:"read_at"`
}

func nullTimeFrom(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func toNotificationRow(n notification.Notification) notificationRow {
	return notificationRow{
		ID:            n.ID,
		StudentID:     n.StudentID,
		Title:         n.Title,
		Message:       n.Message,
		Type:          string(n.Type),
		Channel:       string(n.Channel),
		Status:        string(n.Status),
		DueDate:       nullTimeFrom(n.DueDate),
		AmountDue:     n.AmountDue,
		InstallmentID: null.NewString(n.InstallmentID, n.InstallmentID != ""),
		DaysOverdue:   n.DaysOverdue,
		LateFee:       n.LateFee,
		RetryCount:    n.RetryCount,
		ErrorMessage:  n.ErrorMessage,
		CreatedAt:     n.CreatedAt.UTC(),
		UpdatedAt:     n.UpdatedAt.UTC(),
		SentDate:      nullTimeFrom(n.SentDate),
		ReadAt:        nullTimeFrom(n.ReadAt),
	}
}

func (row notificationRow) toNotification() notification.Notification {
	n := notification.Notification{
		ID:            row.ID,
		StudentID:     row.StudentID,
		Title:         row.Title,
		Message:       row.Message,
		Type:          notification.Type(row.Type),
		Channel:       notification.Channel(row.Channel),
		Status:        notification.Status(row.Status),
		AmountDue:     row.AmountDue,
		InstallmentID: row.InstallmentID.String,
		DaysOverdue:   row.DaysOverdue,
		LateFee:       row.LateFee,
		RetryCount:    row.RetryCount,
		ErrorMessage:  row.ErrorMessage,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	if row.DueDate.Valid {
		d := core.DateOf(row.DueDate.Time)
		n.DueDate = &d
	}
	if row.SentDate.Valid {
		t := row.SentDate.Time.UTC()
		n.SentDate = &t
	}
	if row.ReadAt.Valid {
		t := row.ReadAt.Time.UTC()
		n.ReadAt = &t
	}
	return n
}

type notificationRepository struct {
	exec core.DBExecutor
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) *notificationRepository {
	return &notificationRepository{exec: exec}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, insertNotificationSQL, toNotificationRow(n)); err != nil {
		if pqErrorCode(err) == foreignKeyViolation {
			return notification.Notification{}, core.NewNotFoundError("student", n.StudentID)
		}
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo notificationRepository) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	res, err := sqlx.NamedExecContext(ctx, repo.exec, updateNotificationSQL, toNotificationRow(n))
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return notification.Notification{}, core.NewNotFoundError("notification", n.ID)
	}
	return n, nil
}

func (repo notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return notification.Notification{}, core.NewNotFoundError("notification", id)
	}
	var row notificationRow
	q := "SELECT " + notificationColumns + " FROM notifications WHERE id = $1"
	if err := sqlx.GetContext(ctx, repo.exec, &row, q, id); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, "notification", id, "finding notification")
	}
	return row.toNotification(), nil
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, studentID string, filter *notification.QueryFilter) ([]notification.Notification, error) {
	var w where
	w.add("student_id = ?", studentID)
	if filter != nil {
		if filter.Type != "" {
			w.add("notification_type = ?", string(filter.Type))
		}
		if filter.Status != "" {
			w.add("status = ?", string(filter.Status))
		}
	}

	var rows []notificationRow
	q := "SELECT " + notificationColumns + " FROM notifications" + w.String() + " ORDER BY created_at DESC"
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		notifs = append(notifs, row.toNotification())
	}
	return notifs, nil
}

func (repo notificationRepository) FindInstallmentReminder(ctx context.Context, studentID, installmentID string, since time.Time) (notification.Notification, error) {
	var row notificationRow
	q := "SELECT " + notificationColumns + ` FROM notifications
		WHERE student_id = $1 AND installment_id = $2 AND created_at >= $3 AND notification_type IN ($4, $5)
		ORDER BY created_at DESC LIMIT 1`
	err := sqlx.GetContext(ctx, repo.exec, &row, q,
		studentID, installmentID, since.UTC(),
		string(notification.TypeInstallmentDue), string(notification.TypeOverdueReminder),
	)
	if err != nil {
		return notification.Notification{}, trapNoRowsErr(err, "reminder", installmentID, "finding installment reminder")
	}
	return row.toNotification(), nil
}

func (repo notificationRepository) CountUnread(ctx context.Context, studentID string) (int, error) {
	var cnt int
	q := "SELECT COUNT(*) FROM notifications WHERE student_id = $1 AND status IN ($2, $3)"
	err := sqlx.GetContext(ctx, repo.exec, &cnt, q, studentID, string(notification.StatusSent), string(notification.StatusDelivered))
	if err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return cnt, nil
}

func (repo notificationRepository) MarkAllAsRead(ctx context.Context, studentID string, readAt time.Time) (int, error) {
	q := `UPDATE notifications SET status = $1, read_at = $2, updated_at = $2
		WHERE student_id = $3 AND status IN ($4, $5)`
	res, err := repo.exec.ExecContext(ctx, q,
		string(notification.StatusRead), readAt.UTC(), studentID,
		string(notification.StatusSent), string(notification.StatusDelivered),
	)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications as read")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications as read")
	}
	return int(cnt), nil
}
