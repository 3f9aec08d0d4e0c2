package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/student"
)

type (
	Repository interface {
		// CreateNotification assigns the notification ID when missing.
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		UpdateNotification(ctx context.Context, n Notification) (Notification, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		// QueryNotifications returns the student's notifications, newest first.
		QueryNotifications(ctx context.Context, studentID string, filter *QueryFilter) ([]Notification, error)
		// FindInstallmentReminder returns the most recent INSTALLMENT_DUE or OVERDUE_REMINDER notification
		// for the (student, installment) pair created at or after `since`, or a *core.NotFoundError.
		FindInstallmentReminder(ctx context.Context, studentID, installmentID string, since time.Time) (Notification, error)
		CountUnread(ctx context.Context, studentID string) (int, error)
		// MarkAllAsRead moves every SENT or DELIVERED notification of the student to READ and returns how many changed.
		MarkAllAsRead(ctx context.Context, studentID string, readAt time.Time) (int, error)
	}

	// Message is what a Sender receives: the rendered notification & its recipient.
	Message struct {
		Recipient    student.Student
		Notification Notification
	}

	// Sender delivers messages through one Channel. Any error it returns marks the notification FAILED.
	Sender interface {
		Send(ctx context.Context, msg Message) error
	}

	// Outcome tells what SendInstallmentReminder did.
	Outcome string

	Service interface {
		SendReminder(ctx context.Context, studentID string, typ Type, r Reminder) (Notification, error)
		// SendInstallmentReminder de-duplicates reminders per (student, installment) & calendar day.
		SendInstallmentReminder(ctx context.Context, studentID string, typ Type, r Reminder) (Notification, Outcome, error)
		SendPaymentConfirmation(ctx context.Context, studentID string, pc PaymentConfirmation) (Notification, error)
		Retry(ctx context.Context, id string) (Notification, error)
		Get(ctx context.Context, id string) (Notification, error)
		ListByStudent(ctx context.Context, studentID string, filter *QueryFilter) ([]Notification, error)
		UnreadCount(ctx context.Context, studentID string) (int, error)
		MarkAsRead(ctx context.Context, id string) (Notification, error)
		MarkAllAsRead(ctx context.Context, studentID string) (int, error)
		MarkAsDelivered(ctx context.Context, id string) (Notification, error)
	}

	service struct {
		repo            Repository
		students        student.Directory
		senders         map[Channel]Sender
		defaultChannel  Channel
		maxAttempts     int
		dispatchTimeout time.Duration
		metrics         *Metrics
		logger          core.Logger
	}
)

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped" // already reminded today
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(
	conf *core.Config,
	repo Repository,
	students student.Directory,
	senders map[Channel]Sender,
	metrics *Metrics,
	logger core.Logger,
) Service {
	channel := Channel(conf.Notifications.DefaultChannel)
	if !channel.IsValid() {
		channel = ChannelEmail
	}
	maxAttempts := conf.Notifications.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &service{
		repo:            repo,
		students:        students,
		senders:         senders,
		defaultChannel:  channel,
		maxAttempts:     maxAttempts,
		dispatchTimeout: conf.Notifications.DispatchTimeout,
		metrics:         metrics,
		logger:          logger,
	}
}

func (svc *service) channelOrDefault(ch Channel) Channel {
	if ch.IsValid() {
		return ch
	}
	return svc.defaultChannel
}

func (svc *service) newNotification(studentID string, typ Type, ch Channel) Notification {
	now := core.NowFunc().UTC()
	return Notification{
		StudentID: studentID,
		Type:      typ,
		Channel:   svc.channelOrDefault(ch),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (svc *service) SendReminder(ctx context.Context, studentID string, typ Type, r Reminder) (Notification, error) {
	stu, err := svc.students.GetStudent(ctx, studentID)
	if err != nil {
		return Notification{}, err
	}

	n := svc.newNotification(stu.ID, typ, r.Channel)
	n.AmountDue = r.AmountDue
	n.InstallmentID = r.InstallmentID
	n.DaysOverdue = r.DaysOverdue
	n.LateFee = r.LateFee
	if !r.DueDate.IsZero() {
		dueDate := core.DateOf(r.DueDate)
		n.DueDate = &dueDate
	}
	renderReminder(&n, stu, r)

	n, err = svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "creating reminder")
	}
	return svc.dispatch(ctx, n, stu)
}

func (svc *service) SendInstallmentReminder(ctx context.Context, studentID string, typ Type, r Reminder) (Notification, Outcome, error) {
	existing, err := svc.repo.FindInstallmentReminder(ctx, studentID, r.InstallmentID, core.Today())
	switch {
	case err == nil:
		if !existing.CanRetry(svc.maxAttempts) {
			return existing, OutcomeSkipped, nil
		}
		n, err := svc.Retry(ctx, existing.ID)
		return n, outcomeOf(n, err), err
	case !core.IsNotFound(err):
		return Notification{}, OutcomeFailed, errors.Wrap(err, "looking up today's reminder")
	}

	n, err := svc.SendReminder(ctx, studentID, typ, r)
	return n, outcomeOf(n, err), err
}

func outcomeOf(n Notification, err error) Outcome {
	if err != nil || n.Status == StatusFailed {
		return OutcomeFailed
	}
	return OutcomeSent
}

func (svc *service) SendPaymentConfirmation(ctx context.Context, studentID string, pc PaymentConfirmation) (Notification, error) {
	stu, err := svc.students.GetStudent(ctx, studentID)
	if err != nil {
		return Notification{}, err
	}

	n := svc.newNotification(stu.ID, TypePaymentConfirmation, "")
	n.AmountDue = pc.Amount
	n.InstallmentID = pc.InstallmentID
	renderPaymentConfirmation(&n, stu, pc)

	n, err = svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "creating payment confirmation")
	}
	return svc.dispatch(ctx, n, stu)
}

// Retry re-attempts a FAILED notification on the same row.
func (svc *service) Retry(ctx context.Context, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.Status != StatusFailed {
		return Notification{}, core.NewInvalidStateError("notification %s is %s, only failed notifications can be retried", id, n.Status)
	}
	if n.RetryCount >= svc.maxAttempts {
		return Notification{}, core.NewInvalidStateError("notification %s has exhausted its %d attempts", id, svc.maxAttempts)
	}
	stu, err := svc.students.GetStudent(ctx, n.StudentID)
	if err != nil {
		return Notification{}, err
	}
	if err := n.transition(StatusPending, core.NowFunc().UTC()); err != nil {
		return Notification{}, err
	}
	return svc.dispatch(ctx, n, stu)
}

// dispatch hands a PENDING notification to its channel's Sender and persists the outcome.
// Dispatch failures are recorded on the notification, never returned.
func (svc *service) dispatch(ctx context.Context, n Notification, stu student.Student) (Notification, error) {
	started := time.Now()
	sendErr := svc.send(ctx, n, stu)

	now := core.NowFunc().UTC()
	if sendErr != nil {
		_ = n.markFailed(sendErr, now)
		svc.logger.Warn("dispatching notification", sendErr, map[string]interface{}{
			"notification": n.ID,
			"student":      n.StudentID,
			"retryCount":   n.RetryCount,
		})
	} else {
		_ = n.markSent(now)
	}
	svc.metrics.observe(n, started)

	updated, err := svc.repo.UpdateNotification(ctx, n)
	if err != nil {
		return n, errors.Wrap(err, "saving dispatch outcome")
	}
	return updated, nil
}

func (svc *service) send(ctx context.Context, n Notification, stu student.Student) (err error) {
	sender, ok := svc.senders[n.Channel]
	if !ok || sender == nil {
		return core.NewDispatchError(string(n.Channel), errors.New("no sender configured"))
	}
	if svc.dispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.dispatchTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = core.NewDispatchError(string(n.Channel), errors.Errorf("sender panicked: %v", r))
		}
	}()
	if err := sender.Send(ctx, Message{Recipient: stu, Notification: n}); err != nil {
		return core.NewDispatchError(string(n.Channel), err)
	}
	return nil
}

func (svc *service) Get(ctx context.Context, id string) (Notification, error) {
	return svc.repo.GetNotification(ctx, id)
}

func (svc *service) ListByStudent(ctx context.Context, studentID string, filter *QueryFilter) ([]Notification, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryNotifications(ctx, core.CleanString(studentID), filter)
}

func (svc *service) UnreadCount(ctx context.Context, studentID string) (int, error) {
	return svc.repo.CountUnread(ctx, core.CleanString(studentID))
}

func (svc *service) MarkAsRead(ctx context.Context, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.Status == StatusRead {
		return n, nil
	}
	if err := n.MarkAsRead(core.NowFunc().UTC()); err != nil {
		return Notification{}, err
	}
	return svc.repo.UpdateNotification(ctx, n)
}

func (svc *service) MarkAllAsRead(ctx context.Context, studentID string) (int, error) {
	return svc.repo.MarkAllAsRead(ctx, core.CleanString(studentID), core.NowFunc().UTC())
}

func (svc *service) MarkAsDelivered(ctx context.Context, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.Status == StatusDelivered || n.Status == StatusRead {
		return n, nil
	}
	if err := n.MarkAsDelivered(core.NowFunc().UTC()); err != nil {
		return Notification{}, err
	}
	return svc.repo.UpdateNotification(ctx, n)
}
