package notification

import (
	"time"

	"github.com/trezcool/schoolfees/core"
)

type Type string

const (
	TypeFeeReminder         Type = "FEE_REMINDER"
	TypeInstallmentDue      Type = "INSTALLMENT_DUE"
	TypeOverdueReminder     Type = "OVERDUE_REMINDER"
	TypePaymentConfirmation Type = "PAYMENT_CONFIRMATION"
)

// IsInstallmentReminder reports whether notifications of this type are de-duplicated per installment & day.
func (t Type) IsInstallmentReminder() bool {
	return t == TypeInstallmentDue || t == TypeOverdueReminder
}

type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}

func (c Channel) IsValid() bool {
	for _, ch := range Channels {
		if ch == c {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusFailed    Status = "FAILED"
)

// statusTransitions lists the statuses each status may move to. READ is terminal;
// a FAILED notification goes back to PENDING when it is re-attempted.
var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusSent, StatusFailed},
	StatusFailed:    {StatusPending},
	StatusSent:      {StatusDelivered, StatusRead},
	StatusDelivered: {StatusRead},
	StatusRead:      nil,
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, st := range statusTransitions[s] {
		if st == to {
			return true
		}
	}
	return false
}

// IsUnread reports whether the recipient has yet to acknowledge a dispatched notification.
func (s Status) IsUnread() bool {
	return s == StatusSent || s == StatusDelivered
}

// Notification is one outbound message & the outcome of its dispatch.
type Notification struct {
	ID            string     `json:"id"`
	StudentID     string     `json:"student_id"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	Type          Type       `json:"notification_type"`
	Channel       Channel    `json:"channel"`
	Status        Status     `json:"status"`
	DueDate       *time.Time `json:"due_date"`
	AmountDue     int64      `json:"amount_due"`
	InstallmentID string     `json:"installment_id"`
	DaysOverdue   int        `json:"days_overdue"`
	LateFee       int64      `json:"late_fee"`
	RetryCount    int        `json:"retry_count"`
	ErrorMessage  string     `json:"error_message"`
	CreatedAt     time.Time  `json:"created_at"` // UTC
	UpdatedAt     time.Time  `json:"updated_at"` // UTC
	SentDate      *time.Time `json:"sent_date"`
	ReadAt        *time.Time `json:"read_at"`
}

func (n *Notification) transition(to Status, now time.Time) error {
	if !n.Status.CanTransitionTo(to) {
		return core.NewInvalidStateError("notification %s is %s and cannot become %s", n.ID, n.Status, to)
	}
	n.Status = to
	n.UpdatedAt = now
	return nil
}

func (n *Notification) markSent(now time.Time) error {
	if err := n.transition(StatusSent, now); err != nil {
		return err
	}
	n.SentDate = &now
	n.ErrorMessage = ""
	return nil
}

func (n *Notification) markFailed(cause error, now time.Time) error {
	if err := n.transition(StatusFailed, now); err != nil {
		return err
	}
	n.ErrorMessage = cause.Error()
	n.RetryCount++
	return nil
}

// MarkAsRead is a no-op on a notification that was already read.
func (n *Notification) MarkAsRead(now time.Time) error {
	if n.Status == StatusRead {
		return nil
	}
	if err := n.transition(StatusRead, now); err != nil {
		return err
	}
	n.ReadAt = &now
	return nil
}

// MarkAsDelivered records the transport acknowledgement. Late or repeated acks are ignored.
func (n *Notification) MarkAsDelivered(now time.Time) error {
	if n.Status == StatusDelivered || n.Status == StatusRead {
		return nil
	}
	return n.transition(StatusDelivered, now)
}

// CanRetry reports whether a failed dispatch may be re-attempted under maxAttempts.
func (n Notification) CanRetry(maxAttempts int) bool {
	return n.Status == StatusFailed && n.RetryCount < maxAttempts
}

// Reminder carries the installment context of a fee reminder.
type Reminder struct {
	LedgerID      string
	InstallmentID string
	AcademicYear  string
	DueDate       time.Time
	AmountDue     int64
	LateFee       int64
	DaysOverdue   int
	RemainingFees int64
	Channel       Channel // the service default when empty
}

// PaymentConfirmation carries the details of a settled installment.
type PaymentConfirmation struct {
	LedgerID      string
	InstallmentID string
	Amount        int64
	TransactionID string
	PaymentMode   string
	PaidDate      time.Time
	RemainingFees int64
}

type QueryFilter struct {
	Type   Type   `query:"type"`
	Status Status `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Type = Type(core.CleanString(string(qf.Type)))
	qf.Status = Status(core.CleanString(string(qf.Status)))
}

// BulkResult aggregates the outcome of a reminder batch.
type BulkResult struct {
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Failures     []BulkFailure `json:"failures"`
}

type BulkFailure struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

func (br *BulkResult) AddFailure(studentID string, err error) {
	br.FailureCount++
	br.Failures = append(br.Failures, BulkFailure{StudentID: studentID, Error: err.Error()})
}
