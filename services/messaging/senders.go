// Package messaging holds the notification.Sender implementations, one per channel.
package messaging

import (
	"context"
	"io"
	"log"
	"net/mail"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/notification"
)

// EmailSender renders notifications with the "notification" email template.
type EmailSender struct {
	mailSvc core.EmailService
}

var _ notification.Sender = (*EmailSender)(nil)

func NewEmailSender(mailSvc core.EmailService) *EmailSender {
	return &EmailSender{mailSvc: mailSvc}
}

func (s EmailSender) Send(ctx context.Context, msg notification.Message) error {
	to, ok := msg.Recipient.EmailAddress()
	if !ok {
		return errors.Errorf("student %s has no email address", msg.Recipient.ID)
	}
	return s.mailSvc.SendMessage(ctx, &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      msg.Notification.Title,
		TemplateName: "notification",
		TemplateData: map[string]string{
			"RecipientName": msg.Recipient.Name,
			"Title":         msg.Notification.Title,
			"Message":       msg.Notification.Message,
		},
	})
}

// ConsoleSender writes SMS & push messages to a std logger. Real gateways plug in behind notification.Sender.
type ConsoleSender struct {
	channel notification.Channel
	std     *log.Logger
}

var _ notification.Sender = (*ConsoleSender)(nil)

func NewConsoleSender(channel notification.Channel, w io.Writer) *ConsoleSender {
	return &ConsoleSender{
		channel: channel,
		std:     log.New(w, "["+string(channel)+"] ", log.LstdFlags),
	}
}

func (s ConsoleSender) Send(ctx context.Context, msg notification.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := msg.Recipient.Phone
	if s.channel == notification.ChannelPush {
		to = msg.Recipient.ID
	}
	if to == "" {
		return errors.Errorf("student %s cannot be reached by %s", msg.Recipient.ID, s.channel)
	}
	s.std.Printf("to=%s title=%q message=%q", to, msg.Notification.Title, msg.Notification.Message)
	return nil
}

// InAppSender has no transport: the persisted notification is the message.
type InAppSender struct{}

var _ notification.Sender = InAppSender{}

func (InAppSender) Send(context.Context, notification.Message) error { return nil }

// SenderMock records messages and fails on demand.
type SenderMock struct {
	mu       sync.Mutex
	Messages []notification.Message
	FailWith error
}

var _ notification.Sender = (*SenderMock)(nil)

func (s *SenderMock) Send(_ context.Context, msg notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

func (s *SenderMock) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailWith = err
}

func (s *SenderMock) Sent() []notification.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification.Message(nil), s.Messages...)
}

// NewSenders returns the sender of every channel.
func NewSenders(mailSvc core.EmailService, console io.Writer) map[notification.Channel]notification.Sender {
	return map[notification.Channel]notification.Sender{
		notification.ChannelEmail: NewEmailSender(mailSvc),
		notification.ChannelSMS:   NewConsoleSender(notification.ChannelSMS, console),
		notification.ChannelPush:  NewConsoleSender(notification.ChannelPush, console),
		notification.ChannelInApp: InAppSender{},
	}
}
