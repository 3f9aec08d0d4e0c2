package messaging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/notification"
	"github.com/trezcool/schoolfees/core/student"
	"github.com/trezcool/schoolfees/services/email"
)

func testConfig() *core.Config {
	return &core.Config{AppName: "Sunrise Academy"}
}

func message(stu student.Student) notification.Message {
	return notification.Message{
		Recipient: stu,
		Notification: notification.Notification{
			ID:      "n-1",
			Title:   "Installment overdue",
			Message: "Dear Hero, your fee installment is 1 day overdue.",
		},
	}
}

func TestEmailSender_Send(t *testing.T) {
	mailSvc := emailsvc.NewConsoleServiceMock(testConfig())
	sender := NewEmailSender(mailSvc)

	err := sender.Send(context.Background(), message(student.Student{ID: "s-1", Name: "Hero", Email: "hero@test.cd"}))
	require.NoError(t, err)

	sent := mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hero@test.cd", sent[0].To[0].Address)
	assert.Equal(t, "Installment overdue", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "1 day overdue")
	assert.Contains(t, sent[0].HTMLContent, "1 day overdue")

	t.Run("no email address", func(t *testing.T) {
		err := sender.Send(context.Background(), message(student.Student{ID: "s-2", Name: "Ghost"}))
		assert.Error(t, err)
		assert.Len(t, mailSvc.Sent(), 1)
	})

	t.Run("provider failure", func(t *testing.T) {
		mailSvc.Fail(assert.AnError)
		defer mailSvc.Reset()
		err := sender.Send(context.Background(), message(student.Student{ID: "s-1", Email: "hero@test.cd"}))
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestConsoleSender_Send(t *testing.T) {
	tests := []struct {
		name    string
		channel notification.Channel
		stu     student.Student
		wantErr bool
		wantOut string
	}{
		{name: "sms", channel: notification.ChannelSMS, stu: student.Student{ID: "s-1", Phone: "+243000"}, wantOut: "to=+243000"},
		{name: "sms without phone", channel: notification.ChannelSMS, stu: student.Student{ID: "s-1"}, wantErr: true},
		{name: "push", channel: notification.ChannelPush, stu: student.Student{ID: "s-1"}, wantOut: "[PUSH] "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := NewConsoleSender(tt.channel, &out).Send(context.Background(), message(tt.stu))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewConsoleSender(notification.ChannelSMS, new(bytes.Buffer)).Send(ctx, message(student.Student{Phone: "1"}))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewSenders(t *testing.T) {
	senders := NewSenders(emailsvc.NewConsoleServiceMock(testConfig()), new(bytes.Buffer))
	for _, ch := range notification.Channels {
		assert.NotNil(t, senders[ch], "channel %s", ch)
	}
}
