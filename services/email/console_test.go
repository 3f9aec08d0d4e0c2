package emailsvc

import (
	"context"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolfees/core"
)

func TestConsoleService_SendMessage(t *testing.T) {
	conf := &core.Config{AppName: "Sunrise Academy", DefaultFromEmail: mail.Address{Name: "Sunrise Academy", Address: "noreply@test.cd"}}
	svc := NewConsoleServiceMock(conf)
	to := []mail.Address{{Name: "Hero", Address: "hero@test.cd"}}

	tests := []struct {
		name    string
		msg     core.EmailMessage
		wantErr bool
	}{
		{name: "plain body", msg: core.EmailMessage{To: to, Subject: "Hi", BodyStr: "hello"}},
		{
			name: "template",
			msg: core.EmailMessage{
				To: to, Subject: "Payment received", TemplateName: "notification",
				TemplateData: map[string]string{"Title": "Payment received", "Message": "Thanks"},
			},
		},
		{name: "no recipient", msg: core.EmailMessage{Subject: "Hi", BodyStr: "hello"}, wantErr: true},
		{name: "no content", msg: core.EmailMessage{To: to, Subject: "Hi"}, wantErr: true},
		{name: "unknown template", msg: core.EmailMessage{To: to, TemplateName: "nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc.Reset()
			msg := tt.msg
			err := svc.SendMessage(context.Background(), &msg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, svc.Sent())
				return
			}
			require.NoError(t, err)
			assert.Len(t, svc.Sent(), 1)
			assert.True(t, msg.HasContent())
		})
	}

	t.Run("rendered template", func(t *testing.T) {
		svc.Reset()
		msg := core.EmailMessage{
			To: to, TemplateName: "notification",
			TemplateData: map[string]string{"Title": "Installment due today", "Message": "Please pay"},
		}
		require.NoError(t, svc.SendMessage(context.Background(), &msg))
		assert.Contains(t, msg.TextContent, "Installment due today")
		assert.Contains(t, msg.TextContent, "Sunrise Academy")
		assert.Contains(t, msg.HTMLContent, "Please pay")
	})
}
