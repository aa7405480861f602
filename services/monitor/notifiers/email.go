package notifiers

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"propwatch-backend/services/monitor"

	"github.com/jordan-wright/email"
)

type Email struct {
	config SmtpConfig
}

func NewEmail(config SmtpConfig) *Email {
	return &Email{config: config}
}

func (e *Email) Name() string {
	return "email"
}

func (e *Email) Dispatch(ctx context.Context, event monitor.Event) error {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Property Monitor <%s>", e.config.EmailAddress)
	mail.To = []string{e.config.NotifyEmail}
	mail.Subject = fmt.Sprintf(
		"[%s] %s property record: %s",
		event.Record.County, event.Kind, event.Record.Address,
	)
	mail.Text = []byte(formatRecord(event))
	if event.AttachmentPath != "" {
		_, err := mail.AttachFile(event.AttachmentPath)
		if err != nil {
			// attachment is enrichment output, the notification still
			// has everything that matters
			mail.Text = append(mail.Text, []byte(fmt.Sprintf("\n(attachment unavailable: %v)", err))...)
		}
	}

	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", e.config.EmailAddress, e.config.Password, e.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	return err
}
