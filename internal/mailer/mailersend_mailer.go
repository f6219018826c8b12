package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSend struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	Enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSend {
	m := &MailerSend{
		Enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}
	if m.Enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *MailerSend) Send(toEmail, toName, subject, text, html string) (string, error) {
	if !m.Enabled {
		return "", errors.New("mailer disabled (missing MAILERSEND_API_KEY or SMTP_FROM)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)
	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	// MailerSend uses X-Message-Id
	return res.Header.Get("X-Message-Id"), nil
}

func (m *MailerSend) SendPassCredential(toEmail, visitorName, otp, payload string) error {
	subject := "Your visitor pass"
	text := fmt.Sprintf("Hello %s,\n\nYour entry code is %s. Show it (or the QR code) at the gate.\n", visitorName, otp)
	html := fmt.Sprintf(
		"<p>Hello %s,</p><p>Your entry code is <b>%s</b>. Show it (or the QR code) at the gate.</p><pre>%s</pre>",
		visitorName, otp, payload,
	)
	_, err := m.Send(toEmail, visitorName, subject, text, html)
	return err
}
