package mailer

import (
	"github.com/avms/gatepass/pkg/logger"
)

// DevMailer prints credentials to the log instead of sending mail.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	logger.Info("[DEV MAIL]",
		"to", toEmail,
		"name", toName,
		"subject", subject,
		"text", text,
	)
	return "dev", nil
}

func (d *DevMailer) SendPassCredential(toEmail, visitorName, otp, payload string) error {
	logger.Info("[DEV MAIL] Visitor pass credential",
		"to", toEmail,
		"visitor", visitorName,
		"otp", otp,
		"payload", payload,
	)
	return nil
}
