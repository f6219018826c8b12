package mailer

type Service interface {
	Send(toEmail, toName, subject, text, html string) (string, error)
	// SendPassCredential delivers the one-time credential out-of-band:
	// the 4-digit OTP plus the QR payload for rendering on the visitor's
	// side.
	SendPassCredential(toEmail, visitorName, otp, payload string) error
}
