package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/versewise/versewise-server/config"
)

type Service struct {
	cfg *config.EmailConfig
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg}
}

// SendVerification mails the signup verification link.
func (s *Service) SendVerification(to, name, verifyLink string) error {
	subject := "Verify your email - VerseWise"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Georgia, serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #7c5e2a;">Welcome to VerseWise</h2>
        <p>Hello %s,</p>
        <p>Thank you for joining VerseWise. Please confirm your email address to finish setting up your account:</p>
        <div style="text-align: center; margin: 30px 0;">
            <a href="%s" style="background-color: #7c5e2a; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Verify email</a>
        </div>
        <p>Or copy this link into your browser:</p>
        <p style="background-color: #f7f3ea; padding: 10px; word-break: break-all;">%s</p>
        <p>The link is valid for 24 hours. If you did not create this account, you can ignore this message.</p>
        <hr style="border: none; border-top: 1px solid #e5e0d3; margin: 20px 0;">
        <p style="color: #8a8372; font-size: 12px;">This message was sent automatically, please do not reply.</p>
    </div>
</body>
</html>
`, name, verifyLink, verifyLink)

	return s.sendHTML(to, subject, body)
}

// SendPaymentFailed mails the dunning notice when an invoice charge fails.
// The subscription itself is untouched until the provider reports a status
// change.
func (s *Service) SendPaymentFailed(to, name string) error {
	subject := "Payment issue with your VerseWise subscription"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Georgia, serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #7c5e2a;">We couldn't process your payment</h2>
        <p>Hello %s,</p>
        <p>The latest payment for your VerseWise Premium subscription did not go through. Your access is unchanged for now, and the payment will be retried automatically.</p>
        <p>To avoid any interruption, please review your payment method from the account page's billing portal.</p>
        <hr style="border: none; border-top: 1px solid #e5e0d3; margin: 20px 0;">
        <p style="color: #8a8372; font-size: 12px;">This message was sent automatically, please do not reply.</p>
    </div>
</body>
</html>
`, name)

	return s.sendHTML(to, subject, body)
}

// SendPremiumWelcome mails the premium activation note.
func (s *Service) SendPremiumWelcome(to, name string) error {
	subject := "Welcome to VerseWise Premium"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Georgia, serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #7c5e2a;">Your Premium access is active</h2>
        <p>Hello %s,</p>
        <p>Thank you for subscribing to VerseWise Premium. You now have:</p>
        <ul>
            <li>Unlimited daily conversations</li>
            <li>Streamed answers as they are written</li>
            <li>Priority access during busy hours</li>
        </ul>
        <p>May your study be fruitful.</p>
        <hr style="border: none; border-top: 1px solid #e5e0d3; margin: 20px 0;">
        <p style="color: #8a8372; font-size: 12px;">This message was sent automatically, please do not reply.</p>
    </div>
</body>
</html>
`, name)

	return s.sendHTML(to, subject, body)
}

// sendHTML delivers one HTML mail over SMTP.
func (s *Service) sendHTML(to, subject, body string) error {
	headers := make(map[string]string)
	headers["From"] = s.cfg.From
	headers["To"] = to
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"

	var msg strings.Builder
	for k, v := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}
