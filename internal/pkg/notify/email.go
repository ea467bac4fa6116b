package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"todohive/internal/config"
	"todohive/internal/pkg/metrics"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现邮件投递。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendVerificationCode 发送邮箱验证码。
func (n *EmailNotifier) SendVerificationCode(toEmail string, name string, code string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[TodoHive] Verify Your Email")
	m.SetBody("text/html", buildVerificationBody(name, code))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	if metrics.VerificationMailsTotal != nil {
		metrics.VerificationMailsTotal.Inc()
	}
	n.logger.Info("verification email sent", slog.String("to", toEmail))
	return nil
}

func buildVerificationBody(name string, code string) string {
	greeting := "Hello"
	if strings.TrimSpace(name) != "" {
		greeting = "Hello " + name
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>TodoHive Email Verification</h2>
    <p>%s,</p>
    <p>Please enter the code below to verify your email:</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">%s</div>
    <p>This OTP is valid for 10 minutes.</p>
  </div>
</body>
</html>`, greeting, code)
}
