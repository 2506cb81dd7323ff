package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"terracrm/config"
)

// Embedded notification email template
var notificationTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>{{.Subject}}</h2>
    </div>

    <div class="content">
        <p>{{.Body}}</p>
    </div>

    <div class="footer">
        <p>© {{.Year}} TerraCRM. Notificação automática do atendimento.</p>
    </div>
</body>
</html>`))

// NotificationMailer sends staff notification emails through the configured
// SMTP relay. It implements pipeline.Mailer.
type NotificationMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewNotificationMailer(cfg config.SMTPConfig) *NotificationMailer {
	return &NotificationMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *NotificationMailer) Send(to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	if m.dialer.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	var html bytes.Buffer
	err := notificationTemplate.Execute(&html, map[string]interface{}{
		"Subject": subject,
		"Body":    body,
		"Year":    time.Now().Year(),
	})
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html.String())

	return m.dialer.DialAndSend(msg)
}
