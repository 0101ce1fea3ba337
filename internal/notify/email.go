package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/xnetvn/monitord/internal/config"
	"github.com/xnetvn/monitord/internal/events"
)

// emailSender delivers alerts over SMTP.
type emailSender struct {
	cfg    config.EmailChannel
	dialer *gomail.Dialer
}

func newEmailSender(cfg config.EmailChannel) *emailSender {
	dialer := gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	dialer.SSL = cfg.SMTP.UseSSL
	return &emailSender{cfg: cfg, dialer: dialer}
}

func (s *emailSender) Name() string { return "email" }

func (s *emailSender) Send(ctx context.Context, event events.Event, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.cfg.ToAddresses) == 0 {
		return fmt.Errorf("email: no to_addresses configured")
	}

	m := gomail.NewMessage()
	from := s.cfg.FromAddress
	if s.cfg.FromName != "" {
		from = m.FormatAddress(s.cfg.FromAddress, s.cfg.FromName)
	}
	m.SetHeader("From", from)
	m.SetHeader("To", s.cfg.ToAddresses...)
	m.SetHeader("Subject", s.subject(event))

	if s.cfg.HTMLTemplate {
		m.SetBody("text/html", renderHTML(event, body))
	} else {
		m.SetBody("text/plain", body)
	}

	// gomail dials synchronously; the dispatcher's per-send timeout bounds
	// the goroutine, and SMTP servers close idle dials themselves.
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *emailSender) subject(event events.Event) string {
	prefix := s.cfg.SubjectPrefix
	if prefix == "" {
		prefix = "[monitord]"
	}
	return fmt.Sprintf("%s %s: %s", prefix, strings.ToUpper(string(event.Severity)), event.Message)
}

func renderHTML(event events.Event, body string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(fmt.Sprintf("<h3>%s</h3>", html.EscapeString(event.Message)))
	b.WriteString(fmt.Sprintf("<p><b>Severity:</b> %s<br><b>Source:</b> %s<br><b>Time:</b> %s</p>",
		html.EscapeString(string(event.Severity)),
		html.EscapeString(string(event.Source)),
		event.Timestamp.Format("2006-01-02 15:04:05 MST")))
	b.WriteString(fmt.Sprintf("<pre>%s</pre>", html.EscapeString(body)))
	b.WriteString("</body></html>")
	return b.String()
}
