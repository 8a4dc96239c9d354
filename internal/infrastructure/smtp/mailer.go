package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/guestlist-api/internal/config"
)

// Mailer sends plain-text emails.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
	dialer   net.Dialer
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
	}
}

// SendEmail runs one SMTP session bounded by ctx's deadline.
func (m *mailer) SendEmail(ctx context.Context, to, subject, body string) error {
	conn, err := m.dialer.DialContext(ctx, "tcp", net.JoinHostPort(m.host, m.port))
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMessage(m.from, to, subject, body, time.Now())); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// CodeSender delivers verification codes by email.
type CodeSender struct {
	mailer Mailer
	ttl    time.Duration
}

func NewCodeSender(m Mailer, ttl time.Duration) *CodeSender {
	return &CodeSender{mailer: m, ttl: ttl}
}

func (s *CodeSender) Send(ctx context.Context, subject, code string) error {
	body := fmt.Sprintf("Your verification code is %s.\r\nIt expires in %d minutes. If you did not request it, ignore this email.\r\n",
		code, int(s.ttl.Minutes()))
	return s.mailer.SendEmail(ctx, subject, "Your verification code", body)
}
