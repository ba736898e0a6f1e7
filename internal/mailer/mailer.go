// Package mailer sends operational notification emails over SMTP.
package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"blogforge/internal/config"
)

// Mailer sends notifications through a shared SMTP relay. A Mailer built
// from an empty MAIL_SERVER silently drops messages so mail stays optional.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	sender   string
}

func New(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.MailServer,
		port:     cfg.MailPort,
		username: cfg.MailUsername,
		password: cfg.MailPassword,
		sender:   cfg.MailDefaultSender,
	}
}

// Enabled reports whether a relay is configured.
func (m *Mailer) Enabled() bool {
	return m.host != ""
}

// SendBackupNotification emails the user that a backup archive was written.
func (m *Mailer) SendBackupNotification(to, username, filename string) error {
	subject := "Your blog backup is ready"
	body := fmt.Sprintf(
		"Hi %s,\n\nA backup of your blog data was created successfully.\n\nArchive: %s\n\nThis is an automated message.\n",
		username, filename,
	)
	return m.send(to, subject, body)
}

func (m *Mailer) send(to, subject, body string) error {
	if !m.Enabled() {
		return nil
	}

	sender := m.sender
	if sender == "" {
		sender = m.username
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", sender)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := smtp.SendMail(addr, auth, sender, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
