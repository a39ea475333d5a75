package email

import (
	"context"
	"fmt"
	"net/smtp"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if len(to) == 0 {
		return fmt.Errorf("smtp: no recipients")
	}
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to[0], subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, to, msg)
}
