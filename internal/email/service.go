package email

import (
	"strconv"

	"aspire-sync/internal/config"

	"go.uber.org/zap"
)

// Sender delivers alert mail. Implementations must be safe to call when no
// SMTP host is configured.
type Sender interface {
	Send(to []string, subject, body string) error
}

type Service struct {
	smtp SMTPConfig
	log  *zap.Logger
}

func NewService(cfg *config.Config, log *zap.Logger) Sender {
	port, _ := strconv.Atoi(cfg.SMTPPort)
	if port == 0 {
		port = 587
	}
	return &Service{
		smtp: SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     port,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		},
		log: log,
	}
}

func (s *Service) Send(to []string, subject, body string) error {
	if s.smtp.Host == "" {
		s.log.Debug("smtp not configured, skipping alert mail", zap.String("subject", subject))
		return nil
	}
	return SendSMTP(s.smtp, &Email{
		From:    s.smtp.From,
		To:      to,
		Subject: subject,
		Body:    body,
	})
}
