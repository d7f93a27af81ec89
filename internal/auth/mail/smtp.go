package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/pkg/slogx"
)

type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	UseTLS   bool // implicit TLS (port 465); otherwise STARTTLS when offered
	Timeout  time.Duration
}

// SMTPSender delivers emails through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	host string
	auth smtp.Auth
	log  *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) (*SMTPSender, error) {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("mail: invalid smtp address %q: %w", cfg.Addr, err)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mail: from address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var auth smtp.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}

	return &SMTPSender{
		cfg:  cfg,
		host: host,
		auth: auth,
		log:  logger.With(slog.String("component", "mail.smtp")),
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg domain.EmailMessage) error {
	start := time.Now()
	log := s.log.With(
		slog.String("smtp_addr", s.cfg.Addr),
		slog.Bool("tls", s.cfg.UseTLS),
		slog.String("kind", string(msg.Kind)),
		slogx.Email(msg.To),
	)

	conn, err := s.dial(ctx)
	if err != nil {
		log.Error("smtp dial failed", slog.Any("error", err))
		return fmt.Errorf("mail: dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mail: smtp client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if !s.cfg.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("mail: starttls: %w", err)
			}
		}
	}
	if s.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(s.auth); err != nil {
				log.Error("smtp auth failed", slog.Any("error", err))
				return fmt.Errorf("mail: auth: %w", err)
			}
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("mail: RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write(compose(s.cfg.From, msg)); err != nil {
		return fmt.Errorf("mail: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: close data: %w", err)
	}
	if err := c.Quit(); err != nil {
		log.Warn("smtp quit failed", slog.Any("error", err))
	}

	log.Info("email sent", slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *SMTPSender) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: s.cfg.Timeout}
	if s.cfg.UseTLS {
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}}
		return td.DialContext(ctx, "tcp", s.cfg.Addr)
	}
	return d.DialContext(ctx, "tcp", s.cfg.Addr)
}
