// Package mail sends plain text notifications over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/config"
)

// Message is one outgoing mail.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP delivers through an SMTP relay with PLAIN auth when credentials are
// set.
type SMTP struct {
	cfg  config.MailSettings
	send sendFunc
}

// NewSMTP creates an SMTP sender.
func NewSMTP(cfg config.MailSettings) *SMTP {
	return &SMTP{cfg: cfg, send: smtp.SendMail}
}

// Send implements Sender. The context only bounds the wait; net/smtp
// cannot cancel an exchange in progress.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mail: no recipients")
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	done := make(chan error, 1)
	go func() { done <- s.send(addr, auth, s.cfg.From, msg.To, s.render(msg)) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mail: send to %s: %w", strings.Join(msg.To, ","), err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SMTP) render(msg Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(msg.Body)
	return buf.Bytes()
}

// Log writes messages to the log instead of sending them. It is used when
// no SMTP host is configured.
type Log struct {
	log *zap.Logger
}

// NewLog creates a logging sender.
func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("mail")}
}

// Send implements Sender.
func (l *Log) Send(_ context.Context, msg Message) error {
	l.log.Info("mail not sent, no smtp host configured",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// New returns an SMTP sender, or a logging sender when cfg has no host.
func New(cfg config.MailSettings, log *zap.Logger) Sender {
	if cfg.Host == "" {
		return NewLog(log)
	}
	return NewSMTP(cfg)
}
