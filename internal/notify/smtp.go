// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers verification and password-reset codes.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// SMTPConfig configures the SMTP notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// ImplicitTLS dials with TLS instead of upgrading with STARTTLS.
	// Port 465 always uses implicit TLS.
	ImplicitTLS bool
}

// SMTPNotifier sends codes by email.
type SMTPNotifier struct {
	cfg      SMTPConfig
	messages *Messages
	dialer   func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Compile-time interface check.
var _ auth.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier creates an SMTPNotifier.
func NewSMTPNotifier(cfg SMTPConfig, messages *Messages) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if messages == nil {
		messages = DefaultMessages()
	}
	d := &net.Dialer{Timeout: 10 * time.Second}
	return &SMTPNotifier{cfg: cfg, messages: messages, dialer: d.DialContext}, nil
}

// SendVerification emails a signup verification code.
func (n *SMTPNotifier) SendVerification(ctx context.Context, email, code string) error {
	subject, body, err := n.messages.Verification(code)
	if err != nil {
		return err
	}
	return n.send(ctx, email, subject, body)
}

// SendPasswordReset emails a password reset code.
func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, email, code string) error {
	subject, body, err := n.messages.PasswordReset(code)
	if err != nil {
		return err
	}
	return n.send(ctx, email, subject, body)
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	implicitTLS := n.cfg.ImplicitTLS || n.cfg.Port == 465

	conn, err := n.dialer(ctx, "tcp", addr)
	if err != nil {
		return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "dial").With("addr", addr).Wrap(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // best effort; the send fails on its own if the deadline is not applied
	}
	if implicitTLS {
		conn = tls.Client(conn, &tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12})
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "handshake").With("addr", addr).Wrap(err)
	}
	defer func() { _ = c.Close() }()

	if !implicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "starttls").Wrap(err)
			}
		}
	}
	if n.cfg.Username != "" {
		plain := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := c.Auth(plain); err != nil {
			return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "auth").Wrap(err)
		}
	}

	if err := c.Mail(n.cfg.From); err != nil {
		return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "mail from").Wrap(err)
	}
	if err := c.Rcpt(to); err != nil {
		return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "rcpt to").With("to", to).Wrap(err)
	}
	wc, err := c.Data()
	if err != nil {
		return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "data").Wrap(err)
	}
	if _, err := wc.Write([]byte(buildMessage(n.cfg.From, to, subject, body))); err != nil {
		_ = wc.Close()
		return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "write body").Wrap(err)
	}
	if err := wc.Close(); err != nil {
		return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "end data").Wrap(err)
	}
	if err := c.Quit(); err != nil {
		return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "quit").Wrap(err)
	}
	return nil
}

// buildMessage renders a plain-text RFC 5322 message.
func buildMessage(from, to, subject, body string) string {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.NewString(), domainOf(from)))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	sb.WriteString("\r\n")
	return sb.String()
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return strings.TrimSuffix(addr[i+1:], ">")
	}
	return "localhost"
}
