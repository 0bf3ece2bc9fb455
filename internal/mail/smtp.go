package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"clinic-forms/internal/notification"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	From     string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPTransport struct {
	config SMTPConfig
	send   sendFunc
	now    func() time.Time
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	t := &SMTPTransport{config: cfg, now: time.Now}
	t.send = smtp.SendMail
	if cfg.UseTLS {
		t.send = t.sendWithTLS
	}
	return t
}

func (t *SMTPTransport) Name() string { return "smtp" }

// Send delivers msg. The SMTP client has no context support, so a cancelled
// ctx abandons the wait but not the dial already in progress.
func (t *SMTPTransport) Send(ctx context.Context, msg *notification.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: context cancelled before sending: %w", ErrSendFailed, err)
	}

	id := t.messageID(msg)
	raw, err := t.buildMessage(msg, id)
	if err != nil {
		return "", fmt.Errorf("%w: build message: %w", ErrSendFailed, err)
	}

	var auth smtp.Auth
	if t.config.Username != "" && t.config.Password != "" {
		auth = smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)

	done := make(chan error, 1)
	go func() {
		done <- t.send(addr, auth, t.config.From, msg.Recipients, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("%w: smtp: %w", ErrSendFailed, err)
		}
		return id, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	}
}

func (t *SMTPTransport) buildMessage(msg *notification.Message, id string) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	} {
		pw, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", t.config.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.Recipients, ", ")))
	b.WriteString(fmt.Sprintf("Reply-To: %s\r\n", msg.ReplyTo))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	b.WriteString(fmt.Sprintf("Message-ID: %s\r\n", id))
	b.WriteString(fmt.Sprintf("Date: %s\r\n", t.now().UTC().Format(time.RFC1123Z)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", w.Boundary()))
	b.WriteString("\r\n")
	b.Write(body.Bytes())

	return []byte(b.String()), nil
}

func (t *SMTPTransport) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err = client.StartTLS(&tls.Config{ServerName: t.config.Host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}

func (t *SMTPTransport) messageID(msg *notification.Message) string {
	local := msg.Reference
	if local == "" {
		local = msg.Form
	}
	return fmt.Sprintf("<%d.%s@%s>", t.now().UnixNano(), sanitizeLocal(local), t.config.Host)
}

func sanitizeLocal(s string) string {
	out := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, s)
	if len(out) > 32 {
		out = out[:32]
	}
	if out == "" {
		return "form"
	}
	return out
}
