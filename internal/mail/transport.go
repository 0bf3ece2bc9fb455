// Package mail delivers rendered notifications through SES, SMTP or the
// application log.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"clinic-forms/internal/common/logger"
	"clinic-forms/internal/notification"
)

var ErrSendFailed = errors.New("mail send failed")

// Transport sends one message and returns the provider message id.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *notification.Message) (string, error)
}

// LogTransport writes messages to the log instead of delivering them. Used in
// development.
type LogTransport struct {
	from   string
	logger logger.Logger
}

func NewLogTransport(from string, log logger.Logger) *LogTransport {
	return &LogTransport{from: from, logger: log.WithFields(map[string]interface{}{"component": "mail", "provider": "log"})}
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(ctx context.Context, msg *notification.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	id := "log-" + uuid.NewString()
	t.logger.Info("notification", map[string]interface{}{
		"messageId": id,
		"from":      t.from,
		"to":        msg.Recipients,
		"replyTo":   msg.ReplyTo,
		"subject":   msg.Subject,
		"form":      msg.Form,
		"reference": msg.Reference,
		"body":      msg.Text,
	})
	return id, nil
}
