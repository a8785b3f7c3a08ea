package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

// envelope is the message the mail service consumes from notifications.<template>.
type envelope struct {
	ID        string            `json:"id"`
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data"`
	SentAt    time.Time         `json:"sent_at"`
}

type Notifier struct {
	conn   *Conn
	prefix string
	now    func() time.Time
}

func NewNotifier(conn *Conn, prefix string) *Notifier {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "notifications"
	}
	return &Notifier{conn: conn, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

func (n *Notifier) Send(ctx context.Context, msg domain.Notification) error {
	payload, err := encodeNotification(msg, n.now())
	if err != nil {
		return err
	}
	return n.conn.publish(ctx, "nats.publish_notification", n.subject(msg.Template), payload)
}

func (n *Notifier) subject(template domain.NotificationTemplate) string {
	return n.prefix + "." + string(template)
}

func encodeNotification(msg domain.Notification, at time.Time) ([]byte, error) {
	if msg.Template == "" || strings.TrimSpace(msg.Recipient) == "" {
		return nil, domain.WrapError(domain.ErrValidationFailed, "encode notification", fmt.Errorf("template and recipient are required"))
	}
	data := msg.Data
	if data == nil {
		data = map[string]string{}
	}
	payload, err := json.Marshal(envelope{
		ID:        uuid.NewString(),
		Template:  string(msg.Template),
		Recipient: msg.Recipient,
		Data:      data,
		SentAt:    at,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return payload, nil
}
