package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/orderportal/pkg/logger"
)

// Message is one outgoing email.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer hands an email to a delivery channel.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// PubSubMailer publishes email requests to the mail topic for an external sender.
type PubSubMailer struct {
	publish func(ctx context.Context, msg *pubsub.Message) (string, error)
}

// NewPubSubMailer wraps the mail topic publisher.
func NewPubSubMailer(publisher *pubsub.Publisher) (*PubSubMailer, error) {
	if publisher == nil {
		return nil, fmt.Errorf("mail publisher required")
	}
	return &PubSubMailer{
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return publisher.Publish(ctx, msg).Get(ctx)
		},
	}, nil
}

func (m *PubSubMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mail recipient required")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}
	_, err = m.publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": "email"},
	})
	if err != nil {
		return fmt.Errorf("publish mail: %w", err)
	}
	return nil
}

// LogMailer writes emails to the log. Used when no mail topic is configured.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if m.logg == nil {
		return nil
	}
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"to":      msg.To,
		"subject": msg.Subject,
	}), "mail.logged")
	return nil
}
