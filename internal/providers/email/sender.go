package email

import (
	"context"
	"fmt"

	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
)

// Sender delivers outbox rows on the email channel.
type Sender struct {
	provider Provider
}

func NewSender(provider Provider) *Sender {
	return &Sender{provider: provider}
}

func (s *Sender) Channel() domain.Channel { return domain.ChannelEmail }

func (s *Sender) Send(ctx context.Context, delivery domain.Delivery) error {
	to := []string{delivery.Recipient}
	if delivery.Template == "" {
		body, _ := delivery.Data["body"].(string)
		return s.provider.Send(ctx, to, delivery.Subject, body)
	}

	data := make(map[string]any, len(delivery.Data)+1)
	for k, v := range delivery.Data {
		data[k] = v
	}
	if delivery.Subject != "" {
		data["subject"] = delivery.Subject
	}
	if err := s.provider.SendTemplate(ctx, to, delivery.Template, data); err != nil {
		return fmt.Errorf("send %s email: %w", delivery.Template, err)
	}
	return nil
}
