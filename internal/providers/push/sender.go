package push

import (
	"context"
	"fmt"

	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
)

// Sender delivers outbox rows on the push channel. The recipient is the
// platform user id, which is also the OneSignal external user id.
type Sender struct {
	client *Client
}

func NewSender(client *Client) *Sender {
	return &Sender{client: client}
}

func (s *Sender) Channel() domain.Channel { return domain.ChannelPush }

func (s *Sender) Send(ctx context.Context, delivery domain.Delivery) error {
	content, _ := delivery.Data["message"].(string)
	if content == "" {
		return fmt.Errorf("%w: empty push message", domain.ErrPermanent)
	}
	url, _ := delivery.Data["url"].(string)
	return s.client.Send(ctx, Notification{
		ExternalUserIDs: []string{delivery.Recipient},
		Heading:         delivery.Subject,
		Content:         content,
		URL:             url,
		Data:            map[string]any{"kind": string(delivery.Kind)},
	})
}

// NoOpSender drops push messages when OneSignal is not configured.
type NoOpSender struct{}

func (NoOpSender) Channel() domain.Channel { return domain.ChannelPush }

func (NoOpSender) Send(ctx context.Context, delivery domain.Delivery) error { return nil }
