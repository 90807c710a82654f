package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
)

var messages = template.Must(template.New("whatsapp").Option("missingkey=zero").Parse(`
{{define "payment_success"}}Halo {{.name}}, pembayaran Anda untuk {{.item}} sebesar Rp {{.amount}} telah kami terima (Invoice {{.invoice}}). Terima kasih!{{end}}
{{define "credit_topup"}}Halo {{.name}}, top up {{.credits}} kredit berhasil. Saldo kredit Anda sekarang {{.balance}}.{{end}}
{{define "event_ticket"}}Halo {{.name}}, tiket Anda untuk {{.event}} sudah terkonfirmasi (Invoice {{.invoice}}).{{end}}
`))

// Sender delivers outbox rows on the whatsapp channel. A row with no
// template sends data["message"] as is.
type Sender struct {
	client *Client
}

func NewSender(client *Client) *Sender {
	return &Sender{client: client}
}

func (s *Sender) Channel() domain.Channel { return domain.ChannelWhatsapp }

func (s *Sender) Send(ctx context.Context, delivery domain.Delivery) error {
	text, err := renderMessage(delivery)
	if err != nil {
		return err
	}
	return s.client.SendText(ctx, delivery.Recipient, text)
}

func renderMessage(delivery domain.Delivery) (string, error) {
	if delivery.Template == "" {
		text, _ := delivery.Data["message"].(string)
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("%w: empty whatsapp message", domain.ErrPermanent)
		}
		return text, nil
	}
	if messages.Lookup(delivery.Template) == nil {
		return "", fmt.Errorf("%w: unknown whatsapp template %q", domain.ErrPermanent, delivery.Template)
	}
	var b strings.Builder
	if err := messages.ExecuteTemplate(&b, delivery.Template, delivery.Data); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPermanent, err)
	}
	return b.String(), nil
}

// NoOpSender drops whatsapp messages when Starsender is not configured.
type NoOpSender struct{}

func (NoOpSender) Channel() domain.Channel { return domain.ChannelWhatsapp }

func (NoOpSender) Send(ctx context.Context, delivery domain.Delivery) error { return nil }
