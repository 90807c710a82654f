package mailinglist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

const defaultBaseURL = "https://api.mailketing.co.id/api/v1"

var ErrRejected = errors.New("mailing_list_rejected")

// Purchase describes what the subscriber bought, sent as list fields so
// campaigns can segment on it.
type Purchase struct {
	Type          string
	Item          string
	TransactionID string
	Amount        int64
}

// Tag is a stable segment name such as membership-paket-pro.
func (p Purchase) Tag() string {
	return slug.Make(strings.TrimSpace(p.Type + " " + p.Item))
}

type Subscription struct {
	ListID   string
	Email    string
	Name     string
	Phone    string
	Purchase Purchase
}

// Subscriber adds a buyer to a mailing list.
type Subscriber interface {
	Subscribe(ctx context.Context, sub Subscription) error
}

type Config struct {
	APIToken string
	BaseURL  string
	Timeout  time.Duration
}

type Mailketing struct {
	cfg  Config
	http *http.Client
}

func NewMailketing(cfg Config) *Mailketing {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Mailketing{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type mailketingResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

func (m *Mailketing) Subscribe(ctx context.Context, sub Subscription) error {
	if sub.ListID == "" || sub.Email == "" {
		return fmt.Errorf("%w: list id and email are required", ErrRejected)
	}
	first, last := splitName(sub.Name)
	form := url.Values{
		"api_token":  {m.cfg.APIToken},
		"list_id":    {sub.ListID},
		"email":      {sub.Email},
		"first_name": {first},
		"last_name":  {last},
		"phone":      {sub.Phone},
		"mobile":     {sub.Phone},
	}
	if sub.Purchase.Type != "" {
		form.Set("purchase_type", sub.Purchase.Type)
		form.Set("purchase_item", sub.Purchase.Item)
		form.Set("purchase_tag", sub.Purchase.Tag())
		form.Set("transaction_id", sub.Purchase.TransactionID)
		form.Set("amount", strconv.FormatInt(sub.Purchase.Amount, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/addsubtolist", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("mailketing request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mailketing status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out mailketingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode mailketing response: %w", err)
	}
	if !strings.EqualFold(out.Status, "success") {
		// Already subscribed is reported as a failure by the API.
		if strings.Contains(strings.ToLower(out.Response), "already") {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrRejected, out.Response)
	}
	return nil
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// NoOp is used when Mailketing is not configured.
type NoOp struct{}

func (NoOp) Subscribe(ctx context.Context, sub Subscription) error { return nil }
