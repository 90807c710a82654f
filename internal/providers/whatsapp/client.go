package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/eksporyuk/internal/notification/domain"
)

const defaultBaseURL = "https://api.starsender.online/api"

type Config struct {
	APIKey   string
	BaseURL  string
	DeviceID string
	Timeout  time.Duration
}

// Client sends text messages through the Starsender API.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type sendRequest struct {
	DeviceID string `json:"device_id,omitempty"`
	Number   string `json:"number"`
	Message  string `json:"message"`
	Type     string `json:"type"`
}

// SendText posts one message. 4xx responses other than 429 are permanent.
func (c *Client) SendText(ctx context.Context, phone, message string) error {
	number := NormalizePhone(phone)
	if number == "" {
		return fmt.Errorf("%w: empty phone number", domain.ErrPermanent)
	}
	body, err := json.Marshal(sendRequest{DeviceID: c.cfg.DeviceID, Number: number, Message: message, Type: "text"})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("starsender request: %w", err)
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("starsender status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", domain.ErrPermanent, err)
	}
	return err
}

// NormalizePhone strips separators and rewrites local numbers to the 62
// country prefix.
func NormalizePhone(phone string) string {
	phone = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	switch {
	case phone == "":
		return ""
	case strings.HasPrefix(phone, "62"):
		return phone
	case strings.HasPrefix(phone, "0"):
		return "62" + phone[1:]
	default:
		return "62" + phone
	}
}
