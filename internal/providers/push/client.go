package push

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

const defaultBaseURL = "https://onesignal.com/api/v1"

type Config struct {
	AppID   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client targets users by external id through the OneSignal REST API.
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

type Notification struct {
	ExternalUserIDs []string
	Heading         string
	Content         string
	URL             string
	Data            map[string]any
}

type createRequest struct {
	AppID                  string            `json:"app_id"`
	IncludeExternalUserIDs []string          `json:"include_external_user_ids"`
	Headings               map[string]string `json:"headings"`
	Contents               map[string]string `json:"contents"`
	URL                    string            `json:"url,omitempty"`
	Data                   map[string]any    `json:"data,omitempty"`
}

type createResponse struct {
	ID     string `json:"id"`
	Errors any    `json:"errors"`
}

func (c *Client) Send(ctx context.Context, n Notification) error {
	if len(n.ExternalUserIDs) == 0 {
		return fmt.Errorf("%w: no push recipients", domain.ErrPermanent)
	}
	body, err := json.Marshal(createRequest{
		AppID:                  c.cfg.AppID,
		IncludeExternalUserIDs: n.ExternalUserIDs,
		Headings:               map[string]string{"en": n.Heading, "id": n.Heading},
		Contents:               map[string]string{"en": n.Content, "id": n.Content},
		URL:                    n.URL,
		Data:                   n.Data,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Basic "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("onesignal request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("onesignal status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", domain.ErrPermanent, err)
		}
		return err
	}

	// A 200 with no id means no subscribed device matched; retrying will not help.
	var out createResponse
	if err := json.Unmarshal(raw, &out); err == nil && out.ID == "" && out.Errors != nil {
		return fmt.Errorf("%w: onesignal: %v", domain.ErrPermanent, out.Errors)
	}
	return nil
}
