// Package bot talks to guides over Telegram: it links guide chats, tells
// guides about new waivers and reminds them of bookings still missing some.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultAPI = "https://api.telegram.org"

type Client struct {
	token  string
	httpc  *http.Client
	apiURL string
}

// NewClient returns a Bot API client. An empty token yields a client whose
// sends are no-ops.
func NewClient(token string) *Client {
	return &Client{
		token:  token,
		apiURL: defaultAPI + "/bot" + token,
		httpc:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the client at another Bot API host.
func (c *Client) WithBaseURL(base string) *Client {
	c.apiURL = base + "/bot" + c.token
	return c
}

func (c *Client) Enabled() bool { return c != nil && c.token != "" }

func (c *Client) send(ctx context.Context, method string, payload any) error {
	if !c.Enabled() {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode telegram payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "telegram %s", method)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("telegram %s: %s", method, resp.Status)
	}
	return nil
}

// SendMessage posts an HTML-formatted message to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, "sendMessage", map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
}
