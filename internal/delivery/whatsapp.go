package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsAppClient sends OTP messages via a WhatsApp Business API messages endpoint.
type WhatsAppClient struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewWhatsAppClient returns a client for the given messages endpoint and bearer token.
func NewWhatsAppClient(token, baseURL string, timeout time.Duration) *WhatsAppClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WhatsAppClient{
		Token:      token,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Send delivers body to the phone number as a WhatsApp text message.
// The destination is sent without the leading + (API expects bare digits).
func (c *WhatsAppClient) Send(ctx context.Context, destination string, _ Channel, body string) (string, error) {
	if c.Token == "" || c.BaseURL == "" {
		return "", Permanent(errors.New("whatsapp: token or base URL not configured"))
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(destination, "+"),
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return "", Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("whatsapp: request failed status=%d body=%s", resp.StatusCode, string(b))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", Transient(err)
		}
		return "", Permanent(err)
	}
	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}
