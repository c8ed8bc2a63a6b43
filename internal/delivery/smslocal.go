package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// SMSLocalClient sends OTP SMS via the SMS Local bulk API.
// See https://www.smslocal.com/dev/bulkV2.
type SMSLocalClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalClient returns a client that uses the given API key and optional base URL/sender.
func NewSMSLocalClient(apiKey, baseURL, sender string, timeout time.Duration) *SMSLocalClient {
	if baseURL == "" {
		baseURL = "https://www.smslocal.com/dev/bulkV2"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SMSLocalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Send delivers body to the phone number via SMS Local (route=otp). Does not log the body.
// The delivery ID is taken from the provider response when present, else "".
func (c *SMSLocalClient) Send(ctx context.Context, destination string, _ Channel, body string) (string, error) {
	if c.APIKey == "" {
		return "", Permanent(errors.New("sms: API key not configured"))
	}
	payload := map[string]interface{}{
		"route":     "otp",
		"numbers":   destination,
		"variables": body,
	}
	if c.Sender != "" {
		payload["sender_id"] = c.Sender
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
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Network errors and ctx timeouts are retryable by a fresh request.
		return "", Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
		if resp.StatusCode >= 500 {
			return "", Transient(err)
		}
		return "", Permanent(err)
	}
	var out struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil // delivered; provider response shape is best-effort
	}
	return out.RequestID, nil
}
