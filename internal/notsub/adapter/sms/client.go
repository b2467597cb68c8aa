package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"restaurant-pos/internal/notsub/app/core"
	"restaurant-pos/internal/xpkg/config"
)

// Client posts short texts to an SMS gateway. Without an endpoint or key it
// is a no-op that reports skipped.
type Client struct {
	endpoint string
	apiKey   string
	hc       *http.Client
}

func New(cfg *config.SMS, hc *http.Client) *Client {
	if cfg == nil {
		cfg = &config.SMS{}
	}
	if hc == nil {
		hc = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	return &Client{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, hc: hc}
}

func (c *Client) Configured() bool {
	return c.endpoint != "" && c.apiKey != ""
}

type sendRequest struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

func (c *Client) Send(ctx context.Context, phone, text string) (core.SecondaryStatus, error) {
	if !c.Configured() || phone == "" {
		return core.SecondarySkipped, nil
	}

	reqBuff, err := json.Marshal(sendRequest{Phone: phone, Text: text})
	if err != nil {
		return core.SecondaryFailed, err
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBuff))
	if err != nil {
		return core.SecondaryFailed, err
	}
	hr.Header.Add("Content-Type", "application/json")
	hr.Header.Add("Authorization", "Bearer "+c.apiKey)

	hresp, err := c.hc.Do(hr)
	if err != nil {
		return core.SecondaryFailed, fmt.Errorf("sms gateway: %w", err)
	}
	defer hresp.Body.Close()

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(hresp.Body, 4096))
		return core.SecondaryFailed, fmt.Errorf("sms gateway returned %d: %s", hresp.StatusCode, bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, hresp.Body)
	return core.SecondarySent, nil
}
