// Package whatsapp talks to a WhatsApp Cloud style messaging API and maps its
// failures to core.ChannelError.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"restaurant-pos/internal/notsub/app/core"
	"restaurant-pos/internal/xpkg/config"
)

// codeReengagement is returned when the 24 hour customer service window has
// closed.
const codeReengagement = 131047

var windowClosed = regexp.MustCompile(`(?i)24.?hour|outside.*(conversation|customer service) window|re-engagement`)

// isSessionExpired is the only place that knows how this provider reports a
// closed session window.
func isSessionExpired(code int, message string) bool {
	return code == codeReengagement || windowClosed.MatchString(message)
}

type Client struct {
	baseURL          string
	phoneNumberID    string
	token            string
	templateName     string
	templateLanguage string
	hc               *http.Client
}

func New(cfg *config.WhatsApp, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		phoneNumberID:    cfg.PhoneNumberID,
		token:            cfg.Token,
		templateName:     cfg.TemplateName,
		templateLanguage: cfg.TemplateLanguage,
		hc:               hc,
	}
}

type textBody struct {
	Body string `json:"body"`
}

type language struct {
	Code string `json:"code"`
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []parameter `json:"parameters"`
}

type template struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components,omitempty"`
}

type sendRequest struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *textBody `json:"text,omitempty"`
	Template         *template `json:"template,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		ErrorData struct {
			Details string `json:"details"`
		} `json:"error_data"`
	} `json:"error"`
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

func (c *Client) SendTemplate(ctx context.Context, to string, params []string) error {
	if c.templateName == "" {
		return &core.ChannelError{Kind: core.KindRejected, Message: "no session template configured"}
	}
	tpl := &template{Name: c.templateName, Language: language{Code: c.templateLanguage}}
	if len(params) > 0 {
		comp := component{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, parameter{Type: "text", Text: p})
		}
		tpl.Components = []component{comp}
	}
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         tpl,
	})
}

func (c *Client) send(ctx context.Context, req sendRequest) error {
	reqBuff, err := json.Marshal(req)
	if err != nil {
		return &core.ChannelError{Kind: core.KindRejected, Message: "encode request", Err: err}
	}
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBuff))
	if err != nil {
		return &core.ChannelError{Kind: core.KindRejected, Message: "build request", Err: err}
	}
	hr.Header.Add("Content-Type", "application/json")
	hr.Header.Add("Accept", "application/json")
	hr.Header.Add("Authorization", "Bearer "+c.token)

	hresp, err := c.hc.Do(hr)
	if err != nil {
		return transportError(err)
	}
	defer hresp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(hresp.Body, 1<<20))
	if err != nil {
		return transportError(err)
	}

	if hresp.StatusCode >= 200 && hresp.StatusCode <= 299 {
		return nil
	}
	return classify(hresp.StatusCode, respBody)
}

// classify turns a non-2xx provider response into a ChannelError.
func classify(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	code := er.Error.Code
	message := er.Error.Message
	if d := er.Error.ErrorData.Details; d != "" {
		message = strings.TrimSpace(message + ": " + d)
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(status)
	}

	kind := core.KindRejected
	switch {
	case isSessionExpired(code, message):
		kind = core.KindSessionExpired
	case status == http.StatusTooManyRequests || status >= 500:
		kind = core.KindTransient
	}
	return &core.ChannelError{Kind: kind, Code: code, Message: message}
}

func transportError(err error) error {
	msg := "request failed"
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		msg = "request timed out"
	}
	return &core.ChannelError{Kind: core.KindTransient, Message: msg, Err: err}
}
