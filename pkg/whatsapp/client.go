package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/config"
)

const maxErrorBody = 64 << 10

var (
	// ErrNotConfigured is returned when credentials are missing.
	ErrNotConfigured = errors.New("whatsapp gateway not configured")
	// ErrNoMessageID is returned for a 2xx response that did not confirm acceptance.
	ErrNoMessageID = errors.New("whatsapp gateway response missing message id")
)

// Client talks to the WhatsApp Cloud API messages endpoint.
type Client struct {
	cfg  config.WhatsAppConfig
	http *http.Client
}

// NewClient builds a gateway client. A nil httpClient gets one bounded by cfg.Timeout.
func NewClient(cfg config.WhatsAppConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Configured reports whether the client holds credentials.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.Configured()
}

// TemplateName returns the approved template used for first contact.
func (c *Client) TemplateName() string {
	return c.cfg.TemplateName
}

// TemplateMessage describes a pre-approved template send.
type TemplateMessage struct {
	Name       string
	Language   string
	BodyParams []string
}

// SendResult confirms the gateway accepted a message.
type SendResult struct {
	MessageID string
}

type messageRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Template         *templatePayload `json:"template,omitempty"`
	Text             *textPayload     `json:"text,omitempty"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type textPayload struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendTemplate sends an approved template message to a country-code-prefixed number.
func (c *Client) SendTemplate(ctx context.Context, to string, msg TemplateMessage) (*SendResult, error) {
	lang := msg.Language
	if lang == "" {
		lang = c.cfg.TemplateLanguage
	}
	tpl := &templatePayload{Name: msg.Name, Language: templateLanguage{Code: lang}}
	if len(msg.BodyParams) > 0 {
		params := make([]templateParameter, 0, len(msg.BodyParams))
		for _, p := range msg.BodyParams {
			params = append(params, templateParameter{Type: "text", Text: p})
		}
		tpl.Components = []templateComponent{{Type: "body", Parameters: params}}
	}
	return c.send(ctx, messageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template:         tpl,
	})
}

// SendText sends a free-form text message.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	return c.send(ctx, messageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textPayload{Body: body},
	})
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/%s/%s/messages",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		strings.Trim(c.cfg.APIVersion, "/"),
		c.cfg.PhoneNumberID,
	)
}

func (c *Client) send(ctx context.Context, payload messageRequest) (*SendResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode whatsapp payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call whatsapp gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, fmt.Errorf("read whatsapp response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(resp.StatusCode, raw)
	}

	var decoded messageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode whatsapp response: %w", err)
	}
	if len(decoded.Messages) == 0 || decoded.Messages[0].ID == "" {
		return nil, ErrNoMessageID
	}
	return &SendResult{MessageID: decoded.Messages[0].ID}, nil
}
