package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cotizabot/cotizabot/config"
	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

// WhatsAppProvider sends text messages through the WhatsApp Cloud API
type WhatsAppProvider struct {
	config *config.WhatsAppConfig
	client *fasthttp.Client
}

type whatsAppTextMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             whatsAppTextBody `json:"text"`
}

type whatsAppTextBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type whatsAppErrorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// NewWhatsAppProvider creates a Cloud API provider
func NewWhatsAppProvider(cfg *config.WhatsAppConfig) *WhatsAppProvider {
	return &WhatsAppProvider{
		config: cfg,
		client: &fasthttp.Client{
			Name:                "cotizabot",
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// SendText posts a text message to /{phone-number-id}/messages
func (p *WhatsAppProvider) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(whatsAppTextMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "text",
		Text:             whatsAppTextBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal WhatsApp message: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/%s/messages", strings.TrimRight(p.config.BaseURL, "/"), p.config.PhoneNumberID))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.AccessToken)
	req.SetBody(payload)

	timeout := p.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout || timeout <= 0 {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return fmt.Errorf("WhatsApp send to %s: %w", to, context.DeadlineExceeded)
	}

	if err := p.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("failed to send WhatsApp message to %s: %w", to, err)
	}

	if status := resp.StatusCode(); status < 200 || status >= 300 {
		var apiErr whatsAppErrorResponse
		if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("WhatsApp API rejected message to %s: %s (code %d, status %d)", to, apiErr.Error.Message, apiErr.Error.Code, status)
		}
		return fmt.Errorf("WhatsApp API rejected message to %s: status %d", to, status)
	}

	return nil
}
