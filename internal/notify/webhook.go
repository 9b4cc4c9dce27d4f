package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"alerteval/internal/config"
	"alerteval/internal/template"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookSender posts a fully user-templated JSON body to one endpoint.
// Params: channel config with URL, header templates, and body template.
// Returns: generic channel sender.
type WebhookSender struct {
	cfg    config.ChannelConfig
	client *http.Client
}

// defaultWebhookBody is the payload sent when no body template is configured.
// Params: computed message fields.
// Returns: minimal JSON document.
type defaultWebhookBody struct {
	Title   string `json:"title"`
	Link    string `json:"link,omitempty"`
	Group   string `json:"group,omitempty"`
	Summary string `json:"summary"`
	Text    string `json:"text,omitempty"`
}

// NewWebhookSender creates the webhook sender for one channel entry.
// Params: validated webhook channel config.
// Returns: initialized sender.
func NewWebhookSender(cfg config.ChannelConfig) *WebhookSender {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookSender{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the configured channel name.
// Params: none.
// Returns: channel name from config.
func (s *WebhookSender) Name() string {
	return s.cfg.Name
}

// Kind returns the channel kind.
// Params: none.
// Returns: static webhook kind.
func (s *WebhookSender) Kind() string {
	return config.ChannelKindWebhook
}

// Send renders headers/body through the template engine and posts the payload.
// Params: context and assembled message; the message context exposes {{link}},
// {{title}}, and the rest of the alert metadata to both headers and body.
// Returns: transport error or unexpected-status error.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := s.renderBody(msg)
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		rendered, _ := template.Render(value, msg.Context, nil)
		request.Header.Set(key, rendered)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("webhook %q: unexpected status %d", s.cfg.Name, response.StatusCode)
	}
	return nil
}

// renderBody builds the outbound body from the configured template.
// Params: assembled message.
// Returns: rendered body bytes; falls back to the default JSON document when
// no template is configured.
func (s *WebhookSender) renderBody(msg Message) ([]byte, error) {
	if s.cfg.BodyTemplate != "" {
		rendered, _ := template.Render(s.cfg.BodyTemplate, msg.Context, nil)
		return []byte(rendered), nil
	}

	body, err := json.Marshal(defaultWebhookBody{
		Title:   msg.Title,
		Link:    msg.Link,
		Group:   msg.GroupLabel,
		Summary: msg.Summary,
		Text:    msg.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("encode webhook body: %w", err)
	}
	return body, nil
}
