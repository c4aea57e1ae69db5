package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/studio-reminders/internal/application"
)

const maxErrorBody = 4 << 10

// HTTPConfig configures an HTTP email API provider.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	From     string
	Timeout  time.Duration
}

// HTTPProvider posts messages to a transactional email API.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

type emailResponse struct {
	ID string `json:"id"`
}

// NewHTTPProvider validates config and builds a provider. client may be nil.
func NewHTTPProvider(config HTTPConfig, client *http.Client) (*HTTPProvider, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, fmt.Errorf("notify: http provider endpoint is required")
	}
	if strings.TrimSpace(config.From) == "" {
		return nil, fmt.Errorf("notify: http provider sender address is required")
	}
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPProvider{
		endpoint: config.Endpoint,
		apiKey:   config.APIKey,
		from:     config.From,
		client:   client,
	}, nil
}

// Send posts msg and returns the provider message id from the response.
func (p *HTTPProvider) Send(ctx context.Context, msg application.OutboundMessage) (string, error) {
	body, err := json.Marshal(emailRequest{
		From:    p.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded emailResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode email response: %w", err)
	}
	if decoded.ID == "" {
		return "", fmt.Errorf("%w: response carried no message id", ErrRejected)
	}
	return decoded.ID, nil
}
