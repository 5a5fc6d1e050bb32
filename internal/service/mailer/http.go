package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPRelay отправляет письма через внешний HTTP-релей.
// Ответ с кодом вне 2xx считается ошибкой доставки, и письмо
// уходит на повторную попытку планировщика.
type HTTPRelay struct {
	url    string
	apiKey string
	client *http.Client
}

// HTTPOption настраивает HTTPRelay.
type HTTPOption func(*HTTPRelay)

// WithHTTPClient подменяет HTTP-клиент релея.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(r *HTTPRelay) {
		if client != nil {
			r.client = client
		}
	}
}

// WithAPIKey задаёт bearer-токен авторизации релея.
func WithAPIKey(key string) HTTPOption {
	return func(r *HTTPRelay) {
		r.apiKey = key
	}
}

// NewHTTPRelay возвращает клиент релея по указанному адресу.
func NewHTTPRelay(url string, opts ...HTTPOption) *HTTPRelay {
	relay := &HTTPRelay{
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(relay)
	}
	return relay
}

type relayPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send отправляет письмо одним POST-запросом к релею.
func (r *HTTPRelay) Send(ctx context.Context, msg domain.MailMessage) error {
	payload, err := json.Marshal(relayPayload{
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post mail to relay: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay rejected mail: status %d", resp.StatusCode)
	}

	return nil
}

var _ domain.MailRelay = (*HTTPRelay)(nil)
