package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"hookrunner/internal/config"
	"hookrunner/internal/logging"
	"hookrunner/internal/models"
	"hookrunner/internal/worker"

	"github.com/rs/zerolog"
)

// Body is the JSON document delivered to tenant endpoints.
type Body struct {
	From              string                    `json:"from"`
	Type              string                    `json:"type"`
	ConnectionID      string                    `json:"connectionId"`
	ProviderConfigKey string                    `json:"providerConfigKey"`
	SyncName          string                    `json:"syncName"`
	Model             string                    `json:"model"`
	SyncType          string                    `json:"syncType"`
	SyncVariant       string                    `json:"syncVariant"`
	Success           bool                      `json:"success"`
	ModifiedAfter     string                    `json:"modifiedAfter"`
	ResponseResults   *models.SyncResult        `json:"responseResults,omitempty"`
	Error             *models.NotificationError `json:"error,omitempty"`
}

type Sender struct {
	client          *http.Client
	signatureHeader string
	retry           worker.RetryPolicy
	logger          *zerolog.Logger
}

func NewSender(cfg config.WebhooksConfig, logger *zerolog.Logger) *Sender {
	header := cfg.SignatureHeader
	if header == "" {
		header = "X-Nango-Signature"
	}
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Sender{
		client:          &http.Client{Timeout: timeout},
		signatureHeader: header,
		retry:           worker.NewRetryPolicy(cfg.Retry),
		logger:          logging.Component(logger, "webhook_sender"),
	}
}

// SendSync delivers a sync outcome to every configured endpoint. Outcomes the
// tenant did not subscribe to are skipped without error.
func (s *Sender) SendSync(ctx context.Context, payload *models.NotificationPayload) error {
	if payload == nil {
		return errors.New("notification payload is nil")
	}
	settings := payload.WebhookSettings
	if settings == nil {
		return nil
	}
	if !shouldSend(payload) {
		return nil
	}
	urls := endpoints(settings)
	if len(urls) == 0 {
		return nil
	}

	body, err := json.Marshal(buildBody(payload))
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}
	signature := Sign(payload.Environment.SecretKey, body)

	var errs []error
	for _, url := range urls {
		if err := s.deliver(ctx, url, body, signature); err != nil {
			s.logger.Warn().Err(err).
				Str("url", url).
				Str("connection_id", payload.Connection.ConnectionID).
				Str("model", payload.Model).
				Msg("webhook delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		s.logger.Debug().Str("url", url).Str("model", payload.Model).Msg("webhook delivered")
	}
	return errors.Join(errs...)
}

func shouldSend(p *models.NotificationPayload) bool {
	settings := p.WebhookSettings
	if !p.Success {
		return settings.OnSyncError
	}
	if settings.OnSyncCompletionAlways {
		return true
	}
	r := p.ResponseResults
	return r != nil && (r.Added > 0 || r.Updated > 0 || r.Deleted > 0)
}

func endpoints(s *models.WebhookSettings) []string {
	var urls []string
	if s.PrimaryURL != "" {
		urls = append(urls, s.PrimaryURL)
	}
	if s.SecondaryURL != "" && s.SecondaryURL != s.PrimaryURL {
		urls = append(urls, s.SecondaryURL)
	}
	return urls
}

func buildBody(p *models.NotificationPayload) Body {
	b := Body{
		From:              "nango",
		Type:              "sync",
		ConnectionID:      p.Connection.ConnectionID,
		ProviderConfigKey: p.Connection.ProviderConfigKey,
		SyncName:          p.SyncConfig.SyncName,
		Model:             p.Model,
		SyncType:          p.Operation,
		SyncVariant:       p.SyncVariant,
		Success:           p.Success,
		ModifiedAfter:     p.Now.UTC().Format(time.RFC3339Nano),
		Error:             p.Error,
	}
	if p.Success {
		results := models.SyncResult{}
		if p.ResponseResults != nil {
			results = *p.ResponseResults
		}
		b.ResponseResults = &results
	}
	return b
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.code)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
	}
	return true
}

func (s *Sender) deliver(ctx context.Context, url string, body []byte, signature string) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		return s.post(ctx, url, body, signature)
	}, retryable)
}

func (s *Sender) post(ctx context.Context, url string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(s.signatureHeader, signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}
