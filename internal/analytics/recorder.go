package analytics

import (
	"context"
	"sync"
	"time"

	"hookrunner/internal/logging"
	"hookrunner/internal/models"

	"github.com/rs/zerolog"
)

type Client interface {
	Insert(ctx context.Context, record *models.TelemetryRecord) error
}

// NoopClient drops every record. Used when analytics is disabled.
type NoopClient struct{}

func (NoopClient) Insert(context.Context, *models.TelemetryRecord) error { return nil }

// Recorder writes telemetry in the background. Failures are logged and dropped.
type Recorder struct {
	client  Client
	timeout time.Duration
	logger  *zerolog.Logger
	wg      sync.WaitGroup
}

func NewRecorder(client Client, timeout time.Duration, logger *zerolog.Logger) *Recorder {
	if client == nil {
		client = NoopClient{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Recorder{
		client:  client,
		timeout: timeout,
		logger:  logging.Component(logger, "analytics"),
	}
}

func (r *Recorder) Record(ctx context.Context, record *models.TelemetryRecord) {
	if record == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if err := r.client.Insert(insertCtx, record); err != nil {
			r.logger.Error().Err(err).
				Str("status", record.Status).
				Str("script", record.ScriptName).
				Int64("account_id", record.AccountID).
				Msg("telemetry insert failed")
		}
	}()
}

// Wait blocks until in-flight inserts finish.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
