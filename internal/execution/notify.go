package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hookrunner/internal/database"
	"hookrunner/internal/domain"
	"hookrunner/internal/logging"
	"hookrunner/internal/metrics"
	"hookrunner/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const notificationSpanName = "jobs.webhook.webhook"

// SuccessOutcome is a completed run to be reported once per model.
type SuccessOutcome struct {
	Team           models.Team
	Environment    models.Environment
	Connection     models.ConnectionRef
	ProviderConfig models.ProviderConfig
	SyncConfig     models.SyncConfig
	SyncID         string
	SyncVariant    string
	Job            *models.SyncJob
	StartedAt      time.Time
}

// FailureOutcome is a failed run. Any pointer may be nil when resolution
// stopped before reaching it.
type FailureOutcome struct {
	Team           *models.Team
	Environment    *models.Environment
	Connection     models.ConnectionRef
	ProviderConfig *models.ProviderConfig
	SyncConfig     *models.SyncConfig
	SyncID         string
	SyncVariant    string
	SyncName       string
	JobID          int64
	Models         []string
	Err            error
}

// Dispatcher fans outcomes out to the tenant's webhook endpoints. Sends run in
// the background, each under its own span, and never report back to the caller.
type Dispatcher struct {
	sender   domain.NotificationSender
	settings domain.WebhookSettingsStore
	tracer   trace.Tracer
	metrics  metrics.Recorder
	logger   *zerolog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(sender domain.NotificationSender, settings domain.WebhookSettingsStore, tracer trace.Tracer, rec metrics.Recorder, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		settings: settings,
		tracer:   tracer,
		metrics:  rec,
		logger:   logging.Component(logger, "dispatcher"),
	}
}

func (d *Dispatcher) webhookSettings(ctx context.Context, environmentID int64) *models.WebhookSettings {
	s, err := d.settings.GetWebhookSettings(ctx, environmentID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			d.logger.Error().Err(err).Int64("environment_id", environmentID).Msg("webhook settings lookup failed")
		}
		return nil
	}
	return s
}

// NotifySuccess sends one notification per model declared by the sync config.
func (d *Dispatcher) NotifySuccess(ctx context.Context, o SuccessOutcome) {
	settings := d.webhookSettings(ctx, o.Environment.ID)

	variant := o.SyncVariant
	if variant == "" {
		variant = models.VariantBase
	}
	var jobID int64
	if o.Job != nil {
		jobID = o.Job.ID
	}

	for _, model := range o.SyncConfig.Models {
		results := o.Job.ResultFor(model)
		payload := &models.NotificationPayload{
			Account:         o.Team,
			Connection:      o.Connection,
			Environment:     o.Environment,
			WebhookSettings: settings,
			SyncConfig:      o.SyncConfig,
			SyncVariant:     variant,
			ProviderConfig:  o.ProviderConfig,
			Model:           model,
			Success:         true,
			ResponseResults: &results,
			Now:             o.StartedAt,
			Operation:       models.OperationWebhook,
		}
		attrs := []attribute.KeyValue{
			attribute.Int64("environmentId", o.Environment.ID),
			attribute.String("connectionId", o.Connection.ConnectionID),
			attribute.String("syncId", o.SyncID),
			attribute.Int64("syncJobId", jobID),
			attribute.Bool("syncSuccess", true),
			attribute.String("model", model),
		}
		d.send(ctx, attrs, payload, o.SyncConfig.SyncName)
	}
}

// NotifyFailure sends a single notification covering every model. Nothing is
// sent unless team, environment, sync config, provider config and webhook
// settings are all known.
func (d *Dispatcher) NotifyFailure(ctx context.Context, o FailureOutcome) {
	if o.Environment == nil {
		return
	}
	if o.Team == nil || o.SyncConfig == nil || o.ProviderConfig == nil {
		return
	}
	settings := d.webhookSettings(ctx, o.Environment.ID)
	if settings == nil {
		return
	}

	msg := "unknown error"
	if o.Err != nil {
		msg = o.Err.Error()
		var e *Error
		if errors.As(o.Err, &e) {
			msg = e.Message
		}
	}

	payload := &models.NotificationPayload{
		Account:         *o.Team,
		Connection:      o.Connection,
		Environment:     *o.Environment,
		WebhookSettings: settings,
		SyncConfig:      *o.SyncConfig,
		SyncVariant:     o.SyncVariant,
		ProviderConfig:  *o.ProviderConfig,
		Model:           strings.Join(o.Models, ","),
		Success:         false,
		Error: &models.NotificationError{
			Type:        models.ErrorTypeScript,
			Description: msg,
		},
		Now:       time.Now(),
		Operation: models.OperationWebhook,
	}
	attrs := []attribute.KeyValue{
		attribute.Int64("environmentId", o.Environment.ID),
		attribute.Int64("connectionId", o.Connection.ID),
		attribute.String("syncId", o.SyncID),
		attribute.Int64("syncJobId", o.JobID),
		attribute.Bool("syncSuccess", false),
	}
	d.send(ctx, attrs, payload, o.SyncName)
}

func (d *Dispatcher) send(ctx context.Context, attrs []attribute.KeyValue, payload *models.NotificationPayload, syncName string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		spanCtx, span := d.tracer.Start(context.WithoutCancel(ctx), notificationSpanName, trace.WithAttributes(attrs...))
		defer span.End()
		defer func() {
			if r := recover(); r != nil {
				d.fail(span, payload, fmt.Errorf("panic while sending webhook for %s: %v", syncName, r))
			}
		}()

		if err := d.sender.SendSync(spanCtx, payload); err != nil {
			d.fail(span, payload, fmt.Errorf("failed to send webhook for webhook: %s: %w", syncName, err))
			return
		}
		d.metrics.Notification(true)
	}()
}

func (d *Dispatcher) fail(span trace.Span, payload *models.NotificationPayload, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	d.metrics.Notification(false)
	d.logger.Warn().Err(err).
		Str("connection_id", payload.Connection.ConnectionID).
		Str("model", payload.Model).
		Bool("success", payload.Success).
		Msg("notification not delivered")
}

// Wait blocks until every in-flight send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
