package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hookrunner/internal/database"
	"hookrunner/internal/metrics"
	"hookrunner/internal/models"
	"hookrunner/internal/oplog"
	"hookrunner/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeSender struct {
	mu         sync.Mutex
	payloads   []*models.NotificationPayload
	failModel  string
	panicModel string
}

func (s *fakeSender) SendSync(ctx context.Context, p *models.NotificationPayload) error {
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
	if s.panicModel != "" && p.Model == s.panicModel {
		panic("endpoint exploded")
	}
	if s.failModel != "" && p.Model == s.failModel {
		return errors.New("connection refused")
	}
	return nil
}

func (s *fakeSender) sent() []*models.NotificationPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.NotificationPayload(nil), s.payloads...)
}

type fakeTelemetry struct {
	mu      sync.Mutex
	records []*models.TelemetryRecord
}

func (f *fakeTelemetry) Record(ctx context.Context, r *models.TelemetryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
}

func (f *fakeTelemetry) all() []*models.TelemetryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.TelemetryRecord(nil), f.records...)
}

type fakeRunner struct {
	mu       sync.Mutex
	requests []models.StartRequest
	err      error
	// onStart runs before the request is recorded. A non-nil return fails the start.
	onStart func(ctx context.Context) error
}

func (r *fakeRunner) Start(ctx context.Context, req models.StartRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.onStart != nil {
		if err := r.onStart(ctx); err != nil {
			return err
		}
	}
	return r.err
}

func (r *fakeRunner) last(t *testing.T) models.StartRequest {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.requests)
	return r.requests[len(r.requests)-1]
}

type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

type fixture struct {
	team       models.Team
	env        models.Environment
	provider   models.ProviderConfig
	sync       models.Sync
	syncConfig models.SyncConfig
}

type harness struct {
	db        *database.DB
	orch      *Orchestrator
	sender    *fakeSender
	telemetry *fakeTelemetry
	runner    *fakeRunner
	states    *repository.TaskStates
	spans     *tracetest.SpanRecorder
	fx        fixture
}

type seedOptions struct {
	noSettings      bool
	disabled        bool
	skipSyncConfig  bool
	syncConnection  int64
	providerMissing bool
}

func newHarness(t *testing.T, opts seedOptions) *harness {
	t.Helper()
	metrics.Register()

	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		db:        db,
		sender:    &fakeSender{},
		telemetry: &fakeTelemetry{},
		runner:    &fakeRunner{},
		states:    repository.NewTaskStates(repository.NewMemoryTaskStateRepository(time.Hour)),
		spans:     tracetest.NewSpanRecorder(),
	}
	h.seed(t, opts)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))
	rec := metrics.NewRecorder()
	h.orch = NewOrchestrator(Deps{
		Store:      db,
		Jobs:       NewJobs(db, &logger),
		Dispatcher: NewDispatcher(h.sender, db, tp.Tracer("test"), rec, &logger),
		Runner:     h.runner,
		Telemetry:  h.telemetry,
		Logs:       oplog.NewGetter(db, &logger),
		States:     h.states,
		Metrics:    rec,
		Host:       "https://api.example.com",
		Logger:     &logger,
	})
	return h
}

func (h *harness) seed(t *testing.T, opts seedOptions) {
	t.Helper()
	ctx := context.Background()

	h.fx.team = models.Team{Name: "acme"}
	require.NoError(t, h.db.CreateAccount(ctx, &h.fx.team))
	h.fx.env = models.Environment{AccountID: h.fx.team.ID, Name: "prod"}
	require.NoError(t, h.db.CreateEnvironment(ctx, &h.fx.env))

	if opts.providerMissing {
		return
	}
	h.fx.provider = models.ProviderConfig{EnvironmentID: h.fx.env.ID, UniqueKey: "github", Provider: "github"}
	require.NoError(t, h.db.CreateProviderConfig(ctx, &h.fx.provider))

	syncConn := int64(7)
	if opts.syncConnection != 0 {
		syncConn = opts.syncConnection
	}
	h.fx.sync = models.Sync{ConnectionID: syncConn, Name: "issues"}
	require.NoError(t, h.db.CreateSync(ctx, &h.fx.sync))

	if !opts.skipSyncConfig {
		h.fx.syncConfig = models.SyncConfig{
			EnvironmentID: h.fx.env.ID,
			ConfigID:      h.fx.provider.ID,
			SyncName:      "issues",
			Type:          "sync",
			Models:        []string{"a", "b", "c"},
			Attributes:    map[string]any{"region": "eu"},
			Enabled:       !opts.disabled,
		}
		require.NoError(t, h.db.CreateSyncConfig(ctx, &h.fx.syncConfig))
	}

	if !opts.noSettings {
		require.NoError(t, h.db.UpsertWebhookSettings(ctx, &models.WebhookSettings{
			EnvironmentID:          h.fx.env.ID,
			PrimaryURL:             "https://hooks.example.com",
			OnSyncCompletionAlways: true,
			OnSyncError:            true,
		}))
	}
}

func (h *harness) task() *models.Task {
	return &models.Task{
		ID:             "task-1",
		Name:           "webhook:issues:conn-1",
		WebhookName:    "issue-created",
		ParentSyncName: "issues",
		Connection: models.ConnectionRef{
			ID:                7,
			ConnectionID:      "conn-1",
			EnvironmentID:     h.fx.env.ID,
			ProviderConfigKey: "github",
		},
		Input:                map[string]any{"action": "opened"},
		ActivityLogID:        "act-1",
		HeartbeatTimeoutSecs: 30,
	}
}

func counterValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if hg := m.GetHistogram(); hg != nil {
				total += float64(hg.GetSampleCount())
			}
		}
	}
	return total
}
