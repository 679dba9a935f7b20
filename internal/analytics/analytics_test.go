package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hookrunner/internal/config"
	"hookrunner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func sampleRecord() *models.TelemetryRecord {
	integrationID := int64(9)
	org := "org-1"
	return &models.TelemetryRecord{
		ExecutionType:         models.ScriptTypeWebhook,
		ConnectionID:          "conn-1",
		InternalConnectionID:  7,
		AccountID:             1,
		AccountName:           "acme",
		ScriptName:            "issues",
		ScriptType:            models.ScriptTypeWebhook,
		EnvironmentID:         2,
		EnvironmentName:       "prod",
		ProviderConfigKey:     "github",
		Status:                models.TelemetryStatusSuccess,
		SyncID:                "sync-1",
		SyncVariant:           models.VariantBase,
		Content:               "ok",
		RunTimeInSeconds:      1.5,
		CreatedAt:             time.Now().UnixMilli(),
		InternalIntegrationID: &integrationID,
		EndUser:               &models.EndUser{ID: 3, EndUserID: "u-1", OrgID: &org},
	}
}

func TestBigQueryClientInsert(t *testing.T) {
	var (
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"kind":"bigquery#tableDataInsertAllResponse"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	client, err := NewBigQueryClient(ctx,
		config.AnalyticsConfig{ProjectID: "proj", DatasetID: "ds", TableID: "runs"},
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	require.NoError(t, client.Insert(ctx, sampleRecord()))
	assert.True(t, strings.HasSuffix(path, "/projects/proj/datasets/ds/tables/runs/insertAll"), path)

	rows, ok := body["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.NotEmpty(t, row["insertId"])
	values := row["json"].(map[string]any)
	assert.Equal(t, "success", values["status"])
	assert.Equal(t, "u-1", values["endUserId"])
	assert.Equal(t, float64(9), values["internalIntegrationId"])
}

func TestBigQueryClientInsertErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"insertErrors":[{"index":0,"errors":[{"message":"no such field"}]}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	client, err := NewBigQueryClient(ctx, config.AnalyticsConfig{ProjectID: "p", DatasetID: "d", TableID: "t"},
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	err = client.Insert(ctx, sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such field")
}

func TestNewBigQueryClientMissingCredentials(t *testing.T) {
	_, err := NewBigQueryClient(context.Background(), config.AnalyticsConfig{CredentialsFile: "/nonexistent/creds.json"})
	assert.Error(t, err)
}

type recordingClient struct {
	mu      sync.Mutex
	records []*models.TelemetryRecord
	err     error
}

func (c *recordingClient) Insert(ctx context.Context, record *models.TelemetryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return c.err
}

func TestRecorder(t *testing.T) {
	client := &recordingClient{err: errors.New("warehouse down")}
	rec := NewRecorder(client, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	rec.Record(ctx, sampleRecord())
	rec.Record(ctx, nil)
	cancel()
	rec.Wait()

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Len(t, client.records, 1)
}

func TestNoopClient(t *testing.T) {
	assert.NoError(t, NoopClient{}.Insert(context.Background(), sampleRecord()))
}
