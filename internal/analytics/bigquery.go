package analytics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"hookrunner/internal/config"
	"hookrunner/internal/models"

	"github.com/google/uuid"
	"golang.org/x/oauth2/google"
	bigquery "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"
)

// BigQueryClient streams telemetry rows into a BigQuery table.
type BigQueryClient struct {
	service   *bigquery.Service
	projectID string
	datasetID string
	tableID   string
}

// NewBigQueryClient builds a client authenticated with the service account in
// cfg.CredentialsFile. Extra options are appended, so tests can point the
// client at a fake endpoint.
func NewBigQueryClient(ctx context.Context, cfg config.AnalyticsConfig, opts ...option.ClientOption) (*BigQueryClient, error) {
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read credentials file: %w", err)
		}
		jwt, err := google.JWTConfigFromJSON(credentialsJSON, bigquery.BigqueryInsertdataScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithHTTPClient(jwt.Client(ctx)))
	}
	clientOpts = append(clientOpts, opts...)

	srv, err := bigquery.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create BigQuery service: %w", err)
	}

	return &BigQueryClient{
		service:   srv,
		projectID: cfg.ProjectID,
		datasetID: cfg.DatasetID,
		tableID:   cfg.TableID,
	}, nil
}

func (c *BigQueryClient) Insert(ctx context.Context, record *models.TelemetryRecord) error {
	req := &bigquery.TableDataInsertAllRequest{
		Rows: []*bigquery.TableDataInsertAllRequestRows{{
			InsertId: uuid.NewString(),
			Json:     rowValues(record),
		}},
	}

	resp, err := c.service.Tabledata.InsertAll(c.projectID, c.datasetID, c.tableID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("bigquery insert: %w", err)
	}
	if len(resp.InsertErrors) > 0 {
		var msgs []string
		for _, ie := range resp.InsertErrors {
			for _, e := range ie.Errors {
				msgs = append(msgs, fmt.Sprintf("row %d: %s", ie.Index, e.Message))
			}
		}
		return errors.New("bigquery insert rejected: " + strings.Join(msgs, "; "))
	}
	return nil
}

func rowValues(r *models.TelemetryRecord) map[string]bigquery.JsonValue {
	row := map[string]bigquery.JsonValue{
		"executionType":        r.ExecutionType,
		"connectionId":         r.ConnectionID,
		"internalConnectionId": r.InternalConnectionID,
		"accountId":            r.AccountID,
		"accountName":          r.AccountName,
		"scriptName":           r.ScriptName,
		"scriptType":           r.ScriptType,
		"environmentId":        r.EnvironmentID,
		"environmentName":      r.EnvironmentName,
		"providerConfigKey":    r.ProviderConfigKey,
		"status":               r.Status,
		"syncId":               r.SyncID,
		"syncVariant":          r.SyncVariant,
		"content":              r.Content,
		"runTimeInSeconds":     r.RunTimeInSeconds,
		"createdAt":            r.CreatedAt,
	}
	if r.InternalIntegrationID != nil {
		row["internalIntegrationId"] = *r.InternalIntegrationID
	}
	if r.EndUser != nil {
		row["endUserId"] = r.EndUser.EndUserID
		if r.EndUser.OrgID != nil {
			row["endUserOrganizationId"] = *r.EndUser.OrgID
		}
	}
	return row
}
