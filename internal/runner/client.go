package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hookrunner/internal/config"
	"hookrunner/internal/logging"
	"hookrunner/internal/models"

	"github.com/rs/zerolog"
)

// Client starts script runs on the external runner. The runner reports the
// outcome asynchronously through the task callback API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zerolog.Logger
}

func NewClient(cfg config.RunnerConfig, logger *zerolog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.Component(logger, "runner_client"),
	}
}

func (c *Client) Start(ctx context.Context, req models.StartRequest) error {
	if req.Props == nil {
		return fmt.Errorf("start %s: execution props are required", req.TaskID)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode start request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/start", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build start request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("runner unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("runner rejected task %s: status %d: %s", req.TaskID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	c.logger.Debug().Str("task_id", req.TaskID).Int64("sync_job_id", req.Props.SyncJobID).Msg("script started")
	return nil
}
