// Package worker implements the per-role task pollers that pull work from the
// coordinator, run it through a static task table and report the outcome.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// ErrNetworkUnavailable is returned, wrapped, for any failed exchange with
// the coordinator.
var ErrNetworkUnavailable = core.ErrNetworkUnavailable

// CoordinatorClient is the worker's view of the coordinator HTTP API.
type CoordinatorClient interface {
	FetchTasks(ctx context.Context, workerID string) ([]models.Task, error)
	CompleteTask(ctx context.Context, result models.TaskResult) error
	Register(ctx context.Context, reg models.Registration) (*models.RegisterResponse, error)
}

type httpCoordinator struct {
	baseURL string
	client  *http.Client
}

// NewCoordinatorClient creates a client for the coordinator at baseURL.
// Requests time out after timeout.
func NewCoordinatorClient(baseURL string, timeout time.Duration) CoordinatorClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpCoordinator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpCoordinator) FetchTasks(ctx context.Context, workerID string) ([]models.Task, error) {
	u := c.baseURL + "/tasks?worker_id=" + url.QueryEscape(workerID)
	var out models.TaskList
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("fetching tasks: %w", err)
	}
	return out.Tasks, nil
}

func (c *httpCoordinator) CompleteTask(ctx context.Context, result models.TaskResult) error {
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/task/complete", result, nil); err != nil {
		return fmt.Errorf("reporting task %s: %w", result.TaskID, err)
	}
	return nil
}

func (c *httpCoordinator) Register(ctx context.Context, reg models.Registration) (*models.RegisterResponse, error) {
	var out models.RegisterResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/register", reg, &out); err != nil {
		return nil, fmt.Errorf("registering %s: %w", reg.WorkerID, err)
	}
	return &out, nil
}

// do performs one request. Transport failures and non-2xx responses are both
// reported as ErrNetworkUnavailable.
func (c *httpCoordinator) do(ctx context.Context, method, u string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrNetworkUnavailable, method, u, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
