// Package autotrack starts and stops GPS flight tracking automatically,
// driven by the motion detector and operator settings. It never owns the
// tracking session; it only pokes the appliance's tracking-control endpoint.
package autotrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Controller calls the external tracking-control endpoint. The endpoint is a
// black box: request/response semantics and a timeout are all this package
// assumes about it.
type Controller struct {
	baseURL string
	client  *http.Client
}

func NewController(baseURL string, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Controller{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Controller) StartTracking(ctx context.Context) error {
	return c.post(ctx, "start")
}

func (c *Controller) StopTracking(ctx context.Context) error {
	return c.post(ctx, "stop")
}

func (c *Controller) post(ctx context.Context, action string) error {
	body, err := json.Marshal(map[string]string{"action": action})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/gps-control", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tracking %s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		var fail struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &fail) == nil && fail.Error != "" {
			return fmt.Errorf("tracking %s failed: %s", action, fail.Error)
		}
		return fmt.Errorf("tracking %s failed: http %d", action, resp.StatusCode)
	}
	return nil
}
