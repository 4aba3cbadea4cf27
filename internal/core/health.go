package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// HealthChecker computes a service's status.
type HealthChecker interface {
	Check(ctx context.Context, svc models.Service) (status, detail string)
}

// StaticHealthChecker classifies services without any network traffic: a
// service with a health URL is healthy, every other service is unknown.
type StaticHealthChecker struct{}

// Check implements HealthChecker.
func (StaticHealthChecker) Check(_ context.Context, svc models.Service) (string, string) {
	if svc.HealthCheckURL != "" {
		return models.ServiceHealthy, ""
	}
	return models.ServiceUnknown, ""
}

// HTTPHealthChecker probes each service's health URL with GET. Any 2xx
// response is healthy; any other response or a network failure is unhealthy.
// Services without a health URL are unknown.
type HTTPHealthChecker struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPHealthChecker creates a checker whose requests time out after
// timeout.
func NewHTTPHealthChecker(timeout time.Duration) *HTTPHealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPHealthChecker{Client: &http.Client{}, Timeout: timeout}
}

// Check implements HealthChecker.
func (h *HTTPHealthChecker) Check(ctx context.Context, svc models.Service) (string, string) {
	if svc.HealthCheckURL == "" {
		return models.ServiceUnknown, ""
	}
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.HealthCheckURL, nil)
	if err != nil {
		return models.ServiceUnhealthy, fmt.Sprintf("building request: %v", err)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return models.ServiceUnhealthy, fmt.Sprintf("%v: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return models.ServiceHealthy, ""
	}
	return models.ServiceUnhealthy, fmt.Sprintf("health endpoint returned %d", resp.StatusCode)
}
