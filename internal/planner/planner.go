// Package planner fetches remediation plan templates for incident review.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sentrygate/sentrygate/internal/models"
)

// ErrPlanNotAvailable is returned when no plan could be fetched, whether the
// service is down or has no template for the attack type.
var ErrPlanNotAvailable = errors.New("remediation plan not available")

// DefaultTimeout bounds one plan fetch.
const DefaultTimeout = 5 * time.Second

// Client fetches remediation plans.
type Client interface {
	FetchPlan(ctx context.Context, attackType string) (*models.RemediationPlan, error)
}

// HTTPClient implements Client against the plan template service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a planner client. timeout <= 0 selects DefaultTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchPlan retrieves the remediation template for an attack type.
func (c *HTTPClient) FetchPlan(ctx context.Context, attackType string) (*models.RemediationPlan, error) {
	u := fmt.Sprintf("%s/api/v1/plans/%s", c.baseURL, url.PathEscape(attackType))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotAvailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrPlanNotAvailable, resp.StatusCode)
	}

	var plan models.RemediationPlan
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %s", ErrPlanNotAvailable, err)
	}
	return &plan, nil
}
