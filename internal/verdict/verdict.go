// Package verdict consumes the external ML verdict service. The service is
// advisory: when it is slow or down the caller scores without it rather than
// holding up the decision.
package verdict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sentrygate/sentrygate/internal/models"
)

// ErrUnavailable signals the documented fail-open path: score with a zero
// verdict instead of failing the request.
var ErrUnavailable = errors.New("verdict service unavailable")

// DefaultTimeout bounds one verdict call.
const DefaultTimeout = 5 * time.Second

// Fetcher produces a verdict for one request.
type Fetcher interface {
	Fetch(ctx context.Context, req models.RequestData) (models.Verdict, error)
}

// HTTPClient implements Fetcher against the verdict service's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a verdict client. timeout <= 0 selects DefaultTimeout.
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

// Fetch asks the verdict service to classify one request. Transport errors,
// non-200 responses and malformed bodies all collapse into ErrUnavailable;
// the caller cannot distinguish them and should not try.
func (c *HTTPClient) Fetch(ctx context.Context, reqData models.RequestData) (models.Verdict, error) {
	payload, err := json.Marshal(map[string]string{
		"request_id": reqData.RequestID,
		"identity":   reqData.Identity,
		"method":     reqData.Method,
		"url":        reqData.URL,
		"query":      reqData.Query,
		"body":       reqData.Body,
		"user_agent": reqData.UserAgent,
	})
	if err != nil {
		return models.Verdict{}, fmt.Errorf("failed to marshal verdict request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/verdict", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Verdict{}, fmt.Errorf("%w: unexpected status code %d", ErrUnavailable, resp.StatusCode)
	}

	var v models.Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return models.Verdict{}, fmt.Errorf("%w: failed to decode response: %s", ErrUnavailable, err)
	}
	return v, nil
}
