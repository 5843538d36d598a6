package report

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPSink posts payloads to {base}/data and {base}/status.
type HTTPSink struct {
	client *resty.Client
}

var _ Sink = (*HTTPSink)(nil)

// NewHTTPSink creates an HTTP sink for the backend at baseURL.
func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPSink{client: client}
}

// Name returns "http".
func (s *HTTPSink) Name() string {
	return "http"
}

// Publish posts payload to the endpoint of kind.
func (s *HTTPSink) Publish(ctx context.Context, kind Kind, deviceID string, payload []byte) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-Device-Id", deviceID).
		SetBody(payload).
		Post("/" + string(kind))
	if err != nil {
		return fmt.Errorf("failed to post %s: %w", kind, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to post %s: %s", kind, resp.Status())
	}
	return nil
}

// Close is a no-op.
func (s *HTTPSink) Close() error {
	return nil
}
