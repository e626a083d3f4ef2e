package contxt

import (
	"context"
	"net/url"
	"time"
)

// Health wraps the asset health API.
type Health struct {
	client *RequestClient
	now    func() time.Time
}

func NewHealth(client *RequestClient) *Health {
	return &Health{client: client, now: time.Now}
}

// Report records status for an asset. A zero timestamp means now.
func (h *Health) Report(ctx context.Context, assetID string, report HealthReport) error {
	switch {
	case assetID == "":
		return &ValidationError{Field: "asset id"}
	case report.Status != HealthStatusHealthy && report.Status != HealthStatusUnhealthy:
		return &ValidationError{Field: "status", Message: "must be healthy or unhealthy"}
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = h.now().UTC()
	}

	return h.client.Post(ctx, healthPath(assetID), report, nil)
}

// Latest returns the most recent status recorded for an asset.
func (h *Health) Latest(ctx context.Context, assetID string) (*HealthStatus, error) {
	if assetID == "" {
		return nil, &ValidationError{Field: "asset id"}
	}

	var out HealthStatus
	if err := h.client.Get(ctx, healthPath(assetID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func healthPath(assetID string) string {
	return "/v1/assets/" + url.PathEscape(assetID) + "/health"
}
