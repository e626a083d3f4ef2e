package contxt

import (
	"net/url"
	"strconv"
	"time"
)

// ============================================================================
// Pagination
// ============================================================================

// PaginationOptions pages list endpoints. Zero values use the API defaults.
type PaginationOptions struct {
	Limit  int
	Offset int
}

func (p PaginationOptions) query() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return q
}

type PaginationMetadata struct {
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Page is one page of a paginated list.
type Page[T any] struct {
	Meta    PaginationMetadata `json:"_metadata"`
	Records []T                `json:"records"`
}

// ============================================================================
// Facilities
// ============================================================================

type Facility struct {
	ID             int           `json:"id"`
	Name           string        `json:"name"`
	Slug           string        `json:"slug,omitempty"`
	Address1       string        `json:"address1,omitempty"`
	Address2       string        `json:"address2,omitempty"`
	City           string        `json:"city,omitempty"`
	State          string        `json:"state,omitempty"`
	Zip            string        `json:"zip,omitempty"`
	Timezone       string        `json:"timezone,omitempty"`
	GeometryID     string        `json:"geometry_id,omitempty"`
	AssetID        string        `json:"asset_id,omitempty"`
	OrganizationID string        `json:"organization_id"`
	Tags           []FacilityTag `json:"tags,omitempty"`
	CreatedAt      time.Time     `json:"created_at,omitzero"`
	UpdatedAt      time.Time     `json:"updated_at,omitzero"`
}

type FacilityTag struct {
	ID         int    `json:"id"`
	FacilityID int    `json:"facility_id"`
	Name       string `json:"name"`
}

// ============================================================================
// Assets
// ============================================================================

type Asset struct {
	ID             string    `json:"id"`
	AssetTypeID    string    `json:"asset_type_id"`
	Label          string    `json:"label"`
	Description    string    `json:"description,omitempty"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
}

// AssetUpdate carries the mutable fields of an asset.
type AssetUpdate struct {
	Label       *string `json:"label,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ============================================================================
// Health
// ============================================================================

// Health statuses accepted by the health API.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

type HealthReport struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthStatus struct {
	AssetID   string    `json:"asset_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ============================================================================
// Coordinator
// ============================================================================

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}
