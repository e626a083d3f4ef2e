package contxt

import (
	"context"
	"fmt"
	"net/url"
)

// Facilities wraps the facilities API.
type Facilities struct {
	client *RequestClient
}

func NewFacilities(client *RequestClient) *Facilities {
	return &Facilities{client: client}
}

// List returns every facility the caller can see.
func (f *Facilities) List(ctx context.Context) ([]Facility, error) {
	var out []Facility
	if err := f.client.Get(ctx, "/v1/facilities", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByOrganization returns the facilities of one organization.
func (f *Facilities) ListByOrganization(ctx context.Context, organizationID string) ([]Facility, error) {
	if organizationID == "" {
		return nil, &ValidationError{Field: "organization id"}
	}

	var out []Facility
	path := fmt.Sprintf("/v1/organizations/%s/facilities", url.PathEscape(organizationID))
	if err := f.client.Get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Facilities) Get(ctx context.Context, facilityID int) (*Facility, error) {
	if facilityID <= 0 {
		return nil, &ValidationError{Field: "facility id"}
	}

	var out Facility
	if err := f.client.Get(ctx, fmt.Sprintf("/v1/facilities/%d", facilityID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create requires Name, OrganizationID and Timezone.
func (f *Facilities) Create(ctx context.Context, facility Facility) (*Facility, error) {
	switch {
	case facility.Name == "":
		return nil, &ValidationError{Field: "name"}
	case facility.OrganizationID == "":
		return nil, &ValidationError{Field: "organization id"}
	case facility.Timezone == "":
		return nil, &ValidationError{Field: "timezone"}
	}

	var out Facility
	if err := f.client.Post(ctx, "/v1/facilities", facility, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the editable fields of a facility.
func (f *Facilities) Update(ctx context.Context, facilityID int, facility Facility) error {
	if facilityID <= 0 {
		return &ValidationError{Field: "facility id"}
	}
	return f.client.Put(ctx, fmt.Sprintf("/v1/facilities/%d", facilityID), facility, nil)
}

func (f *Facilities) Delete(ctx context.Context, facilityID int) error {
	if facilityID <= 0 {
		return &ValidationError{Field: "facility id"}
	}
	return f.client.Delete(ctx, fmt.Sprintf("/v1/facilities/%d", facilityID), nil)
}
