package contxt

import (
	"context"
	"net/url"
)

// Coordinator wraps the organization and user directory.
type Coordinator struct {
	client *RequestClient
}

func NewCoordinator(client *RequestClient) *Coordinator {
	return &Coordinator{client: client}
}

func (c *Coordinator) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var out []Organization
	if err := c.client.Get(ctx, "/v1/organizations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) GetOrganization(ctx context.Context, organizationID string) (*Organization, error) {
	if organizationID == "" {
		return nil, &ValidationError{Field: "organization id"}
	}

	var out Organization
	if err := c.client.Get(ctx, "/v1/organizations/"+url.PathEscape(organizationID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser returns the user the API token was issued to.
func (c *Coordinator) CurrentUser(ctx context.Context) (*User, error) {
	var out User
	if err := c.client.Get(ctx, "/v1/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Coordinator) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user id"}
	}

	var out User
	if err := c.client.Get(ctx, "/v1/users/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
