package contxt

import (
	"context"
	"net/url"
)

// Assets wraps the asset metadata endpoints, served by the facilities API.
type Assets struct {
	client *RequestClient
}

func NewAssets(client *RequestClient) *Assets {
	return &Assets{client: client}
}

func (a *Assets) Get(ctx context.Context, assetID string) (*Asset, error) {
	if assetID == "" {
		return nil, &ValidationError{Field: "asset id"}
	}

	var out Asset
	if err := a.client.Get(ctx, "/v1/assets/"+url.PathEscape(assetID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create requires AssetTypeID, Label and OrganizationID.
func (a *Assets) Create(ctx context.Context, asset Asset) (*Asset, error) {
	switch {
	case asset.AssetTypeID == "":
		return nil, &ValidationError{Field: "asset type id"}
	case asset.Label == "":
		return nil, &ValidationError{Field: "label"}
	case asset.OrganizationID == "":
		return nil, &ValidationError{Field: "organization id"}
	}

	var out Asset
	if err := a.client.Post(ctx, "/v1/assets", asset, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Assets) Update(ctx context.Context, assetID string, update AssetUpdate) error {
	if assetID == "" {
		return &ValidationError{Field: "asset id"}
	}
	if update.Label == nil && update.Description == nil {
		return &ValidationError{Field: "update", Message: "no fields to update"}
	}
	return a.client.Put(ctx, "/v1/assets/"+url.PathEscape(assetID), update, nil)
}

func (a *Assets) Delete(ctx context.Context, assetID string) error {
	if assetID == "" {
		return &ValidationError{Field: "asset id"}
	}
	return a.client.Delete(ctx, "/v1/assets/"+url.PathEscape(assetID), nil)
}

// ListByOrganization returns one page of an organization's assets.
func (a *Assets) ListByOrganization(ctx context.Context, organizationID string, page PaginationOptions) (*Page[Asset], error) {
	if organizationID == "" {
		return nil, &ValidationError{Field: "organization id"}
	}

	var out Page[Asset]
	path := "/v1/organizations/" + url.PathEscape(organizationID) + "/assets"
	if err := a.client.Get(ctx, path, page.query(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
