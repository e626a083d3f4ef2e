package contxt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RequestClient makes JSON requests to one audience. Every call asks the
// session strategy for the current API token; the client never caches it.
type RequestClient struct {
	audience   Audience
	auth       SessionStrategy
	httpClient *http.Client
}

// NewRequestClient binds httpClient to audience. A nil httpClient means
// http.DefaultClient.
func NewRequestClient(audience Audience, auth SessionStrategy, httpClient *http.Client) *RequestClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RequestClient{audience: audience, auth: auth, httpClient: httpClient}
}

// Audience returns the audience this client talks to.
func (c *RequestClient) Audience() Audience {
	return c.audience
}

// Token returns the bearer token the next request would carry, or an empty
// string for audiences without auth.
func (c *RequestClient) Token(ctx context.Context) (string, error) {
	if c.audience.NoAuth {
		return "", nil
	}
	return c.auth.CurrentAPIToken(ctx, c.audience.Name)
}

func (c *RequestClient) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *RequestClient) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *RequestClient) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *RequestClient) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

func (c *RequestClient) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

func (c *RequestClient) Head(ctx context.Context, path string, query url.Values) error {
	return c.Do(ctx, http.MethodHead, path, query, nil, nil)
}

func (c *RequestClient) Options(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodOptions, path, nil, nil, out)
}

// Do sends one request to the audience host. body, when non-nil, is sent as
// JSON; a 2xx response body is decoded into out when out is non-nil. Errors
// from the session strategy are returned unchanged, so an unauthenticated
// caller sees a *NoTokenError rather than a transport error. Non-2xx
// responses become *APIError.
func (c *RequestClient) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	// Modules whose audience is missing from a replaced table hold a nil client.
	if c == nil {
		return &ConfigError{Message: "the audience for this module is not configured"}
	}
	target := c.url(path, query)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, bodyBytes)
	}

	if out == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *RequestClient) url(path string, query url.Values) string {
	target := strings.TrimSuffix(c.audience.Host, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// apiErrorBody covers the error shapes the Contxt APIs return.
type apiErrorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}

	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err == nil {
		apiErr.Code = e.Code
		apiErr.Message = e.Message
		if apiErr.Message == "" {
			apiErr.Message = e.Error
		}
	}
	return apiErr
}
