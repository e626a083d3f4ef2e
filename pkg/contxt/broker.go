package contxt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/ndustrialio/contxt-go/pkg/cryptox"
)

// Token broker endpoints, relative to the contxtAuth audience host.
const (
	brokerExchangePath = "/v1/token"
	brokerOAuthPath    = "/v1/oauth/token"
)

// tokenBroker exchanges provider access tokens for API tokens.
type tokenBroker struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     *slog.Logger
}

func newTokenBroker(audiences map[string]Audience, httpClient *http.Client, logger *slog.Logger) (*tokenBroker, error) {
	auth, ok := audiences[AudienceContxtAuth]
	if !ok || auth.Host == "" {
		return nil, &ConfigError{
			Message:   "the token broker audience must be configured",
			Audiences: []string{AudienceContxtAuth},
		}
	}

	return &tokenBroker{
		baseURL:    auth.Host,
		clientID:   auth.ClientID,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type exchangeRequest struct {
	Audiences []string `json:"audiences"`
	Nonce     string   `json:"nonce"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
}

// exchange trades providerToken for an API token valid for audiences.
func (b *tokenBroker) exchange(ctx context.Context, providerToken string, audiences []string) (string, error) {
	nonce, err := cryptox.NewNonce()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(exchangeRequest{Audiences: audiences, Nonce: nonce})
	if err != nil {
		return "", fmt.Errorf("failed to encode exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+brokerExchangePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+providerToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", &AuthExchangeError{Op: "token exchange", Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthExchangeError{Op: "token exchange", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", exchangeFailure("token exchange", resp.StatusCode, bodyBytes)
	}

	var out exchangeResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", &AuthExchangeError{Op: "token exchange", StatusCode: resp.StatusCode, Err: err}
	}
	if out.AccessToken == "" {
		return "", &AuthExchangeError{Op: "token exchange", StatusCode: resp.StatusCode, Description: "response did not include an access_token"}
	}

	b.logger.DebugContext(ctx, "exchanged provider token", "audiences", len(audiences))
	return out.AccessToken, nil
}

// exchangeAudiences lists the client ids an API token is requested for:
// every authenticated audience except the broker itself, without duplicates.
// Order follows audience name so requests are reproducible.
func exchangeAudiences(audiences map[string]Audience) []string {
	broker := audiences[AudienceContxtAuth].ClientID

	ids := make([]string, 0, len(audiences))
	for _, name := range slices.Sorted(maps.Keys(audiences)) {
		a := audiences[name]
		if a.NoAuth || a.ClientID == "" || a.ClientID == broker {
			continue
		}
		if slices.Contains(ids, a.ClientID) {
			continue
		}
		ids = append(ids, a.ClientID)
	}
	return ids
}

// oauthErrorBody is the error shape returned by the broker and provider.
type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	MFAToken         string `json:"mfa_token"`
}

func exchangeFailure(op string, status int, body []byte) *AuthExchangeError {
	var e oauthErrorBody
	if err := json.Unmarshal(body, &e); err != nil || (e.Error == "" && e.Message == "") {
		return &AuthExchangeError{Op: op, StatusCode: status, Description: string(body)}
	}

	desc := e.ErrorDescription
	if desc == "" {
		desc = e.Message
	}
	return &AuthExchangeError{Op: op, StatusCode: status, Code: e.Error, Description: desc}
}
