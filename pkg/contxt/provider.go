package contxt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Identity provider grant types.
const (
	grantPasswordRealm = "http://auth0.com/oauth/grant-type/password-realm"
	grantMFAOTP        = "http://auth0.com/oauth/grant-type/mfa-otp"

	passwordRealm = "Username-Password-Authentication"
	defaultScope  = "openid profile email"
)

// providerURL turns an identity provider domain into a base URL. A domain
// that already carries a scheme is used as is.
func providerURL(domain string) string {
	domain = strings.TrimSuffix(domain, "/")
	if strings.HasPrefix(domain, "https://") || strings.HasPrefix(domain, "http://") {
		return domain
	}
	return "https://" + domain
}

// providerToken is the identity provider's token response.
type providerToken struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// identityProvider talks to the provider's token endpoint for the grants the
// CLI strategy uses.
type identityProvider struct {
	baseURL    string
	clientID   string
	audience   string // broker client id; provider tokens are minted for it
	httpClient *http.Client
}

func (p *identityProvider) passwordGrant(ctx context.Context, username, password string) (*providerToken, error) {
	data := url.Values{
		"grant_type": {grantPasswordRealm},
		"realm":      {passwordRealm},
		"username":   {username},
		"password":   {password},
		"client_id":  {p.clientID},
		"audience":   {p.audience},
		"scope":      {defaultScope},
	}

	return p.requestToken(ctx, "password grant", data)
}

func (p *identityProvider) mfaOTPGrant(ctx context.Context, mfaToken, otp string) (*providerToken, error) {
	data := url.Values{
		"grant_type": {grantMFAOTP},
		"mfa_token":  {mfaToken},
		"otp":        {otp},
		"client_id":  {p.clientID},
	}

	return p.requestToken(ctx, "mfa grant", data)
}

func (p *identityProvider) requestToken(ctx context.Context, op string, data url.Values) (*providerToken, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/oauth/token",
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &AuthExchangeError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthExchangeError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var e oauthErrorBody
		if json.Unmarshal(bodyBytes, &e) == nil && e.Error == "mfa_required" {
			return nil, &MFARequiredError{MFAToken: e.MFAToken, Description: e.ErrorDescription}
		}
		return nil, exchangeFailure(op, resp.StatusCode, bodyBytes)
	}

	var tok providerToken
	if err := json.Unmarshal(bodyBytes, &tok); err != nil {
		return nil, &AuthExchangeError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &AuthExchangeError{Op: op, StatusCode: resp.StatusCode, Description: "response did not include an access_token"}
	}

	return &tok, nil
}
