package contxt

import (
	"net/url"
	"strconv"
	"strings"
)

// callbackResult is the implicit-flow response the identity provider places
// in the URL fragment of the redirect back to the application.
type callbackResult struct {
	AccessToken string
	IDToken     string
	TokenType   string
	ExpiresIn   int
	State       string
}

// parseCallbackFragment accepts a bare fragment ("access_token=..."), one
// with its leading '#', or a whole callback URL.
func parseCallbackFragment(raw string) (callbackResult, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[i+1:]
	}
	if raw == "" {
		return callbackResult{}, &AuthParseError{Reason: "missing callback fragment"}
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return callbackResult{}, &AuthParseError{Reason: "malformed callback fragment", Err: err}
	}

	if code := values.Get("error"); code != "" {
		reason := "identity provider returned " + code
		if desc := values.Get("error_description"); desc != "" {
			reason += ": " + desc
		}
		return callbackResult{}, &AuthParseError{Reason: reason}
	}

	res := callbackResult{
		AccessToken: values.Get("access_token"),
		IDToken:     values.Get("id_token"),
		TokenType:   values.Get("token_type"),
		State:       values.Get("state"),
	}
	if res.AccessToken == "" {
		return callbackResult{}, &AuthParseError{Reason: "callback fragment has no access_token"}
	}

	res.ExpiresIn, err = strconv.Atoi(values.Get("expires_in"))
	if err != nil || res.ExpiresIn <= 0 {
		return callbackResult{}, &AuthParseError{Reason: "callback fragment has an invalid expires_in", Err: err}
	}

	return res, nil
}
