package contxt

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/slogx"
)

const (
	testBrokerClientID     = "A"
	testFacilitiesClientID = "B"
	testMFAToken           = "mfa-token"
	testOTP                = "123456"
)

type exchangeCall struct {
	Authorization string
	Body          exchangeRequest
}

// fakeBackend plays the identity provider and the token broker.
type fakeBackend struct {
	srv *httptest.Server

	mu             sync.Mutex
	exchanges      []exchangeCall
	apiToken       string
	exchangeStatus int
	oauthStatus    int
	oauthToken     string
	oauthExpiresIn int
	oauthDelay     time.Duration
	oauthForms     []url.Values

	oauthHits atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		apiToken:       "xyz",
		exchangeStatus: http.StatusOK,
		oauthStatus:    http.StatusOK,
		oauthToken:     "m2m-token",
		oauthExpiresIn: 3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/token", b.handleExchange)
	mux.HandleFunc("POST /v1/oauth/token", b.handleClientCredentials)
	mux.HandleFunc("POST /oauth/token", b.handleProvider)

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) URL() string { return b.srv.URL }

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) exchangeCalls() []exchangeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]exchangeCall(nil), b.exchanges...)
}

func (b *fakeBackend) lastOAuthForm() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.oauthForms) == 0 {
		return nil
	}
	return b.oauthForms[len(b.oauthForms)-1]
}

func (b *fakeBackend) handleExchange(w http.ResponseWriter, r *http.Request) {
	var body exchangeRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	b.exchanges = append(b.exchanges, exchangeCall{Authorization: r.Header.Get("Authorization"), Body: body})
	status, token := b.exchangeStatus, b.apiToken
	b.mu.Unlock()

	if status != http.StatusOK {
		writeTestJSON(w, status, map[string]string{"error": "server_error", "error_description": "broker unavailable"})
		return
	}
	writeTestJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (b *fakeBackend) handleClientCredentials(w http.ResponseWriter, r *http.Request) {
	b.oauthHits.Add(1)
	_ = r.ParseForm()

	b.mu.Lock()
	b.oauthForms = append(b.oauthForms, r.PostForm)
	status, token, expiresIn, delay := b.oauthStatus, b.oauthToken, b.oauthExpiresIn, b.oauthDelay
	b.mu.Unlock()

	time.Sleep(delay)

	if status != http.StatusOK {
		writeTestJSON(w, status, map[string]string{"error": "invalid_client", "error_description": "client authentication failed"})
		return
	}

	resp := map[string]any{"access_token": token, "token_type": "bearer"}
	if expiresIn > 0 {
		resp["expires_in"] = expiresIn
	}
	writeTestJSON(w, http.StatusOK, resp)
}

func (b *fakeBackend) handleProvider(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	b.mu.Lock()
	b.oauthForms = append(b.oauthForms, r.PostForm)
	b.mu.Unlock()

	ok := map[string]any{"access_token": "provider-token", "token_type": "Bearer", "expires_in": 86400}

	switch r.PostForm.Get("grant_type") {
	case grantPasswordRealm:
		switch {
		case r.PostForm.Get("username") == "mfa@example.com":
			writeTestJSON(w, http.StatusForbidden, map[string]string{
				"error":             "mfa_required",
				"error_description": "Multifactor authentication required",
				"mfa_token":         testMFAToken,
			})
		case r.PostForm.Get("password") != "hunter2":
			writeTestJSON(w, http.StatusForbidden, map[string]string{
				"error":             "invalid_grant",
				"error_description": "Wrong email or password.",
			})
		default:
			writeTestJSON(w, http.StatusOK, ok)
		}
	case grantMFAOTP:
		if r.PostForm.Get("mfa_token") != testMFAToken || r.PostForm.Get("otp") != testOTP {
			writeTestJSON(w, http.StatusForbidden, map[string]string{"error": "invalid_grant", "error_description": "Invalid otp_code."})
			return
		}
		writeTestJSON(w, http.StatusOK, ok)
	default:
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testAudiences resolves a broker and a facilities audience at host.
func testAudiences(host string) map[string]Audience {
	return map[string]Audience{
		AudienceContxtAuth: {Name: AudienceContxtAuth, ClientID: testBrokerClientID, Host: host},
		AudienceFacilities: {Name: AudienceFacilities, ClientID: testFacilitiesClientID, Host: host},
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testEnv(b *fakeBackend, clock *testClock) strategyEnv {
	return strategyEnv{
		audiences:  testAudiences(b.URL()),
		httpClient: b.srv.Client(),
		logger:     slogx.Discard(),
		now:        clock.Now,
	}
}
