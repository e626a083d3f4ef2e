package cli

import (
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ndustrialio/contxt-go/pkg/contxt"
)

const maxFragmentSize = 16 << 10

// The identity provider returns tokens in the URL fragment, which browsers
// never send to the server. The page reads it and posts it back.
var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Contxt login</title></head>
<body>
<p id="status">Completing login...</p>
<script>
fetch({{.}}, {method: "POST", body: window.location.hash.substring(1)})
  .then(function (res) { return res.text(); })
  .then(function (text) { document.getElementById("status").textContent = text; })
  .catch(function (err) { document.getElementById("status").textContent = "Login failed: " + err; });
</script>
</body>
</html>
`))

// callbackServer receives the redirect of a browser login.
type callbackServer struct {
	auth    *contxt.BrowserAuth
	logger  *slog.Logger
	results chan error
}

func newCallbackServer(auth *contxt.BrowserAuth, logger *slog.Logger) *callbackServer {
	return &callbackServer{
		auth:    auth,
		logger:  logger,
		results: make(chan error, 1),
	}
}

func (s *callbackServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/callback", s.handlePage)
	r.Post("/callback", s.handleFragment)
	return r
}

func (s *callbackServer) handlePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := callbackPage.Execute(w, "/callback"); err != nil {
		s.logger.Error("failed to render callback page", "error", err)
	}
}

func (s *callbackServer) handleFragment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFragmentSize))
	if err != nil {
		http.Error(w, "Login failed: unable to read callback", http.StatusBadRequest)
		return
	}

	err = s.auth.HandleCallback(r.Context(), string(body))
	select {
	case s.results <- err:
	default:
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "Login failed: "+err.Error())
		return
	}
	_, _ = io.WriteString(w, "Logged in. You can close this window.")
}
