// Package cli implements the contxt command.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/ndustrialio/contxt-go/pkg/httpx"
	"github.com/ndustrialio/contxt-go/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	rateLimitEnvPrefix = "CONTXT_RATELIMIT"
)

// errUsage is returned after usage has been printed.
var errUsage = errors.New("invalid usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

// App runs one invocation of the contxt command.
type App struct {
	cfg    Config
	logger *slog.Logger

	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer

	// audiences and httpClient replace the built-in audience table and the
	// default HTTP client when set.
	audiences  contxt.AudienceTable
	httpClient *http.Client

	commands []command
}

func New(cfg Config, stdin io.Reader, stdout, stderr io.Writer) *App {
	app := &App{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "contxt",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  stderr,
		}),
		stdin:  bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
	}

	app.commands = []command{
		{name: "login", summary: "log in with a password, or with --browser", run: app.runLogin},
		{name: "token", summary: "print a machine API token", run: app.runToken},
		{name: "facilities", summary: "list facilities", run: app.runFacilities},
		{name: "status", summary: "show the stored sessions", run: app.runStatus},
		{name: "logout", summary: "drop the stored sessions", run: app.runLogout},
	}
	return app
}

// Run dispatches args[0] to its command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.usage()
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}

	for _, cmd := range a.commands {
		if cmd.name == args[0] {
			ctx = slogx.WithAttrs(slogx.WithContext(ctx, a.logger), "command", cmd.name)
			return cmd.run(ctx, args[1:])
		}
	}

	fmt.Fprintf(a.stderr, "unknown command %q\n\n", args[0])
	a.usage()
	return errUsage
}

func (a *App) usage() {
	fmt.Fprintf(a.stderr, "Usage: contxt <command> [flags]\n\nCommands:\n")
	for _, cmd := range a.commands {
		fmt.Fprintf(a.stderr, "  %-12s %s\n", cmd.name, cmd.summary)
	}
}

// IsUsageError reports whether err only means usage was printed.
func IsUsageError(err error) bool {
	return errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp)
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("contxt "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// newSDK builds an SDK for one session type around store.
func (a *App) newSDK(ctx context.Context, sessionType string, auth contxt.AuthOptions) (*contxt.SDK, error) {
	limit := httpx.ParseRateLimitFromEnv(rateLimitEnvPrefix, httpx.DefaultLimit)

	return contxt.New(ctx, contxt.Options{
		Env:                 a.cfg.Env,
		SessionType:         sessionType,
		Auth:                auth,
		CustomModuleConfigs: a.cfg.Modules,
		Audiences:           a.audiences,
		HTTPClient:          a.httpClient,
		RateLimit:           &limit,
		Logger:              a.logger,
	})
}

// userAuth returns the options shared by browser and password logins.
func (a *App) userAuth(store contxt.CredentialStore) contxt.AuthOptions {
	return contxt.AuthOptions{
		ClientID: a.cfg.ClientID,
		Domain:   a.cfg.AuthDomain,
		Store:    store,
	}
}

func (a *App) machineAuth(store contxt.CredentialStore) contxt.AuthOptions {
	return contxt.AuthOptions{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		Store:        store,
	}
}

// prompt writes label and reads one line from stdin.
func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.stderr, label)
	line, err := a.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}
