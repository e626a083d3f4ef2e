package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/ndustrialio/contxt-go/pkg/contxt/stores/filestore"
	"github.com/ndustrialio/contxt-go/pkg/contxt/stores/redisstore"
	"github.com/ndustrialio/contxt-go/pkg/contxt/stores/sqlitestore"
	"github.com/redis/go-redis/v9"
)

// Session namespaces. Browser and password logins share the user session
// so either can be used to log in for the other commands.
const (
	namespaceUser    = "user"
	namespaceMachine = "machine"
)

// openStore builds the configured credential store for namespace. The
// returned close function releases it.
func openStore(ctx context.Context, cfg Config, namespace string) (contxt.CredentialStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case StoreMemory:
		return contxt.NewMemoryStore(), noop, nil

	case StoreFile:
		var opts []filestore.Option
		if cfg.StorePassphrase != "" {
			opts = append(opts, filestore.WithPassphrase(cfg.StorePassphrase))
		}
		s, err := filestore.New(namespacedPath(cfg.StorePath, namespace), opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case StoreSQLite:
		s, err := sqlitestore.Open(cfg.StorePath, namespace)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redisstore.New(client, namespace), client.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// namespacedPath keeps the user session at path and puts other namespaces
// beside it, e.g. session.machine.json.
func namespacedPath(path, namespace string) string {
	if namespace == namespaceUser {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + namespace + ext
}
