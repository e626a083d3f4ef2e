package redisstore

import (
	"testing"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	tests := []struct {
		name      string
		namespace string
		opts      []Option
		want      string
	}{
		{name: "default namespace", want: "contxt:session:default"},
		{name: "namespace", namespace: "cli", want: "contxt:session:cli"},
		{name: "custom prefix", namespace: "svc", opts: []Option{WithPrefix("app:")}, want: "app:svc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, New(client, tt.namespace, tt.opts...).Key())
		})
	}
}

func TestTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s := New(nil, "ttl")
	s.now = func() time.Time { return now }

	ttl, keep := s.ttl(contxt.Session{APIToken: "a"})
	require.True(t, keep)
	require.Zero(t, ttl)

	ttl, keep = s.ttl(contxt.Session{APIToken: "a", ExpiresAt: now.Add(time.Hour)})
	require.True(t, keep)
	require.Equal(t, time.Hour, ttl)

	_, keep = s.ttl(contxt.Session{APIToken: "a", ExpiresAt: now})
	require.False(t, keep)
}
