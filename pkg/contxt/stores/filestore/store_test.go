package filestore_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/ndustrialio/contxt-go/pkg/contxt/stores/filestore"
	"github.com/ndustrialio/contxt-go/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func testSession() contxt.Session {
	return contxt.Session{
		AccessToken: "access",
		APIToken:    "api",
		ExpiresAt:   time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("missing file loads empty", func(t *testing.T) {
		t.Parallel()

		s, err := filestore.New(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)

		got, err := s.Load(t.Context())
		require.NoError(t, err)
		require.True(t, got.IsZero())
		require.NoError(t, s.Clear(t.Context()))
	})

	t.Run("round trip creates directories", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", "dir", "session.json")
		s, err := filestore.New(path)
		require.NoError(t, err)

		want := testSession()
		require.NoError(t, s.Save(t.Context(), want))

		got, err := s.Load(t.Context())
		require.NoError(t, err)
		require.Equal(t, want, got)

		if runtime.GOOS != "windows" {
			info, err := os.Stat(path)
			require.NoError(t, err)
			require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		}

		require.NoError(t, s.Clear(t.Context()))
		_, err = os.Stat(path)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("path is required", func(t *testing.T) {
		t.Parallel()

		_, err := filestore.New("")
		require.Error(t, err)
	})
}

func TestEncryptedStore(t *testing.T) {
	t.Parallel()

	t.Run("encrypted at rest", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.json")
		s, err := filestore.New(path, filestore.WithPassphrase("correct horse"))
		require.NoError(t, err)
		require.NoError(t, s.Save(t.Context(), testSession()))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.True(t, cryptox.IsSealed(raw))
		require.NotContains(t, string(raw), "access")

		got, err := s.Load(t.Context())
		require.NoError(t, err)
		require.Equal(t, testSession(), got)
	})

	t.Run("needs the passphrase", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.json")
		sealed, err := filestore.New(path, filestore.WithPassphrase("correct horse"))
		require.NoError(t, err)
		require.NoError(t, sealed.Save(t.Context(), testSession()))

		plain, err := filestore.New(path)
		require.NoError(t, err)
		_, err = plain.Load(t.Context())
		require.ErrorIs(t, err, filestore.ErrPassphraseRequired)

		wrong, err := filestore.New(path, filestore.WithPassphrase("battery staple"))
		require.NoError(t, err)
		_, err = wrong.Load(t.Context())
		require.Error(t, err)
	})

	t.Run("reads plain files", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.json")
		plain, err := filestore.New(path)
		require.NoError(t, err)
		require.NoError(t, plain.Save(t.Context(), testSession()))

		sealed, err := filestore.New(path, filestore.WithPassphrase("correct horse"))
		require.NoError(t, err)
		got, err := sealed.Load(t.Context())
		require.NoError(t, err)
		require.Equal(t, testSession(), got)
	})

	t.Run("empty passphrase", func(t *testing.T) {
		t.Parallel()

		_, err := filestore.New(filepath.Join(t.TempDir(), "session.json"), filestore.WithPassphrase(""))
		require.ErrorIs(t, err, cryptox.ErrEmptyPassphrase)
	})
}
