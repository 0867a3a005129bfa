package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAvatarStore(t *testing.T) {
	t.Parallel()

	t.Run("creates the root directory", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "avatars")

		store, err := NewAvatarStore(root)
		require.NoError(t, err)

		info, statErr := os.Stat(store.RootAbs())
		require.NoError(t, statErr)
		require.True(t, info.IsDir())
	})

	t.Run("rejects an empty root", func(t *testing.T) {
		_, err := NewAvatarStore("   ")
		require.Error(t, err)
	})
}

func TestAvatarStoreRemove(t *testing.T) {
	t.Parallel()

	newStore := func(t *testing.T) *AvatarStore {
		t.Helper()
		store, err := NewAvatarStore(t.TempDir())
		require.NoError(t, err)
		return store
	}

	t.Run("removes an existing artifact", func(t *testing.T) {
		store := newStore(t)

		path := filepath.Join(store.RootAbs(), "alice.png")
		require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))

		require.NoError(t, store.Remove("alice.png"))

		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})

	t.Run("removes a nested artifact", func(t *testing.T) {
		store := newStore(t)

		dir := filepath.Join(store.RootAbs(), "2026", "08")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		path := filepath.Join(dir, "alice.png")
		require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))

		require.NoError(t, store.Remove("2026/08/alice.png"))

		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})

	t.Run("missing artifact is not an error", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Remove("never-stored.png"))
	})

	t.Run("backslash separators are normalized", func(t *testing.T) {
		store := newStore(t)

		dir := filepath.Join(store.RootAbs(), "nested")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		path := filepath.Join(dir, "pic.png")
		require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))

		require.NoError(t, store.Remove(`nested\pic.png`))

		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})

	t.Run("rejects references escaping the root", func(t *testing.T) {
		store := newStore(t)

		outside := filepath.Join(filepath.Dir(store.RootAbs()), "outside.txt")
		require.NoError(t, os.WriteFile(outside, []byte("keep me"), 0o644))

		for _, reference := range []string{
			"../outside.txt",
			"sub/../../outside.txt",
			`..\outside.txt`,
		} {
			err := store.Remove(reference)
			require.Error(t, err, "reference %q must be rejected", reference)
		}

		// Nothing outside the root was touched.
		_, err := os.Stat(outside)
		require.NoError(t, err)
	})

	t.Run("rejects empty and control-character references", func(t *testing.T) {
		store := newStore(t)

		for _, reference := range []string{"", "   ", "/", "bad\x00name.png", "bad\nname.png"} {
			require.Error(t, store.Remove(reference), "reference %q must be rejected", reference)
		}
	})

	t.Run("rejects the root itself", func(t *testing.T) {
		store := newStore(t)

		require.Error(t, store.Remove("."))
	})
}
