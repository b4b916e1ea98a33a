package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsExcludedDir(t *testing.T) {
	require.True(t, isExcludedDir("node_modules"))
	require.True(t, isExcludedDir(".git"))
	require.True(t, isExcludedDir(".hidden"))
	require.False(t, isExcludedDir("src"))
}

func TestWatchAndRepoForResolvesNestedPath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	w, err := New(nil, nil, DefaultConfig())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.Watch(Repository{ID: "repo-1", RootPath: dir, CollectionID: "col-1"}))

	repo := w.repoFor(filepath.Join(sub, "file.go"))
	require.NotNil(t, repo)
	require.Equal(t, "repo-1", repo.ID)

	require.Nil(t, w.repoFor(filepath.Join(t.TempDir(), "other.go")))
}
