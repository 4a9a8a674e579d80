package repository

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func commitRelease(t *testing.T, repo *git.Repository, dir, v string) {
	t.Helper()
	require := require.New(t)

	require.NoError(os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("Version "+v), 0o644))
	worktree, err := repo.Worktree()
	require.NoError(err)
	_, err = worktree.Add("readme.txt")
	require.NoError(err)

	signature := &object.Signature{Name: "release", Email: "release@example.com", When: time.Now()}
	hash, err := worktree.Commit("release "+v, &git.CommitOptions{Author: signature})
	require.NoError(err)
	_, err = repo.CreateTag(v, hash, &git.CreateTagOptions{Tagger: signature, Message: v})
	require.NoError(err)
}

func TestGitWorkspaceListsTagsAndChecksOut(t *testing.T) {
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		t.Skip("git-upload-pack not available")
	}
	require := require.New(t)

	origin := t.TempDir()
	repo, err := git.PlainInit(origin, false)
	require.NoError(err)
	commitRelease(t, repo, origin, "1.0")
	commitRelease(t, repo, origin, "1.1")

	ws := NewGitWorkspace(origin, filepath.Join(t.TempDir(), "checkout"))
	require.NoError(ws.Prepare(context.Background()))

	versions, err := ws.ListVersions(context.Background())
	require.NoError(err)
	sort.Strings(versions)
	require.Equal([]string{"1.0", "1.1"}, versions)

	require.NoError(ws.ToVersion(context.Background(), "1.0"))
	content, err := os.ReadFile(filepath.Join(ws.Dir(), "readme.txt"))
	require.NoError(err)
	require.Equal("Version 1.0", string(content))

	require.NoError(ws.ToVersion(context.Background(), "1.1"))
	content, err = os.ReadFile(filepath.Join(ws.Dir(), "readme.txt"))
	require.NoError(err)
	require.Equal("Version 1.1", string(content))

	require.NoError(ws.Cleanup())
	require.NoDirExists(ws.Dir())
}
