// Package repository materializes released versions of a target from its
// upstream source control and collects their file signatures.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
)

const (
	TypeSubversion = "subversion"
	TypeGit        = "git"
)

// ErrNoContent is returned for repository types without a workspace
// implementation.
var ErrNoContent = errors.New("no content")

// Workspace is a scoped checkout of one repository.
type Workspace interface {
	// Prepare inspects the remote before versions are listed.
	Prepare(ctx context.Context) error
	ListVersions(ctx context.Context) ([]string, error)
	// ToVersion makes Dir hold the tree of version v.
	ToVersion(ctx context.Context, v string) error
	Dir() string
	Cleanup() error
}

// Factory builds a workspace for location that works inside dir.
type Factory func(location, dir string) Workspace

// Workspaces creates workspaces under BaseDir by repository type.
type Workspaces struct {
	BaseDir   string
	factories map[string]Factory
}

func NewWorkspaces(baseDir string) *Workspaces {
	return &Workspaces{BaseDir: baseDir, factories: map[string]Factory{}}
}

func (w *Workspaces) Register(repoType string, factory Factory) {
	w.factories[repoType] = factory
}

func (w *Workspaces) Supports(repoType string) bool {
	_, ok := w.factories[repoType]
	return ok
}

// With runs fn against a fresh workspace for repo. The workspace directory
// is removed on every exit path.
func (w *Workspaces) With(ctx context.Context, repo vulndb.Repository, fn func(Workspace) error) (err error) {
	factory, ok := w.factories[repo.Type]
	if !ok {
		return fmt.Errorf("%w: repository type %q", ErrNoContent, repo.Type)
	}

	dir := filepath.Join(w.BaseDir, uuid.NewString())
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("could not create workspace %s: %w", dir, err)
	}

	workspace := factory(repo.Location, dir)
	defer func() {
		cleanupErr := workspace.Cleanup()
		if cleanupErr != nil {
			slog.Error("could not clean up workspace", "dir", dir, "err", cleanupErr)
			if err == nil {
				err = cleanupErr
			}
		}
	}()

	err = workspace.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("could not prepare workspace for %s: %w", repo.Location, err)
	}

	return fn(workspace)
}

func removeDir(dir string) error {
	err := os.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("could not remove %s: %w", dir, err)
	}
	return nil
}
