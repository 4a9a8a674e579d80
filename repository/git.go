package repository

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GitWorkspace uses tags of a git remote as versions.
type GitWorkspace struct {
	Location string

	dir  string
	repo *git.Repository
}

func NewGitWorkspace(location, dir string) *GitWorkspace {
	return &GitWorkspace{Location: location, dir: dir}
}

func GitFactory() Factory {
	return func(location, dir string) Workspace {
		return NewGitWorkspace(location, dir)
	}
}

func (g *GitWorkspace) Dir() string {
	return g.dir
}

func (g *GitWorkspace) Prepare(ctx context.Context) error {
	return nil
}

func (g *GitWorkspace) ListVersions(ctx context.Context) ([]string, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{g.Location},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not list remote %s: %w", g.Location, err)
	}

	versions := []string{}
	for _, ref := range refs {
		if ref.Name().IsTag() {
			versions = append(versions, ref.Name().Short())
		}
	}
	return versions, nil
}

func (g *GitWorkspace) ToVersion(ctx context.Context, v string) error {
	if g.repo == nil {
		repo, err := git.PlainCloneContext(ctx, g.dir, false, &git.CloneOptions{
			URL:        g.Location,
			Tags:       git.AllTags,
			NoCheckout: true,
		})
		if err != nil {
			return fmt.Errorf("could not clone %s: %w", g.Location, err)
		}
		g.repo = repo
	}

	worktree, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("could not open worktree: %w", err)
	}

	// Annotated tags have to be peeled down to their commit.
	hash, err := g.repo.ResolveRevision(plumbing.Revision(plumbing.NewTagReferenceName(v)))
	if err != nil {
		return fmt.Errorf("could not resolve tag %s: %w", v, err)
	}

	err = worktree.Checkout(&git.CheckoutOptions{
		Hash:  *hash,
		Force: true,
	})
	if err != nil {
		return fmt.Errorf("could not checkout tag %s: %w", v, err)
	}
	return nil
}

func (g *GitWorkspace) Cleanup() error {
	return removeDir(g.dir)
}
