package repository

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultListTimeout     = 30 * time.Second
	DefaultTransferTimeout = 10 * time.Minute
)

// SubversionWorkspace drives the svn client against a remote repository.
// When the remote follows the tags/trunk/branches layout, versions are the
// entries under tags/.
type SubversionWorkspace struct {
	Runner          CommandRunner
	Location        string
	ListTimeout     time.Duration
	TransferTimeout time.Duration

	dir        string
	versionURL string
	checkedOut bool
}

func NewSubversionWorkspace(runner CommandRunner, location, dir string) *SubversionWorkspace {
	return &SubversionWorkspace{
		Runner:          runner,
		Location:        location,
		ListTimeout:     DefaultListTimeout,
		TransferTimeout: DefaultTransferTimeout,
		dir:             dir,
		versionURL:      withSlash(location),
	}
}

// SubversionFactory returns a Factory producing workspaces that share runner
// and list timeout.
func SubversionFactory(runner CommandRunner, listTimeout time.Duration) Factory {
	return func(location, dir string) Workspace {
		ws := NewSubversionWorkspace(runner, location, dir)
		if listTimeout > 0 {
			ws.ListTimeout = listTimeout
		}
		return ws
	}
}

func withSlash(url string) string {
	return strings.TrimRight(url, "/") + "/"
}

func (s *SubversionWorkspace) Dir() string {
	return s.dir
}

func (s *SubversionWorkspace) Prepare(ctx context.Context) error {
	entries, err := s.ls(ctx, withSlash(s.Location))
	if err != nil {
		return err
	}

	present := map[string]bool{}
	for _, entry := range entries {
		present[entry] = true
	}
	if present["tags"] && present["trunk"] && present["branches"] {
		s.versionURL = withSlash(s.Location) + "tags/"
	}
	return nil
}

func (s *SubversionWorkspace) ListVersions(ctx context.Context) ([]string, error) {
	return s.ls(ctx, s.versionURL)
}

func (s *SubversionWorkspace) ls(ctx context.Context, url string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ListTimeout)
	defer cancel()

	lines, err := s.Runner.Run(ctx, s.dir, "svn", "ls", url)
	if err != nil {
		return nil, err
	}

	entries := make([]string, 0, len(lines))
	for _, line := range lines {
		entry := strings.TrimSuffix(strings.TrimSpace(line), "/")
		if entry == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ToVersion checks out the first version and switches for later ones.
func (s *SubversionWorkspace) ToVersion(ctx context.Context, v string) error {
	ctx, cancel := context.WithTimeout(ctx, s.TransferTimeout)
	defer cancel()

	target := s.versionURL + v
	var err error
	if s.checkedOut {
		_, err = s.Runner.Run(ctx, s.dir, "svn", "switch", "--ignore-ancestry", target)
	} else {
		_, err = s.Runner.Run(ctx, s.dir, "svn", "checkout", target, ".")
	}
	if err != nil {
		return fmt.Errorf("could not move to version %s: %w", v, err)
	}
	s.checkedOut = true
	return nil
}

func (s *SubversionWorkspace) Cleanup() error {
	return removeDir(s.dir)
}
