package hashing

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
)

var vcsDirectories = map[string]bool{
	".svn": true,
	".git": true,
	".hg":  true,
	".bzr": true,
	"CVS":  true,
}

// Excluded reports whether a relative slash separated path is left out of
// a signature collection.
func Excluded(relPath string) bool {
	if strings.HasSuffix(relPath, ".php") {
		return true
	}
	for _, component := range strings.Split(relPath, "/") {
		if vcsDirectories[component] {
			return true
		}
	}
	return false
}

// Collector walks a release tree and emits one signature per retained file.
type Collector struct {
	Root    string
	Prefix  string
	Version string
	Hasher  Hasher
}

func (c Collector) Collect(ctx context.Context) ([]vulndb.Signature, error) {
	var signatures []vulndb.Signature

	err := filepath.WalkDir(c.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(c.Root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && vcsDirectories[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || Excluded(rel) {
			return nil
		}

		checker := NewVersionChecker(c.Version)
		hash, err := c.Hasher.HashFile(p, checker)
		if err != nil {
			return err
		}

		signatures = append(signatures, vulndb.Signature{
			Path:            path.Join(c.Prefix, rel),
			Algo:            c.Hasher.Algo,
			Hash:            hash,
			ContainsVersion: checker.Contained,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not collect signatures under %s: %w", c.Root, err)
	}

	sort.Slice(signatures, func(i, j int) bool {
		return signatures[i].Path < signatures[j].Path
	})
	return signatures, nil
}
