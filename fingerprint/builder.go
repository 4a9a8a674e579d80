// Package fingerprint reduces version lists to the files that tell versions
// apart and exports them for scanners.
package fingerprint

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb/version"
)

// ErrNotDiscriminating is returned when two versions that must be told
// apart end up with identical fingerprints.
var ErrNotDiscriminating = errors.New("fingerprint does not discriminate versions")

const DefaultFilesPerVersion = 50

var carveOuts = map[string]bool{"trunk": true, "tags": true, "branches": true}

type Builder struct {
	FilesPerVersion int
}

func NewBuilder(filesPerVersion int) Builder {
	if filesPerVersion <= 0 {
		filesPerVersion = DefaultFilesPerVersion
	}
	return Builder{FilesPerVersion: filesPerVersion}
}

// release is the filtered content of one version, keyed by path.
type release struct {
	version string
	files   map[string]vulndb.Signature
}

// Build returns the FileList fingerprinting list, or nil when no version has
// any file.
func (b Builder) Build(list *vulndb.VersionList) (*vulndb.FileList, error) {
	limit := b.FilesPerVersion
	if limit <= 0 {
		limit = DefaultFilesPerVersion
	}

	releases := filterReleases(list)
	if len(releases) == 0 {
		return nil, nil
	}

	var selected []map[string]vulndb.Signature
	if len(releases) == 1 {
		selected = []map[string]vulndb.Signature{keepFirst(releases[0].files, limit)}
	} else {
		diffs := adjacentDiffs(releases)
		shrink(diffs, releases, limit)
		selected = selectFiles(diffs, releases, limit)

		err := checkDiscriminating(releases, selected)
		if err != nil {
			return nil, fmt.Errorf("could not fingerprint %s: %w", list.Key, err)
		}
	}

	return transpose(list, releases, selected), nil
}

func filterReleases(list *vulndb.VersionList) []release {
	prefix := vulndb.PathPrefix(list.Key)

	var releases []release
	empty := true
	for _, def := range list.Versions {
		r := release{version: def.Version, files: map[string]vulndb.Signature{}}
		for _, sig := range def.Signatures {
			if carvedOut(prefix, sig.Path) {
				continue
			}
			r.files[sig.Path] = sig
		}
		if len(r.files) > 0 {
			empty = false
		}
		releases = append(releases, r)
	}
	if empty {
		return nil
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return version.Less(releases[i].version, releases[j].version)
	})
	return releases
}

// carvedOut reports paths under a trunk, tags or branches directory at the
// root of the target's own tree.
func carvedOut(prefix, p string) bool {
	rel := p
	if prefix != "" {
		if !strings.HasPrefix(p, prefix+"/") {
			return false
		}
		rel = strings.TrimPrefix(p, prefix+"/")
	}
	first, rest, nested := strings.Cut(rel, "/")
	return nested && rest != "" && carveOuts[first]
}

func sortedPaths(files map[string]vulndb.Signature) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func keepFirst(files map[string]vulndb.Signature, limit int) map[string]vulndb.Signature {
	kept := map[string]vulndb.Signature{}
	for _, p := range sortedPaths(files) {
		if len(kept) == limit {
			break
		}
		kept[p] = files[p]
	}
	return kept
}

// adjacentDiffs returns, per version, the paths that are new or changed
// since the previous version. The first version differs in every path.
func adjacentDiffs(releases []release) [][]string {
	diffs := make([][]string, len(releases))
	diffs[0] = sortedPaths(releases[0].files)
	for i := 1; i < len(releases); i++ {
		previous := releases[i-1].files
		var diff []string
		for _, p := range sortedPaths(releases[i].files) {
			before, ok := previous[p]
			if !ok || before.Hash != releases[i].files[p].Hash {
				diff = append(diff, p)
			}
		}
		diffs[i] = diff
	}
	return diffs
}

func countDiffs(diffs [][]string) map[string]int {
	counts := map[string]int{}
	for _, diff := range diffs {
		for _, p := range diff {
			counts[p]++
		}
	}
	return counts
}

func countVersions(releases []release) map[string]int {
	counts := map[string]int{}
	for _, r := range releases {
		for p := range r.files {
			counts[p]++
		}
	}
	return counts
}

// rankPaths orders paths that tell more adjacent pairs apart first, then
// paths present in more versions.
func rankPaths(paths []string, inDiffs, inVersions map[string]int) {
	sort.SliceStable(paths, func(a, b int) bool {
		pa, pb := paths[a], paths[b]
		if inDiffs[pa] != inDiffs[pb] {
			return inDiffs[pa] > inDiffs[pb]
		}
		if inVersions[pa] != inVersions[pb] {
			return inVersions[pa] > inVersions[pb]
		}
		return pa < pb
	})
}

// shrink truncates oversize diffs to limit.
func shrink(diffs [][]string, releases []release, limit int) {
	oversize := false
	for _, diff := range diffs {
		if len(diff) > limit {
			oversize = true
			break
		}
	}
	if !oversize {
		return
	}

	inVersions := countVersions(releases)
	inDiffs := countDiffs(diffs)
	for i, diff := range diffs {
		if len(diff) <= limit {
			continue
		}
		rankPaths(diff, inDiffs, inVersions)
		diffs[i] = diff[:limit]
		inDiffs = countDiffs(diffs)
	}
}

// selectFiles picks at most limit files per version: its own diff first,
// then identity files from other diffs, then the most common remaining files.
func selectFiles(diffs [][]string, releases []release, limit int) []map[string]vulndb.Signature {
	identity := map[string]bool{}
	for _, diff := range diffs {
		for _, p := range diff {
			identity[p] = true
		}
	}
	inVersions := countVersions(releases)
	inDiffs := countDiffs(diffs)

	selected := make([]map[string]vulndb.Signature, len(releases))
	for i, r := range releases {
		files := map[string]vulndb.Signature{}
		for _, p := range diffs[i] {
			if len(files) >= limit {
				break
			}
			files[p] = r.files[p]
		}

		var others, rest []string
		for _, p := range sortedPaths(r.files) {
			if _, ok := files[p]; ok {
				continue
			}
			if identity[p] {
				others = append(others, p)
			} else {
				rest = append(rest, p)
			}
		}
		rankPaths(others, inDiffs, inVersions)
		sort.SliceStable(rest, func(a, b int) bool {
			return inVersions[rest[a]] > inVersions[rest[b]]
		})

		for _, p := range append(others, rest...) {
			if len(files) >= limit {
				break
			}
			files[p] = r.files[p]
		}
		selected[i] = files
	}
	return selected
}

func sameSignatures(a, b map[string]vulndb.Signature) bool {
	if len(a) != len(b) {
		return false
	}
	for p, sig := range a {
		other, ok := b[p]
		if !ok || other.Hash != sig.Hash {
			return false
		}
	}
	return true
}

// checkDiscriminating tolerates identical neighbours within a major.minor
// line, except in the newest major line.
func checkDiscriminating(releases []release, selected []map[string]vulndb.Signature) error {
	newestMajor := version.MajorLine(releases[len(releases)-1].version)
	for i := 1; i < len(releases); i++ {
		if !sameSignatures(selected[i-1], selected[i]) {
			continue
		}
		previous, current := releases[i-1].version, releases[i].version
		sameLine := version.MinorLine(previous) == version.MinorLine(current)
		if sameLine && version.MajorLine(current) != newestMajor {
			slog.Warn("versions share a fingerprint", "previous", previous, "current", current)
			continue
		}
		return fmt.Errorf("%w: %s and %s", ErrNotDiscriminating, previous, current)
	}
	return nil
}

// transpose turns per version selections into one File per path with one
// FileSignature per distinct hash.
func transpose(list *vulndb.VersionList, releases []release, selected []map[string]vulndb.Signature) *vulndb.FileList {
	type hashVersions struct {
		algo     string
		versions []string
	}
	byPath := map[string]map[string]*hashVersions{}
	hashOrder := map[string][]string{}

	for i, r := range releases {
		for _, p := range sortedPaths(selected[i]) {
			sig := selected[i][p]
			hashes, ok := byPath[p]
			if !ok {
				hashes = map[string]*hashVersions{}
				byPath[p] = hashes
			}
			entry, ok := hashes[sig.Hash]
			if !ok {
				entry = &hashVersions{algo: sig.Algo}
				hashes[sig.Hash] = entry
				hashOrder[p] = append(hashOrder[p], sig.Hash)
			}
			entry.versions = append(entry.versions, r.version)
		}
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	fileList := &vulndb.FileList{Key: list.Key, Producer: list.Producer}
	if fileList.Producer == "" {
		fileList.Producer = vulndb.DefaultProducer
	}
	for _, p := range paths {
		file := vulndb.File{Path: p}
		for _, hash := range hashOrder[p] {
			entry := byPath[p][hash]
			file.Signatures = append(file.Signatures, vulndb.FileSignature{
				Hash:     hash,
				Algo:     entry.algo,
				Versions: entry.versions,
			})
		}
		fileList.Files = append(fileList.Files, file)
	}
	return fileList
}
