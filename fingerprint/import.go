package fingerprint

import (
	"sort"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb/version"
)

// ToVersionList expands a FileList back into one VersionDefinition per
// version, with signatures sorted by path.
func ToVersionList(files *vulndb.FileList) *vulndb.VersionList {
	list := vulndb.NewVersionList(files.Key)
	if files.Producer != "" {
		list.Producer = files.Producer
	}

	byVersion := map[string][]vulndb.Signature{}
	for _, file := range files.Files {
		for _, sig := range file.Signatures {
			for _, v := range sig.Versions {
				byVersion[v] = append(byVersion[v], vulndb.Signature{
					Path: file.Path,
					Algo: sig.Algo,
					Hash: sig.Hash,
				})
			}
		}
	}

	versions := make([]string, 0, len(byVersion))
	for v := range byVersion {
		versions = append(versions, v)
	}
	for _, v := range version.Sorted(versions) {
		sigs := byVersion[v]
		sort.Slice(sigs, func(i, j int) bool { return sigs[i].Path < sigs[j].Path })
		list.Versions = append(list.Versions, &vulndb.VersionDefinition{Version: v, Signatures: sigs})
	}
	return list
}
