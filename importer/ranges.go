package importer

import (
	"errors"
	"log/slog"
	"regexp"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb/version"
)

var beforeVersion = regexp.MustCompile(`(?i)\bbefore (\d+(?:\.\d+)+)`)

type VersionLookup interface {
	ReadVersionList(key string) (*vulndb.VersionList, error)
}

// RangeGuesser derives affected ranges from free text and CPE versions.
type RangeGuesser struct {
	Versions VersionLookup
}

func (g RangeGuesser) Guess(key, summary string, cpes []CPE23Uri) []vulndb.VersionRange {
	var ranges []vulndb.VersionRange

	if match := beforeVersion.FindStringSubmatch(summary); match != nil {
		ranges = append(ranges, vulndb.VersionRange{FixedIn: match[1]})
	}

	if len(cpes) == 0 || g.Versions == nil {
		return ranges
	}
	versions := make([]string, 0, len(cpes))
	for _, cpe := range cpes {
		if !cpe.HasVersion() {
			return ranges
		}
		versions = append(versions, cpe.Version)
	}

	next, err := version.NextMinor(version.Max(versions))
	if err != nil {
		slog.Debug("could not guess fixed version", "key", key, "err", err)
		return ranges
	}

	list, err := g.Versions.ReadVersionList(key)
	if errors.Is(err, vulndb.ErrNotFound) {
		return ranges
	}
	if err != nil {
		slog.Warn("could not read versions", "key", key, "err", err)
		return ranges
	}
	if list.HasVersion(next) {
		ranges = append(ranges, vulndb.VersionRange{FixedIn: next})
	}
	return ranges
}
