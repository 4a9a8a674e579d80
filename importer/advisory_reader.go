package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/openwebvulndb/openwebvulndb-tools/importer/securityfocus"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb/version"
)

const ProducerSecurityFocus = "securityfocus"

var advisoryTitle = regexp.MustCompile(`(?i)wordpress\s+(.+?)\s+(plugin|theme)\b`)

// AdvisoryReader merges bugtraq advisories into vulnerability lists.
type AdvisoryReader struct {
	Identifier *TargetIdentifier
	Manager    *Manager
	Versions   VersionLookup
	Producer   string
}

func NewAdvisoryReader(identifier *TargetIdentifier, manager *Manager, versions VersionLookup) *AdvisoryReader {
	return &AdvisoryReader{
		Identifier: identifier,
		Manager:    manager,
		Versions:   versions,
		Producer:   ProducerSecurityFocus,
	}
}

// Apply merges adv and reports whether a target was identified for it.
func (r *AdvisoryReader) Apply(adv *securityfocus.Advisory) (bool, error) {
	key, ok, err := r.Identify(adv)
	if err != nil {
		return false, err
	}
	if !ok {
		slog.Debug("no target identified", "bid", adv.ID, "title", adv.Title)
		return false, nil
	}

	vuln, err := r.findOrCreate(key, adv)
	if err != nil {
		return false, err
	}

	candidate := &vulndb.Vulnerability{
		ID:           adv.ID,
		Title:        OptionalNonEmpty(adv.Title),
		ReportedType: OptionalNonEmpty(adv.Class),
		CreatedAt:    adv.Published,
		UpdatedAt:    adv.Updated,
	}
	refs := candidate.ReferenceManager()
	refs.IncludeNormalized(vulndb.RefBugtraqID, adv.ID)
	for _, cve := range adv.CVEs {
		refs.IncludeNormalized(vulndb.RefCVE, cve)
	}
	for _, url := range adv.ReferenceURLs() {
		refs.IncludeURL(url)
	}
	candidate.AffectedVersions = r.ranges(key, adv)

	vuln.Merge(candidate)
	slog.Debug("merged advisory", "bid", adv.ID, "key", key)
	return true, nil
}

// Identify runs the common cascade over the advisory references, then falls
// back to a key derived from the title.
func (r *AdvisoryReader) Identify(adv *securityfocus.Advisory) (string, bool, error) {
	key, ok, err := r.Identifier.Identify(nil, adv.ReferenceURLs())
	if err != nil || ok {
		return key, ok, err
	}

	key, ok = KeyFromTitle(adv.Title)
	if !ok {
		return "", false, nil
	}
	if !r.knowsVersions(key, adv.ReferencedVersions()) {
		slog.Debug("rejecting title match", "bid", adv.ID, "key", key)
		return "", false, nil
	}
	return key, true, nil
}

// KeyFromTitle reads "WordPress <name> Plugin|Theme" titles.
func KeyFromTitle(title string) (string, bool) {
	match := advisoryTitle.FindStringSubmatch(title)
	if match == nil {
		return "", false
	}
	slug := strings.ToLower(strings.Join(strings.Fields(match[1]), "-"))
	group := vulndb.GroupPlugins
	if strings.EqualFold(match[2], "theme") {
		group = vulndb.GroupThemes
	}
	key := group + "/" + slug
	if vulndb.ValidateKey(key) != nil {
		return "", false
	}
	return key, true
}

func (r *AdvisoryReader) knowsVersions(key string, versions []string) bool {
	if r.Versions == nil {
		return false
	}
	list, err := r.Versions.ReadVersionList(key)
	if err != nil {
		if !errors.Is(err, vulndb.ErrNotFound) {
			slog.Warn("could not read versions", "key", key, "err", err)
		}
		return false
	}
	for _, v := range versions {
		if !list.HasVersion(v) {
			return false
		}
	}
	return true
}

// ranges prefers the lowest version listed as not vulnerable. Without one,
// the first stored release after the newest vulnerable version is used.
func (r *AdvisoryReader) ranges(key string, adv *securityfocus.Advisory) []vulndb.VersionRange {
	lowestFixed := OptionalFirst(version.Sorted(adv.FixedVersions()))
	if lowestFixed.IsSome() {
		return []vulndb.VersionRange{{FixedIn: lowestFixed.Unwrap()}}
	}

	vulnerable := adv.VulnerableVersions()
	if len(vulnerable) == 0 || r.Versions == nil {
		return nil
	}
	list, err := r.Versions.ReadVersionList(key)
	if err != nil {
		return nil
	}
	newest := version.Max(vulnerable)
	for _, v := range version.Sorted(list.VersionStrings()) {
		if version.Compare(v, newest) > 0 {
			return []vulndb.VersionRange{{FixedIn: v}}
		}
	}
	return nil
}

// findOrCreate looks for the advisory by bugtraq id then by CVE across all
// producers before creating it in the reader's own list.
func (r *AdvisoryReader) findOrCreate(key string, adv *securityfocus.Advisory) (*vulndb.Vulnerability, error) {
	matches := []vulndb.Reference{{Type: vulndb.RefBugtraqID, ID: adv.ID}}
	for _, cve := range adv.CVEs {
		matches = append(matches, vulndb.Reference{Type: vulndb.RefCVE, ID: cve})
	}

	for _, match := range matches {
		vuln, err := r.Manager.FindVulnerability(key, match)
		if err == nil {
			return vuln, nil
		}
		if !errors.Is(err, vulndb.ErrNotFound) {
			return nil, err
		}
	}

	list, err := r.Manager.GetProducerList(r.Producer, key)
	if err != nil {
		return nil, fmt.Errorf("could not load %s list of %s: %w", r.Producer, key, err)
	}
	return list.GetVulnerability(adv.ID, true)
}
