package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/moznion/go-optional"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/tidwall/gjson"
)

const ProducerCVE = "cve"

// CVEEntry is one record of a CVE feed.
type CVEEntry struct {
	ID           string
	Summary      string
	References   []string
	CPEs         []string
	Published    optional.Option[vulndb.Timestamp]
	LastModified optional.Option[vulndb.Timestamp]
	CVSS         optional.Option[float64]
}

// ParseCVEFeed accepts a JSON array of entries, an object holding them under
// "results" or "data", or a single entry.
func ParseCVEFeed(data []byte) ([]CVEEntry, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("could not parse cve feed: invalid json")
	}

	root := gjson.ParseBytes(data)
	var items []gjson.Result
	switch {
	case root.IsArray():
		items = root.Array()
	case root.Get("results").IsArray():
		items = root.Get("results").Array()
	case root.Get("data").IsArray():
		items = root.Get("data").Array()
	case root.Get("id").Exists():
		items = []gjson.Result{root}
	default:
		return nil, fmt.Errorf("could not parse cve feed: no entries found")
	}

	entries := make([]CVEEntry, 0, len(items))
	for _, item := range items {
		entry := parseCVEEntry(item)
		if entry.ID == "" {
			slog.Warn("skipping cve entry without id")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseCVEEntry(item gjson.Result) CVEEntry {
	entry := CVEEntry{
		ID:      item.Get("id").String(),
		Summary: strings.TrimSpace(item.Get("summary").String()),
	}

	item.Get("references").ForEach(func(_, ref gjson.Result) bool {
		if url := refURL(ref); url != "" {
			entry.References = append(entry.References, url)
		}
		return true
	})

	// Configurations are either plain CPE strings or objects with an id.
	item.Get("vulnerable_configuration").ForEach(func(_, conf gjson.Result) bool {
		cpe := conf.String()
		if conf.IsObject() {
			cpe = conf.Get("id").String()
		}
		if cpe != "" {
			entry.CPEs = append(entry.CPEs, cpe)
		}
		return true
	})

	entry.Published = parseFeedTimestamp(entry.ID, "Published", item.Get("Published"))
	entry.LastModified = parseFeedTimestamp(entry.ID, "last-modified", item.Get("last-modified"))

	cvss := item.Get("cvss")
	if cvss.Type == gjson.Number {
		entry.CVSS = optional.Some(cvss.Float())
	}
	return entry
}

func refURL(ref gjson.Result) string {
	if ref.IsObject() {
		return ref.Get("url").String()
	}
	return ref.String()
}

func parseFeedTimestamp(id, field string, value gjson.Result) optional.Option[vulndb.Timestamp] {
	if !value.Exists() || value.String() == "" {
		return optional.None[vulndb.Timestamp]()
	}
	t, err := vulndb.ParseTimestamp(value.String())
	if err != nil {
		slog.Warn("ignoring unparseable date", "cve", id, "field", field, "err", err)
		return optional.None[vulndb.Timestamp]()
	}
	return optional.Some(t)
}

// CVEReader merges CVE feed entries into the vulnerability lists of the
// targets they are about.
type CVEReader struct {
	Identifier *TargetIdentifier
	Manager    *Manager
	Ranges     RangeGuesser
	Producer   string
}

func NewCVEReader(identifier *TargetIdentifier, manager *Manager, versions VersionLookup) *CVEReader {
	return &CVEReader{
		Identifier: identifier,
		Manager:    manager,
		Ranges:     RangeGuesser{Versions: versions},
		Producer:   ProducerCVE,
	}
}

// ReadAll applies every entry and returns how many were merged. Failing
// entries are logged and skipped.
func (r *CVEReader) ReadAll(entries []CVEEntry) int {
	applied := 0
	for _, entry := range entries {
		ok, err := r.Apply(entry)
		if err != nil {
			slog.Error("could not process cve", "cve", entry.ID, "err", err)
			continue
		}
		if ok {
			applied++
		}
	}
	return applied
}

// Apply merges entry and reports whether a target was identified for it.
func (r *CVEReader) Apply(entry CVEEntry) (bool, error) {
	key, ok, err := r.Identifier.Identify(entry.CPEs, entry.References)
	if err != nil {
		return false, err
	}
	if !ok {
		slog.Debug("no target identified", "cve", entry.ID)
		return false, nil
	}

	vuln, err := r.findOrCreate(key, entry.ID)
	if err != nil {
		return false, err
	}

	candidate := &vulndb.Vulnerability{
		ID:        entry.ID,
		Title:     OptionalNonEmpty(entry.Summary),
		CreatedAt: entry.Published,
		UpdatedAt: entry.LastModified,
		CVSS:      entry.CVSS,
	}
	refs := candidate.ReferenceManager()
	refs.IncludeNormalized(vulndb.RefCVE, entry.ID)
	for _, url := range entry.References {
		refs.IncludeURL(url)
	}

	cpes := make([]CPE23Uri, 0, len(entry.CPEs))
	for _, raw := range entry.CPEs {
		cpe, err := NewCPEUri(raw)
		if err != nil {
			slog.Debug("ignoring malformed cpe", "cve", entry.ID, "cpe", raw, "err", err)
			continue
		}
		cpes = append(cpes, cpe)
	}
	candidate.AffectedVersions = r.Ranges.Guess(key, entry.Summary, cpes)

	vuln.Merge(candidate)
	slog.Debug("merged cve", "cve", entry.ID, "key", key)
	return true, nil
}

// findOrCreate prefers a vulnerability of any producer already referencing
// the CVE.
func (r *CVEReader) findOrCreate(key, id string) (*vulndb.Vulnerability, error) {
	vuln, err := r.Manager.FindVulnerability(key, vulndb.Reference{Type: vulndb.RefCVE, ID: id})
	if err == nil {
		return vuln, nil
	}
	if !errors.Is(err, vulndb.ErrNotFound) {
		return nil, err
	}

	list, err := r.Manager.GetProducerList(r.Producer, key)
	if err != nil {
		return nil, err
	}
	return list.GetVulnerability(id, true)
}
