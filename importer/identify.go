package importer

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
)

var (
	sourceControlURL = regexp.MustCompile(`(?i)\b(plugins|themes)\.svn\.wordpress\.org/([^/?#\s]+)`)
	catalogURL       = regexp.MustCompile(`(?i)\bwordpress\.org/(?:extend/)?(plugins|themes)/([^/?#\s]+)`)
)

// A theme sharing the name of the core platform would otherwise swallow
// every core CPE.
const falsePositiveKey = "themes/wordpress"

type DirectoryLister interface {
	ListDirectories(group string) ([]string, error)
}

// TargetIdentifier resolves the key a vulnerability record is about from its
// CPEs and reference URLs.
type TargetIdentifier struct {
	Mapper    *CPEMapper
	Storage   DirectoryLister
	Rewriters []CompiledRewriter

	knownOnce sync.Once
	known     map[string]bool
	knownErr  error
}

func NewTargetIdentifier(mapper *CPEMapper, storage DirectoryLister, rewriters []CompiledRewriter) *TargetIdentifier {
	return &TargetIdentifier{Mapper: mapper, Storage: storage, Rewriters: rewriters}
}

// Identify returns the first key found by, in order: versioned CPE mapping,
// source control or catalog URLs, known plugin and theme slugs derived from
// CPE vendor and product, and finally unversioned CPE mapping.
func (t *TargetIdentifier) Identify(cpes []string, urls []string) (string, bool, error) {
	for _, cpe := range cpes {
		key, ok, err := t.Mapper.Lookup(cpe, false)
		if err != nil {
			return "", false, err
		}
		if ok {
			return key, true, nil
		}
	}

	for _, url := range urls {
		if key, ok := KeyFromURL(url); ok {
			return key, true, nil
		}
	}

	known, err := t.knownEntries()
	if err != nil {
		return "", false, err
	}

	anyVersion := false
	for _, raw := range cpes {
		cpe, err := NewCPEUri(raw)
		if err != nil {
			slog.Debug("ignoring malformed cpe", "cpe", raw, "err", err)
			continue
		}
		if cpe.HasVersion() {
			anyVersion = true
		}
		cpe = rewriteAll(t.Rewriters, cpe)
		for _, candidate := range candidateKeys(cpe) {
			if known[candidate] {
				return candidate, true, nil
			}
		}
	}

	if anyVersion || len(cpes) == 0 {
		return "", false, nil
	}

	best := ""
	for _, cpe := range cpes {
		key, ok, err := t.Mapper.Lookup(cpe, true)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "", false, nil
		}
		if best == "" || strings.Count(key, "/") > strings.Count(best, "/") {
			best = key
		}
	}
	return best, true, nil
}

// KeyFromURL extracts a plugin or theme key from its source control or
// catalog URL.
func KeyFromURL(url string) (string, bool) {
	for _, pattern := range []*regexp.Regexp{sourceControlURL, catalogURL} {
		match := pattern.FindStringSubmatch(url)
		if match != nil {
			return strings.ToLower(match[1]) + "/" + match[2], true
		}
	}
	return "", false
}

func candidateKeys(cpe CPE23Uri) []string {
	var keys []string
	for _, name := range []string{cpe.Product, cpe.Vendor} {
		slug := strings.TrimSuffix(strings.ReplaceAll(name, "_", "-"), "-plugin")
		if slug == "" || slug == "*" {
			continue
		}
		for _, group := range []string{vulndb.GroupPlugins, vulndb.GroupThemes} {
			keys = append(keys, group+"/"+slug)
		}
	}
	return keys
}

func (t *TargetIdentifier) knownEntries() (map[string]bool, error) {
	t.knownOnce.Do(func() {
		t.known = map[string]bool{}
		if t.Storage == nil {
			return
		}
		for _, group := range []string{vulndb.GroupPlugins, vulndb.GroupThemes} {
			slugs, err := t.Storage.ListDirectories(group)
			if err != nil {
				t.knownErr = fmt.Errorf("could not list known %s: %w", group, err)
				return
			}
			for _, slug := range slugs {
				t.known[group+"/"+slug] = true
			}
		}
		delete(t.known, falsePositiveKey)
	})
	return t.known, t.knownErr
}
