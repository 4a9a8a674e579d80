// Package securityfocus reads vulnerability advisories from the
// SecurityFocus bugtraq pages.
package securityfocus

import (
	"strings"
	"unicode"

	"github.com/moznion/go-optional"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
)

// Tabs are the pages making up one advisory.
var Tabs = []string{"info", "references", "discuss", "solution", "exploit"}

type Reference struct {
	Description string
	URL         string
}

// Advisory is one bugtraq entry assembled from its tabs.
type Advisory struct {
	ID            string
	Title         string
	Class         string
	CVEs          []string
	Remote        optional.Option[bool]
	Local         optional.Option[bool]
	Published     optional.Option[vulndb.Timestamp]
	Updated       optional.Option[vulndb.Timestamp]
	Credit        string
	Vulnerable    []string
	NotVulnerable []string
	References    []Reference
	Discussion    string
	Solution      string
	Exploit       string
}

// ProductVersion splits the version off a product line such as
// "WordPress Foo Plugin 1.2.3".
func ProductVersion(entry string) (string, bool) {
	fields := strings.Fields(entry)
	if len(fields) == 0 {
		return "", false
	}
	last := strings.TrimPrefix(fields[len(fields)-1], "v")
	if last == "" || !unicode.IsDigit(rune(last[0])) {
		return "", false
	}
	return last, true
}

func versionsOf(entries []string) []string {
	var versions []string
	seen := map[string]bool{}
	for _, entry := range entries {
		v, ok := ProductVersion(entry)
		if ok && !seen[v] {
			seen[v] = true
			versions = append(versions, v)
		}
	}
	return versions
}

func (a *Advisory) VulnerableVersions() []string {
	return versionsOf(a.Vulnerable)
}

func (a *Advisory) FixedVersions() []string {
	return versionsOf(a.NotVulnerable)
}

// ReferencedVersions lists every version named by the advisory.
func (a *Advisory) ReferencedVersions() []string {
	return versionsOf(append(append([]string{}, a.Vulnerable...), a.NotVulnerable...))
}

func (a *Advisory) ReferenceURLs() []string {
	urls := make([]string, 0, len(a.References))
	for _, ref := range a.References {
		if ref.URL != "" {
			urls = append(urls, ref.URL)
		}
	}
	return urls
}
