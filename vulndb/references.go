package vulndb

import (
	"regexp"
)

const (
	RefCVE        = "cve"
	RefBugtraqID  = "bugtraqid"
	RefExploitDB  = "exploitdb"
	RefSecunia    = "secunia"
	RefMetasploit = "metasploit"
	RefOSVDB      = "osvdb"
	RefOther      = "other"
)

var bugtraqURL = regexp.MustCompile(`^https?://(?:www\.)?securityfocus\.com/bid/(\d+)(?:/.*)?$`)

// Reference points to an external description of a vulnerability. For
// normalized types ID is authoritative, for RefOther it is URL.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (r Reference) IsNormalized() bool {
	return r.Type != RefOther && r.Type != ""
}

func (r Reference) Matches(other Reference) bool {
	if r.IsNormalized() || other.IsNormalized() {
		return r.Type == other.Type && r.ID != "" && r.ID == other.ID
	}
	return r.URL != "" && r.URL == other.URL
}

// CVEURL is the canonical location of a CVE identifier.
func CVEURL(id string) string {
	return "https://cve.mitre.org/cgi-bin/cvename.cgi?name=" + id
}

// ReferenceManager keeps the reference list of a vulnerability free of
// duplicates.
type ReferenceManager struct {
	vuln *Vulnerability
}

func (m *ReferenceManager) IncludeNormalized(refType, id string) {
	for _, ref := range m.vuln.References {
		if ref.Type == refType && ref.ID == id {
			return
		}
	}
	ref := Reference{Type: refType, ID: id}
	if refType == RefCVE {
		ref.URL = CVEURL(id)
	}
	m.vuln.References = append(m.vuln.References, ref)
	m.vuln.MarkDirty()
}

// IncludeURL adds url as an other reference. Bugtraq URLs collapse into a
// bugtraqid reference.
func (m *ReferenceManager) IncludeURL(url string) {
	if match := bugtraqURL.FindStringSubmatch(url); match != nil {
		m.IncludeNormalized(RefBugtraqID, match[1])
		return
	}
	for _, ref := range m.vuln.References {
		if ref.URL == url {
			return
		}
	}
	m.vuln.References = append(m.vuln.References, Reference{Type: RefOther, URL: url})
	m.vuln.MarkDirty()
}

func (m *ReferenceManager) Include(ref Reference) {
	switch {
	case ref.IsNormalized() && ref.ID != "":
		m.IncludeNormalized(ref.Type, ref.ID)
	case ref.URL != "":
		m.IncludeURL(ref.URL)
	}
}
