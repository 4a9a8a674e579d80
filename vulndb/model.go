package vulndb

import (
	"fmt"
	"strings"

	"github.com/moznion/go-optional"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb/version"
)

const (
	GroupPlugins = "plugins"
	GroupThemes  = "themes"
	GroupMU      = "mu"

	KeyWordPress = "wordpress"
	KeyMU        = "mu"

	DefaultProducer = "default"
)

// Groups lists the key groups holding one directory per slug.
var Groups = []string{GroupPlugins, GroupThemes, GroupMU}

// ValidateKey checks that key is either a core key or <group>/<slug>.
func ValidateKey(key string) error {
	if key == KeyWordPress || key == KeyMU {
		return nil
	}
	group, slug, found := strings.Cut(key, "/")
	if !found || slug == "" || strings.Contains(slug, "/") || slug == "." || slug == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, g := range Groups {
		if g == group {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown group in %q", ErrInvalidKey, key)
}

// PathPrefix is the path under a site root where the files of key live.
func PathPrefix(key string) string {
	group, slug, found := strings.Cut(key, "/")
	if !found {
		return ""
	}
	switch group {
	case GroupPlugins:
		return "wp-content/plugins/" + slug
	case GroupThemes:
		return "wp-content/themes/" + slug
	case GroupMU:
		return "wp-content/mu-plugins/" + slug
	}
	return key
}

// Group returns the category of key: its group, or the key itself for core.
func Group(key string) string {
	group, _, _ := strings.Cut(key, "/")
	return group
}

type Repository struct {
	Type     string `json:"type"`
	Location string `json:"location"`
}

type Meta struct {
	Key          string                `json:"key"`
	Name         string                `json:"name,omitempty"`
	URL          string                `json:"url,omitempty"`
	Repositories []Repository          `json:"repositories,omitempty"`
	CPENames     []string              `json:"cpe_names,omitempty"`
	Hints        []Reference           `json:"hints,omitempty"`
	IsPopular    optional.Option[bool] `json:"is_popular,omitempty"`
}

type Signature struct {
	Path            string `json:"path"`
	Algo            string `json:"algo"`
	Hash            string `json:"hash"`
	ContainsVersion bool   `json:"contains_version,omitempty"`
}

type VersionDefinition struct {
	Version    string      `json:"version"`
	Signatures []Signature `json:"signatures,omitempty"`
	dirty      bool
}

func (d *VersionDefinition) AddSignature(sig Signature) {
	d.Signatures = append(d.Signatures, sig)
	d.dirty = true
}

func (d *VersionDefinition) SetSignatures(sigs []Signature) {
	d.Signatures = sigs
	d.dirty = true
}

func (d *VersionDefinition) IsDirty() bool {
	return d.dirty
}

// Paths maps each signature path to its hash.
func (d *VersionDefinition) Paths() map[string]string {
	paths := make(map[string]string, len(d.Signatures))
	for _, sig := range d.Signatures {
		paths[sig.Path] = sig.Hash
	}
	return paths
}

type VersionList struct {
	Producer string               `json:"producer"`
	Key      string               `json:"key"`
	Versions []*VersionDefinition `json:"versions,omitempty"`
	dirty    bool
}

func NewVersionList(key string) *VersionList {
	return &VersionList{Producer: DefaultProducer, Key: key}
}

// GetVersion returns the definition for v. When createMissing is set an
// empty definition is appended instead of failing with ErrVersionNotFound.
func (l *VersionList) GetVersion(v string, createMissing bool) (*VersionDefinition, error) {
	for _, def := range l.Versions {
		if def.Version == v {
			return def, nil
		}
	}
	if !createMissing {
		return nil, fmt.Errorf("%w: %s %s", ErrVersionNotFound, l.Key, v)
	}
	def := &VersionDefinition{Version: v, dirty: true}
	l.Versions = append(l.Versions, def)
	l.dirty = true
	return def, nil
}

func (l *VersionList) AddVersion(def *VersionDefinition) error {
	if l.HasVersion(def.Version) {
		return fmt.Errorf("%w: version %s in %s", ErrDuplicateKey, def.Version, l.Key)
	}
	l.Versions = append(l.Versions, def)
	l.dirty = true
	return nil
}

func (l *VersionList) HasVersion(v string) bool {
	for _, def := range l.Versions {
		if def.Version == v {
			return true
		}
	}
	return false
}

func (l *VersionList) VersionStrings() []string {
	versions := make([]string, 0, len(l.Versions))
	for _, def := range l.Versions {
		versions = append(versions, def.Version)
	}
	return versions
}

func (l *VersionList) IsDirty() bool {
	if l.dirty {
		return true
	}
	for _, def := range l.Versions {
		if def.IsDirty() {
			return true
		}
	}
	return false
}

func (l *VersionList) ClearDirty() {
	l.dirty = false
	for _, def := range l.Versions {
		def.dirty = false
	}
}

type FileSignature struct {
	Hash     string   `json:"hash"`
	Algo     string   `json:"algo"`
	Versions []string `json:"versions,omitempty"`
}

type File struct {
	Path       string          `json:"path"`
	Signatures []FileSignature `json:"signatures,omitempty"`
}

// FileList is the file keyed view of a VersionList consumed by scanners.
type FileList struct {
	Key      string `json:"key"`
	Producer string `json:"producer"`
	Files    []File `json:"files,omitempty"`
}

type FileListGroup struct {
	Key       string      `json:"key"`
	Producer  string      `json:"producer"`
	FileLists []*FileList `json:"file_lists,omitempty"`
}

type VulnerabilityListGroup struct {
	Key                string               `json:"key"`
	Producer           string               `json:"producer"`
	VulnerabilityLists []*VulnerabilityList `json:"vulnerability_lists,omitempty"`
}

// VersionRange is the half open interval [IntroducedIn, FixedIn). An empty
// endpoint is unbounded.
type VersionRange struct {
	IntroducedIn string `json:"introduced_in,omitempty"`
	FixedIn      string `json:"fixed_in,omitempty"`
}

func (r VersionRange) Validate() error {
	if r.IntroducedIn == "" && r.FixedIn == "" {
		return fmt.Errorf("version range needs at least one endpoint")
	}
	return nil
}

func (r VersionRange) Contains(v string) bool {
	if r.IntroducedIn != "" && version.Compare(v, r.IntroducedIn) < 0 {
		return false
	}
	if r.FixedIn != "" && version.Compare(v, r.FixedIn) >= 0 {
		return false
	}
	return true
}

type Vulnerability struct {
	ID               string                     `json:"id"`
	Title            optional.Option[string]    `json:"title,omitempty"`
	ReportedType     optional.Option[string]    `json:"reported_type,omitempty"`
	CreatedAt        optional.Option[Timestamp] `json:"created_at,omitempty"`
	UpdatedAt        optional.Option[Timestamp] `json:"updated_at,omitempty"`
	CVSS             optional.Option[float64]   `json:"cvss,omitempty"`
	References       []Reference                `json:"references,omitempty"`
	AffectedVersions []VersionRange             `json:"affected_versions,omitempty"`
	dirty            bool
}

func (v *Vulnerability) MarkDirty() {
	v.dirty = true
}

func (v *Vulnerability) IsDirty() bool {
	return v.dirty
}

func (v *Vulnerability) SetTitle(title string) {
	if v.Title.IsSome() && v.Title.Unwrap() == title {
		return
	}
	v.Title = optional.Some(title)
	v.dirty = true
}

func (v *Vulnerability) SetReportedType(reportedType string) {
	if v.ReportedType.IsSome() && v.ReportedType.Unwrap() == reportedType {
		return
	}
	v.ReportedType = optional.Some(reportedType)
	v.dirty = true
}

func (v *Vulnerability) SetCreatedAt(t Timestamp) {
	if v.CreatedAt.IsSome() && v.CreatedAt.Unwrap().Equal(t.Time) {
		return
	}
	v.CreatedAt = optional.Some(t)
	v.dirty = true
}

func (v *Vulnerability) SetUpdatedAt(t Timestamp) {
	if v.UpdatedAt.IsSome() && v.UpdatedAt.Unwrap().Equal(t.Time) {
		return
	}
	v.UpdatedAt = optional.Some(t)
	v.dirty = true
}

func (v *Vulnerability) SetCVSS(score float64) {
	if v.CVSS.IsSome() && v.CVSS.Unwrap() == score {
		return
	}
	v.CVSS = optional.Some(score)
	v.dirty = true
}

// AddAffectedVersion appends r unless a stored range already shares its
// introduced or fixed version.
func (v *Vulnerability) AddAffectedVersion(r VersionRange) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	for _, existing := range v.AffectedVersions {
		if r.IntroducedIn != "" && existing.IntroducedIn == r.IntroducedIn {
			return false, nil
		}
		if r.FixedIn != "" && existing.FixedIn == r.FixedIn {
			return false, nil
		}
	}
	v.AffectedVersions = append(v.AffectedVersions, r)
	v.dirty = true
	return true, nil
}

// AppliesTo is vacuously true without ranges, otherwise any range must
// contain ver.
func (v *Vulnerability) AppliesTo(ver string) bool {
	if len(v.AffectedVersions) == 0 {
		return true
	}
	for _, r := range v.AffectedVersions {
		if r.Contains(ver) {
			return true
		}
	}
	return false
}

func (v *Vulnerability) ReferenceManager() *ReferenceManager {
	return &ReferenceManager{vuln: v}
}

// Merge applies candidate onto v. Unset fields are always filled, set fields
// are replaced only when the candidate was updated strictly later. References
// and ranges are union merged either way.
func (v *Vulnerability) Merge(candidate *Vulnerability) {
	newer := candidate.UpdatedAt.IsSome() &&
		(v.UpdatedAt.IsNone() || candidate.UpdatedAt.Unwrap().After(v.UpdatedAt.Unwrap()))

	candidate.Title.IfSome(func(title string) {
		if v.Title.IsNone() || newer {
			v.SetTitle(title)
		}
	})
	candidate.ReportedType.IfSome(func(reportedType string) {
		if v.ReportedType.IsNone() || newer {
			v.SetReportedType(reportedType)
		}
	})
	candidate.CreatedAt.IfSome(func(t Timestamp) {
		if v.CreatedAt.IsNone() || newer {
			v.SetCreatedAt(t)
		}
	})
	candidate.CVSS.IfSome(func(score float64) {
		if v.CVSS.IsNone() || newer {
			v.SetCVSS(score)
		}
	})
	if newer {
		v.SetUpdatedAt(candidate.UpdatedAt.Unwrap())
	}

	refs := v.ReferenceManager()
	for _, ref := range candidate.References {
		refs.Include(ref)
	}
	for _, r := range candidate.AffectedVersions {
		_, _ = v.AddAffectedVersion(r)
	}
}

type VulnerabilityList struct {
	Producer        string           `json:"producer"`
	Key             string           `json:"key"`
	Vulnerabilities []*Vulnerability `json:"vulnerabilities,omitempty"`
	dirty           bool
}

func NewVulnerabilityList(producer, key string) *VulnerabilityList {
	return &VulnerabilityList{Producer: producer, Key: key}
}

// GetVulnerability looks up id, appending a new vulnerability when
// createMissing is set.
func (l *VulnerabilityList) GetVulnerability(id string, createMissing bool) (*Vulnerability, error) {
	for _, vuln := range l.Vulnerabilities {
		if vuln.ID == id {
			return vuln, nil
		}
	}
	if !createMissing {
		return nil, fmt.Errorf("%w: %s in %s/%s", ErrVulnerabilityNotFound, id, l.Producer, l.Key)
	}
	vuln := &Vulnerability{ID: id, dirty: true}
	l.Vulnerabilities = append(l.Vulnerabilities, vuln)
	l.dirty = true
	return vuln, nil
}

// FindByReference returns the first vulnerability holding a reference equal
// to match.
func (l *VulnerabilityList) FindByReference(match Reference) (*Vulnerability, bool) {
	for _, vuln := range l.Vulnerabilities {
		for _, ref := range vuln.References {
			if ref.Matches(match) {
				return vuln, true
			}
		}
	}
	return nil, false
}

func (l *VulnerabilityList) IsDirty() bool {
	if l.dirty {
		return true
	}
	for _, vuln := range l.Vulnerabilities {
		if vuln.IsDirty() {
			return true
		}
	}
	return false
}

func (l *VulnerabilityList) ClearDirty() {
	l.dirty = false
	for _, vuln := range l.Vulnerabilities {
		vuln.dirty = false
	}
}
