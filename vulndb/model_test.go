package vulndb

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(t *testing.T, value string) Timestamp {
	t.Helper()
	parsed, err := ParseTimestamp(value)
	require.NoError(t, err)
	return parsed
}

func TestValidateKey(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(ValidateKey("wordpress"))
	assert.NoError(ValidateKey("mu"))
	assert.NoError(ValidateKey("plugins/akismet"))
	assert.NoError(ValidateKey("themes/twentyten"))
	assert.ErrorIs(ValidateKey("plugins/"), ErrInvalidKey)
	assert.ErrorIs(ValidateKey("widgets/foo"), ErrInvalidKey)
	assert.ErrorIs(ValidateKey("plugins/foo/bar"), ErrInvalidKey)
	assert.ErrorIs(ValidateKey("plugins/.."), ErrInvalidKey)
}

func TestPathPrefix(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("", PathPrefix("wordpress"))
	assert.Equal("wp-content/plugins/akismet", PathPrefix("plugins/akismet"))
	assert.Equal("wp-content/themes/twentyten", PathPrefix("themes/twentyten"))
	assert.Equal("wp-content/mu-plugins/foo", PathPrefix("mu/foo"))
}

func TestVersionListGetVersionCreatesMissing(t *testing.T) {
	require := require.New(t)

	list := NewVersionList("plugins/foo")
	require.False(list.IsDirty())

	_, err := list.GetVersion("1.0", false)
	require.ErrorIs(err, ErrVersionNotFound)
	require.ErrorIs(err, ErrNotFound)

	def, err := list.GetVersion("1.0", true)
	require.NoError(err)
	require.True(list.IsDirty())

	again, err := list.GetVersion("1.0", true)
	require.NoError(err)
	require.Same(def, again)
	require.Len(list.Versions, 1)
}

func TestVersionListAddVersionRejectsDuplicates(t *testing.T) {
	list := NewVersionList("plugins/foo")
	require.NoError(t, list.AddVersion(&VersionDefinition{Version: "1.0"}))
	require.ErrorIs(t, list.AddVersion(&VersionDefinition{Version: "1.0"}), ErrDuplicateKey)
}

func TestVersionListDirtyPropagatesFromDefinitions(t *testing.T) {
	require := require.New(t)

	list := &VersionList{Key: "plugins/foo", Versions: []*VersionDefinition{{Version: "1.0"}}}
	require.False(list.IsDirty())

	list.Versions[0].AddSignature(Signature{Path: "readme.txt", Algo: "SHA256", Hash: "abc"})
	require.True(list.IsDirty())

	list.ClearDirty()
	require.False(list.IsDirty())
}

func TestVulnerabilityListDirtyPropagatesFromVulnerabilities(t *testing.T) {
	require := require.New(t)

	list := &VulnerabilityList{Producer: "cve", Key: "plugins/foo", Vulnerabilities: []*Vulnerability{{ID: "1"}}}
	require.False(list.IsDirty())

	list.Vulnerabilities[0].ReferenceManager().IncludeNormalized(RefCVE, "CVE-2016-1234")
	require.True(list.IsDirty())

	list.ClearDirty()
	require.False(list.IsDirty())

	list.Vulnerabilities[0].SetTitle("XSS")
	require.True(list.IsDirty())
}

func TestSettersDoNotDirtyOnSameValue(t *testing.T) {
	vuln := &Vulnerability{ID: "1", Title: optional.Some("XSS")}

	vuln.SetTitle("XSS")

	assert.False(t, vuln.IsDirty())
}

func TestVersionRangeContains(t *testing.T) {
	assert := assert.New(t)

	r := VersionRange{IntroducedIn: "1.0", FixedIn: "1.5"}
	assert.True(r.Contains("1.0"))
	assert.True(r.Contains("1.4.9"))
	assert.True(r.Contains("1.5-beta1"))
	assert.False(r.Contains("1.5"))
	assert.False(r.Contains("0.9"))

	assert.True(VersionRange{FixedIn: "2.0"}.Contains("0.1"))
	assert.True(VersionRange{IntroducedIn: "2.0"}.Contains("9.0"))
}

func TestAddAffectedVersion(t *testing.T) {
	require := require.New(t)
	vuln := &Vulnerability{ID: "1"}

	require.True(vuln.AppliesTo("1.0"))

	added, err := vuln.AddAffectedVersion(VersionRange{FixedIn: "1.2"})
	require.NoError(err)
	require.True(added)

	added, err = vuln.AddAffectedVersion(VersionRange{IntroducedIn: "1.0", FixedIn: "1.2"})
	require.NoError(err)
	require.False(added)

	_, err = vuln.AddAffectedVersion(VersionRange{})
	require.Error(err)

	require.True(vuln.AppliesTo("1.1"))
	require.False(vuln.AppliesTo("1.2"))
}

func TestMergeOverridesWhenCandidateIsNewer(t *testing.T) {
	require := require.New(t)

	stored := &Vulnerability{
		ID:           "1",
		Title:        optional.Some("Old title"),
		ReportedType: optional.Some("XSS"),
		UpdatedAt:    optional.Some(ts(t, "2016-09-02T20:00:00")),
		References:   []Reference{{Type: RefOther, URL: "http://example.com/a"}},
	}
	candidate := &Vulnerability{
		ID:           "1",
		Title:        optional.Some("New title"),
		ReportedType: optional.Some("SQLi"),
		UpdatedAt:    optional.Some(ts(t, "2016-09-04T20:00:00")),
		References:   []Reference{{Type: RefOther, URL: "http://example.com/b"}},
	}

	stored.Merge(candidate)

	require.Equal("New title", stored.Title.Unwrap())
	require.Equal("SQLi", stored.ReportedType.Unwrap())
	require.Equal(ts(t, "2016-09-04T20:00:00"), stored.UpdatedAt.Unwrap())
	require.Equal([]Reference{
		{Type: RefOther, URL: "http://example.com/a"},
		{Type: RefOther, URL: "http://example.com/b"},
	}, stored.References)
	require.True(stored.IsDirty())
}

func TestMergeKeepsFieldsWhenCandidateIsOlder(t *testing.T) {
	require := require.New(t)

	stored := &Vulnerability{
		ID:        "1",
		Title:     optional.Some("Kept"),
		UpdatedAt: optional.Some(ts(t, "2016-09-04T20:00:00")),
	}
	candidate := &Vulnerability{
		ID:           "1",
		Title:        optional.Some("Ignored"),
		ReportedType: optional.Some("XSS"),
		UpdatedAt:    optional.Some(ts(t, "2016-09-02T20:00:00")),
	}

	stored.Merge(candidate)

	require.Equal("Kept", stored.Title.Unwrap())
	require.Equal("XSS", stored.ReportedType.Unwrap())
	require.Equal(ts(t, "2016-09-04T20:00:00"), stored.UpdatedAt.Unwrap())
}

func TestMergeWithoutCandidateDateOnlyFillsUnset(t *testing.T) {
	stored := &Vulnerability{ID: "1", Title: optional.Some("Kept")}
	candidate := &Vulnerability{ID: "1", Title: optional.Some("Ignored"), CVSS: optional.Some(5.0)}

	stored.Merge(candidate)

	assert.Equal(t, "Kept", stored.Title.Unwrap())
	assert.Equal(t, 5.0, stored.CVSS.Unwrap())
	assert.True(t, stored.UpdatedAt.IsNone())
}

func TestVulnerabilityListFindByReference(t *testing.T) {
	require := require.New(t)

	list := NewVulnerabilityList("cve", "plugins/foo")
	vuln, err := list.GetVulnerability("42", true)
	require.NoError(err)
	vuln.ReferenceManager().IncludeNormalized(RefBugtraqID, "1234")

	found, ok := list.FindByReference(Reference{Type: RefBugtraqID, ID: "1234"})
	require.True(ok)
	require.Same(vuln, found)

	_, ok = list.FindByReference(Reference{Type: RefBugtraqID, ID: "9"})
	require.False(ok)

	_, err = list.GetVulnerability("43", false)
	require.ErrorIs(err, ErrVulnerabilityNotFound)
}

func TestTimestampTruncatesToMicroseconds(t *testing.T) {
	stamp := NewTimestamp(time.Date(2016, 9, 2, 20, 0, 0, 123456789, time.UTC))
	assert.Equal(t, "2016-09-02T20:00:00.123456", stamp.String())
}
