package importer

import (
	"testing"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cveFeed = `[
  {
    "id": "CVE-2016-1000",
    "summary": "Cross-site scripting in the Audio Player plugin before 2.0.4.6 for WordPress.",
    "Published": "2016-09-02T20:00:00.000000",
    "last-modified": "2016-09-04T20:00:00",
    "cvss": 4.3,
    "references": [
      "http://wordpress.org/extend/plugins/audio-player/changelog/",
      {"url": "http://www.securityfocus.com/bid/12345"}
    ],
    "vulnerable_configuration": [
      "cpe:2.3:a:doryphores:audio_player:2.0.4.1",
      {"id": "cpe:2.3:a:doryphores:audio_player:2.0.4.5", "title": "Audio Player 2.0.4.5"}
    ]
  },
  {"summary": "no identifier"},
  {
    "id": "CVE-2016-2000",
    "summary": "Unrelated product.",
    "Published": "not a date",
    "vulnerable_configuration": ["cpe:2.3:a:acme:router_firmware:1.0"]
  }
]`

func TestParseCVEFeed(t *testing.T) {
	require := require.New(t)

	entries, err := ParseCVEFeed([]byte(cveFeed))
	require.NoError(err)
	require.Len(entries, 2)

	entry := entries[0]
	require.Equal("CVE-2016-1000", entry.ID)
	require.Equal([]string{
		"http://wordpress.org/extend/plugins/audio-player/changelog/",
		"http://www.securityfocus.com/bid/12345",
	}, entry.References)
	require.Equal([]string{
		"cpe:2.3:a:doryphores:audio_player:2.0.4.1",
		"cpe:2.3:a:doryphores:audio_player:2.0.4.5",
	}, entry.CPEs)
	require.Equal("2016-09-02T20:00:00.000000", entry.Published.Unwrap().String())
	require.True(entry.LastModified.IsSome())
	require.Equal(4.3, entry.CVSS.Unwrap())

	require.True(entries[1].Published.IsNone())
	require.True(entries[1].CVSS.IsNone())
}

func TestParseCVEFeedShapes(t *testing.T) {
	require := require.New(t)

	entries, err := ParseCVEFeed([]byte(`{"results": [{"id": "CVE-1"}, {"id": "CVE-2"}]}`))
	require.NoError(err)
	require.Len(entries, 2)

	entries, err = ParseCVEFeed([]byte(`{"data": [{"id": "CVE-3"}]}`))
	require.NoError(err)
	require.Len(entries, 1)

	entries, err = ParseCVEFeed([]byte(`{"id": "CVE-4", "summary": "single"}`))
	require.NoError(err)
	require.Len(entries, 1)
	require.Equal("single", entries[0].Summary)

	_, err = ParseCVEFeed([]byte(`{"total": 0}`))
	require.Error(err)

	_, err = ParseCVEFeed([]byte(`[{"id": `))
	require.Error(err)
}

func newTestCVEReader(t *testing.T, storage *vulndb.Storage) (*CVEReader, *Manager) {
	t.Helper()
	manager := NewManager(storage)
	identifier := newTestIdentifier(t, storage, nil)
	return NewCVEReader(identifier, manager, storage), manager
}

func TestCVEReaderApply(t *testing.T) {
	require := require.New(t)
	storage := newTestStorage(t)
	audioPlayer := vulndb.NewVersionList("plugins/audio-player")
	for _, v := range []string{"2.0.4.1", "2.0.4.5", "2.1"} {
		_, err := audioPlayer.GetVersion(v, true)
		require.NoError(err)
	}
	require.NoError(storage.WriteVersionList(audioPlayer))

	entries, err := ParseCVEFeed([]byte(cveFeed))
	require.NoError(err)
	reader, manager := newTestCVEReader(t, storage)

	applied := reader.ReadAll(entries)
	require.Equal(1, applied)
	require.NoError(manager.Flush())

	stored, err := storage.ReadVulnerabilityList("plugins/audio-player", ProducerCVE)
	require.NoError(err)
	require.Len(stored.Vulnerabilities, 1)

	vuln := stored.Vulnerabilities[0]
	require.Equal("CVE-2016-1000", vuln.ID)
	require.Equal("Cross-site scripting in the Audio Player plugin before 2.0.4.6 for WordPress.", vuln.Title.Unwrap())
	require.Equal(4.3, vuln.CVSS.Unwrap())
	require.True(vuln.CreatedAt.IsSome())
	require.True(vuln.UpdatedAt.IsSome())
	require.Equal([]vulndb.Reference{
		{Type: vulndb.RefCVE, ID: "CVE-2016-1000", URL: vulndb.CVEURL("CVE-2016-1000")},
		{Type: vulndb.RefOther, URL: "http://wordpress.org/extend/plugins/audio-player/changelog/"},
		{Type: vulndb.RefBugtraqID, ID: "12345"},
	}, vuln.References)
	require.Equal([]vulndb.VersionRange{{FixedIn: "2.0.4.6"}, {FixedIn: "2.1"}}, vuln.AffectedVersions)
}

func TestCVEReaderMergesIntoExistingVulnerability(t *testing.T) {
	require := require.New(t)
	storage := newTestStorage(t, "plugins/audio-player")
	require.NoError(storage.WriteVulnerabilityList(&vulndb.VulnerabilityList{
		Producer: ProducerSecurityFocus,
		Key:      "plugins/audio-player",
		Vulnerabilities: []*vulndb.Vulnerability{{
			ID:         "12345",
			References: []vulndb.Reference{{Type: vulndb.RefCVE, ID: "CVE-2016-1000"}},
		}},
	}))
	reader, manager := newTestCVEReader(t, storage)

	ok, err := reader.Apply(CVEEntry{
		ID:         "CVE-2016-1000",
		Summary:    "XSS",
		References: []string{"https://example.com/advisory"},
		CPEs:       []string{"cpe:2.3:a:doryphores:audio_player:2.0"},
	})
	require.NoError(err)
	require.True(ok)
	require.NoError(manager.Flush())

	_, err = storage.ReadVulnerabilityList("plugins/audio-player", ProducerCVE)
	require.ErrorIs(err, vulndb.ErrNotFound)

	stored, err := storage.ReadVulnerabilityList("plugins/audio-player", ProducerSecurityFocus)
	require.NoError(err)
	require.Len(stored.Vulnerabilities, 1)
	require.Equal("XSS", stored.Vulnerabilities[0].Title.Unwrap())
	require.Len(stored.Vulnerabilities[0].References, 2)
}

func TestCVEReaderSkipsUnidentifiedEntries(t *testing.T) {
	reader, _ := newTestCVEReader(t, newTestStorage(t))

	ok, err := reader.Apply(CVEEntry{ID: "CVE-2016-2000", CPEs: []string{"cpe:2.3:a:acme:router_firmware:1.0"}})

	require.NoError(t, err)
	require.False(t, ok)
}

func TestRangeGuesser(t *testing.T) {
	storage := newTestStorage(t)
	list := vulndb.NewVersionList("plugins/foo")
	for _, v := range []string{"1.0", "1.1", "1.2"} {
		_, err := list.GetVersion(v, true)
		require.NoError(t, err)
	}
	require.NoError(t, storage.WriteVersionList(list))
	guesser := RangeGuesser{Versions: storage}

	cpe := func(v string) CPE23Uri {
		c, err := NewCPEUri("cpe:2.3:a:acme:foo:" + v)
		require.NoError(t, err)
		return c
	}

	tests := []struct {
		name     string
		summary  string
		cpes     []CPE23Uri
		expected []vulndb.VersionRange
	}{
		{"summary only", "XSS in foo before 1.2.3 allows", nil, []vulndb.VersionRange{{FixedIn: "1.2.3"}}},
		{"largest cpe", "", []CPE23Uri{cpe("1.0.2"), cpe("1.0.4")}, []vulndb.VersionRange{{FixedIn: "1.1"}}},
		{"next minor unknown", "", []CPE23Uri{cpe("1.2")}, nil},
		{"unversioned cpe", "", []CPE23Uri{cpe("1.0"), cpe("*")}, nil},
		{"malformed version", "", []CPE23Uri{cpe("beta")}, nil},
		{"both", "before 1.0.6", []CPE23Uri{cpe("1.0.5")}, []vulndb.VersionRange{{FixedIn: "1.0.6"}, {FixedIn: "1.1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, guesser.Guess("plugins/foo", tt.summary, tt.cpes))
		})
	}
}
