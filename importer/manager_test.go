package importer

import (
	"testing"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/stretchr/testify/require"
)

func TestGetProducerListCachesInstances(t *testing.T) {
	require := require.New(t)
	manager := NewManager(vulndb.NewStorage(t.TempDir()))

	list, err := manager.GetProducerList("cve", "plugins/foo")
	require.NoError(err)
	require.Equal("cve", list.Producer)
	require.Equal("plugins/foo", list.Key)
	require.Empty(list.Vulnerabilities)

	again, err := manager.GetProducerList("cve", "plugins/foo")
	require.NoError(err)
	require.Same(list, again)
}

func TestGetProducerListReadsStorage(t *testing.T) {
	require := require.New(t)
	storage := vulndb.NewStorage(t.TempDir())
	require.NoError(storage.WriteVulnerabilityList(&vulndb.VulnerabilityList{
		Producer:        "cve",
		Key:             "plugins/foo",
		Vulnerabilities: []*vulndb.Vulnerability{{ID: "CVE-2016-1000"}},
	}))
	manager := NewManager(storage)

	list, err := manager.GetProducerList("cve", "plugins/foo")

	require.NoError(err)
	require.Len(list.Vulnerabilities, 1)
	require.False(list.IsDirty())
}

func TestGetListsIncludesStoredAndCachedProducers(t *testing.T) {
	require := require.New(t)
	storage := vulndb.NewStorage(t.TempDir())
	require.NoError(storage.WriteVulnerabilityList(&vulndb.VulnerabilityList{
		Producer:        "cve",
		Key:             "plugins/foo",
		Vulnerabilities: []*vulndb.Vulnerability{{ID: "CVE-2016-1000"}},
	}))
	manager := NewManager(storage)
	_, err := manager.GetProducerList("securityfocus", "plugins/foo")
	require.NoError(err)

	lists, err := manager.GetLists("plugins/foo")
	require.NoError(err)
	require.Len(lists, 2)

	cached, err := manager.GetProducerList("cve", "plugins/foo")
	require.NoError(err)
	require.Same(lists[0], cached)
}

func TestFindVulnerabilityAcrossProducers(t *testing.T) {
	require := require.New(t)
	storage := vulndb.NewStorage(t.TempDir())
	require.NoError(storage.WriteVulnerabilityList(&vulndb.VulnerabilityList{
		Producer: "securityfocus",
		Key:      "plugins/foo",
		Vulnerabilities: []*vulndb.Vulnerability{{
			ID:         "12345",
			References: []vulndb.Reference{{Type: vulndb.RefCVE, ID: "CVE-2016-1000"}},
		}},
	}))
	manager := NewManager(storage)

	vuln, err := manager.FindVulnerability("plugins/foo", vulndb.Reference{Type: vulndb.RefCVE, ID: "CVE-2016-1000"})
	require.NoError(err)
	require.Equal("12345", vuln.ID)

	_, err = manager.FindVulnerability("plugins/foo", vulndb.Reference{Type: vulndb.RefCVE, ID: "CVE-2016-2000"})
	require.ErrorIs(err, vulndb.ErrVulnerabilityNotFound)
	require.ErrorIs(err, vulndb.ErrNotFound)
}

func TestFlushWritesDirtyListsOnly(t *testing.T) {
	require := require.New(t)
	storage := vulndb.NewStorage(t.TempDir())
	manager := NewManager(storage)

	touched, err := manager.GetProducerList("cve", "plugins/foo")
	require.NoError(err)
	_, err = touched.GetVulnerability("CVE-2016-1000", true)
	require.NoError(err)

	_, err = manager.GetProducerList("cve", "plugins/bar")
	require.NoError(err)

	require.NoError(manager.Flush())
	require.False(touched.IsDirty())

	stored, err := storage.ReadVulnerabilityList("plugins/foo", "cve")
	require.NoError(err)
	require.Len(stored.Vulnerabilities, 1)

	_, err = storage.ReadVulnerabilityList("plugins/bar", "cve")
	require.ErrorIs(err, vulndb.ErrNotFound)
}

func TestFlushReportsFailures(t *testing.T) {
	require := require.New(t)
	manager := NewManager(vulndb.NewStorage(t.TempDir()))

	list, err := manager.GetProducerList("cve", "not a key")
	require.NoError(err)
	_, err = list.GetVulnerability("CVE-2016-1000", true)
	require.NoError(err)

	err = manager.Flush()

	require.ErrorIs(err, vulndb.ErrInvalidKey)
	require.True(list.IsDirty())
}
