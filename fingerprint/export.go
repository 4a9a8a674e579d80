package fingerprint

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
)

const (
	versionsBundle        = "%s_versions.json"
	vulnerabilitiesBundle = "%s_vulnerabilities.json"
)

type ExportStore interface {
	ListKeys() ([]string, error)
	ReadVersionList(key string) (*vulndb.VersionList, error)
	ListVulnerabilityLists(key string) ([]*vulndb.VulnerabilityList, error)
}

type Exporter struct {
	Storage ExportStore
	Builder Builder
	Path    string
}

func NewExporter(storage ExportStore, builder Builder, path string) *Exporter {
	return &Exporter{Storage: storage, Builder: builder, Path: path}
}

// ExportVersions fingerprints every stored key and writes one
// <group>_versions.json bundle per group. Keys that fail are logged and left
// out. It returns the number of exported lists.
func (e *Exporter) ExportVersions() (int, error) {
	keys, err := e.Storage.ListKeys()
	if err != nil {
		return 0, fmt.Errorf("could not list keys: %w", err)
	}

	groups := map[string]*vulndb.FileListGroup{}
	exported := 0
	for _, key := range keys {
		list, err := e.Storage.ReadVersionList(key)
		if errors.Is(err, vulndb.ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Error("could not read version list", "key", key, "err", err)
			continue
		}

		files, err := e.Builder.Build(list)
		if err != nil {
			slog.Error("could not build fingerprint", "key", key, "err", err)
			continue
		}
		if files == nil {
			slog.Debug("nothing to fingerprint", "key", key)
			continue
		}

		group := vulndb.Group(key)
		bundle, ok := groups[group]
		if !ok {
			bundle = &vulndb.FileListGroup{Key: group, Producer: vulndb.DefaultProducer}
			groups[group] = bundle
		}
		bundle.FileLists = append(bundle.FileLists, files)
		exported++
	}

	for _, group := range sortedGroups(groups) {
		path := filepath.Join(e.Path, fmt.Sprintf(versionsBundle, group))
		err := vulndb.WriteJSON(path, groups[group])
		if err != nil {
			return exported, err
		}
		slog.Info("exported fingerprints", "group", group, "lists", len(groups[group].FileLists), "path", path)
	}
	return exported, nil
}

// ExportVulnerabilities writes one <group>_vulnerabilities.json bundle per
// group holding the lists of every producer.
func (e *Exporter) ExportVulnerabilities() (int, error) {
	keys, err := e.Storage.ListKeys()
	if err != nil {
		return 0, fmt.Errorf("could not list keys: %w", err)
	}

	groups := map[string]*vulndb.VulnerabilityListGroup{}
	exported := 0
	for _, key := range keys {
		lists, err := e.Storage.ListVulnerabilityLists(key)
		if err != nil {
			slog.Error("could not read vulnerability lists", "key", key, "err", err)
			continue
		}
		if len(lists) == 0 {
			continue
		}

		group := vulndb.Group(key)
		bundle, ok := groups[group]
		if !ok {
			bundle = &vulndb.VulnerabilityListGroup{Key: group, Producer: vulndb.DefaultProducer}
			groups[group] = bundle
		}
		bundle.VulnerabilityLists = append(bundle.VulnerabilityLists, lists...)
		exported += len(lists)
	}

	for _, group := range sortedGroups(groups) {
		path := filepath.Join(e.Path, fmt.Sprintf(vulnerabilitiesBundle, group))
		err := vulndb.WriteJSON(path, groups[group])
		if err != nil {
			return exported, err
		}
		slog.Info("exported vulnerabilities", "group", group, "lists", len(groups[group].VulnerabilityLists), "path", path)
	}
	return exported, nil
}

func sortedGroups[T any](groups map[string]T) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
