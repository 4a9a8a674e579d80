package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
)

type VulnerabilityStore interface {
	ReadVulnerabilityList(key, producer string) (*vulndb.VulnerabilityList, error)
	WriteVulnerabilityList(list *vulndb.VulnerabilityList) error
	ListProducers(key string) ([]string, error)
}

type listID struct {
	producer string
	key      string
}

// Manager caches vulnerability lists so that at most one instance per
// producer and key exists while importing.
type Manager struct {
	Storage VulnerabilityStore

	mu    sync.Mutex
	lists map[listID]*vulndb.VulnerabilityList
	order []listID
}

func NewManager(storage VulnerabilityStore) *Manager {
	return &Manager{Storage: storage, lists: map[listID]*vulndb.VulnerabilityList{}}
}

// GetProducerList returns the cached list, reading it from storage or
// creating an empty one on first use.
func (m *Manager) GetProducerList(producer, key string) (*vulndb.VulnerabilityList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getProducerList(producer, key)
}

func (m *Manager) getProducerList(producer, key string) (*vulndb.VulnerabilityList, error) {
	id := listID{producer: producer, key: key}
	if list, ok := m.lists[id]; ok {
		return list, nil
	}

	list, err := m.Storage.ReadVulnerabilityList(key, producer)
	if errors.Is(err, vulndb.ErrNotFound) {
		list = vulndb.NewVulnerabilityList(producer, key)
	} else if err != nil {
		return nil, fmt.Errorf("could not read %s vulnerabilities of %s: %w", producer, key, err)
	}

	m.lists[id] = list
	m.order = append(m.order, id)
	return list, nil
}

// GetLists returns every list of key, stored or cached, across producers.
func (m *Manager) GetLists(key string) ([]*vulndb.VulnerabilityList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	producers, err := m.Storage.ListProducers(key)
	if err != nil {
		return nil, err
	}
	for _, id := range m.order {
		if id.key == key && !contains(producers, id.producer) {
			producers = append(producers, id.producer)
		}
	}

	lists := make([]*vulndb.VulnerabilityList, 0, len(producers))
	for _, producer := range producers {
		list, err := m.getProducerList(producer, key)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, nil
}

// FindVulnerability scans every list of key for a vulnerability referencing
// match.
func (m *Manager) FindVulnerability(key string, match vulndb.Reference) (*vulndb.Vulnerability, error) {
	lists, err := m.GetLists(key)
	if err != nil {
		return nil, err
	}
	for _, list := range lists {
		if vuln, ok := list.FindByReference(match); ok {
			return vuln, nil
		}
	}
	return nil, fmt.Errorf("%w: %s reference %s%s in %s", vulndb.ErrVulnerabilityNotFound, match.Type, match.ID, match.URL, key)
}

// Flush writes every dirty list. A failing list is logged and the others are
// still written.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, id := range m.order {
		list := m.lists[id]
		if !list.IsDirty() {
			continue
		}
		err := m.Storage.WriteVulnerabilityList(list)
		if err != nil {
			slog.Error("could not write vulnerability list", "key", id.key, "producer", id.producer, "err", err)
			errs = append(errs, err)
			continue
		}
		list.ClearDirty()
		slog.Debug("wrote vulnerability list", "key", id.key, "producer", id.producer)
	}
	return errors.Join(errs...)
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
