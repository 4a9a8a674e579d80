package importer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
)

type MetaLister interface {
	ListMeta() ([]*vulndb.Meta, error)
}

type cpeRule struct {
	prefix string
	key    string
}

// CPEMapper maps CPE prefixes to keys. Rules are matched in the order they
// were registered.
type CPEMapper struct {
	Storage MetaLister

	mu     sync.Mutex
	loaded bool
	rules  []cpeRule
	seen   map[string]bool
}

func NewCPEMapper(storage MetaLister) *CPEMapper {
	return &CPEMapper{Storage: storage, seen: map[string]bool{}}
}

func (m *CPEMapper) Register(prefix, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register(prefix, key)
}

func (m *CPEMapper) register(prefix, key string) error {
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[prefix] {
		return fmt.Errorf("%w: cpe rule %s", vulndb.ErrDuplicateKey, prefix)
	}
	m.seen[prefix] = true
	m.rules = append(m.rules, cpeRule{prefix: prefix, key: key})
	return nil
}

// Load registers the CPE names declared by every stored Meta. It runs once.
func (m *CPEMapper) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *CPEMapper) load() error {
	if m.loaded || m.Storage == nil {
		m.loaded = true
		return nil
	}

	metas, err := m.Storage.ListMeta()
	if err != nil {
		return fmt.Errorf("could not list meta: %w", err)
	}
	for _, meta := range metas {
		for _, name := range meta.CPENames {
			err := m.register(name, meta.Key)
			if err != nil {
				return err
			}
		}
	}
	m.loaded = true
	return nil
}

// Lookup returns the key of the first rule cpe starts with. When
// ignoreVersion is set, a cpe equal to the rule also matches.
func (m *CPEMapper) Lookup(cpe string, ignoreVersion bool) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.load()
	if err != nil {
		return "", false, err
	}

	for _, rule := range m.rules {
		if strings.HasPrefix(cpe, rule.prefix+":") {
			return rule.key, true, nil
		}
		if ignoreVersion && cpe == rule.prefix {
			return rule.key, true, nil
		}
	}
	return "", false, nil
}
