package vulndb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	metaFile          = "META.json"
	versionsFile      = "versions.json"
	vulnerabilityFile = "vuln-%s.json"
)

// Storage reads and writes entities as JSON files under BasePath, one
// directory per key.
type Storage struct {
	BasePath string
}

func NewStorage(basePath string) *Storage {
	return &Storage{BasePath: basePath}
}

func (s *Storage) path(key string, elem ...string) string {
	parts := append([]string{s.BasePath, filepath.FromSlash(key)}, elem...)
	return filepath.Join(parts...)
}

func (s *Storage) WriteMeta(meta *Meta) error {
	if err := ValidateKey(meta.Key); err != nil {
		return err
	}
	return WriteJSON(s.path(meta.Key, metaFile), meta)
}

func (s *Storage) ReadMeta(key string) (*Meta, error) {
	meta := &Meta{}
	err := s.readJSON(s.path(key, metaFile), meta)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// ListMeta returns the Meta of every stored key that has one.
func (s *Storage) ListMeta() ([]*Meta, error) {
	keys, err := s.ListKeys()
	if err != nil {
		return nil, err
	}

	metas := make([]*Meta, 0, len(keys))
	for _, key := range keys {
		meta, err := s.ReadMeta(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (s *Storage) WriteVersionList(list *VersionList) error {
	if err := ValidateKey(list.Key); err != nil {
		return err
	}
	return WriteJSON(s.path(list.Key, versionsFile), list)
}

func (s *Storage) ReadVersionList(key string) (*VersionList, error) {
	list := &VersionList{}
	err := s.readJSON(s.path(key, versionsFile), list)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Storage) WriteVulnerabilityList(list *VulnerabilityList) error {
	if err := ValidateKey(list.Key); err != nil {
		return err
	}
	if list.Producer == "" || strings.ContainsAny(list.Producer, `/\`) {
		return fmt.Errorf("invalid producer %q for %s", list.Producer, list.Key)
	}
	return WriteJSON(s.path(list.Key, fmt.Sprintf(vulnerabilityFile, list.Producer)), list)
}

func (s *Storage) ReadVulnerabilityList(key, producer string) (*VulnerabilityList, error) {
	list := &VulnerabilityList{}
	err := s.readJSON(s.path(key, fmt.Sprintf(vulnerabilityFile, producer)), list)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ListProducers returns the producers that stored a vulnerability list for
// key, sorted by name.
func (s *Storage) ListProducers(key string) ([]string, error) {
	matches, err := filepath.Glob(s.path(key, fmt.Sprintf(vulnerabilityFile, "*")))
	if err != nil {
		return nil, fmt.Errorf("could not list vulnerability files of %s: %w", key, err)
	}

	producers := make([]string, 0, len(matches))
	for _, match := range matches {
		name := filepath.Base(match)
		producer := strings.TrimSuffix(strings.TrimPrefix(name, "vuln-"), ".json")
		producers = append(producers, producer)
	}
	sort.Strings(producers)
	return producers, nil
}

func (s *Storage) ListVulnerabilityLists(key string) ([]*VulnerabilityList, error) {
	producers, err := s.ListProducers(key)
	if err != nil {
		return nil, err
	}

	lists := make([]*VulnerabilityList, 0, len(producers))
	for _, producer := range producers {
		list, err := s.ReadVulnerabilityList(key, producer)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, nil
}

// ListDirectories returns the slugs stored under group.
func (s *Storage) ListDirectories(group string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.BasePath, group))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not list %s: %w", group, err)
	}

	var slugs []string
	for _, entry := range entries {
		if entry.IsDir() {
			slugs = append(slugs, entry.Name())
		}
	}
	return slugs, nil
}

// ListKeys returns every key that has a directory in storage.
func (s *Storage) ListKeys() ([]string, error) {
	var keys []string
	for _, core := range []string{KeyWordPress, KeyMU} {
		if fileExists(s.path(core, metaFile)) || fileExists(s.path(core, versionsFile)) {
			keys = append(keys, core)
		}
	}

	for _, group := range Groups {
		slugs, err := s.ListDirectories(group)
		if err != nil {
			return nil, err
		}
		for _, slug := range slugs {
			keys = append(keys, group+"/"+slug)
		}
	}
	return keys, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteJSON atomically replaces path with the indented JSON of value.
func WriteJSON(path string, value any) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("could not serialize %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("could not create temporary file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(append(data, '\n'))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return fmt.Errorf("could not replace %s: %w", path, err)
	}
	return nil
}

func (s *Storage) readJSON(path string, value any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("could not read %s: %w", path, err)
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return fmt.Errorf("could not parse %s: %w", path, err)
	}
	return nil
}
