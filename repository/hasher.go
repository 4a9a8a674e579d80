package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openwebvulndb/openwebvulndb-tools/hashing"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb/version"
)

type VersionStore interface {
	ReadVersionList(key string) (*vulndb.VersionList, error)
	WriteVersionList(list *vulndb.VersionList) error
}

// RunRecorder keeps a history of collection runs.
type RunRecorder interface {
	StartRun(key string, repo vulndb.Repository) (uint, error)
	FinishRun(id uint, versionsAdded int, runErr error) error
}

// Hasher collects signatures for every upstream version of a key that is
// not already in its stored VersionList.
type Hasher struct {
	Storage    VersionStore
	Workspaces *Workspaces
	Hasher     hashing.Hasher
	Recorder   RunRecorder
}

// CollectFromMeta tries the repositories of meta in order and stops after
// the first one handled to completion. It reports whether that happened.
func (h *Hasher) CollectFromMeta(ctx context.Context, meta *vulndb.Meta) (bool, error) {
	var lastErr error
	for _, repo := range meta.Repositories {
		if !h.Workspaces.Supports(repo.Type) {
			continue
		}

		err := h.collectRepository(ctx, meta.Key, repo)
		if err == nil {
			return true, nil
		}
		slog.Error("could not collect signatures", "key", meta.Key, "location", repo.Location, "err", err)
		lastErr = err
	}
	return false, lastErr
}

func (h *Hasher) collectRepository(ctx context.Context, key string, repo vulndb.Repository) error {
	runID, recording := h.startRun(key, repo)

	added := 0
	err := h.Workspaces.With(ctx, repo, func(ws Workspace) error {
		var err error
		added, err = h.Collect(ctx, key, ws)
		return err
	})

	if recording {
		recordErr := h.Recorder.FinishRun(runID, added, err)
		if recordErr != nil {
			slog.Warn("could not record run", "key", key, "err", recordErr)
		}
	}
	return err
}

func (h *Hasher) startRun(key string, repo vulndb.Repository) (uint, bool) {
	if h.Recorder == nil {
		return 0, false
	}
	id, err := h.Recorder.StartRun(key, repo)
	if err != nil {
		slog.Warn("could not record run", "key", key, "err", err)
		return 0, false
	}
	return id, true
}

// Collect hashes the versions ws offers that key lacks, oldest first, and
// returns how many were added. A failure stops the loop but the versions
// collected until then are still written.
func (h *Hasher) Collect(ctx context.Context, key string, ws Workspace) (int, error) {
	list, err := h.Storage.ReadVersionList(key)
	if errors.Is(err, vulndb.ErrNotFound) {
		list = vulndb.NewVersionList(key)
	} else if err != nil {
		return 0, fmt.Errorf("could not read versions of %s: %w", key, err)
	}

	available, err := ws.ListVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not list versions of %s: %w", key, err)
	}

	missing := []string{}
	for _, v := range available {
		if !list.HasVersion(v) {
			missing = append(missing, v)
		}
	}
	missing = version.Sorted(missing)

	added := 0
	var collectErr error
	for _, v := range missing {
		def, err := h.hashVersion(ctx, key, v, ws)
		if err != nil {
			collectErr = err
			break
		}
		err = list.AddVersion(def)
		if err != nil {
			collectErr = err
			break
		}
		added++
		slog.Debug("collected version", "key", key, "version", v, "files", len(def.Signatures))
	}

	if added > 0 {
		err = h.Storage.WriteVersionList(list)
		if err != nil {
			return added, fmt.Errorf("could not write versions of %s: %w", key, err)
		}
		slog.Info("stored versions", "key", key, "added", added)
	}

	return added, collectErr
}

func (h *Hasher) hashVersion(ctx context.Context, key, v string, ws Workspace) (*vulndb.VersionDefinition, error) {
	err := ws.ToVersion(ctx, v)
	if err != nil {
		return nil, err
	}

	collector := hashing.Collector{
		Root:    ws.Dir(),
		Prefix:  vulndb.PathPrefix(key),
		Version: v,
		Hasher:  h.Hasher,
	}
	signatures, err := collector.Collect(ctx)
	if err != nil {
		return nil, err
	}

	def := &vulndb.VersionDefinition{Version: v}
	def.SetSignatures(signatures)
	return def, nil
}
