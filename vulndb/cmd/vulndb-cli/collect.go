package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/openwebvulndb/openwebvulndb-tools/hashing"
	"github.com/openwebvulndb/openwebvulndb-tools/repository"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/openwebvulndb/openwebvulndb-tools/worker"
	"github.com/spf13/cobra"
)

var collectHashesCmd = &cobra.Command{
	Use:   "collect-hashes [key...]",
	Short: "Collect file signatures for new upstream versions",
	Long:  "Collect file signatures for the given keys, or for every stored target in random order.",
	RunE:  runCollectHashes,
}

func runCollectHashes(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := App().Config

	hasher, err := hashing.NewHasher(config.HashAlgorithm)
	if err != nil {
		return err
	}

	workspaces := repository.NewWorkspaces(config.SvnBaseDir)
	workspaces.Register(
		repository.TypeSubversion,
		repository.SubversionFactory(repository.ExecRunner{}, config.SvnTimeoutDuration()),
	)
	workspaces.Register(repository.TypeGit, repository.GitFactory())

	collector := &repository.Hasher{
		Storage:    App().Storage,
		Workspaces: workspaces,
		Hasher:     hasher,
		Recorder:   App().Ledger,
	}

	metas, err := selectMeta(args)
	if err != nil {
		return err
	}
	rand.Shuffle(len(metas), func(i, j int) { metas[i], metas[j] = metas[j], metas[i] })
	slog.Info("collecting signatures", "targets", len(metas), "workers", config.WorkerCount)

	pool := worker.NewPool(ctx, config.WorkerCount, config.WorkerCount*2)
	for _, meta := range metas {
		meta := meta
		err := pool.Submit(ctx, meta.Key, func(ctx context.Context) error {
			_, err := collector.CollectFromMeta(ctx, meta)
			return err
		})
		if err != nil {
			slog.Warn("stopped scheduling", "err", err)
			break
		}
	}
	pool.Wait()

	completed, failed := pool.Stats()
	slog.Info("signature collection done", "completed", completed, "failed", failed)
	return nil
}

func selectMeta(keys []string) ([]*vulndb.Meta, error) {
	if len(keys) == 0 {
		return App().Storage.ListMeta()
	}

	metas := make([]*vulndb.Meta, 0, len(keys))
	for _, key := range keys {
		meta, err := App().Storage.ReadMeta(key)
		if err != nil {
			return nil, fmt.Errorf("could not read meta of %s: %w", key, err)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func init() {
	rootCmd.AddCommand(collectHashesCmd)
}
