package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openwebvulndb/openwebvulndb-tools/importer"
	"github.com/openwebvulndb/openwebvulndb-tools/importer/securityfocus"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/spf13/cobra"
)

var importCVECmd = &cobra.Command{
	Use:   "import-cve [feed.json]",
	Short: "Import a batched CVE feed from a file or from the feed API",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImportCVE,
}

var importCVEFlags = struct {
	fromURL bool
	vendor  string
	product string
	since   time.Duration
}{}

var importSecurityFocusCmd = &cobra.Command{
	Use:   "import-securityfocus [bugtraq-id...]",
	Short: "Import SecurityFocus advisories from the listing or for the given ids",
	RunE:  runImportSecurityFocus,
}

// newIdentifier wires target identification over the configured storage and
// rewrite rules.
func newIdentifier() (*importer.TargetIdentifier, error) {
	rewriters, err := importer.CompileRewriters(App().Config.Rewriters)
	if err != nil {
		return nil, err
	}
	storage := App().Storage
	mapper := importer.NewCPEMapper(storage)
	err = mapper.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load cpe rules: %w", err)
	}
	return importer.NewTargetIdentifier(mapper, storage, rewriters), nil
}

func runImportCVE(cmd *cobra.Command, args []string) error {
	if !importCVEFlags.fromURL && len(args) == 0 {
		return errors.New("import-cve needs a feed file or --url")
	}

	var entries []importer.CVEEntry
	if importCVEFlags.fromURL {
		client := &importer.FeedClient{Endpoint: App().Config.Importers.CVE.URL}
		options := []importer.RequestOptionsFunc{importer.Vendor(importCVEFlags.vendor)}
		if importCVEFlags.product != "" {
			options = append(options, importer.Product(importCVEFlags.product))
		}
		if importCVEFlags.since > 0 {
			options = append(options, importer.ModifiedSince(time.Now().Add(-importCVEFlags.since)))
		}

		var err error
		entries, err = client.GetCVEs(cmd.Context(), options...)
		if err != nil {
			return err
		}
	} else {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("could not read %s: %w", args[0], err)
		}
		entries, err = importer.ParseCVEFeed(data)
		if err != nil {
			return err
		}
	}

	identifier, err := newIdentifier()
	if err != nil {
		return err
	}
	manager := importer.NewManager(App().Storage)
	reader := importer.NewCVEReader(identifier, manager, App().Storage)

	applied := reader.ReadAll(entries)
	slog.Info("imported cve feed", "entries", len(entries), "applied", applied)

	err = manager.Flush()
	if err != nil {
		slog.Error("could not write every vulnerability list", "err", err)
	}
	return nil
}

func runImportSecurityFocus(cmd *cobra.Command, args []string) error {
	config := App().Config.Importers.SecurityFocus

	identifier, err := newIdentifier()
	if err != nil {
		return err
	}
	manager := importer.NewManager(App().Storage)
	reader := importer.NewAdvisoryReader(identifier, manager, App().Storage)

	pipeline := &securityfocus.Pipeline{
		Client:   securityfocus.NewClient(),
		Fetchers: config.Fetchers,
		Handle: func(adv *securityfocus.Advisory) error {
			_, err := reader.Apply(adv)
			return err
		},
	}

	var stats securityfocus.Stats
	if len(args) > 0 {
		stats, err = pipeline.RunIDs(cmd.Context(), args)
	} else {
		stats, err = pipeline.RunPages(cmd.Context(), config.Pages)
	}
	slog.Info("imported advisories",
		"listed", stats.Listed,
		"fetched", stats.Fetched,
		"handled", stats.Handled,
		"failed", stats.Failed,
	)

	flushErr := manager.Flush()
	if flushErr != nil {
		slog.Error("could not write every vulnerability list", "err", flushErr)
	}
	return err
}

func init() {
	importCVECmd.Flags().BoolVar(&importCVEFlags.fromURL, "url", false, "Fetch the feed from the configured endpoint")
	importCVECmd.Flags().StringVar(&importCVEFlags.vendor, "vendor", vulndb.KeyWordPress, "Vendor to search for with --url")
	importCVECmd.Flags().StringVar(&importCVEFlags.product, "product", "", "Product to search for with --url")
	importCVECmd.Flags().DurationVar(&importCVEFlags.since, "since", 0, "Only fetch entries modified within this period")

	rootCmd.AddCommand(importCVECmd)
	rootCmd.AddCommand(importSecurityFocusCmd)
}
