package main

import (
	"log/slog"

	"github.com/openwebvulndb/openwebvulndb-tools/fingerprint"
	"github.com/spf13/cobra"
)

var exportFingerprintsCmd = &cobra.Command{
	Use:   "export-fingerprints",
	Short: "Write the version fingerprint bundle of every category",
	RunE:  runExportFingerprints,
}

var exportVulnerabilitiesCmd = &cobra.Command{
	Use:   "export-vulnerabilities",
	Short: "Write the vulnerability bundle of every category",
	RunE:  runExportVulnerabilities,
}

func newExporter() *fingerprint.Exporter {
	config := App().Config
	return fingerprint.NewExporter(
		App().Storage,
		fingerprint.NewBuilder(config.FilesPerVersion),
		config.ExportPath,
	)
}

func runExportFingerprints(cmd *cobra.Command, args []string) error {
	exported, err := newExporter().ExportVersions()
	if err != nil {
		return err
	}
	slog.Info("fingerprints exported", "lists", exported)
	return nil
}

func runExportVulnerabilities(cmd *cobra.Command, args []string) error {
	exported, err := newExporter().ExportVulnerabilities()
	if err != nil {
		return err
	}
	slog.Info("vulnerabilities exported", "lists", exported)
	return nil
}

func init() {
	rootCmd.AddCommand(exportFingerprintsCmd)
	rootCmd.AddCommand(exportVulnerabilitiesCmd)
}
