// Package export implements the export subcommands.
package export

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/export"
	"github.com/superwasp/vespa/internal/metrics"
)

// Command creates the export command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Generate downloadable data export archives",
	}

	cmd.AddCommand(generateCommand(settings), archiveCommand(settings))

	return cmd
}

func generateCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "generate [export-id]",
		Short: "Build the CSV/ZIP archive for an export record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exportID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid export id %q: %w", args[0], err)
			}

			store := datastore.New(settings)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			exportMetrics, err := metrics.NewExportMetrics(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			generator := export.NewGenerator(store, settings, exportMetrics)
			if err := generator.Generate(cmd.Context(), exportID); err != nil {
				return err
			}

			exp, err := store.GetDataExport(exportID)
			if err != nil {
				return err
			}
			fmt.Printf("export %s complete: %s\n", exportID, exp.FilePath)
			return nil
		},
	}
}

// archiveCommand regenerates the permanent archive export of a release,
// created when the release was activated.
func archiveCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "archive [release-id]",
		Short: "Build the permanent archive export of an active release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var releaseID uint
			if _, err := fmt.Sscanf(args[0], "%d", &releaseID); err != nil {
				return fmt.Errorf("invalid release id %q: %w", args[0], err)
			}

			store := datastore.New(settings)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			exp, err := store.ArchiveExport(releaseID)
			if err != nil {
				return err
			}
			if exp == nil {
				return fmt.Errorf("release %d has no archive export; is it active?", releaseID)
			}

			exportMetrics, err := metrics.NewExportMetrics(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			generator := export.NewGenerator(store, settings, exportMetrics)
			if err := generator.Generate(cmd.Context(), exp.ID); err != nil {
				return err
			}

			exp, err = store.GetDataExport(exp.ID)
			if err != nil {
				return err
			}
			fmt.Printf("archive export %s complete: %s\n", exp.ID, exp.FilePath)
			return nil
		},
	}
}
