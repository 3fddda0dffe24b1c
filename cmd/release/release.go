// Package release implements the data release subcommands: creating,
// aggregating and activating releases, listing them, and refreshing the
// derived star statistics.
package release

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/media"
	"github.com/superwasp/vespa/internal/metrics"
	"github.com/superwasp/vespa/internal/photometry"
	"github.com/superwasp/vespa/internal/release"
	"github.com/superwasp/vespa/internal/zooniverse"
)

// Command creates the release command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Manage data releases",
	}

	cmd.AddCommand(
		createCommand(settings),
		aggregateCommand(settings),
		activateCommand(settings),
		listCommand(settings),
		updateStatsCommand(settings),
	)

	return cmd
}

// openStore opens the configured catalog store.
func openStore(settings *conf.Settings) (datastore.Interface, error) {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return nil, err
	}
	return store, nil
}

// newRunner wires the aggregation pipeline over the platform client.
func newRunner(store datastore.Interface, settings *conf.Settings, pipelineMetrics *metrics.PipelineMetrics) *release.Runner {
	source := &release.ClientExportSource{
		Client:   zooniverse.NewClient(settings),
		Settings: settings,
		Metrics:  pipelineMetrics,
	}
	return release.NewRunner(store, source, settings, pipelineMetrics)
}

func createCommand(settings *conf.Settings) *cobra.Command {
	var version float64

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new data release and run its aggregation",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			var pinned *float64
			if version != 0 {
				pinned = &version
			}
			rel, err := store.CreateDataRelease(pinned)
			if err != nil {
				return err
			}
			fmt.Printf("created data release %.1f\n", rel.Version)

			pipelineMetrics, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			stats, err := newRunner(store, settings, pipelineMetrics).Aggregate(cmd.Context(), rel)
			if err != nil {
				return err
			}
			fmt.Printf("aggregated %d subjects (%d candidates created, %d corrections staged)\n",
				stats.Rows, stats.CandidatesCreated, stats.CorrectionsStaged)
			return nil
		},
	}

	cmd.Flags().Float64Var(&version, "version", 0, "Pin the release version instead of using the next free one")

	return cmd
}

func aggregateCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate [release-id]",
		Short: "Run the aggregation pipeline for an existing release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			rel, err := store.GetDataRelease(id)
			if err != nil {
				return err
			}
			if rel.AggregationFinished != nil {
				fmt.Printf("release %.1f already aggregated at %s\n",
					rel.Version, rel.AggregationFinished.Format("2006-01-02 15:04:05"))
				return nil
			}

			pipelineMetrics, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			stats, err := newRunner(store, settings, pipelineMetrics).Aggregate(cmd.Context(), rel)
			if err != nil {
				return err
			}
			fmt.Printf("aggregated %d subjects (%d candidates created, %d corrections staged)\n",
				stats.Rows, stats.CandidatesCreated, stats.CorrectionsStaged)
			return nil
		},
	}
}

func activateCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "activate [release-id]",
		Short: "Activate a release, promoting its staged period corrections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			// Promoted corrections invalidate rendered plots; regenerate
			// them before the command exits.
			regenerator := media.NewRegenerator(store,
				media.NewArchivePlotRenderer(settings), settings.Media.QueueDepth)
			regenerator.Start(cmd.Context(), settings.Media.Workers)

			pipelineMetrics, err := metrics.NewPipelineMetrics(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			activator := release.NewActivator(store, regenerator, pipelineMetrics)
			result, err := activator.Activate(id)
			if err != nil {
				return err
			}
			regenerator.Stop()

			if result.AlreadyActive {
				fmt.Printf("release %.1f is already active\n", result.Release.Version)
				return nil
			}
			fmt.Printf("activated release %.1f (%d corrections promoted, archive export %s)\n",
				result.Release.Version, len(result.PromotedIDs), result.ArchiveExport.ID)
			return nil
		},
	}
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all data releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			releases, err := store.ListDataReleases()
			if err != nil {
				return err
			}

			fmt.Printf("%-6s %-8s %-20s %-20s %s\n", "ID", "Version", "Created", "Aggregated", "Active")
			for i := range releases {
				rel := &releases[i]
				aggregated := "-"
				if rel.AggregationFinished != nil {
					aggregated = rel.AggregationFinished.Format("2006-01-02 15:04:05")
				}
				active := "-"
				if rel.ActiveAt != nil {
					active = rel.ActiveAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-6d %-8.1f %-20s %-20s %s\n",
					rel.ID, rel.Version,
					rel.CreatedAt.Format("2006-01-02 15:04:05"),
					aggregated, active)
			}
			return nil
		},
	}
}

func updateStatsCommand(settings *conf.Settings) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "update-stats",
		Short: "Compute magnitude statistics for stars that lack them",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			updater := photometry.NewUpdater(store, photometry.NewArchiveFluxSource(settings), settings)
			result, err := updater.UpdateStats(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Printf("updated %d stars (%d fetch failures, %d not computable)\n",
				result.Updated, result.FetchFailed, result.Uncomputable)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of stars to update, 0 for all")

	return cmd
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid release id %q: %w", arg, err)
	}
	return uint(id), nil
}
