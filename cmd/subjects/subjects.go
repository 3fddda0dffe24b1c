// Package subjects implements the platform subject subcommands.
package subjects

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/datastore"
	"github.com/superwasp/vespa/internal/zooniverse"
)

// Command creates the subjects command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Manage crowd-sourcing platform subjects",
	}

	cmd.AddCommand(syncMetadataCommand(settings))

	return cmd
}

func syncMetadataCommand(settings *conf.Settings) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sync-metadata",
		Short: "Push cross-reference links to subjects with stale metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := datastore.New(settings)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			client := zooniverse.NewClient(settings)
			stats, err := zooniverse.SyncSubjectMetadata(cmd.Context(), store, client, settings, limit)
			if err != nil {
				return err
			}

			if !settings.Zooniverse.CommitChanges {
				fmt.Printf("dry run: %d subjects examined, %d pushes logged (use --commit to push)\n",
					stats.Examined, stats.Pushed)
				return nil
			}
			fmt.Printf("%d subjects examined, %d pushed, %d failed\n",
				stats.Examined, stats.Pushed, stats.Failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of subjects to sync, 0 for all")

	return cmd
}
