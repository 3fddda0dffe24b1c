package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	exportcmd "github.com/superwasp/vespa/cmd/export"
	releasecmd "github.com/superwasp/vespa/cmd/release"
	subjectscmd "github.com/superwasp/vespa/cmd/subjects"
	"github.com/superwasp/vespa/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vespa",
		Short: "SuperWASP Variable Star Photometry Archive CLI",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		releasecmd.Command(settings),
		exportcmd.Command(settings),
		subjectscmd.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Parse the command line flags
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&settings.Zooniverse.CommitChanges, "commit", viper.GetBool("zooniverse.commitchanges"), "Push platform changes instead of logging them as a dry run")
	rootCmd.PersistentFlags().StringVar(&settings.Export.Dir, "export-dir", viper.GetString("export.dir"), "Directory export archives are written to")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
