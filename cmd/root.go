package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/annodb/annodb/cmd/coco"
	"github.com/annodb/annodb/cmd/openimages"
	"github.com/annodb/annodb/cmd/voc"
	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "annodb",
		Short: "Normalize object detection datasets into one database",
		Long: `annodb ingests PASCAL VOC, COCO and Open Images annotation dumps and
writes them into a single relational database with a shared schema.`,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		voc.Command(settings),
		coco.Command(settings),
		openimages.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Parse the command line flags
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settings.Output.SQLite.Path, "out", "o", viper.GetString("output.sqlite.path"), "Path to the output SQLite database file")
	rootCmd.PersistentFlags().IntVar(&settings.Ingest.BatchSize, "batch-size", viper.GetInt("ingest.batchsize"), "Number of annotations per insert transaction")
	rootCmd.PersistentFlags().StringVar(&settings.Ingest.BoundsPolicy, "bounds-policy", viper.GetString("ingest.boundspolicy"), "Handling of out-of-bounds boxes: reject or clamp")
	rootCmd.PersistentFlags().IntVar(&settings.Ingest.Limit, "limit", viper.GetInt("ingest.limit"), "Maximum number of images to ingest, 0 for all")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
