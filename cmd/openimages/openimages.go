package openimages

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/datastore"
	"github.com/annodb/annodb/internal/ingest"
)

// Command creates the openimages command for ingesting an Open Images V7
// box dump.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openimages",
		Short: "Ingest an Open Images V7 box dump",
		Long:  `Ingest the flat CSV files of an Open Images V7 download: the class-descriptions file plus per-subset bbox and image-info CSVs, all in one directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := datastore.New(settings)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			summary, err := ingest.OpenImages(settings, store)
			if err != nil {
				return err
			}
			fmt.Print(summary.String())
			return nil
		},
	}

	setupFlags(cmd, settings)

	return cmd
}

// setupFlags configures flags specific to the openimages command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVarP(&settings.Input.Path, "root", "r", "", "Path to the directory holding the Open Images CSV files")
	cmd.Flags().StringVar(&settings.Ingest.Subset, "subset", "", "Restrict ingestion to one subset: train, validation or test")
	_ = cmd.MarkFlagRequired("root")
}
