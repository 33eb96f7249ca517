package coco

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/datastore"
	"github.com/annodb/annodb/internal/ingest"
)

// Command creates the coco command for ingesting a COCO 2017 dataset.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coco",
		Short: "Ingest a COCO 2017 dataset",
		Long:  `Ingest the instances JSON files and split directories found under a COCO dataset root. The root is searched recursively, so annotation files may live under an annotations/ subdirectory or next to the image directories.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := datastore.New(settings)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			summary, err := ingest.COCO(settings, store)
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

// setupFlags configures flags specific to the coco command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVarP(&settings.Input.Path, "root", "r", "", "Path to the COCO dataset root")
	cmd.Flags().StringVar(&settings.Ingest.Subset, "subset", "", "Restrict ingestion to one subset: train, val or test")
	_ = cmd.MarkFlagRequired("root")
}
