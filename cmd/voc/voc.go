package voc

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/datastore"
	"github.com/annodb/annodb/internal/ingest"
)

// Command creates the voc command for ingesting a PASCAL VOC dataset.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voc",
		Short: "Ingest a PASCAL VOC dataset",
		Long:  `Ingest the annotation XML files and split lists of a PASCAL VOC root (the directory containing Annotations/, JPEGImages/ and ImageSets/).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := datastore.New(settings)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			summary, err := ingest.VOC(settings, store)
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

// setupFlags configures flags specific to the voc command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVarP(&settings.Input.Path, "root", "r", "", "Path to the VOC dataset root")
	cmd.Flags().BoolVar(&settings.Ingest.IncludeSegmentation, "include-segmentation", false, "Record segmentation mask paths when present")
	_ = cmd.MarkFlagRequired("root")
}
