package ingest

import (
	"path/filepath"
	"strconv"

	"github.com/annodb/annodb/internal/coco"
	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/datastore"
	"github.com/annodb/annodb/internal/errors"
)

const (
	cocoVersionName = "COCO 2017"
	cocoReleaseDate = "2017-09-01"
)

// COCO ingests a COCO 2017 dataset rooted at settings.Input.Path. The root
// is walked to locate whatever subsets are present; each subset's JSON is
// streamed in one pass, with the category dictionary registered first so
// source category ids stay authoritative. Split directories that ship
// without annotation JSON still contribute their images.
func COCO(settings *conf.Settings, store datastore.Interface) (*Summary, error) {
	layout, err := coco.Discover(settings.Input.Path)
	if err != nil {
		return nil, err
	}

	run, err := NewRun(settings, store, cocoVersionName, cocoReleaseDate, "COCO Consortium", "expert")
	if err != nil {
		return nil, err
	}
	run.Log().Info("ingesting COCO dataset", "root", settings.Input.Path)

	subsets := coco.Subsets
	if settings.Ingest.Subset != "" {
		subsets = []string{settings.Ingest.Subset}
	}

	limit := settings.Ingest.Limit
	images := 0

	categoriesDone := false
	for _, subset := range subsets {
		path := layout.Instances[subset]
		if path == "" {
			continue
		}

		meta, err := coco.ParseMeta(path)
		if err != nil {
			run.CountSkip(err, path, 0)
			continue
		}
		if meta.Description != "" {
			run.Log().Info("source release",
				"description", meta.Description,
				"version", meta.Version,
				"year", meta.Year,
				"date_created", meta.DateCreated)
		}
		if !categoriesDone && len(meta.Categories) > 0 {
			for _, cat := range meta.Categories {
				if err := run.RegisterCategory(cat.ID, cat.Name, cat.Supercategory); err != nil {
					return nil, err
				}
			}
			categoriesDone = true
		}

		imageIndex := 0
		annIndex := 0
		err = coco.StreamEntries(path,
			func(entry coco.ImageEntry, err error) error {
				imageIndex++
				if err != nil {
					run.CountSkip(recordSkip(path, err), path, imageIndex)
					return nil
				}
				if limit > 0 && images >= limit {
					return nil
				}
				images++
				return run.AddImage(ImageRecord{
					SourceID:  strconv.FormatUint(uint64(entry.ID), 10),
					NumericID: entry.ID,
					FileName:  subset + "2017/" + entry.FileName,
					Width:     entry.Width,
					Height:    entry.Height,
					Split:     subset,
				})
			},
			func(entry coco.AnnEntry, err error) error {
				annIndex++
				if err != nil {
					run.CountSkip(recordSkip(path, err), path, annIndex)
					return nil
				}
				rec := BoxRecord{
					ImageSourceID: strconv.FormatUint(uint64(entry.ImageID), 10),
					CategoryID:    entry.CategoryID,
					Convention:    XYWH,
					X1:            entry.BBox[0],
					Y1:            entry.BBox[1],
					X2:            entry.BBox[2],
					Y2:            entry.BBox[3],
					SourceFile:    path,
					RecordIndex:   annIndex,
				}
				if limit > 0 && !run.HasImage(rec.ImageSourceID) {
					return nil
				}
				return run.AddBox(rec)
			})
		if err != nil {
			run.CountSkip(err, path, 0)
		}
	}

	// Image directories without a matching JSON: ingest file listings so
	// the split membership is at least recorded.
	for _, subset := range subsets {
		if layout.Instances[subset] != "" {
			continue
		}
		dir := layout.ImageDirs[subset]
		if dir == "" {
			continue
		}
		entries, err := coco.ScanImages(dir)
		if err != nil {
			run.CountSkip(err, dir, 0)
			continue
		}
		for _, entry := range entries {
			if limit > 0 && images >= limit {
				break
			}
			images++
			if err := run.AddImage(ImageRecord{
				SourceID:  strconv.FormatUint(uint64(entry.ID), 10),
				NumericID: entry.ID,
				FileName:  filepath.Base(dir) + "/" + entry.FileName,
				Split:     subset,
			}); err != nil {
				return nil, err
			}
		}
	}

	return run.Finish()
}

func recordSkip(path string, err error) error {
	return errors.New(err).
		Component("coco").
		Category(errors.CategoryFileParsing).
		Context("file", path).
		Build()
}
