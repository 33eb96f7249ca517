package ingest

import (
	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/datastore"
	"github.com/annodb/annodb/internal/openimages"
)

const (
	openImagesVersionName = "OpenImagesV7 (boxes)"
	openImagesReleaseDate = "2022-10-01"
)

// OpenImages ingests an Open Images V7 box dump rooted at
// settings.Input.Path. The class-descriptions file maps machine ids to
// display names; images are read before boxes so fractional coordinates can
// be denormalized against stored dimensions. Box rows for images excluded
// by the image-count limit are dropped without being counted as errors.
func OpenImages(settings *conf.Settings, store datastore.Interface) (*Summary, error) {
	subsets := openimages.Subsets
	if settings.Ingest.Subset != "" {
		subsets = []string{settings.Ingest.Subset}
	}

	reader, err := openimages.NewReader(settings.Input.Path, subsets)
	if err != nil {
		return nil, err
	}

	run, err := NewRun(settings, store, openImagesVersionName, openImagesReleaseDate, "OpenImages", "verified/mixed")
	if err != nil {
		return nil, err
	}
	run.Log().Info("ingesting Open Images dataset", "root", settings.Input.Path, "subsets", subsets)

	classNames := make(map[string]string)
	if err := reader.EachClass(func(mid, displayName string) {
		classNames[mid] = displayName
	}); err != nil {
		return nil, err
	}
	run.Log().Info("class dictionary loaded", "classes", len(classNames))

	errFn := func(err error, file string, index int) {
		run.CountSkip(err, file, index)
	}

	limit := settings.Ingest.Limit
	images := 0
	for _, subset := range subsets {
		var addErr error
		err := reader.EachImage(subset, func(info openimages.ImageInfo) bool {
			if limit > 0 && images >= limit {
				return false
			}
			fileName := info.URL
			if fileName == "" {
				fileName = info.ImageID + ".jpg"
			}
			addErr = run.AddImage(ImageRecord{
				SourceID: info.ImageID,
				FileName: fileName,
				Width:    info.Width,
				Height:   info.Height,
				Rotation: info.Rotation,
				Split:    subset,
			})
			if addErr != nil {
				return false
			}
			images++
			return true
		}, errFn)
		if err != nil {
			return nil, err
		}
		if addErr != nil {
			return nil, addErr
		}
	}

	for _, subset := range subsets {
		err := reader.EachBox(subset, func(box openimages.BoxRow) error {
			// With a limit active, boxes for excluded images are expected
			// and dropped quietly. Without one, an unknown image means the
			// source dump is incomplete and the record is counted.
			if limit > 0 && !run.HasImage(box.ImageID) {
				return nil
			}
			name := classNames[box.LabelMID]
			if name == "" {
				// Labels outside the boxable dictionary keep their MID.
				name = box.LabelMID
			}
			return run.AddBox(BoxRecord{
				ImageSourceID: box.ImageID,
				CategoryName:  name,
				Convention:    Fractional,
				X1:            box.XMin,
				Y1:            box.YMin,
				X2:            box.XMax,
				Y2:            box.YMax,
				IsOccluded:    box.IsOccluded,
				IsTruncated:   box.IsTruncated,
				IsGroupOf:     box.IsGroupOf,
				IsDepiction:   box.IsDepiction,
				IsInside:      box.IsInside,
				SourceFile:    box.SourceFile,
				RecordIndex:   box.RecordIndex,
			})
		}, errFn)
		if err != nil {
			return nil, err
		}
	}

	return run.Finish()
}
