package ingest

import (
	"path/filepath"
	"strings"

	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/datastore"
	"github.com/annodb/annodb/internal/voc"
)

const (
	vocVersionName = "VOC2012"
	vocReleaseDate = "2012-05-11"
)

// VOC ingests a PASCAL VOC dataset rooted at settings.Input.Path. The
// twenty canonical classes are seeded up front so the label class table is
// complete even for roots where some classes never appear.
func VOC(settings *conf.Settings, store datastore.Interface) (*Summary, error) {
	reader, err := voc.NewReader(settings.Input.Path)
	if err != nil {
		return nil, err
	}

	run, err := NewRun(settings, store, vocVersionName, vocReleaseDate, "VOC System", "N/A")
	if err != nil {
		return nil, err
	}
	run.Log().Info("ingesting VOC dataset", "root", settings.Input.Path)

	for _, name := range voc.Classes {
		if _, err := run.ResolveCategory(name, ""); err != nil {
			return nil, err
		}
	}

	splits := reader.SplitSets()

	files, err := reader.AnnotationFiles()
	if err != nil {
		return nil, err
	}

	limit := settings.Ingest.Limit
	for n, path := range files {
		if limit > 0 && n >= limit {
			break
		}

		doc, err := reader.ParseAnnotation(path)
		if err != nil {
			run.CountSkip(err, path, 0)
			continue
		}

		stem := strings.TrimSuffix(filepath.Base(path), ".xml")
		if err := run.AddImage(ImageRecord{
			SourceID: stem,
			FileName: doc.Filename,
			Width:    doc.Width,
			Height:   doc.Height,
			Split:    splits[stem],
		}); err != nil {
			return nil, err
		}

		mask := ""
		if settings.Ingest.IncludeSegmentation {
			mask = reader.MaskPath(stem)
		}

		for i := range doc.Objects {
			obj := &doc.Objects[i]
			if err := run.AddBox(BoxRecord{
				ImageSourceID: stem,
				CategoryName:  obj.Name,
				Convention:    Corners,
				X1:            obj.XMin,
				Y1:            obj.YMin,
				X2:            obj.XMax,
				Y2:            obj.YMax,
				IsOccluded:    obj.Occluded,
				IsTruncated:   obj.Truncated,
				Segmentation:  mask,
				SourceFile:    path,
				RecordIndex:   i,
			}); err != nil {
				return nil, err
			}
		}
	}

	return run.Finish()
}
