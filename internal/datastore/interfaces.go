// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"

	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/errors"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the ingestion pipeline needs.
type Interface interface {
	Open() error
	Close() error

	// Provenance rows, created once per source.
	EnsureDatasetVersion(name, releaseDate string) (uint, error)
	EnsureAnnotator(name, expertiseLevel string) (uint, error)

	// Category resolution. ResolveLabelClass merges by unique name;
	// ReconcileLabelClass additionally honors a source-assigned id and fails
	// loudly when that id is already taken by a different name.
	ResolveLabelClass(name, description string) (uint, error)
	ReconcileLabelClass(sourceID uint, name, description string) (uint, error)

	// Image and split upserts by natural key.
	UpsertImage(image *Image) error
	UpsertSplit(imageID uint, splitName string) error

	// CommitAnnotations applies one batch in a single transaction,
	// passing over rows whose natural key is already stored. A failed
	// batch is rolled back and retried record by record; offending records
	// are skipped and counted.
	CommitAnnotations(batch []Annotation) (inserted, skipped int, err error)

	// Query surface for the run summary and the documented query patterns.
	TableCounts() (Counts, error)
	ClassDistribution() ([]ClassCount, error)
	ImagesInSplit(splitName string) ([]Image, error)
	AnnotationsForImage(imageID uint) ([]Annotation, error)
	GetLabelClass(id uint) (LabelClass, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided settings.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		// ValidateSettings rejects this case before a store is built
		return nil
	}
}

// EnsureDatasetVersion looks up or creates the dataset version row by name.
func (ds *DataStore) EnsureDatasetVersion(name, releaseDate string) (uint, error) {
	version := DatasetVersion{Name: name, ReleaseDate: releaseDate}
	err := ds.DB.Where(DatasetVersion{Name: name}).FirstOrCreate(&version).Error
	if err != nil {
		return 0, errors.Newf("ensuring dataset version %q: %w", name, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return version.ID, nil
}

// EnsureAnnotator looks up or creates the system annotator row by name.
func (ds *DataStore) EnsureAnnotator(name, expertiseLevel string) (uint, error) {
	annotator := Annotator{Name: name, ExpertiseLevel: expertiseLevel}
	err := ds.DB.Where(Annotator{Name: name}).FirstOrCreate(&annotator).Error
	if err != nil {
		return 0, errors.Newf("ensuring annotator %q: %w", name, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return annotator.ID, nil
}

// ResolveLabelClass returns the id for a category name, creating the row on
// first encounter. Same-named categories from different ingestions merge to
// the same id.
func (ds *DataStore) ResolveLabelClass(name, description string) (uint, error) {
	class := LabelClass{Name: name, Description: description}
	err := ds.DB.Where(LabelClass{Name: name}).FirstOrCreate(&class).Error
	if err != nil {
		return 0, errors.Newf("resolving label class %q: %w", name, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return class.ID, nil
}

// ReconcileLabelClass resolves a category that carries a source-assigned id
// (COCO). Name match always wins; otherwise the source id is honored only if
// it is free. A source id already taken by a different name is a hard error,
// silently renumbering would corrupt cross-references in the source data.
func (ds *DataStore) ReconcileLabelClass(sourceID uint, name, description string) (uint, error) {
	var byName LabelClass
	err := ds.DB.Where("name = ?", name).First(&byName).Error
	if err == nil {
		return byName.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errors.Newf("looking up label class %q: %w", name, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	var byID LabelClass
	err = ds.DB.First(&byID, sourceID).Error
	if err == nil {
		return 0, errors.Newf("label class id %d already maps to %q, cannot assign %q",
			sourceID, byID.Name, name).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errors.Newf("looking up label class id %d: %w", sourceID, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	class := LabelClass{ID: sourceID, Name: name, Description: description}
	if err := ds.DB.Create(&class).Error; err != nil {
		return 0, errors.Newf("creating label class %q: %w", name, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return class.ID, nil
}

// UpsertImage inserts the image or, when a row with the same file name
// already exists, reuses it and backfills dimensions that were previously
// unknown. The image's ID field is set either way.
func (ds *DataStore) UpsertImage(image *Image) error {
	var existing Image
	err := ds.DB.Where("file_name = ?", image.FileName).First(&existing).Error
	if err == nil {
		image.ID = existing.ID
		if existing.Width == 0 && existing.Height == 0 && image.Width > 0 && image.Height > 0 {
			updates := map[string]any{"width": image.Width, "height": image.Height}
			if image.Rotation != 0 {
				updates["rotation"] = image.Rotation
			}
			if err := ds.DB.Model(&existing).Updates(updates).Error; err != nil {
				return errors.Newf("backfilling dimensions for %q: %w", image.FileName, err).
					Component("datastore").
					Category(errors.CategoryDatabase).
					Build()
			}
			return nil
		}
		// Row exists with dimensions; keep the stored values authoritative.
		image.Width = existing.Width
		image.Height = existing.Height
		image.Rotation = existing.Rotation
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Newf("looking up image %q: %w", image.FileName, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	if err := ds.DB.Create(image).Error; err != nil {
		return errors.Newf("creating image %q: %w", image.FileName, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// UpsertSplit assigns the image to a split, replacing any previous
// assignment. An image belongs to exactly one split.
func (ds *DataStore) UpsertSplit(imageID uint, splitName string) error {
	var existing Split
	err := ds.DB.Where("image_id = ?", imageID).First(&existing).Error
	switch {
	case err == nil:
		if existing.SplitName == splitName {
			return nil
		}
		err = ds.DB.Model(&Split{}).Where("image_id = ?", imageID).
			Update("split_name", splitName).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = ds.DB.Create(&Split{ImageID: imageID, SplitName: splitName}).Error
	}
	if err != nil {
		return errors.Newf("assigning image %d to split %q: %w", imageID, splitName, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// CommitAnnotations stores one batch of annotations in a single transaction.
// Rows whose natural key already exists are passed over so re-running an
// ingestion leaves the annotation count unchanged. If the whole batch fails
// it is rolled back and retried with batch size 1 to isolate the offending
// records, which are skipped and counted instead of aborting the run.
func (ds *DataStore) CommitAnnotations(batch []Annotation) (inserted, skipped int, err error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}

	txErr := ds.DB.Transaction(func(tx *gorm.DB) error {
		n := 0
		for i := range batch {
			exists, err := annotationExists(tx, &batch[i])
			if err != nil {
				return fmt.Errorf("checking annotation %d: %w", i, err)
			}
			if exists {
				continue
			}
			if err := tx.Create(&batch[i]).Error; err != nil {
				return fmt.Errorf("saving annotation %d: %w", i, err)
			}
			n++
		}
		inserted = n
		return nil
	})
	if txErr == nil {
		return inserted, 0, nil
	}

	// Batch failed as a whole; isolate the bad records one by one.
	inserted = 0
	for i := range batch {
		batch[i].ID = 0 // discard any id assigned during the failed attempt
		if exists, err := annotationExists(ds.DB, &batch[i]); err != nil || exists {
			if err != nil {
				skipped++
			}
			continue
		}
		if err := ds.DB.Create(&batch[i]).Error; err != nil {
			skipped++
			continue
		}
		inserted++
	}
	return inserted, skipped, nil
}

// annotationExists reports whether a row with the same natural key is
// already stored. The key is the full geometry plus its image, category and
// provenance references; two sightings of that tuple describe one object.
func annotationExists(db *gorm.DB, a *Annotation) (bool, error) {
	var count int64
	err := db.Model(&Annotation{}).
		Where("image_id = ? AND category_id = ? AND version_id = ? AND annotator_id = ? AND xmin = ? AND ymin = ? AND xmax = ? AND ymax = ?",
			a.ImageID, a.CategoryID, a.VersionID, a.AnnotatorID, a.XMin, a.YMin, a.XMax, a.YMax).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TableCounts returns row counts for all four core tables.
func (ds *DataStore) TableCounts() (Counts, error) {
	var counts Counts
	models := []struct {
		model any
		dest  *int64
	}{
		{&Image{}, &counts.Images},
		{&LabelClass{}, &counts.LabelClasses},
		{&Annotation{}, &counts.Annotations},
		{&Split{}, &counts.Splits},
	}
	for _, m := range models {
		if err := ds.DB.Model(m.model).Count(m.dest).Error; err != nil {
			return Counts{}, fmt.Errorf("counting rows: %w", err)
		}
	}
	return counts, nil
}

// ClassDistribution returns annotation counts per category name, most
// frequent first.
func (ds *DataStore) ClassDistribution() ([]ClassCount, error) {
	var results []ClassCount
	err := ds.DB.Model(&Annotation{}).
		Select("label_classes.name AS name, COUNT(*) AS count").
		Joins("JOIN label_classes ON label_classes.id = annotations.category_id").
		Group("label_classes.name").
		Order("count DESC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("querying class distribution: %w", err)
	}
	return results, nil
}

// ImagesInSplit returns all images assigned to the named split.
func (ds *DataStore) ImagesInSplit(splitName string) ([]Image, error) {
	var images []Image
	err := ds.DB.Model(&Image{}).
		Joins("JOIN splits ON splits.image_id = images.id").
		Where("splits.split_name = ?", splitName).
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("querying images in split %q: %w", splitName, err)
	}
	return images, nil
}

// AnnotationsForImage returns all annotations on one image.
func (ds *DataStore) AnnotationsForImage(imageID uint) ([]Annotation, error) {
	var annotations []Annotation
	if err := ds.DB.Where("image_id = ?", imageID).Find(&annotations).Error; err != nil {
		return nil, fmt.Errorf("querying annotations for image %d: %w", imageID, err)
	}
	return annotations, nil
}

// GetLabelClass retrieves a label class by its id.
func (ds *DataStore) GetLabelClass(id uint) (LabelClass, error) {
	var class LabelClass
	if err := ds.DB.First(&class, id).Error; err != nil {
		return LabelClass{}, fmt.Errorf("getting label class %d: %w", id, err)
	}
	return class, nil
}
