// model.go this code defines the data model for the application
package datastore

// Image represents one distinct source image. A row is created once per
// image and never mutated after insertion; the natural key is the file name.
type Image struct {
	ID       uint    `gorm:"column:id;primaryKey"`
	FileName string  `gorm:"column:file_name;uniqueIndex:idx_images_file_name;not null"`
	Width    int     `gorm:"column:width"`
	Height   int     `gorm:"column:height"`
	Rotation float64 `gorm:"column:rotation"` // clockwise degrees, Open Images only
}

// LabelClass represents an object category. Created lazily on first
// encounter of a novel class name; immutable thereafter. Names are unique
// across the whole database so re-ingestion merges by name.
type LabelClass struct {
	ID          uint   `gorm:"column:id;primaryKey"`
	Name        string `gorm:"column:name;uniqueIndex:idx_label_classes_name;not null"`
	Description string `gorm:"column:description"`
}

// DatasetVersion records which dataset release a run ingested, one row per
// distinct source ("VOC2012", "COCO 2017", ...).
type DatasetVersion struct {
	ID          uint   `gorm:"column:id;primaryKey"`
	Name        string `gorm:"column:name;uniqueIndex;not null"`
	ReleaseDate string `gorm:"column:release_date"`
}

// Annotator is the provenance row for a source; the public datasets carry no
// per-annotator identity so each source gets one system annotator.
type Annotator struct {
	ID             uint   `gorm:"column:id;primaryKey"`
	Name           string `gorm:"column:name;not null"`
	ExpertiseLevel string `gorm:"column:expertise_level"`
}

// Annotation is one object instance on one image. Box coordinates are
// canonical absolute-pixel corners regardless of the source convention.
type Annotation struct {
	ID          uint `gorm:"column:id;primaryKey"`
	ImageID     uint `gorm:"column:image_id;index:idx_annotations_image;not null"`
	CategoryID  uint `gorm:"column:category_id;index:idx_annotations_category;not null"`
	VersionID   uint `gorm:"column:version_id"`
	AnnotatorID uint `gorm:"column:annotator_id"`

	XMin float64 `gorm:"column:xmin"`
	YMin float64 `gorm:"column:ymin"`
	XMax float64 `gorm:"column:xmax"`
	YMax float64 `gorm:"column:ymax"`

	// Optional flags, present in Open Images; zero-valued elsewhere.
	IsOccluded  bool `gorm:"column:is_occluded"`
	IsTruncated bool `gorm:"column:is_truncated"`
	IsGroupOf   bool `gorm:"column:is_group_of"`
	IsDepiction bool `gorm:"column:is_depiction"`
	IsInside    bool `gorm:"column:is_inside"`

	// Segmentation mask path (VOC SegmentationClass), empty when absent.
	Segmentation string `gorm:"column:segmentation"`

	Image    *Image      `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE"`
	Category *LabelClass `gorm:"foreignKey:CategoryID"`
}

// Split associates an image with exactly one named partition. ImageID is the
// primary key so re-ingesting the same image under a different split updates
// the row instead of duplicating it.
type Split struct {
	ImageID   uint   `gorm:"column:image_id;primaryKey;index:idx_splits_split_image,priority:2"`
	SplitName string `gorm:"column:split_name;index:idx_splits_split_image,priority:1;not null"`

	Image *Image `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE"`
}

// Counts holds per-table row counts for the end-of-run summary and the
// idempotence checks.
type Counts struct {
	Images       int64
	LabelClasses int64
	Annotations  int64
	Splits       int64
}

// ClassCount is one row of the class-distribution query.
type ClassCount struct {
	Name  string
	Count int64
}
