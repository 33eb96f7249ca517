// Package ingest implements the normalization pipeline between the format
// readers and the datastore: category resolution, coordinate
// canonicalization, geometry validation and batched writes.
package ingest

// Convention identifies the coordinate convention a raw box record uses.
// Readers tag every record so the normalizer operates on a closed set of
// known shapes.
type Convention int

const (
	// Corners is absolute pixel corners (xmin, ymin, xmax, ymax). VOC.
	Corners Convention = iota
	// XYWH is absolute pixel origin plus size (x, y, width, height). COCO.
	XYWH
	// Fractional is corners as fractions of the image size in [0, 1].
	// Open Images.
	Fractional
)

// ImageRecord is a raw per-image record produced by a reader.
type ImageRecord struct {
	SourceID  string  // dataset-assigned identifier, unique within the source
	NumericID uint    // source-assigned integer id, 0 when the source has none
	FileName  string  // image file name or path relative to the dataset root
	Width     int     // pixel width, 0 when unknown
	Height    int     // pixel height, 0 when unknown
	Rotation  float64 // clockwise degrees, 0 when absent
	Split     string  // split membership, empty when unknown
}

// BoxRecord is a raw per-annotation record produced by a reader. The four
// coordinates are interpreted according to Convention.
type BoxRecord struct {
	ImageSourceID string // matches ImageRecord.SourceID

	CategoryName        string // human-readable class name, empty if only an id is known
	CategoryID          uint   // source-assigned category id (COCO), 0 otherwise
	CategoryDescription string

	Convention Convention
	X1, Y1     float64
	X2, Y2     float64

	IsOccluded  bool
	IsTruncated bool
	IsGroupOf   bool
	IsDepiction bool
	IsInside    bool

	Segmentation string // mask path, empty when absent

	// Error context for the skip log.
	SourceFile  string
	RecordIndex int
}
