// Package openimages reads the Open Images V7 box-annotation CSV dumps:
// class descriptions, per-subset image info (with rotation) and per-subset
// normalized bounding boxes. All files are streamed row by row.
package openimages

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/annodb/annodb/internal/errors"
)

// Subsets in ingestion order. Open Images names its middle split
// "validation", not "val".
var Subsets = []string{"train", "validation", "test"}

// ClassDescriptionsFile is the shared MID -> display-name dictionary.
const ClassDescriptionsFile = "oidv7-class-descriptions-boxable.csv"

// ImageInfo is one row of an image-info CSV. Width and Height are zero when
// the dump does not carry dimension columns; boxes for such images cannot be
// converted to pixels and are skipped downstream.
type ImageInfo struct {
	ImageID  string
	Subset   string
	URL      string
	Rotation float64
	Width    int
	Height   int
}

// BoxRow is one row of a bbox CSV. Coordinates are fractions of the image
// size in [0, 1].
type BoxRow struct {
	ImageID  string
	LabelMID string

	XMin, XMax, YMin, YMax float64

	IsOccluded  bool
	IsTruncated bool
	IsGroupOf   bool
	IsDepiction bool
	IsInside    bool

	SourceFile  string
	RecordIndex int
}

// Reader streams the CSV files of an Open Images root directory.
type Reader struct {
	root    string
	subsets []string
}

// NewReader validates that every CSV needed for the requested subsets is
// present. Any missing file is fatal: a partial box dump cannot be ingested
// meaningfully.
func NewReader(root string, subsets []string) (*Reader, error) {
	required := []string{filepath.Join(root, ClassDescriptionsFile)}
	for _, subset := range subsets {
		required = append(required,
			filepath.Join(root, boxFile(subset)),
			filepath.Join(root, imageInfoFile(subset)))
	}
	for _, path := range required {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Newf("missing required CSV: %s", path).
				Component("openimages").
				Category(errors.CategorySourceNotFound).
				Context("root", root).
				Build()
		}
	}
	return &Reader{root: root, subsets: subsets}, nil
}

func boxFile(subset string) string {
	return subset + "-annotations-bbox.csv"
}

func imageInfoFile(subset string) string {
	if subset == "train" {
		// the train dump is the "boxable" subset
		return "train-images-boxable-with-rotation.csv"
	}
	return subset + "-images-with-rotation.csv"
}

// EachClass streams the class-descriptions file: MID, display name. Rows
// whose first column is not a MID (headers, blanks) are ignored, matching
// the loosely specified file format.
func (r *Reader) EachClass(fn func(mid, displayName string)) error {
	path := filepath.Join(r.root, ClassDescriptionsFile)
	fi, err := os.Open(path)
	if err != nil {
		return openErr(path, err)
	}
	defer fi.Close()

	reader := csv.NewReader(fi)
	reader.FieldsPerRecord = -1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return parseErr(path, err)
		}
		if len(row) < 2 || !strings.HasPrefix(row[0], "/") {
			continue
		}
		fn(row[0], row[1])
	}
	return nil
}

// EachImage streams one subset's image-info file. The callback returns
// false to stop early (image-count limit). Malformed rows are passed to
// errFn with their index and skipped.
func (r *Reader) EachImage(subset string, fn func(ImageInfo) bool, errFn func(err error, file string, index int)) error {
	path := filepath.Join(r.root, imageInfoFile(subset))
	return r.eachRow(path, func(row map[string]string, index int) (bool, error) {
		info, err := parseImageInfo(row, subset)
		if err != nil {
			errFn(recordErr(path, index, err), path, index)
			return true, nil
		}
		return fn(info), nil
	})
}

// EachBox streams one subset's bbox file. Malformed rows are passed to
// errFn with their index and skipped; the stream continues.
func (r *Reader) EachBox(subset string, fn func(BoxRow) error, errFn func(err error, file string, index int)) error {
	path := filepath.Join(r.root, boxFile(subset))
	return r.eachRow(path, func(row map[string]string, index int) (bool, error) {
		box, err := parseBoxRow(row, path, index)
		if err != nil {
			errFn(recordErr(path, index, err), path, index)
			return true, nil
		}
		if err := fn(box); err != nil {
			return false, err
		}
		return true, nil
	})
}

// eachRow streams a headered CSV, handing each row to fn as a column-name
// map, the same header-index technique every flat Open Images dump needs.
func (r *Reader) eachRow(path string, fn func(row map[string]string, index int) (bool, error)) error {
	fi, err := os.Open(path)
	if err != nil {
		return openErr(path, err)
	}
	defer fi.Close()

	reader := csv.NewReader(fi)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return parseErr(path, err)
	}
	colMap := make(map[string]int, len(header))
	for i, col := range header {
		colMap[col] = i
	}

	for index := 1; ; index++ {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return parseErr(path, err)
		}
		fields := make(map[string]string, len(colMap))
		for col, i := range colMap {
			if i < len(row) {
				fields[col] = row[i]
			}
		}
		cont, err := fn(fields, index)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

func parseImageInfo(row map[string]string, subset string) (ImageInfo, error) {
	info := ImageInfo{
		ImageID: row["ImageID"],
		Subset:  subset,
	}
	if info.ImageID == "" {
		return ImageInfo{}, fmt.Errorf("missing ImageID")
	}

	// Prefer the small thumbnail URL, fall back to the original.
	info.URL = row["Thumbnail300KURL"]
	if info.URL == "" {
		info.URL = row["OriginalURL"]
	}

	if v := row["Rotation"]; v != "" {
		rotation, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return ImageInfo{}, fmt.Errorf("invalid Rotation: %w", err)
		}
		info.Rotation = rotation
	}

	// Dimension columns are present in some exports only; without them the
	// normalized boxes for this image cannot be converted.
	for col, dest := range map[string]*int{
		"ImageWidth":  &info.Width,
		"ImageHeight": &info.Height,
	} {
		if v := row[col]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return ImageInfo{}, fmt.Errorf("invalid %s: %w", col, err)
			}
			*dest = n
		}
	}

	return info, nil
}

func parseBoxRow(row map[string]string, path string, index int) (BoxRow, error) {
	box := BoxRow{
		ImageID:     row["ImageID"],
		LabelMID:    row["LabelName"],
		SourceFile:  path,
		RecordIndex: index,
	}
	if box.ImageID == "" || box.LabelMID == "" {
		return BoxRow{}, fmt.Errorf("missing ImageID or LabelName")
	}

	for col, dest := range map[string]*float64{
		"XMin": &box.XMin,
		"XMax": &box.XMax,
		"YMin": &box.YMin,
		"YMax": &box.YMax,
	} {
		v, ok := row[col]
		if !ok || v == "" {
			return BoxRow{}, fmt.Errorf("missing %s", col)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return BoxRow{}, fmt.Errorf("invalid %s: %w", col, err)
		}
		*dest = f
	}

	box.IsOccluded = flagSet(row["IsOccluded"])
	box.IsTruncated = flagSet(row["IsTruncated"])
	box.IsGroupOf = flagSet(row["IsGroupOf"])
	box.IsDepiction = flagSet(row["IsDepiction"])
	box.IsInside = flagSet(row["IsInside"])

	return box, nil
}

// flagSet parses the 1/0/-1 flag columns; -1 means unlabeled and counts as
// unset.
func flagSet(v string) bool {
	return v == "1"
}

func openErr(path string, err error) error {
	return errors.Newf("opening %s: %w", path, err).
		Component("openimages").
		Category(errors.CategorySourceNotFound).
		Build()
}

func parseErr(path string, err error) error {
	return errors.Newf("reading %s: %w", path, err).
		Component("openimages").
		Category(errors.CategoryFileParsing).
		FileContext(path, 0).
		Build()
}

func recordErr(path string, index int, err error) error {
	return errors.Newf("row %d: %w", index, err).
		Component("openimages").
		Category(errors.CategoryFileParsing).
		FileContext(path, index).
		Build()
}
