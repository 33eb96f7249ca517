// Package coco reads COCO-layout datasets: instances JSON files and split
// image directories, located by walking the dataset root the same way the
// Kaggle archives unpack them.
package coco

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/annodb/annodb/internal/errors"
	"github.com/antonholmquist/jason"
)

// Subsets in ingestion order.
var Subsets = []string{"train", "val", "test"}

// Layout maps each subset to the files found for it. Either map entry may
// be empty for a subset: annotations without image dirs are fine, image
// dirs without annotations fall back to filename scanning.
type Layout struct {
	Instances map[string]string // subset -> instances/image_info JSON path
	ImageDirs map[string]string // subset -> image directory path
}

// Category is a COCO category entry with its source-assigned id.
type Category struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// ImageEntry is one element of the images array.
type ImageEntry struct {
	ID       uint   `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// AnnEntry is one element of the annotations array. BBox is (x, y, width,
// height) in absolute pixels.
type AnnEntry struct {
	ID         uint      `json:"id"`
	ImageID    uint      `json:"image_id"`
	CategoryID uint      `json:"category_id"`
	BBox       []float64 `json:"bbox"`
}

// Meta is the small part of an instances file: the category dictionary and
// whatever the free-form info block says about the dataset release.
type Meta struct {
	Categories  []Category
	Description string
	Version     string
	Year        int64
	DateCreated string
}

// Discover walks the root looking for the standard COCO 2017 artifacts:
// train2017/val2017/test2017 image directories and
// instances_train2017.json / instances_val2017.json /
// image_info_test2017.json, wherever they are nested. Finding neither any
// JSON nor any split directory is fatal.
func Discover(root string) (*Layout, error) {
	layout := &Layout{
		Instances: make(map[string]string),
		ImageDirs: make(map[string]string),
	}

	jsonNames := map[string]string{
		"instances_train2017.json": "train",
		"instances_val2017.json":   "val",
		"image_info_test2017.json": "test",
	}
	dirNames := map[string]string{
		"train2017": "train",
		"val2017":   "val",
		"test2017":  "test",
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := strings.ToLower(d.Name())
		if d.IsDir() {
			if subset, ok := dirNames[name]; ok && layout.ImageDirs[subset] == "" {
				layout.ImageDirs[subset] = path
			}
			return nil
		}
		if subset, ok := jsonNames[name]; ok && layout.Instances[subset] == "" {
			layout.Instances[subset] = path
		}
		return nil
	})
	if err != nil {
		return nil, errors.Newf("walking %s: %w", root, err).
			Component("coco").
			Category(errors.CategorySourceNotFound).
			Build()
	}

	if len(layout.Instances) == 0 && len(layout.ImageDirs) == 0 {
		return nil, errors.Newf("no COCO annotation files or split directories under %s", root).
			Component("coco").
			Category(errors.CategorySourceNotFound).
			Context("root", root).
			Build()
	}
	return layout, nil
}

// ParseMeta reads the categories array and the info block of an instances
// file, skipping the bulk arrays token by token so the file is never fully
// resident. The schemaless info block goes through jason.
func ParseMeta(path string) (*Meta, error) {
	meta := &Meta{}
	err := scanTopLevel(path, map[string]handlerFunc{
		"categories": func(dec *json.Decoder) error {
			return eachElement(dec, func(raw json.RawMessage) error {
				var cat Category
				if err := json.Unmarshal(raw, &cat); err != nil {
					return fmt.Errorf("category entry: %w", err)
				}
				meta.Categories = append(meta.Categories, cat)
				return nil
			})
		},
		"info": func(dec *json.Decoder) error {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return err
			}
			info, err := jason.NewObjectFromBytes(raw)
			if err != nil {
				// A malformed info block costs provenance detail, nothing else.
				return nil
			}
			meta.Description, _ = info.GetString("description")
			meta.Version, _ = info.GetString("version")
			meta.Year, _ = info.GetInt64("year")
			meta.DateCreated, _ = info.GetString("date_created")
			return nil
		},
	})
	if err != nil {
		return nil, parseErr(path, err)
	}
	return meta, nil
}

// StreamEntries streams the images and annotations arrays of an instances
// file. Each element is surfaced as a raw message plus its decode error so
// the caller can apply the skip-and-count policy per record; a syntax error
// in the file itself aborts the stream.
func StreamEntries(path string, imageFn func(ImageEntry, error) error, annFn func(AnnEntry, error) error) error {
	err := scanTopLevel(path, map[string]handlerFunc{
		"images": func(dec *json.Decoder) error {
			return eachElement(dec, func(raw json.RawMessage) error {
				var entry ImageEntry
				err := json.Unmarshal(raw, &entry)
				if err == nil && (entry.ID == 0 || entry.FileName == "") {
					err = fmt.Errorf("image entry missing id or file_name")
				}
				return imageFn(entry, err)
			})
		},
		"annotations": func(dec *json.Decoder) error {
			return eachElement(dec, func(raw json.RawMessage) error {
				var entry AnnEntry
				err := json.Unmarshal(raw, &entry)
				if err == nil && len(entry.BBox) != 4 {
					err = fmt.Errorf("annotation bbox must have 4 elements, got %d", len(entry.BBox))
				}
				return annFn(entry, err)
			})
		},
	})
	if err != nil {
		return parseErr(path, err)
	}
	return nil
}

// ScanImages lists the *.jpg files of a split directory whose stems are
// numeric COCO image ids, for roots that ship images without annotation
// JSON. Dimensions are unknown on this path.
func ScanImages(dir string) ([]ImageEntry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return nil, parseErr(dir, err)
	}
	var entries []ImageEntry
	for _, p := range paths {
		stem := strings.TrimSuffix(filepath.Base(p), ".jpg")
		var id uint
		if _, err := fmt.Sscanf(stem, "%d", &id); err != nil || id == 0 {
			continue
		}
		entries = append(entries, ImageEntry{ID: id, FileName: filepath.Base(p)})
	}
	return entries, nil
}

type handlerFunc func(dec *json.Decoder) error

// scanTopLevel walks the top-level object of a JSON document, dispatching
// each key to its handler and token-skipping everything else.
func scanTopLevel(path string, handlers map[string]handlerFunc) error {
	fi, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fi.Close()

	dec := json.NewDecoder(fi)
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected top-level object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		if handler, ok := handlers[key]; ok {
			if err := handler(dec); err != nil {
				return err
			}
			continue
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	_, err = dec.Token() // closing brace
	return err
}

// eachElement streams the elements of the array the decoder is positioned
// at, one raw message at a time.
func eachElement(dec *json.Decoder, fn func(json.RawMessage) error) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected array, got %v", tok)
	}
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	_, err = dec.Token() // closing bracket
	return err
}

// skipValue consumes the next JSON value without materializing it.
func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}

func parseErr(path string, err error) error {
	return errors.Newf("reading %s: %w", path, err).
		Component("coco").
		Category(errors.CategoryFileParsing).
		FileContext(path, 0).
		Build()
}
