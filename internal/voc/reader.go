// Package voc reads PASCAL VOC dataset trees: per-image XML annotation
// files, ImageSets split lists and SegmentationClass masks.
package voc

import (
	"bufio"
	"encoding/xml"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/annodb/annodb/internal/errors"
)

// Classes are the canonical VOC object classes, seeded up front so their ids
// are stable. Unseen class names are still created lazily.
var Classes = []string{
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair",
	"cow", "diningtable", "dog", "horse", "motorbike", "person", "pottedplant",
	"sheep", "sofa", "train", "tvmonitor",
}

// Object is one annotated object instance in a VOC annotation file.
type Object struct {
	Name                           string
	XMin, YMin, XMax, YMax         float64
	Difficult, Occluded, Truncated bool
}

// Document is the typed content of one Annotations/*.xml file.
type Document struct {
	Filename string
	Width    int
	Height   int
	Objects  []Object
}

// Reader walks a VOC dataset root (the directory containing Annotations/,
// JPEGImages/ and ImageSets/).
type Reader struct {
	root string
}

// NewReader validates the expected VOC directory structure. A missing
// Annotations/ or JPEGImages/ directory is fatal: no useful partial work is
// possible without them.
func NewReader(root string) (*Reader, error) {
	for _, sub := range []string{"Annotations", "JPEGImages"} {
		dir := filepath.Join(root, sub)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, errors.Newf("VOC structure not found: missing %s", dir).
				Component("voc").
				Category(errors.CategorySourceNotFound).
				Context("root", root).
				Build()
		}
	}
	return &Reader{root: root}, nil
}

// AnnotationFiles returns the sorted list of annotation XML files.
func (r *Reader) AnnotationFiles() ([]string, error) {
	pattern := filepath.Join(r.root, "Annotations", "*.xml")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Newf("listing %s: %w", pattern, err).
			Component("voc").
			Category(errors.CategorySourceNotFound).
			Build()
	}
	sort.Strings(files)
	return files, nil
}

// ParseAnnotation decodes one annotation file into a typed document. The
// XML shape is mapped to Go types right here so downstream stages never see
// raw tree nodes.
func (r *Reader) ParseAnnotation(path string) (*Document, error) {
	fi, err := os.Open(path)
	if err != nil {
		return nil, errors.Newf("opening %s: %w", path, err).
			Component("voc").
			Category(errors.CategoryFileParsing).
			Build()
	}
	defer fi.Close()

	var data struct {
		XMLName  xml.Name `xml:"annotation"`
		Filename string   `xml:"filename"`
		Size     struct {
			Width  int `xml:"width"`
			Height int `xml:"height"`
		} `xml:"size"`
		Objects []struct {
			Name   string `xml:"name"`
			BndBox struct {
				XMin float64 `xml:"xmin"`
				YMin float64 `xml:"ymin"`
				XMax float64 `xml:"xmax"`
				YMax float64 `xml:"ymax"`
			} `xml:"bndbox"`
			Difficult *int `xml:"difficult"`
			Occluded  *int `xml:"occluded"`
			Truncated *int `xml:"truncated"`
		} `xml:"object"`
	}
	if err := xml.NewDecoder(fi).Decode(&data); err != nil {
		return nil, errors.Newf("parsing %s: %w", path, err).
			Component("voc").
			Category(errors.CategoryFileParsing).
			FileContext(path, 0).
			Build()
	}

	doc := &Document{
		Filename: data.Filename,
		Width:    data.Size.Width,
		Height:   data.Size.Height,
		Objects:  make([]Object, len(data.Objects)),
	}
	// Some VOC XMLs omit the filename element.
	if doc.Filename == "" {
		doc.Filename = strings.TrimSuffix(filepath.Base(path), ".xml") + ".jpg"
	}
	for i, raw := range data.Objects {
		doc.Objects[i] = Object{
			Name:      strings.TrimSpace(raw.Name),
			XMin:      raw.BndBox.XMin,
			YMin:      raw.BndBox.YMin,
			XMax:      raw.BndBox.XMax,
			YMax:      raw.BndBox.YMax,
			Difficult: intPtrSet(raw.Difficult),
			Occluded:  intPtrSet(raw.Occluded),
			Truncated: intPtrSet(raw.Truncated),
		}
	}
	return doc, nil
}

// SplitSets reads ImageSets/Main/{trainval,train,val,test}.txt and returns
// image stem -> split name. An image listed in several sets keeps the most
// specific one: trainval is overridden by train and val, which are
// overridden by test.
func (r *Reader) SplitSets() map[string]string {
	splits := make(map[string]string)
	for _, name := range []string{"trainval", "train", "val", "test"} {
		path := filepath.Join(r.root, "ImageSets", "Main", name+".txt")
		for _, stem := range readSplitFile(path) {
			splits[stem] = name
		}
	}
	return splits
}

// MaskPath returns the SegmentationClass mask path for an image stem, or the
// empty string when no mask exists.
func (r *Reader) MaskPath(stem string) string {
	path := filepath.Join(r.root, "SegmentationClass", stem+".png")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// readSplitFile returns the image stems listed in one ImageSets file. The
// per-class variants carry a "stem label" pair per line; only the stem is
// relevant. A missing file is simply an absent split.
func readSplitFile(path string) []string {
	fi, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer fi.Close()

	var stems []string
	scanner := bufio.NewScanner(fi)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		stems = append(stems, fields[0])
	}
	return stems
}

func intPtrSet(x *int) bool {
	return x != nil && *x != 0
}
