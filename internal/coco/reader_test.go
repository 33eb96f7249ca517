package coco

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annodb/annodb/internal/errors"
)

const sampleInstances = `{
	"info": {
		"description": "COCO 2017 Dataset",
		"version": "1.0",
		"year": 2017,
		"date_created": "2017/09/01"
	},
	"images": [
		{"id": 397133, "file_name": "000000397133.jpg", "width": 640, "height": 427},
		{"id": 37777, "file_name": "000000037777.jpg", "width": 352, "height": 230}
	],
	"annotations": [
		{"id": 1768, "image_id": 397133, "category_id": 1, "bbox": [73.35, 206.02, 300.58, 220.7]},
		{"id": 1769, "image_id": 37777, "category_id": 18, "bbox": [10, 10, 50, 50]}
	],
	"categories": [
		{"id": 1, "name": "person", "supercategory": "person"},
		{"id": 18, "name": "dog", "supercategory": "animal"}
	]
}`

func writeCOCORoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	annotations := filepath.Join(root, "annotations")
	require.NoError(t, os.MkdirAll(annotations, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "train2017"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(annotations, "instances_train2017.json"), []byte(sampleInstances), 0o644))
	return root
}

func TestDiscoverFindsNestedArtifacts(t *testing.T) {
	root := writeCOCORoot(t)

	layout, err := Discover(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "annotations", "instances_train2017.json"),
		layout.Instances["train"])
	assert.Equal(t, filepath.Join(root, "train2017"), layout.ImageDirs["train"])
	assert.Empty(t, layout.Instances["val"])
}

func TestDiscoverEmptyRootIsFatal(t *testing.T) {
	_, err := Discover(t.TempDir())
	require.Error(t, err)
	assert.Equal(t, errors.CategorySourceNotFound, errors.CategoryOf(err))
	assert.True(t, errors.IsFatal(err))
}

func TestParseMeta(t *testing.T) {
	root := writeCOCORoot(t)
	path := filepath.Join(root, "annotations", "instances_train2017.json")

	meta, err := ParseMeta(path)
	require.NoError(t, err)

	require.Len(t, meta.Categories, 2)
	assert.Equal(t, uint(1), meta.Categories[0].ID)
	assert.Equal(t, "person", meta.Categories[0].Name)
	assert.Equal(t, "animal", meta.Categories[1].Supercategory)

	assert.Equal(t, "COCO 2017 Dataset", meta.Description)
	assert.Equal(t, "1.0", meta.Version)
	assert.Equal(t, int64(2017), meta.Year)
}

func TestStreamEntries(t *testing.T) {
	root := writeCOCORoot(t)
	path := filepath.Join(root, "annotations", "instances_train2017.json")

	var images []ImageEntry
	var anns []AnnEntry
	err := StreamEntries(path,
		func(entry ImageEntry, err error) error {
			require.NoError(t, err)
			images = append(images, entry)
			return nil
		},
		func(entry AnnEntry, err error) error {
			require.NoError(t, err)
			anns = append(anns, entry)
			return nil
		})
	require.NoError(t, err)

	require.Len(t, images, 2)
	assert.Equal(t, uint(397133), images[0].ID)
	assert.Equal(t, "000000397133.jpg", images[0].FileName)
	assert.Equal(t, 640, images[0].Width)

	require.Len(t, anns, 2)
	assert.Equal(t, uint(397133), anns[0].ImageID)
	assert.Equal(t, uint(1), anns[0].CategoryID)
	assert.InDelta(t, 73.35, anns[0].BBox[0], 1e-9)
}

func TestStreamEntriesSurfacesBadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances_val2017.json")
	content := `{
		"images": [
			{"id": 1, "file_name": "1.jpg", "width": 10, "height": 10},
			{"id": 2, "width": 10, "height": 10}
		],
		"annotations": [
			{"id": 5, "image_id": 1, "category_id": 1, "bbox": [1, 2, 3]}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	good, bad := 0, 0
	err := StreamEntries(path,
		func(entry ImageEntry, err error) error {
			if err != nil {
				bad++
				return nil
			}
			good++
			return nil
		},
		func(entry AnnEntry, err error) error {
			if err != nil {
				bad++
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, good)
	assert.Equal(t, 2, bad)
}

func TestStreamEntriesMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances_train2017.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"images": [`), 0o644))

	err := StreamEntries(path,
		func(ImageEntry, error) error { return nil },
		func(AnnEntry, error) error { return nil })
	require.Error(t, err)
	assert.Equal(t, errors.CategoryFileParsing, errors.CategoryOf(err))
}

func TestScanImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000000000139.jpg", "000000000285.jpg", "notes.txt", "cover.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	entries, err := ScanImages(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint(139), entries[0].ID)
	assert.Equal(t, "000000000139.jpg", entries[0].FileName)
}
