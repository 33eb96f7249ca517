package datastore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annodb/annodb/internal/conf"
)

func openTestStore(t *testing.T) Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnsureDatasetVersionIsIdempotent(t *testing.T) {
	store := openTestStore(t)

	first, err := store.EnsureDatasetVersion("VOC2012", "2012-05-11")
	require.NoError(t, err)
	second, err := store.EnsureDatasetVersion("VOC2012", "2012-05-11")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnsureAnnotatorIsIdempotent(t *testing.T) {
	store := openTestStore(t)

	first, err := store.EnsureAnnotator("System", "N/A")
	require.NoError(t, err)
	second, err := store.EnsureAnnotator("System", "N/A")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolveLabelClassMergesByName(t *testing.T) {
	store := openTestStore(t)

	first, err := store.ResolveLabelClass("dog", "")
	require.NoError(t, err)
	second, err := store.ResolveLabelClass("dog", "canine")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	other, err := store.ResolveLabelClass("cat", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestReconcileLabelClassHonorsFreeSourceID(t *testing.T) {
	store := openTestStore(t)

	id, err := store.ReconcileLabelClass(42, "zebra", "animal")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	class, err := store.GetLabelClass(42)
	require.NoError(t, err)
	assert.Equal(t, "zebra", class.Name)
	assert.Equal(t, "animal", class.Description)
}

func TestReconcileLabelClassPrefersNameMatch(t *testing.T) {
	store := openTestStore(t)

	existing, err := store.ResolveLabelClass("dog", "")
	require.NoError(t, err)

	// Same name under a different source id resolves to the existing row.
	id, err := store.ReconcileLabelClass(99, "dog", "")
	require.NoError(t, err)
	assert.Equal(t, existing, id)
}

func TestReconcileLabelClassRejectsTakenID(t *testing.T) {
	store := openTestStore(t)

	_, err := store.ReconcileLabelClass(7, "horse", "")
	require.NoError(t, err)

	_, err = store.ReconcileLabelClass(7, "pony", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already maps")
}

func TestUpsertImageBackfillsDimensions(t *testing.T) {
	store := openTestStore(t)

	first := Image{FileName: "a.jpg"}
	require.NoError(t, store.UpsertImage(&first))
	require.NotZero(t, first.ID)

	second := Image{FileName: "a.jpg", Width: 640, Height: 480, Rotation: 90}
	require.NoError(t, store.UpsertImage(&second))
	assert.Equal(t, first.ID, second.ID)

	counts, err := store.TableCounts()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Images)

	var stored Image
	ds := store.(*SQLiteStore)
	require.NoError(t, ds.DB.First(&stored, first.ID).Error)
	assert.Equal(t, 640, stored.Width)
	assert.Equal(t, 480, stored.Height)
	assert.Equal(t, 90.0, stored.Rotation)
}

func TestUpsertImageKeepsStoredDimensions(t *testing.T) {
	store := openTestStore(t)

	first := Image{FileName: "a.jpg", Width: 640, Height: 480}
	require.NoError(t, store.UpsertImage(&first))

	second := Image{FileName: "a.jpg", Width: 111, Height: 222}
	require.NoError(t, store.UpsertImage(&second))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 640, second.Width)
	assert.Equal(t, 480, second.Height)
}

func TestUpsertSplitReplacesAssignment(t *testing.T) {
	store := openTestStore(t)

	image := Image{FileName: "a.jpg"}
	require.NoError(t, store.UpsertImage(&image))

	require.NoError(t, store.UpsertSplit(image.ID, "train"))
	require.NoError(t, store.UpsertSplit(image.ID, "val"))

	counts, err := store.TableCounts()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Splits)

	valImages, err := store.ImagesInSplit("val")
	require.NoError(t, err)
	require.Len(t, valImages, 1)
	assert.Equal(t, "a.jpg", valImages[0].FileName)

	trainImages, err := store.ImagesInSplit("train")
	require.NoError(t, err)
	assert.Empty(t, trainImages)
}

func TestCommitAnnotationsHappyPath(t *testing.T) {
	store := openTestStore(t)

	image := Image{FileName: "a.jpg", Width: 100, Height: 100}
	require.NoError(t, store.UpsertImage(&image))
	classID, err := store.ResolveLabelClass("dog", "")
	require.NoError(t, err)

	batch := []Annotation{
		{ImageID: image.ID, CategoryID: classID, XMin: 1, YMin: 1, XMax: 50, YMax: 50},
		{ImageID: image.ID, CategoryID: classID, XMin: 2, YMin: 2, XMax: 60, YMax: 60},
	}
	inserted, skipped, err := store.CommitAnnotations(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, skipped)

	annotations, err := store.AnnotationsForImage(image.ID)
	require.NoError(t, err)
	assert.Len(t, annotations, 2)
}

func TestCommitAnnotationsPassesOverStoredDuplicates(t *testing.T) {
	store := openTestStore(t)

	image := Image{FileName: "a.jpg", Width: 100, Height: 100}
	require.NoError(t, store.UpsertImage(&image))
	classID, err := store.ResolveLabelClass("dog", "")
	require.NoError(t, err)

	row := Annotation{ImageID: image.ID, CategoryID: classID, XMin: 1, YMin: 1, XMax: 50, YMax: 50}

	inserted, skipped, err := store.CommitAnnotations([]Annotation{row})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 0, skipped)

	// The same geometry again plus one new row: only the new row lands.
	second := row
	second.ID = 0
	other := row
	other.ID = 0
	other.XMax = 60
	inserted, skipped, err = store.CommitAnnotations([]Annotation{second, other})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 0, skipped)

	annotations, err := store.AnnotationsForImage(image.ID)
	require.NoError(t, err)
	assert.Len(t, annotations, 2)
}

func TestCommitAnnotationsIsolatesOffendingRecord(t *testing.T) {
	store := openTestStore(t)

	image := Image{FileName: "a.jpg", Width: 100, Height: 100}
	require.NoError(t, store.UpsertImage(&image))
	classID, err := store.ResolveLabelClass("dog", "")
	require.NoError(t, err)

	// The middle record violates the image foreign key.
	batch := []Annotation{
		{ImageID: image.ID, CategoryID: classID, XMin: 1, YMin: 1, XMax: 50, YMax: 50},
		{ImageID: image.ID + 1000, CategoryID: classID, XMin: 1, YMin: 1, XMax: 50, YMax: 50},
		{ImageID: image.ID, CategoryID: classID, XMin: 2, YMin: 2, XMax: 60, YMax: 60},
	}
	inserted, skipped, err := store.CommitAnnotations(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 1, skipped)

	annotations, err := store.AnnotationsForImage(image.ID)
	require.NoError(t, err)
	assert.Len(t, annotations, 2)
}

func TestClassDistribution(t *testing.T) {
	store := openTestStore(t)

	image := Image{FileName: "a.jpg"}
	require.NoError(t, store.UpsertImage(&image))
	dogID, err := store.ResolveLabelClass("dog", "")
	require.NoError(t, err)
	catID, err := store.ResolveLabelClass("cat", "")
	require.NoError(t, err)

	batch := []Annotation{
		{ImageID: image.ID, CategoryID: dogID, XMin: 1, YMin: 1, XMax: 2, YMax: 2},
		{ImageID: image.ID, CategoryID: dogID, XMin: 3, YMin: 3, XMax: 4, YMax: 4},
		{ImageID: image.ID, CategoryID: catID, XMin: 1, YMin: 1, XMax: 2, YMax: 2},
	}
	_, _, err = store.CommitAnnotations(batch)
	require.NoError(t, err)

	distribution, err := store.ClassDistribution()
	require.NoError(t, err)
	require.Len(t, distribution, 2)
	assert.Equal(t, "dog", distribution[0].Name)
	assert.Equal(t, int64(2), distribution[0].Count)
	assert.Equal(t, "cat", distribution[1].Name)
	assert.Equal(t, int64(1), distribution[1].Count)
}

func TestTableCountsEmptyDatabase(t *testing.T) {
	store := openTestStore(t)

	counts, err := store.TableCounts()
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
}
