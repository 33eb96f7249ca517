package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	err := Newf("something failed").Build()

	assert.Equal(t, "unknown", err.Component)
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.Equal(t, "something failed", err.Error())
	assert.False(t, err.Timestamp.IsZero())
}

func TestBuilderCarriesContext(t *testing.T) {
	err := Newf("bad record").
		Component("voc").
		Category(CategoryFileParsing).
		FileContext("/data/Annotations/a.xml", 7).
		Context("field", "bndbox").
		Build()

	assert.Equal(t, "voc", err.Component)
	assert.Equal(t, CategoryFileParsing, err.Category)

	context := err.GetContext()
	assert.Equal(t, "/data/Annotations/a.xml", context["file"])
	assert.Equal(t, 7, context["record_index"])
	assert.Equal(t, "bndbox", context["field"])

	// GetContext hands out a copy.
	context["field"] = "mutated"
	assert.Equal(t, "bndbox", err.GetContext()["field"])
}

func TestCategoryOfWalksWrapChain(t *testing.T) {
	inner := Newf("no dimensions").Category(CategoryMissingDimensions).Build()
	wrapped := fmt.Errorf("processing row: %w", inner)

	assert.Equal(t, CategoryMissingDimensions, CategoryOf(wrapped))
	assert.Equal(t, CategoryGeneric, CategoryOf(fmt.Errorf("plain")))
	assert.Equal(t, CategoryGeneric, CategoryOf(nil))
}

func TestIsFatal(t *testing.T) {
	fatal := []ErrorCategory{CategorySourceNotFound, CategoryDatabase, CategoryConfiguration}
	for _, category := range fatal {
		err := Newf("boom").Category(category).Build()
		assert.True(t, IsFatal(err), string(category))
	}

	recoverable := []ErrorCategory{
		CategoryFileParsing, CategoryValidation, CategoryMissingDimensions,
		CategoryConstraint, CategoryGeneric,
	}
	for _, category := range recoverable {
		err := Newf("boom").Category(category).Build()
		assert.False(t, IsFatal(err), string(category))
	}
}

func TestUnwrapPreservesOriginal(t *testing.T) {
	original := fmt.Errorf("root cause")
	err := New(original).Category(CategoryValidation).Build()

	require.ErrorIs(t, err, original)
}
