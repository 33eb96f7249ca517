package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/errors"
)

func TestCanonicalBoxCorners(t *testing.T) {
	rec := &BoxRecord{Convention: Corners, X1: 10, Y1: 20, X2: 110, Y2: 220}

	box, err := canonicalBox(rec, 640, 480)
	require.NoError(t, err)
	assert.Equal(t, Box{XMin: 10, YMin: 20, XMax: 110, YMax: 220}, box)
}

func TestCanonicalBoxXYWH(t *testing.T) {
	rec := &BoxRecord{Convention: XYWH, X1: 10, Y1: 20, X2: 100, Y2: 200}

	box, err := canonicalBox(rec, 640, 480)
	require.NoError(t, err)
	assert.Equal(t, Box{XMin: 10, YMin: 20, XMax: 110, YMax: 220}, box)
}

func TestCanonicalBoxFractional(t *testing.T) {
	rec := &BoxRecord{Convention: Fractional, X1: 0.25, Y1: 0.5, X2: 0.75, Y2: 1.0}

	box, err := canonicalBox(rec, 640, 480)
	require.NoError(t, err)
	assert.Equal(t, Box{XMin: 160, YMin: 240, XMax: 480, YMax: 480}, box)
}

func TestCanonicalBoxFractionalWithoutDimensions(t *testing.T) {
	rec := &BoxRecord{Convention: Fractional, X1: 0.25, Y1: 0.5, X2: 0.75, Y2: 1.0}

	_, err := canonicalBox(rec, 0, 0)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryMissingDimensions, errors.CategoryOf(err))
}

func TestValidateBoxReject(t *testing.T) {
	tests := []struct {
		name    string
		box     Box
		wantErr bool
	}{
		{"inside bounds", Box{10, 10, 100, 100}, false},
		{"touching bounds", Box{0, 0, 640, 480}, false},
		{"negative xmin", Box{-1, 10, 100, 100}, true},
		{"negative ymin", Box{10, -1, 100, 100}, true},
		{"xmax beyond width", Box{10, 10, 641, 100}, true},
		{"ymax beyond height", Box{10, 10, 100, 481}, true},
		{"zero width box", Box{50, 10, 50, 100}, true},
		{"inverted corners", Box{100, 10, 50, 100}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, clamped, err := validateBox(tt.box, 640, 480, conf.BoundsReject)
			assert.False(t, clamped)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateBoxClampPullsIntoBounds(t *testing.T) {
	box, clamped, err := validateBox(Box{-5, 10, 700, 100}, 640, 480, conf.BoundsClamp)
	require.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, Box{0, 10, 640, 100}, box)
}

func TestValidateBoxClampRejectsDegenerate(t *testing.T) {
	// Entirely outside the image: clamping collapses it to a line.
	_, clamped, err := validateBox(Box{700, 10, 800, 100}, 640, 480, conf.BoundsClamp)
	require.Error(t, err)
	assert.True(t, clamped)
	assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))
}

func TestValidateBoxClampLeavesValidBoxAlone(t *testing.T) {
	box, clamped, err := validateBox(Box{10, 10, 100, 100}, 640, 480, conf.BoundsClamp)
	require.NoError(t, err)
	assert.False(t, clamped)
	assert.Equal(t, Box{10, 10, 100, 100}, box)
}

func TestValidateBoxUnknownDimensionsSkipsUpperBound(t *testing.T) {
	_, _, err := validateBox(Box{10, 10, 5000, 5000}, 0, 0, conf.BoundsReject)
	require.NoError(t, err)
}
