package ingest

import (
	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/errors"
)

// Box is the canonical bounding box: absolute pixel corners.
type Box struct {
	XMin, YMin, XMax, YMax float64
}

// canonicalBox converts a raw record's coordinates to canonical corners.
// Fractional records need the image dimensions; without them the record
// cannot be normalized yet.
func canonicalBox(rec *BoxRecord, width, height int) (Box, error) {
	switch rec.Convention {
	case Corners:
		return Box{rec.X1, rec.Y1, rec.X2, rec.Y2}, nil
	case XYWH:
		return Box{rec.X1, rec.Y1, rec.X1 + rec.X2, rec.Y1 + rec.Y2}, nil
	case Fractional:
		if width <= 0 || height <= 0 {
			return Box{}, errors.Newf("image %q has no known dimensions", rec.ImageSourceID).
				Component("ingest").
				Category(errors.CategoryMissingDimensions).
				FileContext(rec.SourceFile, rec.RecordIndex).
				Build()
		}
		return Box{
			XMin: rec.X1 * float64(width),
			YMin: rec.Y1 * float64(height),
			XMax: rec.X2 * float64(width),
			YMax: rec.Y2 * float64(height),
		}, nil
	default:
		return Box{}, errors.Newf("unknown coordinate convention %d", rec.Convention).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
}

// validateBox enforces 0 <= xmin < xmax <= width and 0 <= ymin < ymax <=
// height. Under the reject policy any violation fails the record; under the
// clamp policy out-of-range coordinates are pulled into the image rectangle
// first and only boxes that degenerate afterwards fail. The upper bounds are
// unchecked when the image dimensions are unknown.
func validateBox(box Box, width, height int, policy string) (Box, bool, error) {
	clamped := false

	if policy == conf.BoundsClamp {
		clamp := func(v, lo, hi float64) float64 {
			if v < lo {
				clamped = true
				return lo
			}
			if hi > 0 && v > hi {
				clamped = true
				return hi
			}
			return v
		}
		box.XMin = clamp(box.XMin, 0, float64(width))
		box.XMax = clamp(box.XMax, 0, float64(width))
		box.YMin = clamp(box.YMin, 0, float64(height))
		box.YMax = clamp(box.YMax, 0, float64(height))
	}

	switch {
	case box.XMin < 0 || box.YMin < 0:
		return box, clamped, invalidBoxErr("negative coordinates", box)
	case width > 0 && box.XMax > float64(width):
		return box, clamped, invalidBoxErr("xmax exceeds image width", box)
	case height > 0 && box.YMax > float64(height):
		return box, clamped, invalidBoxErr("ymax exceeds image height", box)
	case box.XMin >= box.XMax || box.YMin >= box.YMax:
		return box, clamped, invalidBoxErr("degenerate box", box)
	}

	return box, clamped, nil
}

func invalidBoxErr(reason string, box Box) error {
	return errors.Newf("invalid bounding box (%.1f, %.1f, %.1f, %.1f): %s",
		box.XMin, box.YMin, box.XMax, box.YMax, reason).
		Component("ingest").
		Category(errors.CategoryValidation).
		Build()
}
