package conf

import (
	"github.com/annodb/annodb/internal/errors"
)

// ValidateSettings checks settings for values that cannot produce a working
// run. Validation failures are configuration errors and abort immediately.
func ValidateSettings(settings *Settings) error {
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.Newf("no database output enabled, enable output.sqlite or output.mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return errors.Newf("only one database output may be enabled at a time").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		return errors.Newf("output.sqlite.path must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Ingest.BatchSize <= 0 {
		return errors.Newf("ingest.batchsize must be positive, got %d", settings.Ingest.BatchSize).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	switch settings.Ingest.BoundsPolicy {
	case BoundsReject, BoundsClamp:
	default:
		return errors.Newf("ingest.boundspolicy must be %q or %q, got %q",
			BoundsReject, BoundsClamp, settings.Ingest.BoundsPolicy).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Ingest.Limit < 0 {
		return errors.Newf("ingest.limit must not be negative, got %d", settings.Ingest.Limit).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return nil
}
