package datastore

import (
	"time"

	"github.com/annodb/annodb/internal/errors"
	"github.com/annodb/annodb/internal/logging"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. Bulk-insert transactions routinely run hundreds of
// milliseconds, so the threshold is kept above that.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return newSlogGormLogger(logging.ForService("datastore"), DefaultSlowQueryThreshold, level)
}

// performAutoMigration runs gorm AutoMigrate for all entities. Schema
// creation is idempotent: existing tables and indices are left alone.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&Image{},
		&LabelClass{},
		&DatasetVersion{},
		&Annotator{},
		&Annotation{},
		&Split{},
	); err != nil {
		return errors.Newf("failed to auto-migrate %s database: %w", dbType, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}

	if debug {
		logging.Debug("Database schema ready", "db_type", dbType, "connection", connectionInfo)
	}
	return nil
}
