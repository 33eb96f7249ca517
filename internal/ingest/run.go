package ingest

import (
	"log/slog"

	"github.com/annodb/annodb/internal/conf"
	"github.com/annodb/annodb/internal/datastore"
	"github.com/annodb/annodb/internal/errors"
	"github.com/annodb/annodb/internal/logging"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// imageRef is what the run remembers about an ingested image: its database
// id and its dimensions, needed to normalize fractional boxes.
type imageRef struct {
	id     uint
	width  int
	height int
}

// Run is the context of one ingestion pass. All mutable state (category
// resolution, the image lookup table, pending batches, skip counters) lives
// here and is passed explicitly, never in package globals, so multiple runs
// can coexist in one process.
type Run struct {
	ID       string
	Settings *conf.Settings

	store    datastore.Interface
	log      *slog.Logger
	closeLog func() error

	// category name -> label class id, backed by the store
	categories map[string]uint
	// source-assigned category id -> label class id (COCO)
	sourceCategories map[uint]uint
	// image source id -> imageRef. The cache is safe for concurrent reads,
	// which keeps the lookup table usable if per-format ingestion is ever
	// parallelized over a shared run.
	images *cache.Cache

	pending  []datastore.Annotation
	deferred []BoxRecord

	versionID   uint
	annotatorID uint

	summary *Summary
}

// NewRun opens an ingestion run against the given store and writes the
// provenance rows for the source.
func NewRun(settings *conf.Settings, store datastore.Interface, versionName, releaseDate, annotatorName, annotatorLevel string) (*Run, error) {
	runID := uuid.New().String()

	versionID, err := store.EnsureDatasetVersion(versionName, releaseDate)
	if err != nil {
		return nil, err
	}
	annotatorID, err := store.EnsureAnnotator(annotatorName, annotatorLevel)
	if err != nil {
		return nil, err
	}

	log := logging.ForService("ingest")
	if log == nil {
		log = slog.Default()
	}
	closeLog := func() error { return nil }
	if settings.Main.Log.Enabled && settings.Main.Log.Path != "" {
		fileLogger, closeFunc, err := logging.NewFileLogger(settings.Main.Log.Path, "ingest", slog.LevelInfo)
		if err != nil {
			logging.Warn("falling back to stdout logging", "error", err, "path", settings.Main.Log.Path)
		} else {
			log = fileLogger
			closeLog = closeFunc
		}
	}

	return &Run{
		ID:               runID,
		Settings:         settings,
		store:            store,
		log:              log.With("run_id", runID),
		closeLog:         closeLog,
		categories:       make(map[string]uint),
		sourceCategories: make(map[uint]uint),
		images:           cache.New(cache.NoExpiration, 0),
		versionID:        versionID,
		annotatorID:      annotatorID,
		summary:          newSummary(runID, versionName),
	}, nil
}

// Log returns the run's logger.
func (r *Run) Log() *slog.Logger {
	return r.log
}

// CountSkip records one skipped record. Recoverable errors are logged with
// enough context to locate the bad input and never terminate the run.
func (r *Run) CountSkip(err error, sourceFile string, recordIndex int) {
	category := errors.CategoryOf(err)
	r.summary.Skipped[category]++
	r.log.Warn("record skipped",
		"error", err,
		"category", string(category),
		"file", sourceFile,
		"record_index", recordIndex)
}

// ResolveCategory returns the label class id for a name, creating the class
// on first encounter. The id is cached for the duration of the run.
func (r *Run) ResolveCategory(name, description string) (uint, error) {
	if id, ok := r.categories[name]; ok {
		return id, nil
	}
	id, err := r.store.ResolveLabelClass(name, description)
	if err != nil {
		return 0, err
	}
	r.categories[name] = id
	return id, nil
}

// RegisterCategory records a source-assigned category id (COCO) and
// reconciles it against the database. The label class row is written before
// any annotation that references it.
func (r *Run) RegisterCategory(sourceID uint, name, description string) error {
	id, err := r.store.ReconcileLabelClass(sourceID, name, description)
	if err != nil {
		return err
	}
	r.categories[name] = id
	r.sourceCategories[sourceID] = id
	return nil
}

// AddImage upserts the image and its split assignment and registers it for
// box normalization. Re-encountering a source id within the run is a no-op.
func (r *Run) AddImage(rec ImageRecord) error {
	if _, ok := r.images.Get(rec.SourceID); ok {
		return nil
	}

	image := datastore.Image{
		ID:       rec.NumericID,
		FileName: rec.FileName,
		Width:    rec.Width,
		Height:   rec.Height,
		Rotation: rec.Rotation,
	}
	if err := r.store.UpsertImage(&image); err != nil {
		return err
	}
	r.summary.ImagesWritten++

	if rec.Split != "" {
		if err := r.store.UpsertSplit(image.ID, rec.Split); err != nil {
			return err
		}
		r.summary.SplitsWritten++
	}

	r.images.Set(rec.SourceID, imageRef{id: image.ID, width: image.Width, height: image.Height}, cache.NoExpiration)
	return nil
}

// AddBox normalizes and buffers one annotation. Records whose image has not
// been seen yet, or whose image dimensions are still unknown for fractional
// coordinates, are parked for one retry after the image pass completes.
// Geometry failures are counted and skipped, never escalated.
func (r *Run) AddBox(rec BoxRecord) error {
	return r.addBox(rec, true)
}

func (r *Run) addBox(rec BoxRecord, allowDefer bool) error {
	ref, ok := r.lookupImage(rec.ImageSourceID)
	if !ok {
		if allowDefer {
			r.deferred = append(r.deferred, rec)
			return nil
		}
		r.CountSkip(errors.Newf("box references unknown image %q", rec.ImageSourceID).
			Component("ingest").
			Category(errors.CategoryMissingDimensions).
			Build(), rec.SourceFile, rec.RecordIndex)
		return nil
	}

	if rec.Convention == Fractional && (ref.width <= 0 || ref.height <= 0) && allowDefer {
		r.deferred = append(r.deferred, rec)
		return nil
	}

	categoryID, err := r.resolveBoxCategory(&rec)
	if err != nil {
		if errors.IsFatal(err) {
			return err
		}
		r.CountSkip(err, rec.SourceFile, rec.RecordIndex)
		return nil
	}

	box, err := canonicalBox(&rec, ref.width, ref.height)
	if err != nil {
		r.CountSkip(err, rec.SourceFile, rec.RecordIndex)
		return nil
	}

	box, clamped, err := validateBox(box, ref.width, ref.height, r.Settings.Ingest.BoundsPolicy)
	if err != nil {
		r.CountSkip(err, rec.SourceFile, rec.RecordIndex)
		return nil
	}
	if clamped {
		r.summary.BoxesClamped++
		r.log.Warn("bounding box clamped to image bounds",
			"file", rec.SourceFile,
			"record_index", rec.RecordIndex,
			"image", rec.ImageSourceID)
	}

	r.pending = append(r.pending, datastore.Annotation{
		ImageID:      ref.id,
		CategoryID:   categoryID,
		VersionID:    r.versionID,
		AnnotatorID:  r.annotatorID,
		XMin:         box.XMin,
		YMin:         box.YMin,
		XMax:         box.XMax,
		YMax:         box.YMax,
		IsOccluded:   rec.IsOccluded,
		IsTruncated:  rec.IsTruncated,
		IsGroupOf:    rec.IsGroupOf,
		IsDepiction:  rec.IsDepiction,
		IsInside:     rec.IsInside,
		Segmentation: rec.Segmentation,
	})

	if len(r.pending) >= r.Settings.Ingest.BatchSize {
		return r.flush()
	}
	return nil
}

// resolveBoxCategory maps a box record to a label class id, preferring the
// source-assigned id map when the record carries one.
func (r *Run) resolveBoxCategory(rec *BoxRecord) (uint, error) {
	if rec.CategoryID != 0 {
		if id, ok := r.sourceCategories[rec.CategoryID]; ok {
			return id, nil
		}
		if rec.CategoryName == "" {
			return 0, errors.Newf("box references unregistered category id %d", rec.CategoryID).
				Component("ingest").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	if rec.CategoryName == "" {
		return 0, errors.Newf("box carries no category").
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	return r.ResolveCategory(rec.CategoryName, rec.CategoryDescription)
}

// HasImage reports whether the run has ingested an image with this source
// id. Used to drop box rows for images excluded by an image-count limit
// without counting them as errors.
func (r *Run) HasImage(sourceID string) bool {
	_, ok := r.images.Get(sourceID)
	return ok
}

func (r *Run) lookupImage(sourceID string) (imageRef, bool) {
	v, ok := r.images.Get(sourceID)
	if !ok {
		return imageRef{}, false
	}
	return v.(imageRef), true
}

// flush commits the pending batch. Constraint violations are isolated by the
// store and come back as a skip count.
func (r *Run) flush() error {
	if len(r.pending) == 0 {
		return nil
	}
	inserted, skipped, err := r.store.CommitAnnotations(r.pending)
	r.pending = r.pending[:0]
	if err != nil {
		return err
	}
	r.summary.AnnotationsWritten += inserted
	if skipped > 0 {
		r.summary.Skipped[errors.CategoryConstraint] += skipped
		r.log.Warn("records rejected by database constraints", "count", skipped)
	}
	return nil
}

// Finish retries the deferred records once, flushes the final batch and
// gathers the end-of-run counts.
func (r *Run) Finish() (*Summary, error) {
	defer func() { _ = r.closeLog() }()

	deferred := r.deferred
	r.deferred = nil
	for i := range deferred {
		if err := r.addBox(deferred[i], false); err != nil {
			return nil, err
		}
	}

	if err := r.flush(); err != nil {
		return nil, err
	}

	counts, err := r.store.TableCounts()
	if err != nil {
		return nil, err
	}
	r.summary.Counts = counts
	r.summary.Log(r.log)
	return r.summary, nil
}
