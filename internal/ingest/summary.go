package ingest

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/annodb/annodb/internal/datastore"
	"github.com/annodb/annodb/internal/errors"
)

// Summary aggregates what one ingestion run did, including per-category
// skip counts. Recoverable errors never abort a run; they end up here.
type Summary struct {
	RunID  string
	Source string

	ImagesWritten      int
	AnnotationsWritten int
	SplitsWritten      int
	BoxesClamped       int

	Skipped map[errors.ErrorCategory]int

	// Row counts of the destination database after the run.
	Counts datastore.Counts
}

func newSummary(runID, source string) *Summary {
	return &Summary{
		RunID:   runID,
		Source:  source,
		Skipped: make(map[errors.ErrorCategory]int),
	}
}

// TotalSkipped returns the number of records skipped for any reason.
func (s *Summary) TotalSkipped() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

// Log writes the summary through the structured logger. The run logger
// already carries the run id, so it is not repeated here.
func (s *Summary) Log(log *slog.Logger) {
	args := []any{
		"source", s.Source,
		"images", s.ImagesWritten,
		"annotations", s.AnnotationsWritten,
		"splits", s.SplitsWritten,
		"clamped", s.BoxesClamped,
		"skipped", s.TotalSkipped(),
	}
	for category, n := range s.Skipped {
		args = append(args, "skipped_"+string(category), n)
	}
	log.Info("ingestion finished", args...)
}

// String renders the human-readable end-of-run report.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ingestion complete\n", s.Source)
	fmt.Fprintf(&b, "  images:      %d\n", s.ImagesWritten)
	fmt.Fprintf(&b, "  annotations: %d\n", s.AnnotationsWritten)
	fmt.Fprintf(&b, "  splits:      %d\n", s.SplitsWritten)
	if s.BoxesClamped > 0 {
		fmt.Fprintf(&b, "  clamped:     %d\n", s.BoxesClamped)
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(&b, "  skipped:     %d\n", s.TotalSkipped())
		categories := make([]string, 0, len(s.Skipped))
		for category := range s.Skipped {
			categories = append(categories, string(category))
		}
		sort.Strings(categories)
		for _, category := range categories {
			fmt.Fprintf(&b, "    %-20s %d\n", category, s.Skipped[errors.ErrorCategory(category)])
		}
	}
	fmt.Fprintf(&b, "  database:    %d images, %d classes, %d annotations, %d splits\n",
		s.Counts.Images, s.Counts.LabelClasses, s.Counts.Annotations, s.Counts.Splits)
	return b.String()
}
