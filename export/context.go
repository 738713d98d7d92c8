// Package export implements the Export Driver: the top-level
// orchestrator that picks a planning mode, drives content generation,
// runs the Order Planner, walks commits through the Emitter, and
// cleans up temporary storage (spec §4.7).
package export

import (
	"io"

	"github.com/cvsfastexport/cvsfastexport/atom"
	"github.com/cvsfastexport/cvsfastexport/blobstore"
	"github.com/cvsfastexport/cvsfastexport/config"
	"github.com/cvsfastexport/cvsfastexport/mark"
	"github.com/sirupsen/logrus"
)

// smallRepoThresholdBytes is the "small repository" threshold of spec
// §4.7 ("~1 MB"), pinned to a concrete constant (see SPEC_FULL.md §4).
const smallRepoThresholdBytes = 1_000_000

// Mode is the planning mode the Export Driver selects.
type Mode int

const (
	ModeFast Mode = iota
	ModeCanonical
)

func (m Mode) String() string {
	if m == ModeCanonical {
		return "canonical"
	}
	return "fast"
}

// Stats accumulates counters over one export run, the Design Notes §9
// "export-statistics accumulator" folded into the single threaded
// Context value.
type Stats struct {
	CommitsEmitted int
	BlobsEmitted   int
	TagsEmitted    int
}

// Context is the single threaded value an export run's state lives
// in: the mark allocator, the blob store (nil in fast mode), the
// statistics accumulator, the resolved configuration, and the logger
// every component is constructed with (Design Notes §9, "Global
// mutable state ... re-express as a single Export context value
// threaded through calls").
type Context struct {
	Marks  *mark.Allocator
	Store  *blobstore.Store
	Stats  Stats
	Opts   *config.Config
	Logger *logrus.Logger
	Atoms  *atom.Table
	Out    io.Writer
}

// NewContext builds a Context; Store is left nil until SelectMode and
// the caller decide canonical mode is in play.
func NewContext(opts *config.Config, logger *logrus.Logger, out io.Writer) *Context {
	if logger == nil {
		logger = logrus.New()
	}
	return &Context{
		Marks:  mark.NewAllocator(),
		Opts:   opts,
		Logger: logger,
		Atoms:  atom.NewTable(),
		Out:    out,
	}
}

// SelectMode implements spec §4.7's mode-selection rule literally:
// canonical when an incremental cutoff is set, or when the repo is
// small; fast otherwise. This reads as the inverse of the intuitive
// choice — one might expect canonical (which buffers to disk) to be
// reserved for *large* repos — but the spec is unambiguous here and
// it is not a flagged REDESIGN or Open Question, so it is implemented
// as written (see DESIGN.md).
func SelectMode(opts *config.Config, totalSourceBytes int64) Mode {
	switch opts.ReportMode {
	case config.ReportFast:
		return ModeFast
	case config.ReportCanonical:
		return ModeCanonical
	}
	if opts.FromTime > 0 {
		return ModeCanonical
	}
	if totalSourceBytes < smallRepoThresholdBytes {
		return ModeCanonical
	}
	return ModeFast
}
