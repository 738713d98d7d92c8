package export

import (
	"fmt"
	"os"
	"time"

	"github.com/cvsfastexport/cvsfastexport/blobstore"
	"github.com/cvsfastexport/cvsfastexport/dag"
	"github.com/cvsfastexport/cvsfastexport/emitter"
	"github.com/cvsfastexport/cvsfastexport/fileops"
	"github.com/cvsfastexport/cvsfastexport/mark"
	"github.com/cvsfastexport/cvsfastexport/oracle"
	"github.com/cvsfastexport/cvsfastexport/planner"
)

// Driver runs one export: mode selection, content generation, commit
// emission, cleanup.
type Driver struct {
	ctx     *Context
	revMap  *os.File
	authors dag.AuthorDictionary
}

// NewDriver returns a Driver using ctx. authors may be nil.
func NewDriver(ctx *Context, authors dag.AuthorDictionary) *Driver {
	return &Driver{ctx: ctx, authors: authors}
}

// Run drives the whole export over handle: mode selection, content
// generation, ordering, emission, and temp-storage cleanup (spec
// §4.7).
func (d *Driver) Run(handle dag.Handle) error {
	mode := SelectMode(d.ctx.Opts, handle.TotalSourceBytes())
	d.ctx.Logger.Infof("export mode: %s", mode)

	d.warnClockSkew(handle)

	if mode == ModeCanonical {
		parent := os.TempDir()
		if t := os.Getenv("TMPDIR"); t != "" {
			parent = t
		}
		store, err := blobstore.NewStore(parent)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		d.ctx.Store = store
		defer func() {
			if err := d.ctx.Store.DestroyAll(); err != nil {
				d.ctx.Logger.Warnf("blob store cleanup: %v", err)
			}
		}()
	}

	if err := d.openRevisionMapSink(); err != nil {
		return err
	}
	if d.revMap != nil {
		defer d.revMap.Close()
	}

	em := emitter.New(d.ctx.Out, d.ctx.Marks, d.ctx.Opts, d.ctx.Logger, d.ctx.Store, d.revMap)

	if err := d.generateContent(handle, mode, em); err != nil {
		return err
	}

	var plan *planner.Plan
	if mode == ModeFast {
		plan = planner.Fast(handle.BranchHeads())
	} else {
		plan = planner.Canonical(handle.BranchHeads(), d.ctx.Logger)
	}

	lastMark, err := d.emitPlan(plan, em)
	if err != nil {
		return err
	}
	if err := d.emitTagsAndResets(handle, lastMark, em); err != nil {
		return err
	}
	if err := d.WriteGraph(plan); err != nil {
		return err
	}
	if err := em.Done(); err != nil {
		return err
	}
	return em.Flush()
}

func (d *Driver) warnClockSkew(handle dag.Handle) {
	skew := handle.SkewVulnerableTimestamp()
	if skew > 0 && handle.TotalRevisions() > 1 && !d.ctx.Opts.ForceDates {
		d.ctx.Logger.Warnf("clock skew vulnerability: earliest affected date %s",
			time.Unix(skew, 0).UTC().Format(time.RFC3339))
	}
}

func (d *Driver) openRevisionMapSink() error {
	if d.ctx.Opts.RevisionMap == "" {
		return nil
	}
	f, err := os.Create(d.ctx.Opts.RevisionMap)
	if err != nil {
		return fmt.Errorf("export: revision_map: %w", err)
	}
	d.revMap = f
	return nil
}

// generateContent drives every ContentGenerator, writing blobs inline
// (fast mode) or spilling them to the Blob Store (canonical mode).
func (d *Driver) generateContent(handle dag.Handle, mode Mode, em *emitter.Emitter) error {
	for _, gen := range handle.Generators() {
		master := gen.Master()
		err := gen.Generate(func(rev *dag.FileRevision, payload []byte) error {
			d.ctx.Stats.BlobsEmitted++
			if mode == ModeFast {
				return em.EmitInlineBlob(rev, payload)
			}
			isIgnore := fileops.IsCVSIgnoreMaster(master.Name())
			return d.ctx.Store.Write(rev.Serial, isIgnore, payload)
		})
		if err != nil {
			return fmt.Errorf("export: generating content for %q: %w", master.Name(), err)
		}
	}
	return nil
}

// emitPlan walks the planned commit sequence as one true global
// order, running the Parent-Link Oracle and File-Operation Builder
// ahead of each Emitter call. A commit's "from" mark is always looked
// up from its own Parent's bound mark rather than from "whatever was
// emitted previously on this branch" — branch membership travels with
// each planner.PlannedCommit and never depends on index ranges into
// the (possibly Phase-B-reordered) commit slice. It returns, per
// branch Ref, the mark of the last commit actually emitted on it, for
// emitTagsAndResets to use for the final branch reset record.
func (d *Driver) emitPlan(plan *planner.Plan, em *emitter.Emitter) (map[*dag.Ref]mark.Mark, error) {
	builder := fileops.NewBuilder()
	cutoff := d.ctx.Opts.FromTime
	firstSurviving := make(map[*dag.Ref]bool)
	lastMark := make(map[*dag.Ref]mark.Mark)

	for _, pc := range plan.Commits {
		c, ref := pc.Commit, pc.Ref
		oracle.Link(c, c.Parent)

		if cutoff > 0 && c.Timestamp <= cutoff {
			continue // suppressed: linked above for the next surviving commit's oracle pass, never emitted
		}

		ops := builder.Build(c, c.Parent)

		anchorRef := ""
		hasParent := false
		var parentMark mark.Mark
		parentSuppressed := cutoff > 0 && c.Parent != nil && c.Parent.Timestamp <= cutoff

		switch {
		case !firstSurviving[ref] && parentSuppressed:
			// incremental mode's synthetic anchor (spec §4.6
			// "Incremental mode"): this Ref's first surviving commit
			// had its real parent suppressed by the cutoff.
			anchorRef = fmt.Sprintf("%s%s^0", d.ctx.Opts.BranchPrefix, ref.Name)
		case c.Parent != nil:
			m, ok := d.ctx.Marks.MarkOf(mark.Serial(c.Parent.Serial))
			if !ok {
				return nil, fmt.Errorf("export: parent of commit serial %d has no mark at emission time", c.Serial)
			}
			hasParent = true
			parentMark = m
		}

		m, err := em.EmitCommit(emitter.CommitParams{
			Commit:        c,
			Ops:           ops,
			BranchRef:     ref.Name,
			ParentMark:    parentMark,
			HasParent:     hasParent,
			AnchorRef:     anchorRef,
			IsFirstCommit: d.ctx.Stats.CommitsEmitted == 0,
			Authors:       d.authors,
		})
		if err != nil {
			return nil, fmt.Errorf("export: emitting commit: %w", err)
		}
		d.ctx.Stats.CommitsEmitted++
		firstSurviving[ref] = true
		lastMark[ref] = m
	}
	return lastMark, nil
}

func (d *Driver) emitTagsAndResets(handle dag.Handle, lastMark map[*dag.Ref]mark.Mark, em *emitter.Emitter) error {
	cutoff := d.ctx.Opts.FromTime
	for _, tag := range handle.Tags() {
		if tag.Target == nil {
			continue
		}
		if cutoff > 0 && tag.Target.Timestamp <= cutoff {
			continue
		}
		m, ok := d.ctx.Marks.MarkOf(mark.Serial(tag.Target.Serial))
		if !ok {
			continue // target never emitted (suppressed or never reached)
		}
		d.ctx.Stats.TagsEmitted++
		if err := em.EmitTagReset(tag.Name, m); err != nil {
			return fmt.Errorf("export: tag %q: %w", tag.Name, err)
		}
	}

	for _, ref := range handle.BranchHeads() {
		if ref.Tail {
			continue
		}
		m, ok := lastMark[ref]
		if !ok {
			continue // branch produced no surviving commits
		}
		if err := em.EmitBranchReset(ref.Name, m); err != nil {
			return fmt.Errorf("export: branch %q: %w", ref.Name, err)
		}
	}
	return nil
}

// ExportAuthors runs only Order Planner Phase A and returns the
// unique author keys, preserving first-seen order (spec §4.7,
// "A secondary entry point export_authors").
func ExportAuthors(handle dag.Handle) []string {
	plan := planner.Fast(handle.BranchHeads())
	seen := make(map[string]bool)
	var out []string
	for _, pc := range plan.Commits {
		if !seen[pc.Commit.Author] {
			seen[pc.Commit.Author] = true
			out = append(out, pc.Commit.Author)
		}
	}
	return out
}
