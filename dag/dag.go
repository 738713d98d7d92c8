// Package dag holds the merged CVS revision DAG handed to the export
// engine: FileRevisions grouped into Commits, Commits chained into
// per-branch Refs, and the Tags that point at them (spec §3).
package dag

import (
	"sort"

	"github.com/cvsfastexport/cvsfastexport/atom"
)

// FileRevision is an immutable snapshot of one versioned file at one
// CVS revision.
type FileRevision struct {
	Master *atom.Atom // interned master name
	Mode   uint32     // POSIX mode bits, before the 0644/0755 clamp
	Rev    string     // dotted revision number, e.g. "1.4"
	Serial int64

	// ParentLink is populated per-commit by the Parent-Link Oracle: a
	// reciprocal reference into the parent commit's matching
	// FileRevision, or nil. Mutated only by oracle.Link.
	ParentLink *FileRevision

	// Emitted is used only in canonical mode, to avoid writing the
	// same blob twice when a revision is referenced by more than one
	// commit along a chain. Mutated only by the Emitter.
	Emitted bool
}

// Ref is the head of one per-branch commit chain.
type Ref struct {
	Name string
	Head *Commit
	Tail bool // set when this chain was produced by grafting and must not be re-emitted
	Next *Ref
}

// Commit is a node in the merged DAG.
type Commit struct {
	Author    string
	Log       string
	Timestamp int64 // seconds since RCS_EPOCH (treated as 0, see SPEC_FULL.md §4)
	Parent    *Commit
	Serial    int64

	// Bloom summarizes every FileRevision reachable in this commit, by
	// interned master name. Built once at DAG-construction time from
	// buckets and never mutated afterward.
	Bloom *atom.Bloom

	buckets []*bucket
}

// Tag pairs a name with the Commit it targets.
type Tag struct {
	Name   string
	Target *Commit
}

// NewCommit returns a Commit with its directory buckets and Bloom
// filter built from revs, in the order given. Buckets are grouped by
// the directory portion of each revision's master name, preserving
// first-seen order both across and within buckets, mirroring the
// teacher's Node.AddSubFile "append if not already present, preserve
// insertion order" idiom.
func NewCommit(author, log string, timestamp int64, parent *Commit, serial int64, revs []*FileRevision) *Commit {
	c := &Commit{
		Author:    author,
		Log:       log,
		Timestamp: timestamp,
		Parent:    parent,
		Serial:    serial,
		Bloom:     atom.NewBloom(),
	}
	for _, r := range revs {
		c.addRevision(r)
		c.Bloom.Add(r.Master)
	}
	return c
}

func (c *Commit) addRevision(r *FileRevision) {
	dir := directoryOf(r.Master.Name())
	for _, b := range c.buckets {
		if b.dir == dir {
			b.add(r)
			return
		}
	}
	nb := newBucket(dir)
	nb.add(r)
	c.buckets = append(c.buckets, nb)
}

// FileRevisions returns the single flattened view of every
// FileRevision in the commit (Design Notes §9, "Iterator over
// directory-of-file collections" — the two-level bucket structure is
// never exposed beyond this package), sorted by each revision's master
// atom id. That id is assigned once at interning time and never
// changes, so this order is the same for any two commits regardless of
// the order revs happened to be passed into NewCommit — a requirement
// the Parent-Link Oracle's single monotonic cursor pass depends on
// (see oracle.Link).
func (c *Commit) FileRevisions() []*FileRevision {
	total := 0
	for _, b := range c.buckets {
		total += len(b.revs)
	}
	out := make([]*FileRevision, 0, total)
	for _, b := range c.buckets {
		out = append(out, b.revs...)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Master.ID() < out[j].Master.ID()
	})
	return out
}

// Len reports the number of FileRevisions in the commit, without the
// allocation FileRevisions() performs.
func (c *Commit) Len() int {
	n := 0
	for _, b := range c.buckets {
		n += len(b.revs)
	}
	return n
}

func directoryOf(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[:i]
		}
	}
	return ""
}
