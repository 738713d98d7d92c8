package dag

import "github.com/cvsfastexport/cvsfastexport/atom"

// Handle is the forest of branch chains and ancillary facts the
// external parse/merge phase hands to the Export Driver (spec §6).
type Handle interface {
	BranchHeads() []*Ref
	Tags() []*Tag
	TotalRevisions() int
	TotalSourceBytes() int64
	Generators() []ContentGenerator
	CommitTimeWindow() int64
	SkewVulnerableTimestamp() int64
}

// ContentGenerator drives the content-generation phase for one
// master: Generate invokes cb exactly once per file revision, in
// depth-first master order, passing a borrowed payload.
type ContentGenerator interface {
	Master() *atom.Atom
	Generate(cb func(rev *FileRevision, payload []byte) error) error
}

// AuthorDictionary looks up full identity information for an author
// key recorded on a Commit.
type AuthorDictionary interface {
	Lookup(key string) (fullName, email, timezone string, ok bool)
}

// Chain walks r's singly linked chain from head toward root,
// returning commits in head-to-root order. Traversal stops at (and
// includes) a Ref whose Tail flag is set, per the invariant that a
// tail chain was already emitted via another head and must not be
// re-traversed beyond that point.
func (r *Ref) Chain() []*Commit {
	var out []*Commit
	for c := r.Head; c != nil; c = c.Parent {
		out = append(out, c)
	}
	return out
}
