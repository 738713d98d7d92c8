package dag

// bucket is an ordered collection of FileRevisions sharing a
// directory, adapted from the teacher's node.Node: that type is an
// arbitrarily deep directory tree kept live across an entire branch to
// reconcile renames and deletes against a working copy (out of scope
// here, see DESIGN.md). A Commit only ever needs the flat grouping the
// data model literally describes, so bucket keeps just the "append if
// not already present, preserve insertion order" half of Node's idiom.
type bucket struct {
	dir  string
	revs []*FileRevision
}

func newBucket(dir string) *bucket {
	return &bucket{dir: dir}
}

// add appends r unless a FileRevision for the same interned master is
// already present in the bucket.
func (b *bucket) add(r *FileRevision) {
	for _, existing := range b.revs {
		if existing.Master == r.Master {
			return
		}
	}
	b.revs = append(b.revs, r)
}
