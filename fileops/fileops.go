// Package fileops implements the File-Operation Builder: given a
// commit and its parent, it computes the ordered list of Modify/Delete
// operations a commit must emit against its parent tree (spec §4.3).
package fileops

import (
	"sort"
	"strings"

	"github.com/cvsfastexport/cvsfastexport/atom"
	"github.com/cvsfastexport/cvsfastexport/dag"
)

// Kind is the operation a FileOp performs.
type Kind int

const (
	Modify Kind = iota
	Delete
)

// Mode is the on-disk mode a Modify op is emitted with. Only the two
// values below are legal on output (spec §8 "mode normalization").
type Mode uint32

const (
	ModeFile Mode = 0100644
	ModeExec Mode = 0100755
)

// FileOp is a transient per-commit record built fresh for every
// commit; it does not outlive the Emitter's pass over that commit.
type FileOp struct {
	Kind Kind
	Rev  *dag.FileRevision // nil for Delete
	Mode Mode
	Path string
}

// Builder caches path translation per interned master name (Design
// Notes: the builder must be tolerant of growth; using a map instead
// of the teacher's GitFile per-object cache field sidesteps any
// dangling-pointer concern when the FileOp buffer reallocates).
type Builder struct {
	pathCache map[*atom.Atom]string
}

// NewBuilder returns a Builder with an empty path cache.
func NewBuilder() *Builder {
	return &Builder{pathCache: make(map[*atom.Atom]string)}
}

// Build computes the FileOps for commit against parent (which may be
// nil), in the canonical sort order required for emission.
func (b *Builder) Build(commit, parent *dag.Commit) []*FileOp {
	var ops []*FileOp

	for _, cf := range commit.FileRevisions() {
		if parent == nil {
			ops = append(ops, b.modify(cf))
			continue
		}
		if cf.ParentLink == nil || cf.Serial != cf.ParentLink.Serial {
			ops = append(ops, b.modify(cf))
		}
	}

	if parent != nil {
		for _, pf := range parent.FileRevisions() {
			if pf.ParentLink == nil {
				ops = append(ops, &FileOp{
					Kind: Delete,
					Path: b.path(pf.Master),
				})
			}
		}
	}

	sort.SliceStable(ops, func(i, j int) bool {
		return less(ops[i].Path, ops[j].Path)
	})
	return ops
}

func (b *Builder) modify(rev *dag.FileRevision) *FileOp {
	return &FileOp{
		Kind: Modify,
		Rev:  rev,
		Mode: clampMode(rev.Mode),
		Path: b.path(rev.Master),
	}
}

func clampMode(src uint32) Mode {
	const executeBits = 0111
	if src&executeBits != 0 {
		return ModeExec
	}
	return ModeFile
}

// path translates a master name into its output path, stripping CVS
// layout fragments and caching the result by the master atom's
// identity (pointer equality is stable for the lifetime of one
// export run).
func (b *Builder) path(master *atom.Atom) string {
	if p, ok := b.pathCache[master]; ok {
		return p
	}
	p := translate(master.Name())
	b.pathCache[master] = p
	return p
}

// IsCVSIgnoreMaster reports whether a master's basename (before RCS
// translation) is ".cvsignore" — the Blob Store and Emitter both need
// this at two different points in time (write and read-back) and must
// agree on the answer for the same master.
func IsCVSIgnoreMaster(name string) bool {
	base := lastSegment(strings.TrimSuffix(name, ",v"))
	return base == ".cvsignore"
}

// translate strips RCS/CVS storage fragments from a master path:
// any "Attic/" path segment, any "RCS/" path segment, and a trailing
// ",v" suffix, and renames a ".cvsignore" basename to ".gitignore".
func translate(name string) string {
	segs := strings.Split(name, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if s == "Attic" || s == "RCS" {
			continue
		}
		out = append(out, s)
	}
	p := strings.Join(out, "/")
	p = strings.TrimSuffix(p, ",v")
	if base := lastSegment(p); base == ".cvsignore" {
		p = p[:len(p)-len(base)] + ".gitignore"
	}
	return p
}

func lastSegment(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// less implements the comparator of spec §4.3 step 5: compare paths
// segment by segment; at the first differing position, a shorter
// prefix-equal path sorts after the longer one. This puts deletes of
// children before a delete/replace of their parent directory.
func less(a, b string) bool {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	if len(as) != len(bs) {
		// equal prefix so far; the shorter one is a parent of the
		// longer one and must sort after it.
		return len(as) > len(bs)
	}
	return false
}
