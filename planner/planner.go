// Package planner implements the Order Planner: it flattens the
// per-branch commit chains into the single sequence the Emitter walks
// (spec §4.5).
package planner

import (
	"sort"

	"github.com/cvsfastexport/cvsfastexport/dag"
	"github.com/sirupsen/logrus"
)

// PlannedCommit pairs a commit with the branch Ref it was reached
// through. Ref travels with Commit through Phase B's sort so a
// commit's branch membership survives reordering — unlike an
// index-range-into-a-shared-array scheme, which Phase B's in-place
// sort would invalidate.
type PlannedCommit struct {
	Commit *dag.Commit
	Ref    *dag.Ref
}

// Plan is the flattened, ordered sequence of commits the Emitter
// consumes: one true global sequence, not per-branch chunks. A
// commit's branch is read off its own PlannedCommit.Ref, never
// inferred from its position in the slice.
type Plan struct {
	Commits []PlannedCommit
}

// Fast materializes each non-tail branch's reverse-linked chain and
// concatenates them head-order, branch-internally root-to-head. No
// global sort; marks are allocated by the Emitter at emit time.
//
// A commit reachable from two different heads (a branch forked mid
// history shares its ancestor commits by pointer with the branch it
// forked from, spec §8 end-to-end scenario 5) is only ever planned
// once, under whichever head reaches it first — Chain() walks each
// Ref's full history to the true root independent of any other Ref,
// so without this check a shared ancestor would be queued for
// emission under every Ref that passes through it.
func Fast(heads []*dag.Ref) *Plan {
	p := &Plan{}
	seen := make(map[*dag.Commit]bool)
	for _, ref := range heads {
		if ref.Tail {
			continue
		}
		chain := ref.Chain() // head-to-root
		for i := len(chain) - 1; i >= 0; i-- {
			c := chain[i]
			if seen[c] {
				continue
			}
			seen[c] = true
			p.Commits = append(p.Commits, PlannedCommit{Commit: c, Ref: ref})
		}
	}
	return p
}

// Canonical runs Phase A (branch-concatenated topological order) then
// Phase B (a stable sort by timestamp/topology when consistent). If
// the topological check fails, log warns once and the Phase-A order
// is kept (spec §4.5, §7 "integrity anomalies").
func Canonical(heads []*dag.Ref, log *logrus.Logger) *Plan {
	p := phaseA(heads)
	if !topologicallyConsistent(p.Commits) {
		if log != nil {
			log.Warn("commit order is not consistent with timestamps; falling back to topological order")
		}
		return p
	}
	sort.SliceStable(p.Commits, func(i, j int) bool {
		return less(p.Commits[i].Commit, p.Commits[j].Commit)
	})
	return p
}

func phaseA(heads []*dag.Ref) *Plan {
	p := &Plan{}
	seen := make(map[*dag.Commit]bool)
	for _, ref := range heads {
		if ref.Tail {
			continue
		}
		chain := ref.Chain() // head-to-root, chain[0] is head
		for i := len(chain) - 1; i >= 0; i-- {
			c := chain[i]
			if seen[c] {
				continue
			}
			seen[c] = true
			p.Commits = append(p.Commits, PlannedCommit{Commit: c, Ref: ref})
		}
	}
	return p
}

// topologicallyConsistent reports whether every commit's parent
// timestamp is less than or equal to its own, across the whole plan.
func topologicallyConsistent(commits []PlannedCommit) bool {
	for _, pc := range commits {
		c := pc.Commit
		if c.Parent != nil && c.Parent.Timestamp > c.Timestamp {
			return false
		}
	}
	return true
}

// less implements the Phase B comparator: timestamp ascending, then
// parent/grandparent adjacency, then author, then log text, with a
// final lock-step-Serial tiebreaker beneath all of those (see
// DESIGN.md, Open Question resolution 1 — the spec's own
// `ac->date - bc->date` computed twice is treated as a latent defect,
// not reproduced).
func less(a, b *dag.Commit) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if isAncestor(b, a) {
		return false // b is a's parent/grandparent: a sorts after b
	}
	if isAncestor(a, b) {
		return true
	}
	if a.Author != b.Author {
		return a.Author < b.Author
	}
	if a.Log != b.Log {
		return a.Log < b.Log
	}
	return lockstepSerial(a, b)
}

// isAncestor reports whether candidate is cand's parent or
// grandparent of x (two hops, matching the spec's literal "parent or
// grandparent").
func isAncestor(cand, x *dag.Commit) bool {
	if x.Parent == cand {
		return true
	}
	if x.Parent != nil && x.Parent.Parent == cand {
		return true
	}
	return false
}

// lockstepSerial walks both commits' parent chains in lock-step,
// comparing Serial at each step, until one side runs out of parents.
// Equal all the way down falls through to sort.SliceStable's own
// stability, exactly as Design Notes §9 anticipates.
func lockstepSerial(a, b *dag.Commit) bool {
	for a != nil && b != nil {
		if a.Serial != b.Serial {
			return a.Serial < b.Serial
		}
		a = a.Parent
		b = b.Parent
	}
	return false
}
