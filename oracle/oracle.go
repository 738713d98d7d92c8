// Package oracle implements the Parent-Link Oracle: it pairs up the
// FileRevisions a commit shares with its parent by interned master
// identity, using each commit's Bloom filter to skip names that
// cannot possibly be shared (spec §4.4).
package oracle

import "github.com/cvsfastexport/cvsfastexport/dag"

// Link clears and recomputes the ParentLink slots of every
// FileRevision in commit and parent. It is the only place those slots
// are mutated (spec §3 invariants).
//
// Correctness depends on dag.Commit.FileRevisions() returning revisions
// ordered by their master atom's insertion id, consistently across
// every commit — the total order that makes the cursor scan below
// monotonic instead of quadratic.
func Link(commit, parent *dag.Commit) {
	commitRevs := commit.FileRevisions()
	for _, r := range commitRevs {
		r.ParentLink = nil
	}
	if parent == nil {
		return
	}
	parentRevs := parent.FileRevisions()
	for _, r := range parentRevs {
		r.ParentLink = nil
	}

	maxmatch := len(commitRevs)
	if len(parentRevs) < maxmatch {
		maxmatch = len(parentRevs)
	}
	if maxmatch == 0 {
		return
	}

	cursor := 0
	for _, cf := range commitRevs {
		if maxmatch == 0 {
			break
		}
		if !parent.Bloom.MayContain(cf.Master) {
			continue
		}
		for cursor < len(parentRevs) {
			pf := parentRevs[cursor]
			if pf.Master == cf.Master {
				cf.ParentLink = pf
				pf.ParentLink = cf
				maxmatch--
				cursor++
				break
			}
			cursor++
		}
	}
}
