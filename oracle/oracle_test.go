package oracle

import (
	"testing"

	"github.com/cvsfastexport/cvsfastexport/atom"
	"github.com/cvsfastexport/cvsfastexport/dag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkMatchesSharedFiles(t *testing.T) {
	tbl := atom.NewTable()
	a := tbl.Intern("a.txt")
	b := tbl.Intern("b.txt")

	pa := &dag.FileRevision{Master: a, Serial: 1}
	pb := &dag.FileRevision{Master: b, Serial: 2}
	parent := dag.NewCommit("x", "p", 1, nil, 1, []*dag.FileRevision{pa, pb})

	ca := &dag.FileRevision{Master: a, Serial: 3}
	commit := dag.NewCommit("x", "c", 2, parent, 2, []*dag.FileRevision{ca})

	Link(commit, parent)

	require.NotNil(t, ca.ParentLink)
	assert.Same(t, pa, ca.ParentLink)
	require.NotNil(t, pa.ParentLink)
	assert.Same(t, ca, pa.ParentLink)
	assert.Nil(t, pb.ParentLink, "file absent from the commit must not be linked")
}

func TestLinkNilParentClearsOnly(t *testing.T) {
	tbl := atom.NewTable()
	ca := &dag.FileRevision{Master: tbl.Intern("a.txt"), Serial: 1, ParentLink: &dag.FileRevision{}}
	commit := dag.NewCommit("x", "c", 1, nil, 1, []*dag.FileRevision{ca})

	Link(commit, nil)
	assert.Nil(t, ca.ParentLink)
}

func TestLinkIsMonotonicOverRepeatedNames(t *testing.T) {
	tbl := atom.NewTable()
	a := tbl.Intern("a.txt")
	c := tbl.Intern("c.txt")

	pa := &dag.FileRevision{Master: a, Serial: 1}
	pc := &dag.FileRevision{Master: c, Serial: 2}
	parent := dag.NewCommit("x", "p", 1, nil, 1, []*dag.FileRevision{pa, pc})

	ca := &dag.FileRevision{Master: a, Serial: 3}
	cc := &dag.FileRevision{Master: c, Serial: 4}
	commit := dag.NewCommit("x", "c", 2, parent, 2, []*dag.FileRevision{ca, cc})

	Link(commit, parent)

	assert.Same(t, pa, ca.ParentLink)
	assert.Same(t, pc, cc.ParentLink)
}
