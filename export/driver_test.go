package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cvsfastexport/cvsfastexport/atom"
	"github.com/cvsfastexport/cvsfastexport/config"
	"github.com/cvsfastexport/cvsfastexport/dag"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureHandle is a minimal in-memory dag.Handle for testing the
// Export Driver without a real CVS parser/merger.
type fixtureHandle struct {
	heads      []*dag.Ref
	tags       []*dag.Tag
	generators []dag.ContentGenerator
	totalBytes int64
	totalRevs  int
}

func (h *fixtureHandle) BranchHeads() []*dag.Ref                  { return h.heads }
func (h *fixtureHandle) Tags() []*dag.Tag                         { return h.tags }
func (h *fixtureHandle) TotalRevisions() int                      { return h.totalRevs }
func (h *fixtureHandle) TotalSourceBytes() int64                  { return h.totalBytes }
func (h *fixtureHandle) Generators() []dag.ContentGenerator       { return h.generators }
func (h *fixtureHandle) CommitTimeWindow() int64                  { return 0 }
func (h *fixtureHandle) SkewVulnerableTimestamp() int64           { return 0 }

// memGenerator hands back one fixed payload per revision.
type memGenerator struct {
	master  *atom.Atom
	entries []genEntry
}
type genEntry struct {
	rev     *dag.FileRevision
	payload []byte
}

func (g *memGenerator) Master() *atom.Atom { return g.master }
func (g *memGenerator) Generate(cb func(rev *dag.FileRevision, payload []byte) error) error {
	for _, e := range g.entries {
		if err := cb(e.rev, e.payload); err != nil {
			return err
		}
	}
	return nil
}

func buildFixture() *fixtureHandle {
	tbl := atom.NewTable()
	readme := tbl.Intern("module/README,v")

	// Serials are a single shared counter space across FileRevisions
	// and Commits (spec: "assigned in generation order to every
	// file-revision snapshot and every commit"), so they must not
	// collide even though Mode/Rev belong to the revision.
	rev1 := &dag.FileRevision{Master: readme, Mode: 0644, Rev: "1.1", Serial: 1}
	rev2 := &dag.FileRevision{Master: readme, Mode: 0644, Rev: "1.2", Serial: 2}

	c1 := dag.NewCommit("alice", "initial import", 1000, nil, 3, []*dag.FileRevision{rev1})
	c2 := dag.NewCommit("bob", "update readme", 2000, c1, 4, []*dag.FileRevision{rev2})

	ref := &dag.Ref{Name: "master", Head: c2}

	return &fixtureHandle{
		heads: []*dag.Ref{ref},
		tags:  []*dag.Tag{{Name: "v1", Target: c2}},
		generators: []dag.ContentGenerator{
			&memGenerator{master: readme, entries: []genEntry{
				{rev: rev1, payload: []byte("hello\n")},
				{rev: rev2, payload: []byte("hello world\n")},
			}},
		},
		totalBytes: 18,
		totalRevs:  2,
	}
}

func TestSelectModeHonorsExplicitOverride(t *testing.T) {
	cfg, err := config.Unmarshal([]byte("reportmode: fast\n"))
	require.NoError(t, err)
	assert.Equal(t, ModeFast, SelectMode(cfg, 10))

	cfg2, err := config.Unmarshal([]byte("reportmode: canonical\n"))
	require.NoError(t, err)
	assert.Equal(t, ModeCanonical, SelectMode(cfg2, 10_000_000))
}

func TestSelectModeAdaptiveSmallRepoIsCanonical(t *testing.T) {
	cfg, err := config.Unmarshal(nil)
	require.NoError(t, err)
	assert.Equal(t, ModeCanonical, SelectMode(cfg, 100))
}

func TestSelectModeAdaptiveLargeRepoIsFast(t *testing.T) {
	cfg, err := config.Unmarshal(nil)
	require.NoError(t, err)
	assert.Equal(t, ModeFast, SelectMode(cfg, smallRepoThresholdBytes+1))
}

func TestSelectModeIncrementalForcesCanonical(t *testing.T) {
	cfg, err := config.Unmarshal([]byte("fromtime: 500\n"))
	require.NoError(t, err)
	assert.Equal(t, ModeCanonical, SelectMode(cfg, smallRepoThresholdBytes+1))
}

func TestDriverRunFastMode(t *testing.T) {
	handle := buildFixture()
	cfg, err := config.Unmarshal([]byte("reportmode: fast\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	ctx := NewContext(cfg, logrus.New(), &out)
	d := NewDriver(ctx, nil)

	require.NoError(t, d.Run(handle))

	got := out.String()
	assert.Contains(t, got, "commit refs/heads/master\n")
	assert.Contains(t, got, "reset refs/tags/v1\n")
	assert.Contains(t, got, "reset refs/heads/master\n")
	assert.True(t, strings.HasSuffix(got, "done\n"))
	assert.Equal(t, 2, ctx.Stats.CommitsEmitted)
	assert.Equal(t, 2, ctx.Stats.BlobsEmitted)
	assert.Equal(t, 1, ctx.Stats.TagsEmitted)
}

func TestDriverRunCanonicalMode(t *testing.T) {
	handle := buildFixture()
	cfg, err := config.Unmarshal([]byte("reportmode: canonical\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	ctx := NewContext(cfg, logrus.New(), &out)
	d := NewDriver(ctx, nil)

	require.NoError(t, d.Run(handle))

	got := out.String()
	assert.Contains(t, got, "commit refs/heads/master\n")
	assert.True(t, strings.HasSuffix(got, "done\n"))
	assert.Equal(t, 2, ctx.Stats.CommitsEmitted)
}

func TestDriverRunIncrementalSuppressesOldCommitsAndAnchors(t *testing.T) {
	handle := buildFixture()
	cfg, err := config.Unmarshal([]byte("reportmode: canonical\nfromtime: 1500\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	ctx := NewContext(cfg, logrus.New(), &out)
	d := NewDriver(ctx, nil)

	require.NoError(t, d.Run(handle))

	got := out.String()
	assert.NotContains(t, got, "initial import")
	assert.Contains(t, got, "update readme")
	assert.Contains(t, got, "from refs/heads/master^0\n")
	assert.Equal(t, 1, ctx.Stats.CommitsEmitted)
}

// buildTwoBranchFixture matches spec §8 end-to-end scenario 5:
// master holds C1 -> C2, side holds S forked from C1. C1 is a single
// Commit object reachable from both refs' Chain() walk, so it must be
// emitted exactly once, under master, with both C2 and S chaining
// "from" its mark.
func buildTwoBranchFixture() *fixtureHandle {
	c1 := dag.NewCommit("alice", "c1", 1000, nil, 1, nil)
	s := dag.NewCommit("carol", "s", 2000, c1, 2, nil)
	c2 := dag.NewCommit("bob", "c2", 3000, c1, 3, nil)

	master := &dag.Ref{Name: "master", Head: c2}
	side := &dag.Ref{Name: "side", Head: s}

	return &fixtureHandle{
		heads:     []*dag.Ref{master, side},
		totalRevs: 3,
	}
}

func TestDriverRunCanonicalModeKeepsBranchMembershipAcrossSharedAncestor(t *testing.T) {
	handle := buildTwoBranchFixture()
	cfg, err := config.Unmarshal([]byte("reportmode: canonical\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	ctx := NewContext(cfg, logrus.New(), &out)
	d := NewDriver(ctx, nil)

	require.NoError(t, d.Run(handle))

	got := out.String()
	assert.Contains(t, got, "commit refs/heads/master\n")
	assert.Contains(t, got, "commit refs/heads/side\n")
	assert.Contains(t, got, "reset refs/heads/master\n")
	assert.Contains(t, got, "reset refs/heads/side\n")
	// c1 is the shared ancestor: it must be emitted exactly once, not
	// once per branch that reaches it.
	assert.Equal(t, 1, strings.Count(got, "\nc1\n"))
	assert.Equal(t, 3, ctx.Stats.CommitsEmitted)

	blocks := strings.Split(got, "commit refs/heads/")
	var c1Mark, sFromMark, c2FromMark string
	for _, b := range blocks {
		lines := strings.SplitN(b, "\n", 2)
		if len(lines) < 2 {
			continue
		}
		switch {
		case strings.Contains(b, "\nc1\n"):
			if i := strings.Index(b, "mark :"); i >= 0 {
				c1Mark = strings.SplitN(b[i+len("mark :"):], "\n", 2)[0]
			}
		case strings.Contains(b, "\ns\n"):
			if i := strings.Index(b, "from :"); i >= 0 {
				sFromMark = strings.SplitN(b[i+len("from :"):], "\n", 2)[0]
			}
		case strings.Contains(b, "\nc2\n"):
			if i := strings.Index(b, "from :"); i >= 0 {
				c2FromMark = strings.SplitN(b[i+len("from :"):], "\n", 2)[0]
			}
		}
	}
	require.NotEmpty(t, c1Mark)
	assert.Equal(t, c1Mark, sFromMark, "side's S commit must chain from c1's mark")
	assert.Equal(t, c1Mark, c2FromMark, "master's C2 commit must chain from c1's mark")
}

func TestExportAuthorsPreservesFirstSeenOrder(t *testing.T) {
	handle := buildFixture()
	authors := ExportAuthors(handle)
	assert.Equal(t, []string{"alice", "bob"}, authors)
}
