package dag

import (
	"fmt"

	"github.com/cvsfastexport/cvsfastexport/atom"
	"github.com/cvsfastexport/cvsfastexport/mark"
	yaml "gopkg.in/yaml.v2"
)

// Fixture is a YAML-described demo DAG: a stand-in for the real CVS
// parser/merger, which is explicitly out of scope (spec §1). It
// implements Handle directly so cmd/cvsfastexport can drive the whole
// export engine end to end without a live CVS repository.
type Fixture struct {
	heads      []*Ref
	tags       []*Tag
	generators []ContentGenerator
	totalBytes int64
	totalRevs  int
	window     int64
}

func (f *Fixture) BranchHeads() []*Ref            { return f.heads }
func (f *Fixture) Tags() []*Tag                   { return f.tags }
func (f *Fixture) TotalRevisions() int            { return f.totalRevs }
func (f *Fixture) TotalSourceBytes() int64        { return f.totalBytes }
func (f *Fixture) Generators() []ContentGenerator { return f.generators }
func (f *Fixture) CommitTimeWindow() int64        { return f.window }

// SkewVulnerableTimestamp always reports no skew: a hand-authored demo
// DAG has no independent wall-clock source to disagree with its own
// recorded timestamps.
func (f *Fixture) SkewVulnerableTimestamp() int64 { return 0 }

type fixtureFile struct {
	Path    string `yaml:"path"`
	Rev     string `yaml:"rev"`
	Mode    uint32 `yaml:"mode"`
	Content string `yaml:"content"`
}

type fixtureCommit struct {
	Author    string        `yaml:"author"`
	Log       string        `yaml:"log"`
	Timestamp int64         `yaml:"timestamp"`
	Files     []fixtureFile `yaml:"files"`
}

type fixtureBranch struct {
	Name    string          `yaml:"name"`
	Commits []fixtureCommit `yaml:"commits"`
}

// fixtureTag names a branch and a 0-based commit index within it;
// Index < 0 means "the branch's last commit".
type fixtureTag struct {
	Name   string `yaml:"name"`
	Branch string `yaml:"branch"`
	Index  int    `yaml:"index"`
}

type fixtureDoc struct {
	Branches []fixtureBranch `yaml:"branches"`
	Tags     []fixtureTag    `yaml:"tags"`
}

type fixtureGenerator struct {
	master  *atom.Atom
	entries []fixtureEntry
}

type fixtureEntry struct {
	rev     *FileRevision
	payload []byte
}

func (g *fixtureGenerator) Master() *atom.Atom { return g.master }

func (g *fixtureGenerator) Generate(cb func(rev *FileRevision, payload []byte) error) error {
	for _, e := range g.entries {
		if err := cb(e.rev, e.payload); err != nil {
			return err
		}
	}
	return nil
}

// LoadFixture parses a YAML demo DAG description into a Fixture.
// Serials are drawn from one shared allocator sequence across both
// FileRevisions and Commits, per the glossary's "a dense non-zero
// integer identifier assigned in generation order to every
// file-revision snapshot and every commit" — the two kinds of object
// must never collide on the same Serial value (see DESIGN.md, Open
// Question resolution 3).
func LoadFixture(data []byte) (*Fixture, error) {
	var doc fixtureDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("dag: fixture: %w", err)
	}

	tbl := atom.NewTable()
	serials := mark.NewAllocator()
	genByMaster := make(map[*atom.Atom]*fixtureGenerator)
	var genOrder []*atom.Atom
	branchCommits := make(map[string][]*Commit)

	f := &Fixture{}
	haveWindow := false
	var minTS, maxTS int64

	for _, b := range doc.Branches {
		var parent *Commit
		var commits []*Commit
		for _, fc := range b.Commits {
			commitSerial, err := serials.NextSerial()
			if err != nil {
				return nil, fmt.Errorf("dag: fixture: %w", err)
			}

			revs := make([]*FileRevision, 0, len(fc.Files))
			for _, ff := range fc.Files {
				revSerial, err := serials.NextSerial()
				if err != nil {
					return nil, fmt.Errorf("dag: fixture: %w", err)
				}
				mode := ff.Mode
				if mode == 0 {
					mode = 0644
				}
				master := tbl.Intern(ff.Path)
				rev := &FileRevision{
					Master: master,
					Mode:   mode,
					Rev:    ff.Rev,
					Serial: int64(revSerial),
				}
				revs = append(revs, rev)
				f.totalRevs++
				f.totalBytes += int64(len(ff.Content))

				gen, ok := genByMaster[master]
				if !ok {
					gen = &fixtureGenerator{master: master}
					genByMaster[master] = gen
					genOrder = append(genOrder, master)
				}
				gen.entries = append(gen.entries, fixtureEntry{rev: rev, payload: []byte(ff.Content)})
			}

			c := NewCommit(fc.Author, fc.Log, fc.Timestamp, parent, int64(commitSerial), revs)
			commits = append(commits, c)
			parent = c

			if !haveWindow {
				minTS, maxTS = fc.Timestamp, fc.Timestamp
				haveWindow = true
			} else if fc.Timestamp < minTS {
				minTS = fc.Timestamp
			} else if fc.Timestamp > maxTS {
				maxTS = fc.Timestamp
			}
		}
		if len(commits) == 0 {
			return nil, fmt.Errorf("dag: fixture: branch %q has no commits", b.Name)
		}
		branchCommits[b.Name] = commits
		f.heads = append(f.heads, &Ref{Name: b.Name, Head: commits[len(commits)-1]})
	}

	for _, t := range doc.Tags {
		commits, ok := branchCommits[t.Branch]
		if !ok {
			return nil, fmt.Errorf("dag: fixture: tag %q references unknown branch %q", t.Name, t.Branch)
		}
		idx := t.Index
		if idx < 0 {
			idx = len(commits) - 1
		}
		if idx >= len(commits) {
			return nil, fmt.Errorf("dag: fixture: tag %q index %d out of range for branch %q", t.Name, idx, t.Branch)
		}
		f.tags = append(f.tags, &Tag{Name: t.Name, Target: commits[idx]})
	}

	for _, master := range genOrder {
		f.generators = append(f.generators, genByMaster[master])
	}
	f.window = maxTS - minTS
	return f, nil
}
