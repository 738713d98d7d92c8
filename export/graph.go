package export

import (
	"fmt"
	"os"

	"github.com/cvsfastexport/cvsfastexport/dag"
	"github.com/cvsfastexport/cvsfastexport/mark"
	"github.com/cvsfastexport/cvsfastexport/planner"
	"github.com/emicklei/dot"
	graphviz "github.com/goccy/go-graphviz"
)

// WriteGraph renders plan's commit DAG, one node per planned commit
// labelled with its mark (or "?" if incremental cutoff suppressed it)
// and branch, to cfg.GraphFile (dot format) and, when
// cfg.GraphImageFile is also set, to a rendered PNG. Adapted from the
// teacher's gitgraph.go commit/parent → dot.Graph construction, here
// walking our own Plan instead of re-parsing a fast-import stream.
func (d *Driver) WriteGraph(plan *planner.Plan) error {
	if d.ctx.Opts.GraphFile == "" {
		return nil
	}

	g := dot.NewGraph(dot.Directed)
	nodes := make(map[*dag.Commit]dot.Node, len(plan.Commits))

	for _, pc := range plan.Commits {
		c := pc.Commit
		n, exists := nodes[c]
		if !exists {
			label := fmt.Sprintf("%s\n%s", markLabel(d, c), pc.Ref.Name)
			n = g.Node(label)
			nodes[c] = n
		}
		if c.Parent != nil {
			if pn, ok := nodes[c.Parent]; ok {
				g.Edge(pn, n)
			}
		}
	}

	if err := os.WriteFile(d.ctx.Opts.GraphFile, []byte(g.String()), 0644); err != nil {
		return fmt.Errorf("export: writing graph file: %w", err)
	}

	if d.ctx.Opts.GraphImageFile == "" {
		return nil
	}
	gv := graphviz.New()
	defer gv.Close()
	graph, err := graphviz.ParseBytes([]byte(g.String()))
	if err != nil {
		return fmt.Errorf("export: parsing dot output: %w", err)
	}
	defer graph.Close()
	if err := gv.RenderFilename(graph, graphviz.PNG, d.ctx.Opts.GraphImageFile); err != nil {
		return fmt.Errorf("export: rendering graph image: %w", err)
	}
	return nil
}

// markLabel reports a commit's assigned mark, or "?" if it was
// suppressed by incremental cutoff and never emitted.
func markLabel(d *Driver, c *dag.Commit) string {
	if m, ok := d.ctx.Marks.MarkOf(mark.Serial(c.Serial)); ok {
		return fmt.Sprintf(":%d", m)
	}
	return "?"
}
