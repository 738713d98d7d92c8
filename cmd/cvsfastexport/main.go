// cvsfastexport drives the Export Driver over a demo DAG fixture,
// writing a git fast-import stream to stdout (or --output). The real
// CVS parser/merger that would build dag.Handle from an actual ,v
// repository is out of scope (see SPEC_FULL.md §1); --fixture points
// at a YAML file in dag.LoadFixture's format instead.
package main

import (
	"os"
	"time"

	"github.com/cvsfastexport/cvsfastexport/config"
	"github.com/cvsfastexport/cvsfastexport/dag"
	"github.com/cvsfastexport/cvsfastexport/export"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

const version = "cvsfastexport 0.1.0"

func main() {
	var (
		configFile = kingpin.Flag(
			"config",
			"Config file for cvsfastexport.",
		).Default("cvsfastexport.yaml").Short('c').String()
		fixtureFile = kingpin.Arg(
			"fixture",
			"YAML demo DAG file to export.",
		).Required().String()
		output = kingpin.Flag(
			"output",
			"Fast-import stream output file (default: stdout).",
		).Short('o').String()
		reportMode = kingpin.Flag(
			"reportmode",
			"Ordering mode: adaptive|fast|canonical (overrides config).",
		).String()
		branchPrefix = kingpin.Flag(
			"branch-prefix",
			"Ref prefix for branch names (overrides config).",
		).String()
		forceDates = kingpin.Flag(
			"force-dates",
			"Replace commit timestamps with a synthetic monotonic sequence (overrides config).",
		).Bool()
		embedIDs = kingpin.Flag(
			"embed-ids",
			"Append CVS-ID lines to each commit's log text (overrides config).",
		).Bool()
		reposurgeon = kingpin.Flag(
			"reposurgeon",
			"Emit reposurgeon cvs-revision properties (overrides config; requires --revision-map).",
		).Bool()
		revisionMap = kingpin.Flag(
			"revision-map",
			"Path to write the path/revision -> mark map (overrides config).",
		).String()
		fromTime = kingpin.Flag(
			"fromtime",
			"Unix timestamp cutoff: suppress commits at or before it (overrides config).",
		).Int64()
		graphFile = kingpin.Flag(
			"graph",
			"Graphviz dot file to write the export's commit DAG to.",
		).String()
		graphImage = kingpin.Flag(
			"graph-image",
			"PNG file to render the commit DAG to (requires --graph).",
		).String()
		cpuProfile = kingpin.Flag(
			"profile",
			"Write a CPU profile to ./cpu.pprof for the duration of the run.",
		).Bool()
		debug = kingpin.Flag(
			"debug",
			"Enable debug-level logging.",
		).Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version).Author("cvsfastexport")
	kingpin.CommandLine.Help = "Exports a merged CVS revision DAG as a git fast-import stream.\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	if *cpuProfile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug {
		logger.Level = logrus.DebugLevel
	}

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		logger.Errorf("error loading config file: %v", err)
		os.Exit(1)
	}
	if *reportMode != "" {
		cfg.ReportMode = config.ReportMode(*reportMode)
	}
	if *branchPrefix != "" {
		cfg.BranchPrefix = *branchPrefix
	}
	if *forceDates {
		cfg.ForceDates = true
	}
	if *embedIDs {
		cfg.EmbedIDs = true
	}
	if *reposurgeon {
		cfg.Reposurgeon = true
	}
	if *revisionMap != "" {
		cfg.RevisionMap = *revisionMap
	}
	if *fromTime != 0 {
		cfg.FromTime = *fromTime
	}
	if *graphFile != "" {
		cfg.GraphFile = *graphFile
	}
	if *graphImage != "" {
		cfg.GraphImageFile = *graphImage
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("invalid configuration: %v", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*fixtureFile)
	if err != nil {
		logger.Errorf("error reading fixture file: %v", err)
		os.Exit(1)
	}
	handle, err := dag.LoadFixture(data)
	if err != nil {
		logger.Errorf("error loading fixture: %v", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			logger.Errorf("error creating output file: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	start := time.Now()
	logger.Infof("%s starting, fixture: %s", version, *fixtureFile)

	ctx := export.NewContext(cfg, logger, out)
	driver := export.NewDriver(ctx, nil)
	if err := driver.Run(handle); err != nil {
		logger.Errorf("export failed: %v", err)
		os.Exit(1)
	}

	logger.Infof("done in %s: %d commits, %d blobs, %d tags",
		time.Since(start), ctx.Stats.CommitsEmitted, ctx.Stats.BlobsEmitted, ctx.Stats.TagsEmitted)
}
