package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// ReportMode selects how the Export Driver chooses between fast and
// canonical ordering (see export.SelectMode).
type ReportMode string

const (
	ReportAdaptive  ReportMode = "adaptive"
	ReportFast      ReportMode = "fast"
	ReportCanonical ReportMode = "canonical"
)

const DefaultBranchPrefix = "refs/heads/"

// Config for cvsfastexport
type Config struct {
	ReportMode     ReportMode `yaml:"reportmode"`
	BranchPrefix   string     `yaml:"branch_prefix"`
	ForceDates     bool       `yaml:"force_dates"`
	EmbedIDs       bool       `yaml:"embed_ids"`
	Reposurgeon    bool       `yaml:"reposurgeon"`
	RevisionMap    string     `yaml:"revision_map"`
	FromTime       int64      `yaml:"fromtime"`
	GraphFile      string     `yaml:"graph_file"`
	GraphImageFile string     `yaml:"graph_image_file"`
}

// Unmarshal the config
func Unmarshal(config []byte) (*Config, error) {
	// Default values specified here
	cfg := &Config{
		ReportMode:   ReportAdaptive,
		BranchPrefix: DefaultBranchPrefix,
	}
	err := yaml.Unmarshal(config, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	err = cfg.validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile - loads config file. A missing file is not an error:
// the documented defaults apply, matching cmd/cvsfastexport's
// "--config is optional" flag behaviour.
func LoadConfigFile(filename string) (*Config, error) {
	if filename == "" {
		return Unmarshal(nil)
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Unmarshal(nil)
		}
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString - loads a string
func LoadConfigString(content []byte) (*Config, error) {
	cfg, err := Unmarshal([]byte(content))
	return cfg, err
}

// Validate re-runs the same checks Unmarshal applies, for callers that
// mutate a Config after loading it (e.g. CLI flag overrides).
func (c *Config) Validate() error {
	return c.validate()
}

func (c *Config) validate() error {
	switch c.ReportMode {
	case ReportAdaptive, ReportFast, ReportCanonical:
	case "":
		c.ReportMode = ReportAdaptive
	default:
		return fmt.Errorf("unknown reportmode: %q, must be one of adaptive|fast|canonical", c.ReportMode)
	}
	if c.BranchPrefix == "" {
		c.BranchPrefix = DefaultBranchPrefix
	}
	if c.Reposurgeon && c.RevisionMap == "" {
		return fmt.Errorf("reposurgeon: true requires revision_map to be set")
	}
	return nil
}
