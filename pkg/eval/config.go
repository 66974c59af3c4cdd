package eval

import (
	"errors"
	"fmt"
	"os"

	"github.com/hazyhaar/entryalign/pkg/align"
	"github.com/hazyhaar/entryalign/pkg/table"
	"gopkg.in/yaml.v3"
)

// Config drives one evaluation run. It is loaded from YAML and then
// overridden by command-line flags.
type Config struct {
	GroundTruth string       `yaml:"ground_truth"`
	ModelOutput string       `yaml:"model_output"`
	Format      table.Format `yaml:"format"`

	PageColumn      string   `yaml:"page_column"`
	KeyColumn       string   `yaml:"key_column"`
	SecondaryColumn string   `yaml:"secondary_key_column"`
	SynonymColumn   string   `yaml:"synonym_column"`
	CompareColumns  []string `yaml:"compare_columns"`

	Matching Matching `yaml:"matching"`

	Workers     int    `yaml:"workers"`
	OutputDir   string `yaml:"output_dir"`
	Workbook    bool   `yaml:"workbook"`
	DBPath      string `yaml:"db_path"`
	MetricsFile string `yaml:"metrics_file"`
}

// Matching holds the aligner thresholds.
type Matching struct {
	PrimaryThreshold   int    `yaml:"primary_threshold"`
	SecondaryThreshold int    `yaml:"secondary_threshold"`
	SynonymThreshold   int    `yaml:"synonym_threshold"`
	Window             int    `yaml:"window"`
	Normalize          string `yaml:"normalize"`
}

// DefaultConfig returns the settings used for the ATH headword/German
// equivalent evaluation.
func DefaultConfig() *Config {
	return &Config{
		Format:          table.Format{Delimiter: ";", Encoding: "utf-8"},
		PageColumn:      "page_number",
		KeyColumn:       "estonian_headword",
		SecondaryColumn: "german_equivalent",
		SynonymColumn:   "estonian_synonyms",
		CompareColumns:  []string{"estonian_headword", "german_equivalent"},
		Matching: Matching{
			PrimaryThreshold:   30,
			SecondaryThreshold: 30,
			SynonymThreshold:   align.DefaultSynonymThreshold,
			Window:             align.DefaultWindow,
			Normalize:          align.ModeStripPunct,
		},
		Workers:   4,
		OutputDir: "results",
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error:
// the defaults are returned with found=false.
func LoadConfig(path string) (cfg *Config, found bool, err error) {
	cfg = DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, false, nil
		}
		return nil, false, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, false, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, true, nil
}

// Validate checks that the run can start.
func (c *Config) Validate() error {
	if c.GroundTruth == "" {
		return errors.New("config: ground_truth is required")
	}
	if c.ModelOutput == "" {
		return errors.New("config: model_output is required")
	}
	if c.KeyColumn == "" {
		return errors.New("config: key_column is required")
	}
	if c.PageColumn == "" {
		return errors.New("config: page_column is required")
	}
	for name, v := range map[string]int{
		"primary_threshold":   c.Matching.PrimaryThreshold,
		"secondary_threshold": c.Matching.SecondaryThreshold,
		"synonym_threshold":   c.Matching.SynonymThreshold,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("config: matching.%s must be within 0-100, got %d", name, v)
		}
	}
	if !align.ValidMode(c.Matching.Normalize) {
		return fmt.Errorf("config: matching.normalize must be one of %s, %s, %s, got %q",
			align.ModeStripPunct, align.ModeStripAccents, align.ModeNone, c.Matching.Normalize)
	}
	if c.Matching.Window < 0 {
		return fmt.Errorf("config: matching.window must be >= 0, got %d", c.Matching.Window)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	}
	return nil
}

// AlignOptions converts the matching settings into aligner options.
func (c *Config) AlignOptions() align.Options {
	window := c.Matching.Window
	if window == 0 {
		window = -1 // an explicit zero window, not the aligner default
	}
	return align.Options{
		PrimaryKey:         c.KeyColumn,
		SecondaryKey:       c.SecondaryColumn,
		SynonymKey:         c.SynonymColumn,
		PrimaryThreshold:   c.Matching.PrimaryThreshold,
		SecondaryThreshold: c.Matching.SecondaryThreshold,
		SynonymThreshold:   c.Matching.SynonymThreshold,
		Window:             window,
		Normalize:          align.GetNormalizer(c.Matching.Normalize),
	}
}

// YAML renders the effective configuration, used as the run snapshot.
func (c *Config) YAML() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}
