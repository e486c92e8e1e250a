package spec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RunSpec is the YAML run specification tuning a pipeline run.
type RunSpec struct {
	Run RunSpecRun `yaml:"run"`
}

// RunSpecRun represents the run section of the spec
type RunSpecRun struct {
	GridDepth      int     `yaml:"grid_depth"`       // sky grid subdivision depth
	ChunkSize      int     `yaml:"chunk_size"`       // records fetched per cursor page
	SubBatchSize   int     `yaml:"sub_batch_size"`   // max objects per evaluator invocation
	Workers        int     `yaml:"workers"`          // concurrent evaluator ceiling per wave
	CommitBatch    int     `yaml:"commit_batch"`     // rows per output transaction
	FieldRadiusDeg float64 `yaml:"field_radius_deg"` // field-of-view angular radius
	DetectorDeg    float64 `yaml:"detector_deg"`     // precise on-detector radius
}

// Defaults mirror the production run parameters.
func defaults() RunSpec {
	return RunSpec{Run: RunSpecRun{
		GridDepth:      8,
		ChunkSize:      10000,
		SubBatchSize:   2500,
		Workers:        10,
		CommitBatch:    5000,
		FieldRadiusDeg: 2.0,
		DetectorDeg:    1.75,
	}}
}

// Parse parses a YAML run spec and validates it.
func Parse(data []byte) (RunSpec, error) {
	s := defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("run spec: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// ParseFile loads and parses a YAML run spec from disk. An empty path
// returns the defaults.
func ParseFile(path string) (RunSpec, error) {
	if path == "" {
		return defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults(), fmt.Errorf("run spec: %w", err)
	}
	return Parse(data)
}

// Validate checks the spec for usable values.
func (s *RunSpec) Validate() error {
	r := &s.Run
	if r.ChunkSize < 1 {
		return fmt.Errorf("run spec: chunk_size must be >= 1, got %d", r.ChunkSize)
	}
	if r.SubBatchSize < 1 {
		return fmt.Errorf("run spec: sub_batch_size must be >= 1, got %d", r.SubBatchSize)
	}
	if r.Workers < 1 {
		return fmt.Errorf("run spec: workers must be >= 1, got %d", r.Workers)
	}
	if r.FieldRadiusDeg <= 0 {
		return fmt.Errorf("run spec: field_radius_deg must be positive, got %v", r.FieldRadiusDeg)
	}
	if r.DetectorDeg <= 0 || r.DetectorDeg > r.FieldRadiusDeg {
		return fmt.Errorf("run spec: detector_deg must be in (0, field_radius_deg], got %v", r.DetectorDeg)
	}
	return nil
}
