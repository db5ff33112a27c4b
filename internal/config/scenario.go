package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/videofx/internal/types"
)

// Scenario is a scripted run of the pipeline: a test source and an ordered
// list of input switches.
type Scenario struct {
	Version int            `toml:"version" json:"version"`
	Source  SourceConfig   `toml:"source" json:"source"`
	Steps   []ScenarioStep `toml:"steps" json:"steps"`
}

// SourceConfig selects the generated test pattern.
type SourceConfig struct {
	Resolution string `toml:"resolution,omitempty" json:"resolution,omitempty"`
	FPS        string `toml:"fps,omitempty" json:"fps,omitempty"`
}

// ScenarioStep switches to Input and feeds it Frames frames. Bitmap steps
// queue one bitmap shown for Frames frames.
type ScenarioStep struct {
	Input    string `toml:"input" json:"input"`
	Frames   int    `toml:"frames" json:"frames"`
	OffsetUs int64  `toml:"offset_us,omitempty" json:"offset_us,omitempty"`
}

// DefaultScenario cycles through every input type once.
func DefaultScenario() *Scenario {
	return &Scenario{
		Version: 1,
		Source:  SourceConfig{Resolution: "320x240", FPS: "30"},
		Steps: []ScenarioStep{
			{Input: types.InputTypeSurface.String(), Frames: 30},
			{Input: types.InputTypeBitmap.String(), Frames: 30, OffsetUs: 1_000_000},
			{Input: types.InputTypeTextureID.String(), Frames: 30, OffsetUs: 2_000_000},
			{Input: types.InputTypeSurface.String(), Frames: 30, OffsetUs: 3_000_000},
		},
	}
}

// LoadScenario reads a scenario file. An empty path yields DefaultScenario.
func LoadScenario(path string) (*Scenario, error) {
	if path == "" {
		return DefaultScenario(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	scenario := &Scenario{Version: 1}
	if err := toml.Unmarshal(data, scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return scenario, nil
}

// Validate checks every step names a known input and a positive frame count.
func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario has no steps")
	}
	for i, step := range s.Steps {
		if _, err := types.ParseInputType(step.Input); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if step.Frames <= 0 {
			return fmt.Errorf("step %d: frames must be positive, got %d", i, step.Frames)
		}
		if step.OffsetUs < 0 {
			return fmt.Errorf("step %d: offset_us must not be negative", i)
		}
	}
	return nil
}

// Save writes the scenario as TOML.
func (s *Scenario) Save(path string) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	return nil
}
