package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance case for the service.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Config is an inline YAML config document. Empty means no config.
	Config string `yaml:"config,omitempty"`

	// Generators are passed as if named on the command line.
	Generators []string `yaml:"generators,omitempty"`

	Flow       []FlowStep  `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one call. Exactly one of Show, GetConfig and Reload is set.
type FlowStep struct {
	Show      map[string]any `yaml:"show,omitempty"`
	GetConfig string         `yaml:"get_config,omitempty"`
	Reload    *string        `yaml:"reload,omitempty"`

	// ExpectError is a substring the call's error must contain. Empty
	// means the call must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Expect is the exact get_config result.
	Expect *string `yaml:"expect,omitempty"`
}

func (s FlowStep) kind() string {
	switch {
	case s.Show != nil:
		return "show"
	case s.GetConfig != "":
		return "get_config"
	case s.Reload != nil:
		return "reload"
	}
	return ""
}

// Assertion checks the stream or trace after the flow.
type Assertion struct {
	Type string `yaml:"type"`

	// Count is used by line_count and trace_count.
	Count int `yaml:"count,omitempty"`

	// Blocks is used by last_line.
	Blocks []string `yaml:"blocks,omitempty"`

	// Block, Instance and Expect are used by block_fields.
	Block    string         `yaml:"block,omitempty"`
	Instance string         `yaml:"instance,omitempty"`
	Expect   map[string]any `yaml:"expect,omitempty"`

	// Op is used by trace_count; Ops by trace_order.
	Op  string   `yaml:"op,omitempty"`
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertLineCount   = "line_count"
	AssertLastLine    = "last_line"
	AssertBlockFields = "block_fields"
	AssertTraceCount  = "trace_count"
	AssertTraceOrder  = "trace_order"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so typos
// fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		set := 0
		if step.Show != nil {
			set++
		}
		if step.GetConfig != "" {
			set++
		}
		if step.Reload != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("flow[%d]: exactly one of show, get_config or reload is required", i)
		}
		if step.Expect != nil && step.GetConfig == "" {
			return fmt.Errorf("flow[%d]: expect is only valid for get_config", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertLineCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for line_count", index)
		}
	case AssertLastLine:
		if a.Blocks == nil {
			return fmt.Errorf("assertions[%d]: blocks is required for last_line (use [] for an empty line)", index)
		}
	case AssertBlockFields:
		if a.Block == "" {
			return fmt.Errorf("assertions[%d]: block is required for block_fields", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for block_fields", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
