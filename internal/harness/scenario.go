package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance scenario: a set of in-memory headers, a
// sequence of bind and edit steps against one session, and per-step
// expectations. Scenarios live in testdata as YAML and double as
// documentation of observable behavior.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Profile optionally selects an embedded ABI profile by name.
	// Empty means the default.
	Profile string `yaml:"profile,omitempty"`

	// Headers are the virtual header files the session sees. Steps may
	// reference paths outside this list to exercise missing-source
	// behavior.
	Headers []HeaderFixture `yaml:"headers"`

	// Steps run in order against a single session.
	Steps []Step `yaml:"steps"`
}

// HeaderFixture is one virtual header.
type HeaderFixture struct {
	Path   string `yaml:"path"`
	Source string `yaml:"source"`
}

// Step is one action. Exactly one of Bind, Edit, or Remove must be set;
// Expect attaches to Bind steps only.
type Step struct {
	Bind   *BindStep     `yaml:"bind,omitempty"`
	Edit   *EditStep     `yaml:"edit,omitempty"`
	Remove *RemoveStep   `yaml:"remove,omitempty"`
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// BindStep requests descriptors for names out of one header.
type BindStep struct {
	Header string   `yaml:"header"`
	Flags  []string `yaml:"flags,omitempty"`
	Names  []string `yaml:"names"`
}

// EditStep replaces a header's content mid-scenario.
type EditStep struct {
	Path   string `yaml:"path"`
	Source string `yaml:"source"`
}

// RemoveStep deletes a header mid-scenario.
type RemoveStep struct {
	Path string `yaml:"path"`
}

// ExpectClause validates one bind outcome. Unset fields are unchecked;
// an explicitly empty codes list asserts the bind produced no
// diagnostics at all.
type ExpectClause struct {
	// Descriptors is the expected descriptor count.
	Descriptors *int `yaml:"descriptors,omitempty"`

	// Names are the expected descriptor names, in order.
	Names []string `yaml:"names,omitempty"`

	// Codes are the expected diagnostic codes, order-independent.
	Codes []string `yaml:"codes"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so a typo in a fixture fails loudly instead of silently
// skipping a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
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
	if len(s.Headers) == 0 {
		return fmt.Errorf("headers list is required and must be non-empty")
	}
	for i, h := range s.Headers {
		if h.Path == "" {
			return fmt.Errorf("headers[%d]: path is required", i)
		}
		if h.Source == "" {
			return fmt.Errorf("headers[%d]: source is required", i)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	set := 0
	if st.Bind != nil {
		set++
	}
	if st.Edit != nil {
		set++
	}
	if st.Remove != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of bind, edit, remove is required", index)
	}

	switch {
	case st.Bind != nil:
		if st.Bind.Header == "" {
			return fmt.Errorf("steps[%d].bind: header is required", index)
		}
		if len(st.Bind.Names) == 0 {
			return fmt.Errorf("steps[%d].bind: names list is required and must be non-empty", index)
		}
		if st.Expect != nil && st.Expect.Descriptors != nil && *st.Expect.Descriptors < 0 {
			return fmt.Errorf("steps[%d].expect: descriptors must be non-negative", index)
		}
	case st.Edit != nil:
		if st.Edit.Path == "" {
			return fmt.Errorf("steps[%d].edit: path is required", index)
		}
		if st.Edit.Source == "" {
			return fmt.Errorf("steps[%d].edit: source is required", index)
		}
		if st.Expect != nil {
			return fmt.Errorf("steps[%d]: expect is only valid on bind steps", index)
		}
	case st.Remove != nil:
		if st.Remove.Path == "" {
			return fmt.Errorf("steps[%d].remove: path is required", index)
		}
		if st.Expect != nil {
			return fmt.Errorf("steps[%d]: expect is only valid on bind steps", index)
		}
	}
	return nil
}
