// Package ledgertest is a scenario-driven conformance harness for the
// ledger façade: scenarios are declared as data (optionally loaded from
// YAML) and run against a fresh in-memory ledger, rather than hand-written
// as one Go test function per case. Every step drives the real
// ledger.Ledger directly, so a passing scenario means the façade really
// produced the asserted result, not a stand-in that manufactures it.
package ledgertest

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Step is one action or assertion in a Scenario, dispatched on Op. Only the
// fields relevant to Op need be set; the rest are ignored.
type Step struct {
	Op string `yaml:"op"`

	Name     string   `yaml:"name,omitempty"`
	Role     string   `yaml:"role,omitempty"`
	Signer   string   `yaml:"signer,omitempty"`
	EntityID string   `yaml:"entity_id,omitempty"`
	Workflow string   `yaml:"workflow,omitempty"`
	Action   string   `yaml:"action,omitempty"`
	Version  string   `yaml:"version,omitempty"`
	Payload  string   `yaml:"payload,omitempty"`
	Signers  []string `yaml:"signers,omitempty"`
	Timestamp int64   `yaml:"timestamp,omitempty"`
	RecordID  uint64  `yaml:"record_id,omitempty"`
	Field     string  `yaml:"field,omitempty"`
	Value     string  `yaml:"value,omitempty"`

	// WantErrKind/WantErrCode, if set, mark a step as expected to fail: the
	// step passes only if Op returns an error of exactly that
	// ledger.Kind/Code. A step with neither set is expected to succeed.
	WantErrKind string `yaml:"want_err_kind,omitempty"`
	WantErrCode string `yaml:"want_err_code,omitempty"`

	// Want is the expected value for assertion ops (expect_state,
	// expect_record_count), compared as a string.
	Want string `yaml:"want,omitempty"`
}

// Scenario is one conformance case: an optional set of inline CUE workflow
// definitions, loaded before any step runs, followed by a sequence of
// steps run in order against a fresh in-memory ledger.
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Workflows   []string `yaml:"workflows,omitempty"`
	Steps       []Step   `yaml:"steps"`
}

// knownOps is the closed set of Step.Op values the runner understands.
var knownOps = map[string]bool{
	"user_create":         true,
	"user_add_role":       true,
	"append":              true,
	"tamper":              true,
	"expect_state":        true,
	"expect_verify":       true,
	"expect_record_count": true,
}

// LoadScenario parses a single scenario document, rejecting unknown keys
// and unknown step operations up front so a typo in testdata fails loudly
// at load time rather than silently doing nothing at run time.
func LoadScenario(raw []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("ledgertest: decode scenario: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScenarioFile reads and parses a scenario document from disk, for
// testdata/scenarios/*.yaml fixtures.
func LoadScenarioFile(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledgertest: read %s: %w", path, err)
	}
	return LoadScenario(raw)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("ledgertest: scenario missing name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("ledgertest: scenario %q has no steps", s.Name)
	}
	for i, step := range s.Steps {
		if !knownOps[step.Op] {
			return fmt.Errorf("ledgertest: scenario %q step %d: unknown op %q", s.Name, i, step.Op)
		}
	}
	return nil
}
