package ledgertest

import (
	"path/filepath"
	"testing"
)

const procurementWorkflow = `
workflow: { name: "procurement", version: "1" }
states: ["open", "awarded"]
transitions: [
	{ from: "open", to: "awarded", action: "award_contract", required_roles: ["procuring_officer", "finance_approver"] },
]
`

// seedScenarios is the six-case conformance table: the genesis/tamper/
// workflow cases every engine of this shape must get right, expressed as
// data rather than six hand-written functions.
var seedScenarios = []*Scenario{
	{
		Name:        "genesis_and_one_record",
		Description: "a fresh database has a genesis record and one appended record chains to it",
		Steps: []Step{
			{Op: "user_create", Name: "thabo"},
			{Op: "append", Payload: "p1", Signers: []string{"thabo"}},
			{Op: "expect_record_count", Want: "3"}, // genesis, user_create, p1
			{Op: "expect_verify", Want: "true"},
		},
	},
	{
		Name:        "tamper_detection",
		Description: "mutating a stored record's payload after the fact is caught by verify",
		Steps: []Step{
			{Op: "user_create", Name: "thabo"},
			{Op: "append", Payload: "p1", Signers: []string{"thabo"}},
			{Op: "tamper", RecordID: 2, Field: "payload", Value: "p2"},
			{Op: "expect_verify", Want: "false"},
		},
	},
	{
		Name:        "workflow_happy_path",
		Description: "a transition signed by every required role is admitted and advances state",
		Workflows:   []string{procurementWorkflow},
		Steps: []Step{
			{Op: "user_create", Name: "u1"},
			{Op: "user_add_role", Name: "u1", Role: "procuring_officer"},
			{Op: "user_create", Name: "u2"},
			{Op: "user_add_role", Name: "u2", Role: "finance_approver"},
			{Op: "append", EntityID: "T1", Workflow: "procurement", Action: "award_contract", Version: "1", Payload: "contract body", Signers: []string{"u1", "u2"}},
			{Op: "expect_state", Workflow: "procurement", EntityID: "T1", Want: "awarded"},
		},
	},
	{
		Name:        "workflow_rejects_missing_role",
		Description: "a transition missing a required role's signer is rejected and appends nothing",
		Workflows:   []string{procurementWorkflow},
		Steps: []Step{
			{Op: "user_create", Name: "u1"},
			{Op: "user_add_role", Name: "u1", Role: "procuring_officer"},
			{Op: "append", EntityID: "T1", Workflow: "procurement", Action: "award_contract", Version: "1", Payload: "contract body", Signers: []string{"u1"}, WantErrKind: "workflow_rejection", WantErrCode: "missing_role"},
			{Op: "expect_record_count", Want: "3"}, // genesis, user_create, add_role - the rejected append never lands
		},
	},
	{
		Name:        "workflow_rejects_illegal_transition",
		Description: "re-applying a transition from a terminal state is rejected",
		Workflows:   []string{procurementWorkflow},
		Steps: []Step{
			{Op: "user_create", Name: "u1"},
			{Op: "user_add_role", Name: "u1", Role: "procuring_officer"},
			{Op: "user_create", Name: "u2"},
			{Op: "user_add_role", Name: "u2", Role: "finance_approver"},
			{Op: "append", EntityID: "T1", Workflow: "procurement", Action: "award_contract", Version: "1", Payload: "contract body", Signers: []string{"u1", "u2"}},
			{Op: "append", EntityID: "T1", Workflow: "procurement", Action: "award_contract", Version: "1", Payload: "again", Signers: []string{"u1", "u2"}, WantErrKind: "workflow_rejection", WantErrCode: "from_state_mismatch"},
		},
	},
	{
		Name:        "role_grant_replays",
		Description: "a role grant is itself a record appended to the chain",
		Steps: []Step{
			{Op: "user_create", Name: "thabo"},
			{Op: "user_add_role", Name: "thabo", Role: "land_officer"},
			{Op: "expect_record_count", Want: "3"},
		},
	},
}

func TestSeedScenarios(t *testing.T) {
	for _, s := range seedScenarios {
		s := s
		t.Run(s.Name, func(t *testing.T) {
			Run(t, s)
		})
	}
}

// TestLoadScenarioRoundTrip exercises the YAML loader on one of the seed
// cases serialized to its wire form, so the declarative format itself
// (the thing testdata/scenarios/*.yaml files are written in) is covered,
// not just the Go-literal Scenario values above.
func TestLoadScenarioRoundTrip(t *testing.T) {
	raw := []byte(`
name: genesis_and_one_record
description: a fresh database has a genesis record and one appended record chains to it
steps:
  - op: user_create
    name: thabo
  - op: append
    payload: p1
    signers: [thabo]
  - op: expect_record_count
    want: "3"
  - op: expect_verify
    want: "true"
`)
	s, err := LoadScenario(raw)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	Run(t, s)
}

// TestScenarioFixtures runs every declarative scenario checked in under
// testdata/scenarios (currently role_grant_replays, one of the cases of the
// Go-literal table above).
func TestScenarioFixtures(t *testing.T) {
	matches, err := filepath.Glob("testdata/scenarios/*.yaml")
	if err != nil {
		t.Fatalf("glob testdata/scenarios: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no scenario fixtures found under testdata/scenarios")
	}
	for _, path := range matches {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenarioFile(path)
			if err != nil {
				t.Fatalf("LoadScenarioFile(%s): %v", path, err)
			}
			Run(t, s)
		})
	}
}

func TestLoadScenarioRejectsUnknownOp(t *testing.T) {
	raw := []byte(`
name: bad
steps:
  - op: self_destruct
`)
	if _, err := LoadScenario(raw); err == nil {
		t.Fatal("expected LoadScenario to reject an unknown op")
	}
}
