package workflow

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/elviscgn/UkweliDB/internal/crypto"
)

// schemaCUE is the closed shape every workflow definition document must
// unify against. CUE definitions (the "#" prefix) are closed by default, so
// a document carrying any key outside this shape fails Validate, satisfying
// §4.4's "unknown top-level keys are rejected" before any Go-level semantic
// check runs.
const schemaCUE = `
#Transition: {
	from:            string
	to:              string
	action:          string
	required_roles: [...string]
}

#Document: {
	workflow: {
		name:    string
		version: string
	}
	states:           [...string]
	initial_state?:   string
	terminal_states?: [...string]
	transitions:      [...#Transition]
}
`

type rawTransition struct {
	From          string   `json:"from"`
	To            string   `json:"to"`
	Action        string   `json:"action"`
	RequiredRoles []string `json:"required_roles"`
}

type rawDocument struct {
	Workflow struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"workflow"`
	States          []string        `json:"states"`
	InitialState    string          `json:"initial_state"`
	TerminalStates  []string        `json:"terminal_states"`
	Transitions     []rawTransition `json:"transitions"`
}

// Transition is a declared edge of a workflow's state graph (§3, §4.4).
type Transition struct {
	From          string
	To            string
	Action        string
	RequiredRoles []string // multiset: duplicates mean "N distinct signers with this role"
}

// Definition is a loaded, validated workflow definition (§3).
type Definition struct {
	Name           string
	Version        string
	States         map[string]struct{}
	InitialState   string
	TerminalStates map[string]struct{}
	Transitions    []Transition

	// FileChecksum hashes the raw document this Definition was parsed from
	// (§3 "definitions ... identical to what was present when records
	// referencing them were appended"). Records committed against this
	// definition carry it in their workflow envelope; Verify recomputes it
	// against whatever definition is currently loaded to catch drift.
	FileChecksum crypto.Digest

	// transitionsByFrom indexes Transitions for admission-rule lookups.
	transitionsByFrom map[string][]Transition
}

// IsTerminal reports whether state is in TerminalStates: the states listed
// in terminal_states when the document gives them, otherwise the states
// with no outgoing transition.
func (d *Definition) IsTerminal(state string) bool {
	_, ok := d.TerminalStates[state]
	return ok
}

// TransitionFor finds the declared transition named action originating from
// state from, if any.
func (d *Definition) TransitionFor(from, action string) (Transition, bool) {
	for _, t := range d.transitionsByFrom[from] {
		if t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

// ParseDefinition parses and validates a workflow definition document.
// filename is used only for error messages.
func ParseDefinition(source []byte, filename string) (*Definition, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return nil, &ValidationError{Code: ErrCodeSchemaInvalid, Message: fmt.Sprintf("internal schema error: %v", err)}
	}
	docSchema := schema.LookupPath(cue.ParsePath("#Document"))

	docVal := ctx.CompileBytes(source, cue.Filename(filename))
	if err := docVal.Err(); err != nil {
		return nil, &ValidationError{Code: ErrCodeParse, Message: err.Error()}
	}

	unified := docVal.Unify(docSchema)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &ValidationError{Code: ErrCodeUnknownKey, Message: err.Error()}
	}

	var raw rawDocument
	if err := unified.Decode(&raw); err != nil {
		return nil, &ValidationError{Code: ErrCodeParse, Message: err.Error()}
	}

	def, err := buildDefinition(raw)
	if err != nil {
		return nil, err
	}
	def.FileChecksum = crypto.HashWorkflowFile(source)
	return def, nil
}

func buildDefinition(raw rawDocument) (*Definition, error) {
	if raw.Workflow.Name == "" {
		return nil, &ValidationError{Code: ErrCodeMissingField, Message: "workflow.name is required"}
	}
	if raw.Workflow.Version == "" {
		return nil, &ValidationError{Code: ErrCodeMissingField, Message: "workflow.version is required"}
	}
	if len(raw.States) == 0 {
		return nil, &ValidationError{Code: ErrCodeNoStates, Message: "workflow must declare at least one state"}
	}

	states := make(map[string]struct{}, len(raw.States))
	for _, s := range raw.States {
		states[s] = struct{}{}
	}

	initial := raw.InitialState
	if initial == "" {
		initial = raw.States[0]
	}
	if _, ok := states[initial]; !ok {
		return nil, &ValidationError{Code: ErrCodeUnknownState, Message: fmt.Sprintf("initial_state %q not declared in states", initial)}
	}

	seenActions := make(map[string]struct{}, len(raw.Transitions))
	hasOutgoing := make(map[string]struct{}, len(raw.States))
	transitions := make([]Transition, 0, len(raw.Transitions))

	for _, rt := range raw.Transitions {
		if _, ok := states[rt.From]; !ok {
			return nil, &ValidationError{Code: ErrCodeUnknownState, Message: fmt.Sprintf("transition %q: from-state %q not declared", rt.Action, rt.From)}
		}
		if _, ok := states[rt.To]; !ok {
			return nil, &ValidationError{Code: ErrCodeUnknownState, Message: fmt.Sprintf("transition %q: to-state %q not declared", rt.Action, rt.To)}
		}
		if rt.Action == "" {
			return nil, &ValidationError{Code: ErrCodeMissingField, Message: "transition action name must not be empty"}
		}
		if _, dup := seenActions[rt.Action]; dup {
			return nil, &ValidationError{Code: ErrCodeDuplicateAction, Message: fmt.Sprintf("duplicate action name %q", rt.Action)}
		}
		seenActions[rt.Action] = struct{}{}
		if len(rt.RequiredRoles) == 0 {
			return nil, &ValidationError{Code: ErrCodeEmptyRoles, Message: fmt.Sprintf("transition %q: required_roles must be non-empty", rt.Action)}
		}

		hasOutgoing[rt.From] = struct{}{}
		transitions = append(transitions, Transition{
			From:          rt.From,
			To:            rt.To,
			Action:        rt.Action,
			RequiredRoles: append([]string(nil), rt.RequiredRoles...),
		})
	}

	terminal := make(map[string]struct{})
	if len(raw.TerminalStates) > 0 {
		for _, s := range raw.TerminalStates {
			if _, ok := states[s]; !ok {
				return nil, &ValidationError{Code: ErrCodeUnknownState, Message: fmt.Sprintf("terminal_states: %q not declared", s)}
			}
			terminal[s] = struct{}{}
		}
	} else {
		for s := range states {
			if _, ok := hasOutgoing[s]; !ok {
				terminal[s] = struct{}{}
			}
		}
	}

	byFrom := make(map[string][]Transition)
	for _, t := range transitions {
		byFrom[t.From] = append(byFrom[t.From], t)
	}

	return &Definition{
		Name:              raw.Workflow.Name,
		Version:           raw.Workflow.Version,
		States:            states,
		InitialState:      initial,
		TerminalStates:    terminal,
		Transitions:       transitions,
		transitionsByFrom: byFrom,
	}, nil
}
