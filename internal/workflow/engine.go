package workflow

// SignerRoles is the minimal view the workflow engine needs of a proposed
// record's signer: their name (for error reporting) and the roles the
// identity registry holds for them at this chain point. The engine never
// talks to the identity registry directly: the ledger façade resolves
// roles and passes this in, keeping the two packages decoupled (§9 "dynamic
// dispatch... small interfaces rather than inheritance hierarchies").
type SignerRoles struct {
	Name  string
	Roles []string
}

type entityState struct {
	current      string
	boundVersion string
}

// Engine maintains the loaded workflow definitions and the derived
// per-entity current-state index (§4.4). Like the identity registry, the
// state index is a pure projection over the chain: Fold is the only way it
// changes, and a fresh Engine replaying every record from genesis must reach
// the same index as one that folded records incrementally as they were
// appended.
type Engine struct {
	definitions map[string]*Definition // by workflow name; one loaded version at a time
	states      map[string]entityState // key: workflowName + "\x00" + entityID
}

// New returns an Engine with no definitions loaded and no entity history.
func New() *Engine {
	return &Engine{
		definitions: make(map[string]*Definition),
		states:      make(map[string]entityState),
	}
}

// LoadDefinition registers def as the active version of its named workflow.
// Loading a new version for a name already loaded replaces it; entities
// already bound to the previous version keep that binding (see Admit).
func (e *Engine) LoadDefinition(def *Definition) {
	e.definitions[def.Name] = def
}

// Definition returns the currently loaded definition for name, if any.
func (e *Engine) Definition(name string) (*Definition, bool) {
	d, ok := e.definitions[name]
	return d, ok
}

// Names returns the names of every currently loaded workflow definition.
func (e *Engine) Names() []string {
	names := make([]string, 0, len(e.definitions))
	for name := range e.definitions {
		names = append(names, name)
	}
	return names
}

func entityKey(workflowName, entityID string) string {
	return workflowName + "\x00" + entityID
}

// CurrentState returns the derived current state of entityID under
// workflowName, or def.InitialState if the entity has no prior gated record.
func (e *Engine) CurrentState(def *Definition, entityID string) string {
	st, ok := e.states[entityKey(def.Name, entityID)]
	if !ok {
		return def.InitialState
	}
	return st.current
}

// Admit evaluates the four-step admission rule (§4.4) for a proposed
// workflow-gated record and returns the matched transition, or a
// *RejectionError identifying which step failed.
func (e *Engine) Admit(workflowName, action, entityID, version string, signers []SignerRoles) (*Definition, Transition, error) {
	def, ok := e.definitions[workflowName]
	if !ok {
		return nil, Transition{}, &RejectionError{Reason: ReasonUnknownWorkflow, Detail: workflowName}
	}

	key := entityKey(workflowName, entityID)
	existing, seen := e.states[key]
	if seen && existing.boundVersion != "" && existing.boundVersion != version && version != "" {
		return nil, Transition{}, &RejectionError{
			Reason: ReasonFromStateMismatch,
			Detail: "entity is bound to workflow version " + existing.boundVersion + ", proposed record targets " + version,
		}
	}

	current := def.InitialState
	if seen {
		current = existing.current
	}

	transition, ok := def.TransitionFor(current, action)
	if !ok {
		if _, declared := firstTransitionNamed(def, action); !declared {
			return nil, Transition{}, &RejectionError{Reason: ReasonUnknownAction, Detail: action}
		}
		return nil, Transition{}, &RejectionError{
			Reason: ReasonFromStateMismatch,
			Detail: "entity is in state " + current + ", action " + action + " requires a different from-state",
		}
	}

	if def.IsTerminal(current) {
		return nil, Transition{}, &RejectionError{Reason: ReasonTerminalState, Detail: current}
	}

	ok, missingRole := hasDistinctSignerMatching(transition.RequiredRoles, signers)
	if !ok {
		return nil, Transition{}, &RejectionError{Reason: ReasonMissingRole, Role: missingRole, Detail: "no distinct signer available for role"}
	}

	return def, transition, nil
}

// firstTransitionNamed reports whether action is declared anywhere in def,
// regardless of from-state, distinguishing "unknown action" from "action
// exists but not from this state" for admission error reporting.
func firstTransitionNamed(def *Definition, action string) (Transition, bool) {
	for _, t := range def.Transitions {
		if t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

// Fold applies a successfully admitted transition to the derived state
// index. Called once per successful workflow-gated append, and once per
// record replayed during verify()/load.
func (e *Engine) Fold(workflowName, entityID, toState, version string) {
	key := entityKey(workflowName, entityID)
	bound := version
	if existing, ok := e.states[key]; ok && existing.boundVersion != "" {
		bound = existing.boundVersion
	}
	e.states[key] = entityState{current: toState, boundVersion: bound}
}

// hasDistinctSignerMatching decides whether a bipartite matching exists
// between the required-role multiset (one slot per required instance of a
// role) and distinct signers covering those slots, per §4.4 rule 3: "a
// single signer may not cover two slots of the same required role."
//
// A greedy scan is not sufficient here (e.g. required=[A,B],
// signers=[{A,B},{A}] has a valid assignment (second signer -> A, first
// signer -> B) that a naive left-to-right greedy assignment of the first
// slot would miss. This is solved with Kuhn's augmenting-path algorithm,
// standard for bipartite maximum matching.
func hasDistinctSignerMatching(required []string, signers []SignerRoles) (bool, string) {
	matchSigner := make([]int, len(signers))
	for i := range matchSigner {
		matchSigner[i] = -1
	}

	for slot, role := range required {
		visited := make([]bool, len(signers))
		if !tryAssign(slot, role, required, signers, matchSigner, visited) {
			return false, role
		}
	}
	return true, ""
}

func tryAssign(slot int, role string, required []string, signers []SignerRoles, matchSigner []int, visited []bool) bool {
	for j, s := range signers {
		if visited[j] || !hasRole(s.Roles, role) {
			continue
		}
		visited[j] = true
		if matchSigner[j] == -1 || tryAssign(matchSigner[j], required[matchSigner[j]], required, signers, matchSigner, visited) {
			matchSigner[j] = slot
			return true
		}
	}
	return false
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
