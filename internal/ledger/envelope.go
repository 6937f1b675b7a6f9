package ledger

import "encoding/json"

// workflowEnvelope wraps a caller's raw payload for a workflow-gated record
// so that the committed transition's target state and the workflow version
// it was evaluated against are part of the record's canonical, hashed
// content (§3 "enforced by hashing the workflow (name, version) tuple into
// the record"). The canonical record layout (§6) has no dedicated version
// field, so the commitment lives here, inside payload, rather than widening
// the normative wire layout.
type workflowEnvelope struct {
	Version string `json:"version"`
	ToState string `json:"to_state"`
	Data    []byte `json:"data"`

	// DefinitionChecksum is the hex-encoded crypto.HashWorkflowFile of the
	// definition document this transition was admitted against, so Verify
	// can detect a workflow file that has changed since this record was
	// appended (§3's definition-drift requirement).
	DefinitionChecksum string `json:"definition_checksum"`
}

func encodeWorkflowEnvelope(version, toState, definitionChecksum string, data []byte) ([]byte, error) {
	return json.Marshal(workflowEnvelope{Version: version, ToState: toState, Data: data, DefinitionChecksum: definitionChecksum})
}

func decodeWorkflowEnvelope(raw []byte) (workflowEnvelope, error) {
	var env workflowEnvelope
	err := json.Unmarshal(raw, &env)
	return env, err
}
