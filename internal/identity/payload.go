package identity

import "encoding/json"

// Action names of the two administrative record kinds the identity registry
// replays from the chain (§4.2, §3 "role grants are themselves records").
const (
	ActionUserCreate  = "user_create"
	ActionUserAddRole = "user_add_role"
)

// AdminPayload is the JSON envelope stored in the Payload of an
// administrative record. It is opaque to the chain engine: the ledger
// façade is the only code that constructs and interprets it.
type AdminPayload struct {
	Action    string `json:"action"`
	Name      string `json:"name"`
	PublicKey []byte `json:"public_key,omitempty"`
	Role      string `json:"role,omitempty"`
}

// EncodeUserCreate builds the payload for a user_create administrative
// record.
func EncodeUserCreate(name string, publicKey []byte) ([]byte, error) {
	return json.Marshal(AdminPayload{Action: ActionUserCreate, Name: name, PublicKey: publicKey})
}

// EncodeUserAddRole builds the payload for a user_add_role administrative
// record.
func EncodeUserAddRole(name, role string) ([]byte, error) {
	return json.Marshal(AdminPayload{Action: ActionUserAddRole, Name: name, Role: role})
}

// DecodePayload parses an administrative record's payload. Returns
// ok == false for payloads that are not administrative records (e.g. a
// regular workflow-gated or freeform append).
func DecodePayload(raw []byte) (AdminPayload, bool) {
	var p AdminPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return AdminPayload{}, false
	}
	if p.Action != ActionUserCreate && p.Action != ActionUserAddRole {
		return AdminPayload{}, false
	}
	return p, true
}

// Apply replays a single decoded administrative payload against the
// registry, in chain order. It is the single code path used both by
// "apply this new record" (append) and "replay the whole chain" (load).
func (r *Registry) Apply(p AdminPayload) error {
	switch p.Action {
	case ActionUserCreate:
		return r.CreateUser(p.Name, p.PublicKey)
	case ActionUserAddRole:
		return r.AddRole(p.Name, p.Role)
	}
	return nil
}
