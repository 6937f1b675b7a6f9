package ledger

import (
	"errors"
	"fmt"

	"github.com/elviscgn/UkweliDB/internal/chain"
	"github.com/elviscgn/UkweliDB/internal/identity"
	"github.com/elviscgn/UkweliDB/internal/ports"
	"github.com/elviscgn/UkweliDB/internal/record"
	"github.com/elviscgn/UkweliDB/internal/workflow"
)

// SystemSigner is the conventional identity name for the genesis signature
// and for bootstrapping the first administrative users; it is never a user
// the identity registry has seen.
const SystemSigner = chain.SystemSigner

// Ledger is the single process-wide object that owns the chain, the derived
// identity registry, and the derived workflow state (§9 "global state...
// lifecycle is open(dir) -> operate -> close. Nothing escapes it.").
type Ledger struct {
	persistence ports.Persistence
	keystore    ports.Keystore
	chain       *chain.Engine
	registry    *identity.Registry
	workflows   *workflow.Engine
}

// Open loads an existing database: the chain is read through the
// persistence port and every record is replayed to rebuild the identity
// registry and per-entity workflow state from scratch, per §9's "derived
// state vs stored state" rule. defs are loaded into the workflow engine
// before replay so that workflow-gated records can be folded.
func Open(persistence ports.Persistence, keystore ports.Keystore, defs []*workflow.Definition) (*Ledger, error) {
	chainEngine, err := chain.Open(persistence)
	if err != nil {
		return nil, newError(KindIOError, "open_failed", err.Error(), nil)
	}

	l := &Ledger{
		persistence: persistence,
		keystore:    keystore,
		chain:       chainEngine,
		registry:    identity.New(),
		workflows:   workflow.New(),
	}
	for _, def := range defs {
		l.workflows.LoadDefinition(def)
	}

	if err := l.replay(); err != nil {
		return nil, err
	}
	return l, nil
}

// replay folds every record already on the chain into the registry and
// workflow indices, in chain order, starting from empty. It is the one code
// path that builds these projections. Open calls it once on load, and
// Append calls the same per-record logic incrementally after each success.
func (l *Ledger) replay() error {
	for _, r := range l.chain.All() {
		if err := l.fold(r); err != nil {
			return newError(KindIntegrityError, "replay_failed", fmt.Sprintf("record %d: %v", r.ID, err), map[string]any{"id": r.ID})
		}
	}
	return nil
}

// fold applies one already-committed record's side effects to the derived
// registry/workflow indices.
func (l *Ledger) fold(r record.Record) error {
	if p, ok := identity.DecodePayload(r.Payload); ok {
		return l.registry.Apply(p)
	}
	if !r.Workflow.IsZero() {
		env, err := decodeWorkflowEnvelope(r.Payload)
		if err != nil {
			return err
		}
		l.workflows.Fold(r.Workflow.WorkflowName, r.EntityID, env.ToState, env.Version)
	}
	return nil
}

// Init creates a fresh database: it provisions the system identity in the
// keystore and writes the genesis record. Fails if persistence already
// holds any records.
func Init(persistence ports.Persistence, keystore ports.Keystore, genesisPayload []byte, timestamp int64, defs []*workflow.Definition) (*Ledger, error) {
	chainEngine, err := chain.Open(persistence)
	if err != nil {
		return nil, newError(KindIOError, "open_failed", err.Error(), nil)
	}
	if chainEngine.Len() != 0 {
		return nil, newError(KindInputError, "already_initialized", "database already has a genesis record", nil)
	}

	if _, err := keystore.CreateIdentity(SystemSigner); err != nil {
		return nil, newError(KindIOError, "keystore_failed", err.Error(), nil)
	}
	if _, err := chainEngine.AppendGenesis(genesisPayload, timestamp, SystemSigner, keystore); err != nil {
		return nil, wrapChainError(err)
	}

	l := &Ledger{
		persistence: persistence,
		keystore:    keystore,
		chain:       chainEngine,
		registry:    identity.New(),
		workflows:   workflow.New(),
	}
	for _, def := range defs {
		l.workflows.LoadDefinition(def)
	}
	return l, nil
}

// LoadWorkflowDefinition registers def as the active version of its named
// workflow for subsequent admission checks.
func (l *Ledger) LoadWorkflowDefinition(def *workflow.Definition) {
	l.workflows.LoadDefinition(def)
}

// AppendRequest is the caller-supplied shape of a proposed append. Workflow
// is the zero value for a freeform, non-gated record.
type AppendRequest struct {
	Timestamp int64
	EntityID  string
	Workflow  record.WorkflowRef
	Version   string
	Payload   []byte
	Signers   []string
}

// Append runs workflow admission (if the request is workflow-gated) and then
// the chain append, as one atomic operation from the caller's perspective:
// on any error neither the chain nor the derived indices are changed.
func (l *Ledger) Append(req AppendRequest) (record.Record, error) {
	if len(req.Signers) == 0 {
		return record.Record{}, newError(KindInputError, "empty_signers", "at least one signer is required", nil)
	}

	payload := req.Payload

	if !req.Workflow.IsZero() {
		if req.EntityID == "" {
			return record.Record{}, newError(KindInputError, "missing_entity_id", "workflow-gated records require an entity id", nil)
		}

		signerRoles, err := l.resolveSignerRoles(req.Signers)
		if err != nil {
			return record.Record{}, err
		}

		def, transition, err := l.workflows.Admit(req.Workflow.WorkflowName, req.Workflow.ActionName, req.EntityID, req.Version, signerRoles)
		if err != nil {
			return record.Record{}, wrapWorkflowError(err)
		}
		checksum := fmt.Sprintf("%x", def.FileChecksum.Bytes())
		enveloped, err := encodeWorkflowEnvelope(req.Version, transition.To, checksum, req.Payload)
		if err != nil {
			return record.Record{}, newError(KindInputError, "payload_encode_failed", err.Error(), nil)
		}
		payload = enveloped
	}

	r, err := l.chain.Append(chain.ProposedAppend{
		Timestamp: req.Timestamp,
		EntityID:  req.EntityID,
		Workflow:  req.Workflow,
		Payload:   payload,
		Signers:   req.Signers,
	}, l.registry, l.keystore)
	if err != nil {
		return record.Record{}, wrapChainError(err)
	}

	if err := l.fold(r); err != nil {
		return record.Record{}, newError(KindIntegrityError, "fold_failed", err.Error(), map[string]any{"id": r.ID})
	}
	return r, nil
}

func (l *Ledger) resolveSignerRoles(signers []string) ([]workflow.SignerRoles, error) {
	out := make([]workflow.SignerRoles, 0, len(signers))
	for _, name := range signers {
		roles, err := l.registry.RolesOf(name)
		if err != nil {
			return nil, newError(KindInputError, "unknown_signer", err.Error(), map[string]any{"signer": name})
		}
		out = append(out, workflow.SignerRoles{Name: name, Roles: roles})
	}
	return out, nil
}

// UserCreate provisions a fresh keystore identity for name and records the
// grant as a user_create administrative record, signed by signer (the
// system signer or an already-registered user; the signer's roles are not
// checked).
func (l *Ledger) UserCreate(name, signer string, timestamp int64) (record.Record, error) {
	if l.registry.Exists(name) {
		return record.Record{}, newError(KindInputError, "user_exists", fmt.Sprintf("user %q already exists", name), map[string]any{"name": name})
	}

	pub, err := l.keystore.CreateIdentity(name)
	if err != nil {
		return record.Record{}, newError(KindIOError, "keystore_failed", err.Error(), nil)
	}

	payload, err := identity.EncodeUserCreate(name, pub)
	if err != nil {
		return record.Record{}, newError(KindInputError, "payload_encode_failed", err.Error(), nil)
	}

	return l.Append(AppendRequest{Timestamp: timestamp, Payload: payload, Signers: []string{signer}})
}

// UserAddRole grants role to name, recorded as a user_add_role
// administrative record signed by signer.
func (l *Ledger) UserAddRole(name, role, signer string, timestamp int64) (record.Record, error) {
	if !l.registry.Exists(name) {
		return record.Record{}, newError(KindInputError, "unknown_user", fmt.Sprintf("user %q does not exist", name), map[string]any{"name": name})
	}

	payload, err := identity.EncodeUserAddRole(name, role)
	if err != nil {
		return record.Record{}, newError(KindInputError, "payload_encode_failed", err.Error(), nil)
	}

	return l.Append(AppendRequest{Timestamp: timestamp, Payload: payload, Signers: []string{signer}})
}

// UserNames returns every identity the registry has derived from the chain,
// sorted.
func (l *Ledger) UserNames() []string {
	return l.registry.Names()
}

// UserRoles returns the roles currently held by name.
func (l *Ledger) UserRoles(name string) ([]string, error) {
	roles, err := l.registry.RolesOf(name)
	if err != nil {
		return nil, newError(KindInputError, "unknown_user", err.Error(), map[string]any{"name": name})
	}
	return roles, nil
}

// CurrentState returns entityID's derived current state under workflowName.
func (l *Ledger) CurrentState(workflowName, entityID string) (string, error) {
	def, ok := l.workflows.Definition(workflowName)
	if !ok {
		return "", newError(KindInputError, "unknown_workflow", fmt.Sprintf("workflow %q is not loaded", workflowName), nil)
	}
	return l.workflows.CurrentState(def, entityID), nil
}

// RecordList returns every record in chain order.
func (l *Ledger) RecordList() []record.Record {
	return l.chain.All()
}

// RecordShow returns the record with the given id.
func (l *Ledger) RecordShow(id uint64) (record.Record, error) {
	r, err := l.chain.Get(id)
	if err != nil {
		return record.Record{}, newError(KindInputError, "not_found", err.Error(), map[string]any{"id": id})
	}
	return r, nil
}

// Close releases the underlying persistence port.
func (l *Ledger) Close() error {
	return l.persistence.Close()
}

// wrapChainError translates a *chain.SignatureError or sentinel chain error
// into the façade's closed taxonomy.
func wrapChainError(err error) error {
	var sigErr *chain.SignatureError
	if errors.As(err, &sigErr) {
		return newError(KindSignatureError, "signature_invalid", sigErr.Error(), map[string]any{"signer": sigErr.Signer})
	}
	switch {
	case errors.Is(err, chain.ErrEmptySigners), errors.Is(err, chain.ErrUnknownSigner), errors.Is(err, chain.ErrEmptyPayload):
		return newError(KindInputError, "invalid_append", err.Error(), nil)
	case errors.Is(err, chain.ErrNonMonotonicTime):
		return newError(KindIntegrityError, "non_monotonic_timestamp", err.Error(), nil)
	default:
		return newError(KindIOError, "persistence_failed", err.Error(), nil)
	}
}

// wrapWorkflowError translates a *workflow.RejectionError into the façade's
// workflow_rejection taxonomy member.
func wrapWorkflowError(err error) error {
	var rerr *workflow.RejectionError
	if errors.As(err, &rerr) {
		details := map[string]any{"detail": rerr.Detail}
		if rerr.Role != "" {
			details["role"] = rerr.Role
		}
		return newError(KindWorkflowRejection, rerr.Reason, rerr.Error(), details)
	}
	return newError(KindWorkflowRejection, "unknown", err.Error(), nil)
}
