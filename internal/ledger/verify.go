package ledger

import (
	"fmt"

	"github.com/elviscgn/UkweliDB/internal/chain"
	"github.com/elviscgn/UkweliDB/internal/identity"
	"github.com/elviscgn/UkweliDB/internal/workflow"
)

// Break describes one verification failure, tagged with the closed
// taxonomy Kind it belongs to (§7).
type Break struct {
	ID     uint64
	Kind   Kind
	Reason string
}

// VerifyReport aggregates the two-stage verify data flow of §2: the chain
// engine's link/signature recomputation, followed by a workflow replay that
// catches any chain-resident record that never should have been admitted.
type VerifyReport struct {
	OK     bool
	Length uint64
	Breaks []Break
}

// Verify recomputes every chain link and signature, then independently
// replays every workflow-gated record against fresh registry and workflow
// state (never the live l.registry/l.workflows, so a bug in incremental
// folding cannot hide behind a verify() that only checks its own cache).
func (l *Ledger) Verify() (VerifyReport, error) {
	chainReport, err := chain.Verify(l.persistence, l.keystore)
	if err != nil {
		return VerifyReport{}, newError(KindIOError, "verify_failed", err.Error(), nil)
	}

	report := VerifyReport{OK: chainReport.OK, Length: chainReport.Length}
	for _, b := range chainReport.Breaks {
		kind := KindChainBreak
		switch b.Kind {
		case chain.BreakSignature:
			kind = KindSignatureError
		case chain.BreakIntegrity:
			kind = KindIntegrityError
		}
		report.Breaks = append(report.Breaks, Break{ID: b.ID, Kind: kind, Reason: b.Reason})
	}

	workflowBreaks, err := l.replayWorkflowBreaks()
	if err != nil {
		return VerifyReport{}, err
	}
	if len(workflowBreaks) > 0 {
		report.OK = false
		report.Breaks = append(report.Breaks, workflowBreaks...)
	}

	return report, nil
}

// replayWorkflowBreaks independently re-derives identity and workflow state
// from scratch and re-runs admission for every workflow-gated record,
// flagging any that would not have been admitted today as a workflow break
// (§4.4 "if verify() encounters one it is reported as a workflow break").
func (l *Ledger) replayWorkflowBreaks() ([]Break, error) {
	registry := identity.New()
	engine := workflow.New()
	for _, name := range l.workflows.Names() {
		if def, ok := l.workflows.Definition(name); ok {
			engine.LoadDefinition(def)
		}
	}

	var breaks []Break
	for _, r := range l.chain.All() {
		if p, ok := identity.DecodePayload(r.Payload); ok {
			_ = registry.Apply(p)
			continue
		}
		if r.Workflow.IsZero() {
			continue
		}

		env, err := decodeWorkflowEnvelope(r.Payload)
		if err != nil {
			breaks = append(breaks, Break{ID: r.ID, Kind: KindWorkflowBreak, Reason: fmt.Sprintf("unreadable workflow envelope: %v", err)})
			continue
		}

		signerRoles := make([]workflow.SignerRoles, 0, len(r.Signatures))
		for _, sig := range r.Signatures {
			roles, _ := registry.RolesOf(sig.Signer)
			signerRoles = append(signerRoles, workflow.SignerRoles{Name: sig.Signer, Roles: roles})
		}

		def, transition, err := engine.Admit(r.Workflow.WorkflowName, r.Workflow.ActionName, r.EntityID, env.Version, signerRoles)
		if err != nil {
			breaks = append(breaks, Break{ID: r.ID, Kind: KindWorkflowBreak, Reason: err.Error()})
			continue
		}
		if transition.To != env.ToState {
			breaks = append(breaks, Break{ID: r.ID, Kind: KindWorkflowBreak, Reason: "recorded to_state does not match the declared transition's target"})
			continue
		}
		if env.DefinitionChecksum != "" {
			if got := fmt.Sprintf("%x", def.FileChecksum.Bytes()); got != env.DefinitionChecksum {
				breaks = append(breaks, Break{ID: r.ID, Kind: KindWorkflowBreak, Reason: "workflow definition has changed since this record was appended"})
				continue
			}
		}
		engine.Fold(r.Workflow.WorkflowName, r.EntityID, transition.To, env.Version)
	}
	return breaks, nil
}

