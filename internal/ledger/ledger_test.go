package ledger

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elviscgn/UkweliDB/internal/crypto"
	"github.com/elviscgn/UkweliDB/internal/record"
	"github.com/elviscgn/UkweliDB/internal/workflow"
)

type memPersistence struct {
	records []record.Record
}

func (m *memPersistence) ReadAll() ([]record.Record, error) {
	out := make([]record.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *memPersistence) Append(r record.Record) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memPersistence) Flush() error { return nil }
func (m *memPersistence) Close() error { return nil }

type memKeystore struct {
	keys map[string]crypto.KeyPair
}

func newMemKeystore() *memKeystore {
	return &memKeystore{keys: make(map[string]crypto.KeyPair)}
}

func (k *memKeystore) CreateIdentity(userName string) (ed25519.PublicKey, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	k.keys[userName] = kp
	return kp.Public, nil
}

func (k *memKeystore) Sign(userName string, digest [32]byte) ([]byte, error) {
	kp, ok := k.keys[userName]
	if !ok {
		return nil, errors.New("memKeystore: no key for user")
	}
	return crypto.Sign(kp.Private, crypto.Digest(digest))
}

func (k *memKeystore) PublicKey(userName string) (ed25519.PublicKey, error) {
	kp, ok := k.keys[userName]
	if !ok {
		return nil, errors.New("memKeystore: no key for user")
	}
	return kp.Public, nil
}

func newTestLedger(t *testing.T) (*Ledger, *memPersistence, *memKeystore) {
	t.Helper()
	persistence := &memPersistence{}
	keystore := newMemKeystore()

	l, err := Init(persistence, keystore, []byte(`{"database":"test"}`), 1000, nil)
	require.NoError(t, err)
	return l, persistence, keystore
}

func procurementDefinition(t *testing.T) *workflow.Definition {
	t.Helper()
	def, err := workflow.ParseDefinition([]byte(`
workflow: { name: "procurement", version: "1" }
states: ["open", "awarded"]
transitions: [
	{ from: "open", to: "awarded", action: "award_contract", required_roles: ["procuring_officer", "finance_approver"] },
]
`), "procurement.cue")
	require.NoError(t, err)
	return def
}

// Scenario 1: genesis + one record (§8 seed case 1).
func TestScenarioGenesisAndOneRecord(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.UserCreate("thabo", SystemSigner, 1000)
	require.NoError(t, err)

	r, err := l.Append(AppendRequest{Timestamp: 1001, Payload: []byte("p1"), Signers: []string{"thabo"}})
	require.NoError(t, err)

	// p1 follows the user_create record, so it links to that record's hash.
	prev, err := l.RecordShow(r.ID - 1)
	require.NoError(t, err)
	assert.Equal(t, prev.Hash, r.PreviousHash)

	report, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Len(t, l.RecordList(), 3) // genesis, user_create, p1
}

// Scenario 2: tamper detection (§8 seed case 2).
func TestScenarioTamperDetection(t *testing.T) {
	l, persistence, _ := newTestLedger(t)

	_, err := l.UserCreate("thabo", SystemSigner, 1000)
	require.NoError(t, err)
	r, err := l.Append(AppendRequest{Timestamp: 1001, Payload: []byte("p1"), Signers: []string{"thabo"}})
	require.NoError(t, err)

	persistence.records[r.ID].Payload = []byte("p2")

	report, err := l.Verify()
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.NotEmpty(t, report.Breaks)
	assert.Equal(t, r.ID, report.Breaks[0].ID)
}

// Scenario 3: workflow happy path (§8 seed case 3).
func TestScenarioWorkflowHappyPath(t *testing.T) {
	l, _, _ := newTestLedger(t)
	l.LoadWorkflowDefinition(procurementDefinition(t))

	_, err := l.UserCreate("u1", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserAddRole("u1", "procuring_officer", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserCreate("u2", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserAddRole("u2", "finance_approver", SystemSigner, 1000)
	require.NoError(t, err)

	_, err = l.Append(AppendRequest{
		Timestamp: 1001,
		EntityID:  "T1",
		Workflow:  record.WorkflowRef{WorkflowName: "procurement", ActionName: "award_contract"},
		Version:   "1",
		Payload:   []byte("contract body"),
		Signers:   []string{"u1", "u2"},
	})
	require.NoError(t, err)

	state, err := l.CurrentState("procurement", "T1")
	require.NoError(t, err)
	assert.Equal(t, "awarded", state)
}

// Scenario 4: workflow rejection, missing role (§8 seed case 4).
func TestScenarioWorkflowRejectsMissingRole(t *testing.T) {
	l, _, _ := newTestLedger(t)
	l.LoadWorkflowDefinition(procurementDefinition(t))

	_, err := l.UserCreate("u1", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserAddRole("u1", "procuring_officer", SystemSigner, 1000)
	require.NoError(t, err)

	before := len(l.RecordList())

	_, err = l.Append(AppendRequest{
		Timestamp: 1001,
		EntityID:  "T1",
		Workflow:  record.WorkflowRef{WorkflowName: "procurement", ActionName: "award_contract"},
		Version:   "1",
		Payload:   []byte("contract body"),
		Signers:   []string{"u1"},
	})
	require.Error(t, err)
	assert.True(t, IsWorkflowRejection(err))
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, workflow.ReasonMissingRole, lerr.Code)
	assert.Equal(t, before, len(l.RecordList()))
}

// Scenario 5: workflow rejection, illegal transition after terminal reached
// (§8 seed case 5: "rejected with workflow rejection / from_state_mismatch
// (current is awarded, terminal)").
func TestScenarioWorkflowRejectsAfterTerminal(t *testing.T) {
	l, _, _ := newTestLedger(t)
	l.LoadWorkflowDefinition(procurementDefinition(t))

	_, err := l.UserCreate("u1", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserAddRole("u1", "procuring_officer", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserCreate("u2", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserAddRole("u2", "finance_approver", SystemSigner, 1000)
	require.NoError(t, err)

	_, err = l.Append(AppendRequest{
		Timestamp: 1001,
		EntityID:  "T1",
		Workflow:  record.WorkflowRef{WorkflowName: "procurement", ActionName: "award_contract"},
		Version:   "1",
		Payload:   []byte("contract body"),
		Signers:   []string{"u1", "u2"},
	})
	require.NoError(t, err)

	_, err = l.Append(AppendRequest{
		Timestamp: 1002,
		EntityID:  "T1",
		Workflow:  record.WorkflowRef{WorkflowName: "procurement", ActionName: "award_contract"},
		Version:   "1",
		Payload:   []byte("contract body again"),
		Signers:   []string{"u1", "u2"},
	})
	require.Error(t, err)
	assert.True(t, IsWorkflowRejection(err))
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, workflow.ReasonFromStateMismatch, lerr.Code)
}

// Scenario 6: a role grant is itself a record, replayable on a fresh
// process (§8 seed case 6).
func TestScenarioRoleGrantReplays(t *testing.T) {
	l, persistence, keystore := newTestLedger(t)

	_, err := l.UserCreate("thabo", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserAddRole("thabo", "land_officer", SystemSigner, 1000)
	require.NoError(t, err)

	fresh, err := Open(persistence, keystore, nil)
	require.NoError(t, err)

	roles, err := fresh.registry.RolesOf("thabo")
	require.NoError(t, err)
	assert.Contains(t, roles, "land_officer")
}

// Verify must flag a workflow-gated record as a workflow break once the
// definition it was admitted against has been edited, even though the
// edit changes no state/transition/role semantics (§3 definition-drift
// requirement).
func TestVerifyDetectsWorkflowDefinitionDrift(t *testing.T) {
	l, _, _ := newTestLedger(t)
	l.LoadWorkflowDefinition(procurementDefinition(t))

	_, err := l.UserCreate("u1", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserAddRole("u1", "procuring_officer", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserCreate("u2", SystemSigner, 1000)
	require.NoError(t, err)
	_, err = l.UserAddRole("u2", "finance_approver", SystemSigner, 1000)
	require.NoError(t, err)

	_, err = l.Append(AppendRequest{
		Timestamp: 1001,
		EntityID:  "T1",
		Workflow:  record.WorkflowRef{WorkflowName: "procurement", ActionName: "award_contract"},
		Version:   "1",
		Payload:   []byte("contract body"),
		Signers:   []string{"u1", "u2"},
	})
	require.NoError(t, err)

	report, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, report.OK)

	// Re-load the same workflow from byte-distinct (but semantically
	// identical) source, as if the .cue file on disk had been edited.
	edited, err := workflow.ParseDefinition([]byte(`
// re-flowed, no semantic change
workflow: { name: "procurement", version: "1" }
states: ["open", "awarded"]
transitions: [
	{ from: "open", to: "awarded", action: "award_contract", required_roles: ["procuring_officer", "finance_approver"] },
]
`), "procurement-edited.cue")
	require.NoError(t, err)
	l.LoadWorkflowDefinition(edited)

	report, err = l.Verify()
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.NotEmpty(t, report.Breaks)
	assert.Equal(t, KindWorkflowBreak, report.Breaks[0].Kind)
}

func TestAppendRejectsEmptySigners(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.Append(AppendRequest{Timestamp: 1001, Payload: []byte("x")})
	require.Error(t, err)
	assert.True(t, IsInputError(err))
}

func TestUserCreateRejectsDuplicate(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.UserCreate("thabo", SystemSigner, 1000)
	require.NoError(t, err)

	_, err = l.UserCreate("thabo", SystemSigner, 1001)
	require.Error(t, err)
	assert.True(t, IsInputError(err))
}
