package ledgertest

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elviscgn/UkweliDB/internal/crypto"
	"github.com/elviscgn/UkweliDB/internal/ledger"
	"github.com/elviscgn/UkweliDB/internal/record"
	"github.com/elviscgn/UkweliDB/internal/workflow"
)

// memPersistence and memKeystore are the harness's in-memory adapters for
// ports.Persistence and ports.Keystore: each scenario runs against a fresh
// pair of these so scenarios never interfere with one another.
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
		return nil, errors.New("ledgertest: no key for user " + userName)
	}
	return crypto.Sign(kp.Private, crypto.Digest(digest))
}

func (k *memKeystore) PublicKey(userName string) (ed25519.PublicKey, error) {
	kp, ok := k.keys[userName]
	if !ok {
		return nil, errors.New("ledgertest: no key for user " + userName)
	}
	return kp.Public, nil
}

// StepResult is the deterministic, signature-free record of one step's
// outcome: enough to tell a failure apart from a success without ever
// capturing randomly-generated key or signature bytes.
type StepResult struct {
	Index   int
	Op      string
	ErrKind string
	ErrCode string
}

// Result is the full trace of a scenario run, in step order.
type Result struct {
	Scenario string
	Steps    []StepResult
}

// Run executes every step of s in order against a fresh in-memory ledger
// and fails t on any step that doesn't behave as declared: an unexpected
// error, or a missing expected error, stops the run at once; a mismatched
// expect_* value is reported and the run continues. It returns the
// accumulated trace for callers that want to inspect or golden-compare it
// afterward.
func Run(t *testing.T, s *Scenario) *Result {
	t.Helper()

	persistence := &memPersistence{}
	keystore := newMemKeystore()

	l, err := ledger.Init(persistence, keystore, []byte(`{"database":"ledgertest"}`), 1000, nil)
	require.NoError(t, err, "scenario %q: init", s.Name)
	defer l.Close()

	for i, src := range s.Workflows {
		def, err := workflow.ParseDefinition([]byte(src), fmt.Sprintf("%s-workflow-%d.cue", s.Name, i))
		require.NoError(t, err, "scenario %q: parse inline workflow %d", s.Name, i)
		l.LoadWorkflowDefinition(def)
	}

	result := &Result{Scenario: s.Name}
	for i, step := range s.Steps {
		sr := runStep(t, s, l, persistence, i, step)
		result.Steps = append(result.Steps, sr)
	}
	return result
}

func runStep(t *testing.T, s *Scenario, l *ledger.Ledger, persistence *memPersistence, index int, step Step) StepResult {
	t.Helper()
	label := fmt.Sprintf("scenario %q step %d (%s)", s.Name, index, step.Op)

	timestamp := step.Timestamp
	if timestamp == 0 {
		timestamp = int64(1000 + index)
	}

	var stepErr error
	switch step.Op {
	case "user_create":
		signer := step.Signer
		if signer == "" {
			signer = ledger.SystemSigner
		}
		_, stepErr = l.UserCreate(step.Name, signer, timestamp)

	case "user_add_role":
		signer := step.Signer
		if signer == "" {
			signer = ledger.SystemSigner
		}
		_, stepErr = l.UserAddRole(step.Name, step.Role, signer, timestamp)

	case "append":
		req := ledger.AppendRequest{
			Timestamp: timestamp,
			EntityID:  step.EntityID,
			Payload:   []byte(step.Payload),
			Signers:   step.Signers,
		}
		if step.Workflow != "" || step.Action != "" {
			req.Workflow = record.WorkflowRef{WorkflowName: step.Workflow, ActionName: step.Action}
			req.Version = step.Version
		}
		_, stepErr = l.Append(req)

	case "tamper":
		require.Less(t, step.RecordID, uint64(len(persistence.records)), "%s: record id out of range", label)
		switch step.Field {
		case "payload", "":
			persistence.records[step.RecordID].Payload = []byte(step.Value)
		default:
			t.Fatalf("%s: unsupported tamper field %q", label, step.Field)
		}

	case "expect_state":
		state, err := l.CurrentState(step.Workflow, step.EntityID)
		require.NoError(t, err, "%s: current state", label)
		assert.Equal(t, step.Want, state, "%s", label)

	case "expect_verify":
		report, err := l.Verify()
		require.NoError(t, err, "%s: verify", label)
		want := step.Want != "false"
		assert.Equal(t, want, report.OK, "%s: verify report %+v", label, report)

	case "expect_record_count":
		assert.Equal(t, step.Want, fmt.Sprintf("%d", len(l.RecordList())), "%s: record count", label)

	default:
		t.Fatalf("%s: unreachable, unknown op should have been rejected at load time", label)
	}

	sr := StepResult{Index: index, Op: step.Op}
	if stepErr == nil {
		if step.WantErrKind != "" || step.WantErrCode != "" {
			t.Fatalf("%s: expected an error (kind=%q code=%q) but step succeeded", label, step.WantErrKind, step.WantErrCode)
		}
		return sr
	}

	var lerr *ledger.Error
	if !errors.As(stepErr, &lerr) {
		require.NoError(t, stepErr, "%s: unexpected non-taxonomy error", label)
		return sr
	}
	sr.ErrKind = string(lerr.Kind)
	sr.ErrCode = lerr.Code

	if step.WantErrKind == "" && step.WantErrCode == "" {
		t.Fatalf("%s: unexpected error: %v", label, stepErr)
		return sr
	}
	if step.WantErrKind != "" {
		assert.Equal(t, step.WantErrKind, sr.ErrKind, "%s: error kind", label)
	}
	if step.WantErrCode != "" {
		assert.Equal(t, step.WantErrCode, sr.ErrCode, "%s: error code", label)
	}
	return sr
}
