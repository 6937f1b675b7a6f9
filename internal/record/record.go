// Package record defines the atomic unit of the ledger and its normative
// canonical serialization (the byte layout that is hashed and signed).
package record

import (
	"encoding/binary"

	"golang.org/x/text/unicode/norm"

	"github.com/elviscgn/UkweliDB/internal/crypto"
)

// Signature is one signer's authorization of a Record, in the order it was
// collected. Order is preserved for display; content verification does not
// depend on it (§9 "signature canonicalization").
type Signature struct {
	Signer string
	Bytes  []byte // crypto.SignatureSize bytes
}

// WorkflowRef names the declared transition a record performs, if any.
type WorkflowRef struct {
	WorkflowName string
	ActionName   string
}

// IsZero reports whether the record carries no workflow reference.
func (w WorkflowRef) IsZero() bool {
	return w.WorkflowName == "" && w.ActionName == ""
}

// Record is the atomic, immutable unit of the ledger (§3).
type Record struct {
	ID           uint64
	Timestamp    int64
	PreviousHash crypto.Digest
	EntityID     string
	Workflow     WorkflowRef
	Payload      []byte
	Signatures   []Signature
	Hash         crypto.Digest
}

// normalizeField NFC-normalizes a text field before it is hashed or signed,
// so that two byte-distinct-but-canonically-equal Unicode spellings of the
// same entity/workflow/action name produce the same digest.
func normalizeField(s string) string {
	return norm.NFC.String(s)
}

// Canonical produces the normative byte layout (§6) over which Hash and every
// signature are computed: ordered, length-prefixed fields, excluding Hash
// and Signatures themselves.
func (r Record) Canonical() []byte {
	entityID := []byte(normalizeField(r.EntityID))
	workflowName := []byte(normalizeField(r.Workflow.WorkflowName))
	actionName := []byte(normalizeField(r.Workflow.ActionName))

	size := 8 + 8 + crypto.DigestSize +
		8 + len(entityID) +
		8 + len(workflowName) +
		8 + len(actionName) +
		8 + len(r.Payload)

	buf := make([]byte, size)
	off := 0

	binary.BigEndian.PutUint64(buf[off:], r.ID)
	off += 8

	binary.BigEndian.PutUint64(buf[off:], uint64(r.Timestamp))
	off += 8

	copy(buf[off:], r.PreviousHash[:])
	off += crypto.DigestSize

	off = putLenPrefixed(buf, off, entityID)
	off = putLenPrefixed(buf, off, workflowName)
	off = putLenPrefixed(buf, off, actionName)
	off = putLenPrefixed(buf, off, r.Payload)

	return buf[:off]
}

func putLenPrefixed(buf []byte, off int, field []byte) int {
	binary.BigEndian.PutUint64(buf[off:], uint64(len(field)))
	off += 8
	copy(buf[off:], field)
	return off + len(field)
}

// Digest computes the record's content digest over Canonical().
func (r Record) Digest() crypto.Digest {
	return crypto.Sum(r.Canonical())
}

// IsGenesis reports whether r is the chain's id-0 record.
func (r Record) IsGenesis() bool {
	return r.ID == 0
}
