// Package chain owns the canonical ordered sequence of records and the
// append/verify operations (§4.3). It performs no workflow admission: the
// ledger façade runs workflow admission before calling Append, per §4.5's
// composition rule that admission precedes chain mutation.
package chain

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/elviscgn/UkweliDB/internal/crypto"
	"github.com/elviscgn/UkweliDB/internal/identity"
	"github.com/elviscgn/UkweliDB/internal/ports"
	"github.com/elviscgn/UkweliDB/internal/record"
)

// SystemSigner is the reserved signer name used for the genesis record and,
// by extension, the administrative records that bootstrap the first real
// users: the identity registry starts empty, so without this exception no
// user_create record could ever be appended (§4.3 "records cannot be
// self-bootstrapping" describes ordinary signers; the system identity is
// the deliberate exception that breaks the chicken-and-egg problem). It is
// resolved directly through the keystore, never through the registry.
const SystemSigner = "system"

// Sentinel errors surfaced as *taxonomy* members by the ledger façade, which
// wraps these into ledger.Error with the appropriate Kind.
var (
	ErrEmptySigners      = errors.New("chain: signer list must not be empty")
	ErrUnknownSigner     = errors.New("chain: signer is not a known user")
	ErrNonMonotonicTime  = errors.New("chain: timestamp is strictly less than the tail's")
	ErrEmptyPayload      = errors.New("chain: payload must not be empty")
	ErrRecordNotFound    = errors.New("chain: no record with that id")
	ErrChainEmpty        = errors.New("chain: chain has no records yet")
)

// SignatureError wraps a crypto signature failure with the offending
// signer's name, per §4.1 "failure modes... all reported as signature error
// with the offending signer."
type SignatureError struct {
	Signer string
	Err    error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("chain: signature error for signer %q: %v", e.Signer, e.Err)
}
func (e *SignatureError) Unwrap() error { return e.Err }

// BreakKind identifies what kind of inconsistency Verify found.
type BreakKind string

const (
	BreakChainLink BreakKind = "chain_break"
	BreakSignature BreakKind = "signature_error"
	BreakIntegrity BreakKind = "integrity_error"
)

// Break describes the first (or one of several) verification failure.
type Break struct {
	ID     uint64
	Kind   BreakKind
	Reason string
}

// VerifyReport is the outcome of walking the whole chain and recomputing
// every link hash and signature.
type VerifyReport struct {
	OK     bool
	Length uint64
	Breaks []Break
}

// Engine owns the record sequence. Reads (Get/Tail/Len) are served from an
// in-memory cache kept in sync with every successful Append; Verify always
// re-reads from the persistence port so that tampering applied directly to
// the underlying storage after load is still detected (§8's "single flipped
// bit... causes verify() to flag").
type Engine struct {
	persistence ports.Persistence
	records     []record.Record
}

// Open loads every existing record from persistence into the in-memory
// cache. An empty persistence port yields an Engine with Len() == 0; callers
// are expected to write the genesis record via AppendGenesis immediately
// after Open in that case.
func Open(persistence ports.Persistence) (*Engine, error) {
	records, err := persistence.ReadAll()
	if err != nil {
		return nil, err
	}
	return &Engine{persistence: persistence, records: records}, nil
}

// Len reports the number of records in the chain.
func (e *Engine) Len() uint64 { return uint64(len(e.records)) }

// Get returns the record with the given id.
func (e *Engine) Get(id uint64) (record.Record, error) {
	if id >= uint64(len(e.records)) {
		return record.Record{}, ErrRecordNotFound
	}
	return e.records[id], nil
}

// Tail returns the most recently appended record.
func (e *Engine) Tail() (record.Record, error) {
	if len(e.records) == 0 {
		return record.Record{}, ErrChainEmpty
	}
	return e.records[len(e.records)-1], nil
}

// All returns every cached record in chain order. Callers must not mutate
// the returned slice's elements.
func (e *Engine) All() []record.Record {
	out := make([]record.Record, len(e.records))
	copy(out, e.records)
	return out
}

// AppendGenesis writes the id-0 record directly, bypassing the identity
// registry: the genesis signer is a system-controlled identity the registry
// has never seen (it cannot have: the registry is itself derived from
// records that do not exist yet). The signature still comes from the
// keystore port like any other, so private keys never leave it. Fails if
// the chain is non-empty.
func (e *Engine) AppendGenesis(payload []byte, timestamp int64, systemSignerName string, keystore ports.Keystore) (record.Record, error) {
	if len(e.records) != 0 {
		return record.Record{}, errors.New("chain: genesis can only be written to an empty chain")
	}

	pub, err := keystore.PublicKey(systemSignerName)
	if err != nil {
		return record.Record{}, &SignatureError{Signer: systemSignerName, Err: err}
	}

	proposed := record.Record{
		ID:           0,
		Timestamp:    timestamp,
		PreviousHash: crypto.ZeroDigest,
		Payload:      payload,
	}
	digest := proposed.Digest()

	sig, err := keystore.Sign(systemSignerName, digest)
	if err != nil {
		return record.Record{}, &SignatureError{Signer: systemSignerName, Err: err}
	}
	if err := crypto.Verify(pub, digest, sig); err != nil {
		return record.Record{}, &SignatureError{Signer: systemSignerName, Err: err}
	}

	proposed.Signatures = []record.Signature{{Signer: systemSignerName, Bytes: sig}}
	proposed.Hash = digest

	return e.commit(proposed)
}

// ProposedAppend is the caller-supplied shape of a non-genesis append; id,
// previous_hash, and hash are assigned by Append.
type ProposedAppend struct {
	Timestamp int64
	EntityID  string
	Workflow  record.WorkflowRef
	Payload   []byte
	Signers   []string
}

// Append assigns id and previous_hash, checks timestamp monotonicity,
// collects a signature from the keystore for each declared signer, verifies
// each signature against the identity registry snapshot taken immediately
// before this append, computes the record's hash, and writes through the
// persistence port. If any step fails the chain is left unmodified.
func (e *Engine) Append(p ProposedAppend, registry *identity.Registry, keystore ports.Keystore) (record.Record, error) {
	if len(p.Signers) == 0 {
		return record.Record{}, ErrEmptySigners
	}
	if len(p.Payload) == 0 {
		return record.Record{}, ErrEmptyPayload
	}

	tail, err := e.Tail()
	if err != nil {
		return record.Record{}, errors.New("chain: append requires an existing genesis record")
	}
	if p.Timestamp < tail.Timestamp {
		return record.Record{}, ErrNonMonotonicTime
	}

	proposed := record.Record{
		ID:           e.Len(),
		Timestamp:    p.Timestamp,
		PreviousHash: tail.Hash,
		EntityID:     p.EntityID,
		Workflow:     p.Workflow,
		Payload:      p.Payload,
	}
	digest := proposed.Digest()

	signatures := make([]record.Signature, 0, len(p.Signers))
	for _, signer := range p.Signers {
		var pub ed25519.PublicKey
		if signer == SystemSigner {
			var err error
			pub, err = keystore.PublicKey(signer)
			if err != nil {
				return record.Record{}, &SignatureError{Signer: signer, Err: err}
			}
		} else {
			if !registry.Exists(signer) {
				return record.Record{}, fmt.Errorf("%w: %q", ErrUnknownSigner, signer)
			}
			var err error
			pub, err = registry.KeyOf(signer)
			if err != nil {
				return record.Record{}, &SignatureError{Signer: signer, Err: err}
			}
		}

		sigBytes, err := keystore.Sign(signer, digest)
		if err != nil {
			return record.Record{}, &SignatureError{Signer: signer, Err: err}
		}
		if err := crypto.Verify(pub, digest, sigBytes); err != nil {
			return record.Record{}, &SignatureError{Signer: signer, Err: err}
		}

		signatures = append(signatures, record.Signature{Signer: signer, Bytes: sigBytes})
	}

	proposed.Signatures = signatures
	proposed.Hash = digest

	return e.commit(proposed)
}

func (e *Engine) commit(r record.Record) (record.Record, error) {
	if err := e.persistence.Append(r); err != nil {
		return record.Record{}, err
	}
	if err := e.persistence.Flush(); err != nil {
		return record.Record{}, err
	}
	e.records = append(e.records, r)
	return r, nil
}

// Verify re-reads every record from the persistence port and recomputes
// hash linkage and signature validity, reporting every break found (it does
// not stop at the first). Signatures are checked against a registry
// replayed progressively alongside the walk: administrative records are
// applied to it before the record immediately following them is checked,
// so a forged signature from a key that is only added to the registry later
// in the chain is still caught (§4.2 "checked against the registry as of
// the moment immediately before the append"). The genesis signer is
// resolved through the keystore instead, since it is never in the registry.
// Workflow-break detection is layered on top by the ledger façade, which
// owns the workflow engine (§2's two-stage verify data flow).
func Verify(persistence ports.Persistence, keystore ports.Keystore) (VerifyReport, error) {
	records, err := persistence.ReadAll()
	if err != nil {
		return VerifyReport{}, err
	}

	registry := identity.New()
	report := VerifyReport{OK: true, Length: uint64(len(records))}

	for i, r := range records {
		if r.ID != uint64(i) {
			report.OK = false
			report.Breaks = append(report.Breaks, Break{ID: r.ID, Kind: BreakIntegrity, Reason: "non-contiguous id"})
			continue
		}

		if i > 0 {
			prev := records[i-1]
			if r.PreviousHash != prev.Hash {
				report.OK = false
				report.Breaks = append(report.Breaks, Break{ID: r.ID, Kind: BreakChainLink, Reason: "previous_hash does not match record[i-1].hash"})
			}
			if r.Timestamp < prev.Timestamp {
				report.OK = false
				report.Breaks = append(report.Breaks, Break{ID: r.ID, Kind: BreakIntegrity, Reason: "timestamp decreased from previous record"})
			}
		} else if r.PreviousHash != crypto.ZeroDigest {
			report.OK = false
			report.Breaks = append(report.Breaks, Break{ID: r.ID, Kind: BreakChainLink, Reason: "genesis previous_hash is not the zero sentinel"})
		}

		if r.Digest() != r.Hash {
			report.OK = false
			report.Breaks = append(report.Breaks, Break{ID: r.ID, Kind: BreakChainLink, Reason: "stored hash does not match recomputed digest"})
		}

		if len(r.Signatures) == 0 {
			report.OK = false
			report.Breaks = append(report.Breaks, Break{ID: r.ID, Kind: BreakSignature, Reason: "record has no signatures"})
			continue
		}

		digest := r.Digest()
		for _, sig := range r.Signatures {
			var pub ed25519.PublicKey
			var keyErr error
			if sig.Signer == SystemSigner {
				pub, keyErr = keystore.PublicKey(sig.Signer)
			} else {
				pub, keyErr = registry.KeyOf(sig.Signer)
			}
			if keyErr != nil {
				report.OK = false
				report.Breaks = append(report.Breaks, Break{ID: r.ID, Kind: BreakSignature, Reason: fmt.Sprintf("signer %q: %v", sig.Signer, keyErr)})
				continue
			}
			if err := crypto.Verify(pub, digest, sig.Bytes); err != nil {
				report.OK = false
				report.Breaks = append(report.Breaks, Break{ID: r.ID, Kind: BreakSignature, Reason: fmt.Sprintf("signer %q: %v", sig.Signer, err)})
			}
		}

		// Apply this record's administrative effect, if any, after checking
		// it, so the next record is checked against registry state that
		// includes this one but not itself.
		if p, ok := identity.DecodePayload(r.Payload); ok {
			_ = registry.Apply(p)
		}
	}

	return report, nil
}
