package crypto

import "crypto/sha256"

// DigestSize is the length in bytes of a Digest.
const DigestSize = sha256.Size

// Digest is a 256-bit collision-resistant hash.
type Digest [DigestSize]byte

// ZeroDigest is the all-zero sentinel used as genesis's previous_hash.
var ZeroDigest Digest

// Sum computes the digest of data.
func Sum(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// Bytes returns d as a byte slice.
func (d Digest) Bytes() []byte {
	b := make([]byte, DigestSize)
	copy(b, d[:])
	return b
}

// DigestFromBytes reconstructs a Digest from exactly DigestSize bytes.
func DigestFromBytes(b []byte) (Digest, bool) {
	var d Digest
	if len(b) != DigestSize {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// domainHash computes SHA256(domain || 0x00 || data), the same
// domain-separated construction used for content-addressed identifiers
// elsewhere in the pack's codebases: mixing the domain tag into the hash
// input (rather than hashing it as a prefix of unrelated length) prevents a
// value hashed under one domain from colliding with a differently-typed
// value hashed under another.
//
// Record hashing itself (internal/record's canonical digest, per the
// normatively specified wire layout) deliberately does NOT use domain
// separation: the layout is fixed by spec and already encodes field
// boundaries via length prefixes. domainHash is reserved for secondary,
// non-normative content hashes: the configuration document checksum and the
// workflow-definition-file checksum used to detect drift between what a
// record referenced and what is currently loaded.
func domainHash(domain string, data []byte) Digest {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Domains for domainHash call sites.
const (
	DomainConfig       = "ukwelidb/config/v1"
	DomainWorkflowFile = "ukwelidb/workflow-file/v1"
)

// HashConfig hashes the canonical bytes of the configuration document.
func HashConfig(canonicalBytes []byte) Digest {
	return domainHash(DomainConfig, canonicalBytes)
}

// HashWorkflowFile hashes the raw bytes of a loaded workflow definition file,
// used to detect definition drift. It is not a field of the canonical record
// layout; the ledger carries it inside a workflow-gated record's payload
// envelope, and Verify reports a mismatch as a workflow break.
func HashWorkflowFile(raw []byte) Digest {
	return domainHash(DomainWorkflowFile, raw)
}
