// Package ports declares the two small interfaces the core is written
// against instead of any concrete storage or key-management technology
// (§1 "out of scope", §9 "dynamic dispatch... small interfaces rather than
// inheritance hierarchies").
package ports

import (
	"crypto/ed25519"

	"github.com/elviscgn/UkweliDB/internal/record"
)

// Persistence is the sequential read/append port the chain engine writes
// through. Implementations are responsible for byte-stable serialization:
// the core requires only that re-reading yields the exact bytes written, so
// that recomputed hashes remain valid (§6).
type Persistence interface {
	// ReadAll returns every stored record in chain order, id ascending.
	ReadAll() ([]record.Record, error)
	// Append durably stores r. It must not return success until r is
	// observable to a subsequent ReadAll (§5 "a successful append is
	// durable before the returned Record is observable").
	Append(r record.Record) error
	// Flush forces any buffered writes to durable storage.
	Flush() error
	// Close releases any resources held by the port.
	Close() error
}

// Keystore resolves user identities to public keys and signs on a named
// user's behalf. Private keys never leave the port (§6).
type Keystore interface {
	// Sign returns a signature of digest under userName's private key.
	Sign(userName string, digest [32]byte) ([]byte, error)
	// PublicKey returns userName's public key.
	PublicKey(userName string) (ed25519.PublicKey, error)
	// CreateIdentity provisions a fresh key pair for userName and returns
	// its public key. Used by `user create`; fails if userName already has
	// a key in this keystore.
	CreateIdentity(userName string) (ed25519.PublicKey, error)
}
