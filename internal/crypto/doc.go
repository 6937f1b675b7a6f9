// Package crypto implements the collision-resistant digest and the
// asymmetric signature scheme the rest of UkweliDB builds on: a 256-bit
// SHA-256 digest and Ed25519 signatures (32-byte public keys, 64-byte
// signatures, deterministic signing). These are pure functions over byte
// strings; the package holds no state and performs no I/O.
package crypto
