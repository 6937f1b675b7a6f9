package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
)

// PublicKeySize and SignatureSize match the spec's "32-byte public keys,
// 64-byte signatures" requirement exactly; they are defined directly as
// crypto/ed25519's own constants.
const (
	PublicKeySize  = ed25519.PublicKeySize
	SignatureSize  = ed25519.SignatureSize
	PrivateKeySize = ed25519.PrivateKeySize
)

// Signature errors reported up through the ledger package's signature-error
// taxonomy member.
var (
	ErrMalformedKey       = errors.New("crypto: malformed key material")
	ErrSignatureLength    = errors.New("crypto: signature has the wrong length")
	ErrVerificationFailed = errors.New("crypto: signature does not verify")
)

// KeyPair is a generated Ed25519 identity: a private signing key and its
// corresponding public key.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh, random Ed25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// Sign produces a deterministic signature of digest under priv.
func Sign(priv ed25519.PrivateKey, digest Digest) ([]byte, error) {
	if len(priv) != PrivateKeySize {
		return nil, ErrMalformedKey
	}
	return ed25519.Sign(priv, digest.Bytes()), nil
}

// Verify checks that sig is a valid signature of digest under pub.
func Verify(pub ed25519.PublicKey, digest Digest, sig []byte) error {
	if len(pub) != PublicKeySize {
		return ErrMalformedKey
	}
	if len(sig) != SignatureSize {
		return ErrSignatureLength
	}
	if !ed25519.Verify(pub, digest.Bytes(), sig) {
		return ErrVerificationFailed
	}
	return nil
}
