// Package keystore is a file-based implementation of the keystore port
// (§6 "Keystore port ... private keys never leave the port"). Each identity's
// Ed25519 private key is stored as its own file under a per-user key
// directory, matching the persisted-layout requirement of §6 ("one per-user
// key directory").
package keystore

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrUnknownUser is returned by Sign/PublicKey for a name with no key file.
var ErrUnknownUser = errors.New("keystore: unknown user")

// ErrUserExists is returned by CreateIdentity when name already has a key.
var ErrUserExists = errors.New("keystore: user already has an identity")

// keyFileMode restricts private key files to owner read/write, since they
// hold raw Ed25519 private key material.
const keyFileMode = 0o600

// Store is a directory of one file per user identity, named "<user>.key"
// and holding the raw 64-byte Ed25519 private key (seed || public key, the
// standard crypto/ed25519 encoding, so the public key is always recoverable
// from the private key file without a second file).
type Store struct {
	dir string
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(userName string) string {
	return filepath.Join(s.dir, userName+".key")
}

// CreateIdentity generates a fresh Ed25519 key pair for userName and writes
// its private key to disk. Fails if userName already has a key.
func (s *Store) CreateIdentity(userName string) (ed25519.PublicKey, error) {
	path := s.path(userName)
	if _, err := os.Stat(path); err == nil {
		return nil, ErrUserExists
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", err)
	}

	if err := os.WriteFile(path, priv, keyFileMode); err != nil {
		return nil, fmt.Errorf("keystore: write key: %w", err)
	}
	return pub, nil
}

// Sign returns a signature of digest under userName's private key.
func (s *Store) Sign(userName string, digest [32]byte) ([]byte, error) {
	priv, err := s.readKey(userName)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, digest[:]), nil
}

// PublicKey returns userName's public key, recovered from their private key
// file (the last ed25519.PublicKeySize bytes of the standard encoding).
func (s *Store) PublicKey(userName string) (ed25519.PublicKey, error) {
	priv, err := s.readKey(userName)
	if err != nil {
		return nil, err
	}
	return priv.Public().(ed25519.PublicKey), nil
}

func (s *Store) readKey(userName string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(s.path(userName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read key: %w", err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keystore: key file for %q has the wrong size", userName)
	}
	return ed25519.PrivateKey(data), nil
}
