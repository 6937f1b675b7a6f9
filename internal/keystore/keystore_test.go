package keystore

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIdentityThenSignAndVerify(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	pub, err := s.CreateIdentity("alice")
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], []byte("some 32 byte digest material!!!"))

	sig, err := s.Sign("alice", digest)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, digest[:], sig))

	gotPub, err := s.PublicKey("alice")
	require.NoError(t, err)
	assert.Equal(t, pub, gotPub)
}

func TestCreateIdentityRejectsDuplicate(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.CreateIdentity("alice")
	require.NoError(t, err)

	_, err = s.CreateIdentity("alice")
	require.ErrorIs(t, err, ErrUserExists)
}

func TestSignRejectsUnknownUser(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	var digest [32]byte
	_, err = s.Sign("ghost", digest)
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestKeysPersistAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	pub, err := s1.CreateIdentity("bob")
	require.NoError(t, err)

	s2, err := Open(dir)
	require.NoError(t, err)
	gotPub, err := s2.PublicKey("bob")
	require.NoError(t, err)
	assert.Equal(t, pub, gotPub)
}

func TestKeyFileStoredUnderDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.CreateIdentity("carol")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "carol.key"))
}
