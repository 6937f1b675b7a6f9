package ledgertest

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/elviscgn/UkweliDB/internal/canonjson"
	"github.com/elviscgn/UkweliDB/internal/crypto"
)

// AssertGenesisHash golden-compares the canonical JSON encoding of a
// genesis record's digest against testdata/golden/<name>.golden. Only the
// digest is captured here: signatures and public keys are freshly generated
// on every run and would make any golden file comparing them flaky by
// construction.
func AssertGenesisHash(t *testing.T, name string, hash crypto.Digest) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	snapshot := map[string]any{"hash": fmt.Sprintf("%x", hash.Bytes())}
	data, err := canonjson.Marshal(snapshot)
	if err != nil {
		t.Fatalf("canonjson.Marshal: %v", err)
	}
	g.Assert(t, name, data)
}
