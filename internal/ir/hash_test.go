package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentTokenIsPlainSHA256(t *testing.T) {
	data := []byte(`{"clock":0}`)
	sum := sha256.Sum256(data)

	assert.Equal(t, hex.EncodeToString(sum[:]), DocumentToken(data))
	assert.Len(t, DocumentToken(data), 64, "SHA-256 hex is 64 characters")
}

func TestDocumentTokenChangesWithBytes(t *testing.T) {
	assert.NotEqual(t, DocumentToken([]byte("a")), DocumentToken([]byte("b")))
	assert.Equal(t, DocumentToken([]byte("a")), DocumentToken([]byte("a")))
}

func TestSnapshotTokenDeterminism(t *testing.T) {
	s := EmptySnapshot()
	s.Tasks = []IRObject{Item("t1", "title", "Buy milk")}

	t1, err := SnapshotToken(s)
	require.NoError(t, err)
	t2, err := SnapshotToken(s.Clone())
	require.NoError(t, err)

	assert.Equal(t, t1, t2)
}

func TestSnapshotTokenNilAndEmptyListsAgree(t *testing.T) {
	assert.Equal(t, MustSnapshotToken(Snapshot{}), MustSnapshotToken(EmptySnapshot()))
}

func TestSnapshotTokenOrderSensitive(t *testing.T) {
	a := EmptySnapshot()
	a.Tasks = []IRObject{Item("t1"), Item("t2")}
	b := EmptySnapshot()
	b.Tasks = []IRObject{Item("t2"), Item("t1")}

	assert.NotEqual(t, MustSnapshotToken(a), MustSnapshotToken(b))
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainSnapshot, data), hashWithDomain(DomainItem, data))
}

func TestContentKeyIgnoresKeyOrder(t *testing.T) {
	a, err := ContentKey(IRObject{"a": IRInt(1), "b": IRInt(2)})
	require.NoError(t, err)
	b, err := ContentKey(IRObject{"b": IRInt(2), "a": IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
