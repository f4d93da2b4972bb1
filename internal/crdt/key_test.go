package crdt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/ir"
)

func TestItemKey(t *testing.T) {
	tests := []struct {
		name string
		item ir.IRObject
		want string
	}{
		{"string id", ir.Item("t1", "title", "x"), "t1"},
		{"integer id", ir.IRObject{"id": ir.IRInt(7)}, "#7"},
		{"object id", ir.IRObject{"id": ir.IRObject{"b": ir.IRInt(1), "a": ir.IRInt(2)}}, `#{"a":2,"b":1}`},
		{"null id", ir.IRObject{"id": ir.IRNull{}}, "#null"},
		{"string id with hash prefix", ir.Item("#7"), `\#7`},
		{"string id with tilde prefix", ir.Item("~abc"), `\~abc`},
		{"string id with backslash prefix", ir.Item(`\x`), `\\x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ItemKey(tt.item)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestItemKeyWithoutID(t *testing.T) {
	a := ir.IRObject{"amount": ir.IRInt(10), "label": ir.IRString("rent")}
	b := ir.IRObject{"label": ir.IRString("rent"), "amount": ir.IRInt(10)}

	ka, err := ItemKey(a)
	require.NoError(t, err)
	kb, err := ItemKey(b)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ka, "~"))
	assert.Len(t, ka, 65)
	assert.Equal(t, ka, kb, "content key ignores member order")

	c := ir.IRObject{"amount": ir.IRInt(11), "label": ir.IRString("rent")}
	kc, err := ItemKey(c)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kc)
}

func TestItemKeyDistinguishesStringAndNumber(t *testing.T) {
	ks, err := ItemKey(ir.Item("7"))
	require.NoError(t, err)
	kn, err := ItemKey(ir.IRObject{"id": ir.IRInt(7)})
	require.NoError(t, err)
	kh, err := ItemKey(ir.Item("#7"))
	require.NoError(t, err)

	assert.NotEqual(t, ks, kn)
	assert.NotEqual(t, kn, kh)
}
