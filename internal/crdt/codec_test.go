package crdt

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/ir"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestSaveGolden(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		newGoldie(t).Assert(t, "empty", Save(Empty()))
	})

	t.Run("single_task", func(t *testing.T) {
		d := mustChange(t, Empty(), "X", setTasks(ir.Item("t1", "title", "Buy milk")))
		newGoldie(t).Assert(t, "single_task", Save(d))
	})

	t.Run("tombstone_and_reorder", func(t *testing.T) {
		d := mustChange(t, Empty(), "X", setTasks(
			ir.Item("t1", "title", "Buy milk"),
			ir.Item("t2", "title", "Pay rent"),
		))
		d = mustChange(t, d, "Y", func(dr *Draft) error {
			if err := dr.Set(ir.FieldTasks, []ir.IRObject{ir.Item("t2", "title", "Pay rent")}); err != nil {
				return err
			}
			return dr.Set(ir.FieldExpenses, []ir.IRObject{{
				"id":     ir.IRString("e1"),
				"amount": ir.IRNumber(12.5),
				"paid":   ir.IRBool(false),
				"note":   ir.IRNull{},
			}})
		})
		newGoldie(t).Assert(t, "tombstone_and_reorder", Save(d))
	})
}

func TestSaveDeterministic(t *testing.T) {
	build := func() *Document {
		d := mustChange(t, Empty(), "X", setTasks(ir.Item("t1"), ir.Item("t2"), ir.Item("t3")))
		return mustChange(t, d, "Y", func(dr *Draft) error {
			return dr.Set(ir.FieldNotes, []ir.IRObject{ir.Item("n1", "body", "<b>&</b>")})
		})
	}
	first := Save(build())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Save(build()))
	}
	assert.Contains(t, string(first), "<b>&</b>", "no HTML escaping")
}

func TestLoadSaveRoundTrip(t *testing.T) {
	for seed := uint64(1); seed <= 10; seed++ {
		for _, d := range randomHistory(t, seed) {
			loaded, err := Load(Save(d))
			require.NoError(t, err)
			assert.Equal(t, d.Snapshot(), loaded.Snapshot())
			assert.Equal(t, d.Clock(), loaded.Clock())
			assert.Equal(t, Save(d), Save(loaded), "save is idempotent across load")
		}
	}
}

func TestLoadRoundTripPreservesValueTypes(t *testing.T) {
	item := ir.IRObject{
		"id":      ir.IRString("e1"),
		"amount":  ir.IRNumber(3.0),
		"count":   ir.IRInt(3),
		"tags":    ir.IRArray{ir.IRString("a"), ir.IRNull{}, ir.IRBool(true)},
		"nested":  ir.IRObject{"k": ir.IRNumber(1e21)},
		"comment": ir.IRString("a\u2028b"),
	}
	d := mustChange(t, Empty(), "X", func(dr *Draft) error {
		return dr.Set(ir.FieldExpenses, []ir.IRObject{item})
	})

	loaded, err := Load(Save(d))
	require.NoError(t, err)
	got := loaded.Snapshot().Finances.Expenses
	require.Len(t, got, 1)
	assert.Equal(t, item, got[0])
}

func TestLoadMissingFieldsAreEmpty(t *testing.T) {
	d, err := Load([]byte(`{"clock":0,"fields":{},"version":1}`))
	require.NoError(t, err)
	assert.Equal(t, ir.EmptySnapshot(), d.Snapshot())
	assert.Equal(t, Save(Empty()), Save(d))
}

func TestLoadNormalizesStrings(t *testing.T) {
	data := `{"clock":1,"fields":{"tasks":{"t1":{"pos":{"actor":"X","counter":1,"index":0},` +
		`"val":{"actor":"X","counter":1,"data":{"id":"t1","title":"cafe\u0301"}}}}},"version":1}`
	d, err := Load([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("caf\u00e9"), d.Snapshot().Tasks[0]["title"])
}

const validEntry = `{"pos":{"actor":"X","counter":1,"index":0},"val":{"actor":"X","counter":1,"data":{"id":"t1"}}}`

func doc(tasks string) string {
	return `{"clock":1,"fields":{"tasks":{` + tasks + `}},"version":1}`
}

func TestLoadRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty input", ``, "invalid JSON"},
		{"not json", `nope`, "invalid JSON"},
		{"trailing data", doc(`"t1":` + validEntry) + `{}`, "invalid JSON"},
		{"array root", `[]`, "expected object"},
		{"unknown member", `{"clock":0,"fields":{},"version":1,"extra":true}`, "unknown member"},
		{"missing version", `{"clock":0,"fields":{}}`, "version"},
		{"future version", `{"clock":0,"fields":{},"version":2}`, "unsupported version"},
		{"fractional clock", `{"clock":1.5,"fields":{},"version":1}`, "clock"},
		{"negative clock", `{"clock":-1,"fields":{},"version":1}`, "clock"},
		{"fields not object", `{"clock":0,"fields":[],"version":1}`, "fields"},
		{"unknown field", `{"clock":0,"fields":{"projects":{}},"version":1}`, "unknown field"},
		{"entry not object", doc(`"t1":1`), "expected object"},
		{"missing pos", doc(`"t1":{"val":{"actor":"X","counter":1,"data":{"id":"t1"}}}`), "expected exactly"},
		{"zero counter", doc(`"t1":{"pos":{"actor":"X","counter":0,"index":0},"val":{"actor":"X","counter":1,"data":{"id":"t1"}}}`), "counter"},
		{"empty actor", doc(`"t1":{"pos":{"actor":"X","counter":1,"index":0},"val":{"actor":"","counter":1,"data":{"id":"t1"}}}`), "actor"},
		{"negative index", doc(`"t1":{"pos":{"actor":"X","counter":1,"index":-1},"val":{"actor":"X","counter":1,"data":{"id":"t1"}}}`), "negative index"},
		{"live without data", doc(`"t1":{"pos":{"actor":"X","counter":1,"index":0},"val":{"actor":"X","counter":1,"other":{}}}`), "data"},
		{"deleted false", doc(`"t1":{"pos":{"actor":"X","counter":1,"index":0},"val":{"actor":"X","counter":1,"deleted":false}}`), "deleted must be true"},
		{"key mismatch", doc(`"t9":` + validEntry), "does not match"},
		{"duplicate entry", doc(`"t1":` + validEntry + `,"t1":` + validEntry), "duplicate member"},
		{"keys equal after byte replacement", doc("\"a\xff\":" + validEntry + ",\"a\xfe\":" + validEntry), "duplicate member"},
		{"counter above clock", `{"clock":0,"fields":{"tasks":{"t1":` + validEntry + `}},"version":1}`, "exceeds clock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Load([]byte(tt.input))
			require.Error(t, err)
			assert.Nil(t, d)
			assert.True(t, IsDecodeError(err), "got %T", err)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestLoadAcceptsTombstones(t *testing.T) {
	d, err := Load([]byte(doc(`"t1":{"pos":{"actor":"X","counter":1,"index":0},"val":{"actor":"X","counter":1,"deleted":true}}`)))
	require.NoError(t, err)
	assert.Empty(t, d.Snapshot().Tasks)

	e, ok := d.Entry(ir.FieldTasks, "t1")
	require.True(t, ok)
	assert.True(t, e.Deleted)
}

func TestDecodeErrorUnwrap(t *testing.T) {
	_, err := Load([]byte("{"))
	require.Error(t, err)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "invalid JSON", de.Reason)
	assert.NotNil(t, de.Unwrap())
	assert.True(t, strings.HasPrefix(err.Error(), "decode document: invalid JSON"))
}
