package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drawspace/core/internal/presence"
)

func TestPayloadFromArgs(t *testing.T) {
	t.Parallel()

	require.Empty(t, payloadFromArgs())
	require.Empty(t, payloadFromArgs(nil))
	require.Empty(t, payloadFromArgs("{broken"))
	require.Empty(t, payloadFromArgs(42))

	native := payloadFromArgs(map[string]interface{}{"activity": "editing"})
	require.Equal(t, "editing", native["activity"])

	fromString := payloadFromArgs(`{"x": 1.5, "y": 2}`)
	require.Equal(t, 1.5, fromString["x"])

	fromBytes := payloadFromArgs([]byte(`{"typing": true}`))
	require.Equal(t, true, fromBytes["typing"])

	type wire struct {
		ProjectID string `json:"projectId"`
	}
	roundTripped := payloadFromArgs(wire{ProjectID: "p1"})
	require.Equal(t, "p1", roundTripped["projectId"])
}

func TestFloatFromAny(t *testing.T) {
	t.Parallel()

	f, ok := floatFromAny(float64(3.5))
	require.True(t, ok)
	require.Equal(t, 3.5, f)

	f, ok = floatFromAny(7)
	require.True(t, ok)
	require.Equal(t, float64(7), f)

	f, ok = floatFromAny(json.Number("2.25"))
	require.True(t, ok)
	require.Equal(t, 2.25, f)

	_, ok = floatFromAny("12")
	require.False(t, ok)
	_, ok = floatFromAny(nil)
	require.False(t, ok)
}

func TestStrSliceFromAny(t *testing.T) {
	t.Parallel()

	require.Empty(t, strSliceFromAny(nil))
	require.Empty(t, strSliceFromAny("not-a-list"))
	require.Equal(t, []string{"a", "b"}, strSliceFromAny([]interface{}{"a", " b ", "", 3}))
}

func TestMetadataFromAny(t *testing.T) {
	t.Parallel()

	require.Nil(t, metadataFromAny(nil))
	require.Nil(t, metadataFromAny(map[string]interface{}{}))
	require.Equal(t, map[string]string{"device": "tablet"},
		metadataFromAny(map[string]interface{}{"device": "tablet", "depth": 3}))
}

func TestNormalizeToken(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", normalizeToken("  "))
	require.Equal(t, "abc", normalizeToken("abc"))
	require.Equal(t, "abc", normalizeToken("Bearer abc"))
	require.Equal(t, "abc", normalizeToken("bearer   abc "))
}

func TestScopeKind(t *testing.T) {
	t.Parallel()

	require.Equal(t, "global", scopeKind(presence.GlobalScope()))
	require.Equal(t, "project", scopeKind(presence.ProjectScope("p1")))
	require.Equal(t, "canvas", scopeKind(presence.CanvasScope("p1", "c1")))
	require.Equal(t, "canvas", scopeKind(presence.CanvasScope("", "c1")))
}

func TestShortDateKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "3-9-26", shortDateKey(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)))
	require.Equal(t, "12-31-25", shortDateKey(time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)))
}
