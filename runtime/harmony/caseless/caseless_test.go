package caseless

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapFoldsKeyCase(t *testing.T) {
	m := New[string]()
	m.Set("ToolResult", "a")

	v, ok := m.Get("toolresult")
	require.True(t, ok)
	require.Equal(t, "a", v)

	require.True(t, m.Has(" TOOLRESULT "))

	// Re-setting under a different casing replaces the value and keeps the
	// first writer's casing.
	m.Set("toolRESULT", "b")
	require.Equal(t, 1, m.Len())
	require.Equal(t, []string{"ToolResult"}, m.Keys())
	v, _ = m.Get("toolresult")
	require.Equal(t, "b", v)
}

func TestMapDelete(t *testing.T) {
	m := FromMap(map[string]int{"A": 1, "b": 2})
	m.Delete("a")
	require.Equal(t, 1, m.Len())
	require.False(t, m.Has("A"))
	m.Delete("missing") // no-op
}

func TestSnapshotIsDetached(t *testing.T) {
	m := FromMap(map[string]int{"x": 1})
	snap := m.Snapshot()
	snap["x"] = 99
	v, _ := m.Get("x")
	require.Equal(t, 1, v)
}

func TestMergeAndClone(t *testing.T) {
	m := FromMap(map[string]any{"keep": 1})
	m.Merge(map[string]any{"KEEP": 2, "new": 3})
	require.Equal(t, 2, m.Len())
	v, _ := m.Get("keep")
	require.Equal(t, 2, v)

	clone := m.Clone()
	clone.Set("keep", 9)
	v, _ = m.Get("keep")
	require.Equal(t, 2, v, "clone writes must not leak back")
}
