package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(items []Item) []string {
	out := make([]string, 0, len(items))
	for i := range items {
		out = append(out, items[i].Key())
	}
	return out
}

func TestMerge_RemoteSupersedesStatic(t *testing.T) {
	static := []Lesson{{Item: Item{NaturalKey: "a"}, Title: "static"}}
	remote := []Lesson{{Item: Item{NaturalKey: "a"}, Title: "remote"}}

	merged := Merge[Lesson](static, remote)

	require.Len(t, merged, 1)
	assert.Equal(t, "remote", merged[0].Title)
	assert.Equal(t, OriginRemote, merged[0].Origin)
}

func TestMerge_OrderedRemoteItemsFirst(t *testing.T) {
	static := []Item{{NaturalKey: "x"}}
	remote := []Item{
		{NaturalKey: "y", Order: IntPtr(5)},
		{NaturalKey: "z", Order: IntPtr(1)},
	}

	merged := MergeItems(static, remote)

	assert.Equal(t, []string{"y", "z", "x"}, keys(merged))
}

func TestMerge_UnorderedKeepInsertionOrder(t *testing.T) {
	static := []Item{{NaturalKey: "s1"}, {NaturalKey: "s2"}}
	remote := []Item{
		{NaturalKey: "r1"},
		{NaturalKey: "r2", Order: IntPtr(3)},
		{NaturalKey: "r3"},
		{NaturalKey: "r4", Order: IntPtr(9)},
	}

	merged := MergeItems(static, remote)

	assert.Equal(t, []string{"r4", "r2", "s1", "s2", "r1", "r3"}, keys(merged))
}

func TestMerge_OverwriteKeepsOriginalPosition(t *testing.T) {
	static := []Item{{NaturalKey: "a"}, {NaturalKey: "b"}, {NaturalKey: "c"}}
	remote := []Item{{NaturalKey: "d"}, {NaturalKey: "b", FallbackKey: "remote-b"}}

	merged := MergeItems(static, remote)

	assert.Equal(t, []string{"a", "b", "c", "d"}, keys(merged))
	assert.Equal(t, OriginRemote, merged[1].Origin)
	assert.Equal(t, "remote-b", merged[1].FallbackKey)
}

func TestMerge_EqualOrderIsStable(t *testing.T) {
	remote := []Item{
		{NaturalKey: "first", Order: IntPtr(2)},
		{NaturalKey: "second", Order: IntPtr(2)},
	}

	merged := MergeItems(nil, remote)

	assert.Equal(t, []string{"first", "second"}, keys(merged))
}

func TestMerge_StaticOrderIsNotARank(t *testing.T) {
	static := []Item{{NaturalKey: "s", Order: IntPtr(100)}}
	remote := []Item{{NaturalKey: "r"}, {NaturalKey: "ranked", Order: IntPtr(1)}}

	merged := MergeItems(static, remote)

	assert.Equal(t, []string{"ranked", "s", "r"}, keys(merged))
}

func TestMerge_FallbackKeyUsedWhenNaturalKeyEmpty(t *testing.T) {
	static := []Item{{FallbackKey: "doc-1"}}
	remote := []Item{{FallbackKey: "doc-1", Order: IntPtr(1)}}

	merged := MergeItems(static, remote)

	require.Len(t, merged, 1)
	assert.Equal(t, OriginRemote, merged[0].Origin)
}

func TestMerge_KeylessItemsAreKept(t *testing.T) {
	static := []Item{{}, {}}
	remote := []Item{{}, {NaturalKey: "a"}}

	merged := MergeItems(static, remote)

	require.Len(t, merged, 4)
	assert.Equal(t, OriginStatic, merged[0].Origin)
	assert.Equal(t, OriginStatic, merged[1].Origin)
	assert.Equal(t, OriginRemote, merged[2].Origin)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	static := []Item{{NaturalKey: "a"}}
	remote := []Item{{NaturalKey: "b", Order: IntPtr(1), CreatedAt: &created}}

	first := MergeItems(static, remote)
	second := MergeItems(static, remote)

	assert.Equal(t, first, second)
	assert.Empty(t, static[0].Origin)
	assert.Empty(t, remote[0].Origin)
}

func TestMerge_EmptyInputs(t *testing.T) {
	merged := MergeItems(nil, nil)

	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}
