package germ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTagGraphDefRefEdge(t *testing.T) {
	tags := []Tag{
		{Kind: KindDef, Name: "Greet", RelFName: "a.go", FName: "/repo/a.go", Line: 2, EndLine: 4, ByteRange: [2]int{0, 100}},
		{Kind: KindRef, Name: "Greet", RelFName: "a.go", FName: "/repo/a.go", Line: 7, EndLine: 7, ByteRange: [2]int{120, 130}},
	}
	tg := BuildTagGraph(tags, nil)

	nodes := tg.Nodes()
	require.Len(t, nodes, 2)

	var ref *Tag
	for _, n := range nodes {
		if n.Kind == KindRef {
			ref = n
		}
	}
	require.NotNil(t, ref)
	assert.Equal(t, 1, ref.NDefs)
}

func TestBuildTagGraphParentChildEdge(t *testing.T) {
	tags := []Tag{
		{Kind: KindDef, Name: "Widget", RelFName: "a.go", FName: "/repo/a.go", Line: 0, EndLine: 10, ByteRange: [2]int{0, 200}},
		{Kind: KindDef, Name: "Render", ParentNames: []string{"Widget"}, RelFName: "a.go", FName: "/repo/a.go", Line: 1, EndLine: 3, ByteRange: [2]int{10, 50}},
	}
	tg := BuildTagGraph(tags, nil)

	var parent, child *Tag
	for _, n := range tg.Nodes() {
		if n.Name == "Widget" {
			parent = n
		}
		if n.Name == "Render" {
			child = n
		}
	}
	require.NotNil(t, parent)
	require.NotNil(t, child)

	children := tg.outEdges(parent)
	require.Len(t, children, 1)
	assert.Equal(t, child, children[0].to)
}

func TestOnlyDefsPromotesTwoHopPath(t *testing.T) {
	def1 := Tag{Kind: KindDef, Name: "A", RelFName: "a.go", FName: "/repo/a.go", Line: 0, EndLine: 5, ByteRange: [2]int{0, 50}}
	ref := Tag{Kind: KindRef, Name: "B", RelFName: "a.go", FName: "/repo/a.go", Line: 2, EndLine: 2, ByteRange: [2]int{10, 15}}
	def2 := Tag{Kind: KindDef, Name: "B", RelFName: "a.go", FName: "/repo/a.go", Line: 10, EndLine: 15, ByteRange: [2]int{100, 150}}

	full := BuildTagGraph([]Tag{def1, ref, def2}, nil)
	defsOnly := OnlyDefs(full)

	var a, b *Tag
	for _, n := range defsOnly.Nodes() {
		if n.Name == "A" {
			a = n
		}
		if n.Name == "B" {
			b = n
		}
	}
	require.NotNil(t, a)
	require.NotNil(t, b)

	out := defsOnly.outEdges(a)
	require.Len(t, out, 1)
	assert.Equal(t, b, out[0].to)
	assert.True(t, out[0].include)
}

func TestGetTagsFromEntityNameScopedToFile(t *testing.T) {
	tags := []Tag{
		{Kind: KindDef, Name: "Run", RelFName: "a.go", FName: "/repo/a.go", Line: 0, EndLine: 2},
		{Kind: KindDef, Name: "Run", RelFName: "b.go", FName: "/repo/b.go", Line: 0, EndLine: 2},
	}
	tg := BuildTagGraph(tags, nil)

	matches := tg.GetTagsFromEntityName("Run", "a.go")
	require.Len(t, matches, 1)
	assert.Equal(t, "a.go", matches[0].RelFName)
}

func TestGetTagsFromEntityNameNoFileScopeReturnsAll(t *testing.T) {
	tags := []Tag{
		{Kind: KindDef, Name: "Run", RelFName: "a.go", FName: "/repo/a.go", Line: 0, EndLine: 2},
		{Kind: KindDef, Name: "Run", RelFName: "b.go", FName: "/repo/b.go", Line: 0, EndLine: 2},
	}
	tg := BuildTagGraph(tags, nil)

	matches := tg.GetTagsFromEntityName("Run", "")
	assert.Len(t, matches, 2)
}

func TestGetTagFromFilenameLinenoDirectHit(t *testing.T) {
	tags := []Tag{
		{Kind: KindDef, Name: "Run", RelFName: "a.go", FName: "/repo/a.go", Line: 4, EndLine: 8},
	}
	tg := BuildTagGraph(tags, nil)

	tag, err := tg.GetTagFromFilenameLineno("a.go", 5)
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Equal(t, "Run", tag.Name)
}

func TestGetTagFromFilenameLinenoRetriesNextLine(t *testing.T) {
	tags := []Tag{
		{Kind: KindDef, Name: "Run", RelFName: "a.go", FName: "/repo/a.go", Line: 4, EndLine: 8},
	}
	tg := BuildTagGraph(tags, nil)

	tag, err := tg.GetTagFromFilenameLineno("a.go", 4)
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Equal(t, "Run", tag.Name)
}

func TestGetTagFromFilenameLinenoUnknownFileErrors(t *testing.T) {
	tags := []Tag{
		{Kind: KindDef, Name: "Run", RelFName: "a.go", FName: "/repo/a.go", Line: 4, EndLine: 8},
	}
	tg := BuildTagGraph(tags, nil)

	_, err := tg.GetTagFromFilenameLineno("missing.go", 1)
	assert.Error(t, err)
}

func TestMatchEntityNameDotted(t *testing.T) {
	tag := &Tag{Name: "Render", ParentNames: []string{"Widget"}, FName: "/repo/widget.go"}
	assert.True(t, matchEntityName("Widget.Render", tag))
	assert.True(t, matchEntityName("Render", tag))
	assert.False(t, matchEntityName("Other.Render", tag))
}

func TestSearchLineInTags(t *testing.T) {
	tags := []*Tag{
		{Name: "A", Line: 0, EndLine: 3},
		{Name: "B", Line: 4, EndLine: 8},
	}
	found := SearchLineInTags(tags, 6)
	require.NotNil(t, found)
	assert.Equal(t, "B", found.Name)

	assert.Nil(t, SearchLineInTags(tags, 20))
}

func TestGetFileRepresentationNoTagsFallsBackToRawLines(t *testing.T) {
	tg := NewTagGraph()
	repr, err := tg.GetFileRepresentation("/repo/empty.go", "line one\nline two\n", 60)
	require.NoError(t, err)
	assert.Contains(t, repr, "line one")
	assert.Contains(t, repr, "line two")
}

func TestGetFileRepresentationNoTagsNoContentErrors(t *testing.T) {
	tg := NewTagGraph()
	_, err := tg.GetFileRepresentation("/repo/empty.go", "", 60)
	assert.Error(t, err)
}
