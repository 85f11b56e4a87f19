package germ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 2.0, median([]float64{1, 2, 3}))
	assert.Equal(t, 2.5, median([]float64{1, 2, 3, 4}))
}

func TestRankTagsNewPrefersMentionedIdent(t *testing.T) {
	tags := []Tag{
		{Kind: KindDef, Name: "Hot", RelFName: "a.go", FName: "/repo/a.go", Line: 0, EndLine: 2},
		{Kind: KindDef, Name: "Cold", RelFName: "a.go", FName: "/repo/a.go", Line: 5, EndLine: 7},
	}
	tg := BuildTagGraph(tags, nil)
	defGraph := OnlyDefs(tg)

	ranked := RankTagsNew(defGraph, RepoMapArgs{
		MentionedIdents: map[string]struct{}{"Hot": {}},
	}, 0.5)

	require.Len(t, ranked, 2)
	assert.Equal(t, "Hot", ranked[0].Name)
}

// TestRankTagsNewChatAndIdentBoostsAreMutuallyExclusive pins down
// weights precisely enough to distinguish the mutually-exclusive
// (+3.0 or +1.0) boost from the additive (+3.0 and +1.0 stacked) bug.
//
// "both" sits in a chat file and matches a mentioned entity (+3.0,
// exclusive of the idents boost since its name is also mentioned as an
// ident) plus an unconditional +0.5 from the chat-fname weighting, for
// 3.5 if mutually exclusive or 4.5 if additive.
//
// "calib" gets a fixed +1.0 ident boost plus a +3.0 search-term boost
// (engineered via one term matched by 5 unrelated filler tags and one
// term matched only by calib, so the global median lands on 3.0),
// landing at 4.0 — strictly between 3.5 and 4.5. Mutual exclusivity
// means calib outranks both; the additive bug would reverse that.
func TestRankTagsNewChatAndIdentBoostsAreMutuallyExclusive(t *testing.T) {
	both := Tag{Kind: KindDef, Name: "Hot", RelFName: "a.go", FName: "/repo/a.go", Line: 0, EndLine: 2, Text: "func Hot() {}"}
	calib := Tag{Kind: KindDef, Name: "Calib", RelFName: "calib.go", FName: "/repo/calib.go", Line: 0, EndLine: 2, Text: "func Calib() { zztermb() }"}

	tags := []Tag{both, calib}
	for i := 0; i < 5; i++ {
		tags = append(tags, Tag{
			Kind: KindDef, Name: "Filler", RelFName: "filler.go", FName: "/repo/filler.go",
			Line: i, EndLine: i, Text: "func Filler() { zzterma() }",
		})
	}

	tg := BuildTagGraph(tags, nil)
	defGraph := OnlyDefs(tg)

	ranked := RankTagsNew(defGraph, RepoMapArgs{
		ChatFnames:        map[string]struct{}{"/repo/a.go": {}},
		MentionedEntities: map[string]struct{}{"Hot": {}},
		MentionedIdents:   map[string]struct{}{"Hot": {}, "Calib": {}},
		SearchTerms:       map[string]struct{}{"zzterma": {}, "zztermb": {}},
	}, 0)

	var bothTag, calibTag *Tag
	for _, tag := range ranked {
		if tag.RelFName == "a.go" {
			bothTag = tag
		}
		if tag.RelFName == "calib.go" {
			calibTag = tag
		}
	}
	require.NotNil(t, bothTag)
	require.NotNil(t, calibTag)

	rank := make(map[*Tag]int, len(ranked))
	for i, tag := range ranked {
		rank[tag] = i
	}
	assert.Less(t, rank[calibTag], rank[bothTag], "4.0 calibration weight should outrank the 3.5 mutually-exclusive chat+entity weight")
}

func TestRankTagsNewDiffusesToNeighbor(t *testing.T) {
	hub := Tag{Kind: KindDef, Name: "Hub", RelFName: "a.go", FName: "/repo/a.go", Line: 0, EndLine: 10, ByteRange: [2]int{0, 200}}
	ref := Tag{Kind: KindRef, Name: "Leaf", RelFName: "a.go", FName: "/repo/a.go", Line: 2, EndLine: 2, ByteRange: [2]int{10, 15}}
	leaf := Tag{Kind: KindDef, Name: "Leaf", RelFName: "b.go", FName: "/repo/b.go", Line: 0, EndLine: 3}
	unrelated := Tag{Kind: KindDef, Name: "Unrelated", RelFName: "c.go", FName: "/repo/c.go", Line: 0, EndLine: 3}

	full := BuildTagGraph([]Tag{hub, ref, leaf, unrelated}, nil)
	defGraph := OnlyDefs(full)

	ranked := RankTagsNew(defGraph, RepoMapArgs{
		MentionedIdents: map[string]struct{}{"Hub": {}},
	}, 1.0)

	rank := make(map[string]int, len(ranked))
	for i, tg := range ranked {
		rank[tg.Name] = i
	}
	assert.Less(t, rank["Leaf"], rank["Unrelated"])
}

func TestRankTagsLegacyOrdersByPersonalizedRank(t *testing.T) {
	defA := Tag{Kind: KindDef, Name: "A", RelFName: "a.go", FName: "/repo/a.go", Line: 0, EndLine: 3}
	refA := Tag{Kind: KindRef, Name: "A", RelFName: "b.go", FName: "/repo/b.go", Line: 1, EndLine: 1}
	defB := Tag{Kind: KindDef, Name: "B", RelFName: "c.go", FName: "/repo/c.go", Line: 0, EndLine: 3}

	entries := RankTagsLegacy([]Tag{defA, refA, defB}, RepoMapArgs{
		ChatFnames: map[string]struct{}{"/repo/b.go": {}},
	}, nil)

	require.NotEmpty(t, entries)
	var sawA bool
	for _, e := range entries {
		if e.Tag != nil && e.Tag.Name == "A" {
			sawA = true
		}
	}
	assert.True(t, sawA)
}

func TestRankTagsLegacyAppendsUntaggedOtherFiles(t *testing.T) {
	defA := Tag{Kind: KindDef, Name: "A", RelFName: "a.go", FName: "/repo/a.go", Line: 0, EndLine: 3}
	refA := Tag{Kind: KindRef, Name: "A", RelFName: "b.go", FName: "/repo/b.go", Line: 1, EndLine: 1}

	entries := RankTagsLegacy([]Tag{defA, refA}, RepoMapArgs{}, []string{"notes.md"})

	var sawNotes bool
	for _, e := range entries {
		if e.Tag == nil && e.RelFName == "notes.md" {
			sawNotes = true
		}
	}
	assert.True(t, sawNotes)
}

func TestRankTagsLegacyEmptyGraphReturnsNil(t *testing.T) {
	entries := RankTagsLegacy(nil, RepoMapArgs{}, nil)
	assert.Nil(t, entries)
}
