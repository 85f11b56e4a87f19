package germ

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/multi"
)

// RepoMapArgs carries the hints that bias ranking towards what the
// caller cares about: files already open, identifiers mentioned in a
// message, raw search terms, etc. Grounded on motleycoder's
// codemap/map_args.py RepoMapArgs.
type RepoMapArgs struct {
	ChatFnames        map[string]struct{}
	OtherFnames       map[string]struct{}
	MentionedFnames   map[string]struct{}
	MentionedIdents   map[string]struct{}
	MentionedEntities map[string]struct{}
	SearchTerms       map[string]struct{}
	AddPrefix         bool
}

// RankTagsNew is the default ranker: each def tag accrues weight from
// mention/search-term signals, that weight diffuses one hop along the
// graph's edges, and tags are returned heaviest-first. Grounded on
// motleycoder's codemap/rank.py rank_tags_new.
func RankTagsNew(tagGraph *TagGraph, args RepoMapArgs, diffusionMult float64) []*Tag {
	weights := make(map[*Tag]float64)
	for _, t := range tagGraph.Nodes() {
		weights[t] = 0
	}

	mentionedEntitiesClean := make(map[string]struct{}, len(args.MentionedEntities))
	for name := range args.MentionedEntities {
		parts := strings.Split(name, ".")
		mentionedEntitiesClean[parts[len(parts)-1]] = struct{}{}
	}

	for _, t := range tagGraph.Nodes() {
		if t.Kind != KindDef {
			continue
		}
		_, inChat := args.ChatFnames[t.FName]
		_, mentionedEntity := mentionedEntitiesClean[t.Name]
		if inChat && mentionedEntity {
			weights[t] += 3.0
		} else if _, mentioned := args.MentionedIdents[t.Name]; mentioned {
			weights[t] += 1.0
		}
	}

	for t, w := range weightsFromFnames(tagGraph, args.MentionedFnames) {
		weights[t] += 0.2 * w
	}
	for t, w := range weightsFromFnames(tagGraph, args.ChatFnames) {
		weights[t] += 0.5 * w
	}

	if len(args.SearchTerms) > 0 {
		tagMatches := make(map[string][]*Tag)
		for _, t := range tagGraph.Nodes() {
			if t.Kind != KindDef {
				continue
			}
			for term := range args.SearchTerms {
				if strings.Contains(t.Text, term) {
					tagMatches[term] = append(tagMatches[term], t)
				}
			}
		}
		counts := make([]float64, 0, len(tagMatches))
		for _, tags := range tagMatches {
			counts = append(counts, float64(len(tags)))
		}
		typical := median(counts)
		for _, tags := range tagMatches {
			for _, t := range tags {
				weights[t] += typical / float64(len(tags))
			}
		}
	}

	// Diffuse weights one hop, reading from a snapshot taken before any
	// diffusion writes land (a single pass, not an iterative fixed point).
	snapshot := make(map[*Tag]float64, len(weights))
	for t, w := range weights {
		snapshot[t] = w
	}
	for _, t := range tagGraph.Nodes() {
		for _, e := range tagGraph.outEdges(t) {
			weights[e.to] += snapshot[t] * diffusionMult
		}
	}

	nodes := tagGraph.Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		return weights[nodes[i]] > weights[nodes[j]]
	})
	return nodes
}

func weightsFromFnames(tagGraph *TagGraph, fnames map[string]struct{}) map[*Tag]float64 {
	out := make(map[*Tag]float64)
	if len(fnames) == 0 {
		return out
	}
	counts := make(map[string]int)
	for _, t := range tagGraph.Nodes() {
		if t.Kind == KindDef {
			if _, ok := fnames[t.FName]; ok {
				counts[t.FName]++
			}
		}
	}
	countVals := make([]float64, 0, len(counts))
	for _, c := range counts {
		countVals = append(countVals, float64(c))
	}
	typical := median(countVals)
	for _, t := range tagGraph.Nodes() {
		if c, ok := counts[t.FName]; ok && t.Kind == KindDef {
			out[t] += typical / float64(c)
		}
	}
	return out
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64{}, vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// fileNode adapts a relative filename to gonum's graph.Node interface
// for the legacy PageRank file-level graph.
type fileNode struct {
	id int64
}

func (n fileNode) ID() int64 { return n.id }

// RankTagsLegacy reproduces the original personalized-PageRank ranking
// algorithm over a file-level reference graph, matching motleycoder's
// codemap/rank.py rank_tags (and fixing the teacher's port, which built
// a personalization map but discarded it before calling gonum's
// unpersonalized network.PageRank).
func RankTagsLegacy(tags []Tag, args RepoMapArgs, otherRelFnames []string) []RankedEntry {
	defines := make(map[string]map[string]struct{})
	references := make(map[string][]string)
	definitions := make(map[DefKey][]*Tag)

	cleanedFiles := make(map[string]string) // fname -> rel_fname
	for i := range tags {
		t := &tags[i]
		cleanedFiles[t.FName] = t.RelFName
		switch t.Kind {
		case KindDef:
			if defines[t.Name] == nil {
				defines[t.Name] = make(map[string]struct{})
			}
			defines[t.Name][t.RelFName] = struct{}{}
			k := DefKey{RelFName: t.RelFName, Name: t.Name}
			definitions[k] = append(definitions[k], t)
		case KindRef:
			references[t.Name] = append(references[t.Name], t.RelFName)
		}
	}

	chatRelFnames := make(map[string]struct{})
	personalization := make(map[string]float64)
	personalize := 10.0 / (float64(len(cleanedFiles)) + 1)
	for fname, rel := range cleanedFiles {
		if _, ok := args.ChatFnames[fname]; ok {
			personalization[rel] = personalize
			chatRelFnames[rel] = struct{}{}
		}
		if _, ok := args.MentionedFnames[fname]; ok {
			personalization[rel] = personalize
		}
	}

	if len(references) == 0 {
		for sym, defFiles := range defines {
			for f := range defFiles {
				references[sym] = append(references[sym], f)
			}
		}
	}

	idents := make(map[string]struct{})
	for sym := range defines {
		if _, ok := references[sym]; ok {
			idents[sym] = struct{}{}
		}
	}

	g := multi.NewWeightedDirectedGraph()
	nodeByFile := make(map[string]int64)
	var nextID int64
	nodeIDFor := func(f string) int64 {
		if id, ok := nodeByFile[f]; ok {
			return id
		}
		id := nextID
		nextID++
		nodeByFile[f] = id
		g.AddNode(fileNode{id: id})
		return id
	}

	type edgeKey struct {
		referencer, definer, ident string
	}
	edgeWeights := make(map[edgeKey]float64)

	for ident := range idents {
		mul := 1.0
		if _, ok := args.MentionedIdents[ident]; ok {
			mul = 10.0
		}
		refCounts := make(map[string]int)
		for _, r := range references[ident] {
			refCounts[r]++
		}
		for referencer, numRefs := range refCounts {
			for definer := range defines[ident] {
				edgeWeights[edgeKey{referencer, definer, ident}] += mul * float64(numRefs)
			}
		}
	}

	for k, w := range edgeWeights {
		from := nodeIDFor(k.referencer)
		to := nodeIDFor(k.definer)
		line := g.NewWeightedLine(fileNode{id: from}, fileNode{id: to}, w)
		g.SetWeightedLine(line)
	}

	if g.Nodes().Len() == 0 {
		return nil
	}

	ranked := personalizedPageRank(g, nodeByFile, personalization, 0.85, 1e-6)

	rankedDefs := make(map[[2]string]float64)
	for f, srcID := range nodeByFile {
		var totalWeight float64
		to := g.From(srcID)
		for to.Next() {
			dstID := to.Node().ID()
			lines := g.WeightedLines(srcID, dstID)
			for lines.Next() {
				totalWeight += lines.WeightedLine().(graph.WeightedLine).Weight()
			}
		}
		if totalWeight == 0 {
			continue
		}
		srcRank := ranked[srcID]
		for k, w := range edgeWeights {
			if k.referencer != f {
				continue
			}
			portion := srcRank * (w / totalWeight)
			rankedDefs[[2]string{k.definer, k.ident}] += portion
		}
	}

	type entry struct {
		fname, ident string
		rank         float64
	}
	var entries []entry
	for k, r := range rankedDefs {
		entries = append(entries, entry{fname: k[0], ident: k[1], rank: r})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rank > entries[j].rank })

	var out []RankedEntry
	includedFiles := make(map[string]struct{})
	for _, e := range entries {
		if _, skip := chatRelFnames[e.fname]; skip {
			continue
		}
		for _, t := range definitions[DefKey{RelFName: e.fname, Name: e.ident}] {
			out = append(out, RankedEntry{Tag: t})
			includedFiles[e.fname] = struct{}{}
		}
	}

	type fileRank struct {
		rel  string
		rank float64
	}
	var topRank []fileRank
	for f, id := range nodeByFile {
		topRank = append(topRank, fileRank{rel: f, rank: ranked[id]})
	}
	sort.Slice(topRank, func(i, j int) bool { return topRank[i].rank > topRank[j].rank })

	remainingOther := make(map[string]struct{}, len(otherRelFnames))
	for _, f := range otherRelFnames {
		remainingOther[f] = struct{}{}
	}
	for _, fr := range topRank {
		delete(remainingOther, fr.rel)
		if _, ok := includedFiles[fr.rel]; !ok {
			out = append(out, RankedEntry{RelFName: fr.rel})
			includedFiles[fr.rel] = struct{}{}
		}
	}
	for f := range remainingOther {
		out = append(out, RankedEntry{RelFName: f})
	}

	return out
}

// RankedEntry is either a ranked definition tag, or (when Tag is nil) a
// bare filename with no tags at all, matching the mixed Tag|tuple
// return type of motleycoder's rank_tags.
type RankedEntry struct {
	Tag      *Tag
	RelFName string
}

// personalizedPageRank runs power-iteration PageRank with per-node
// personalization and dangling-mass redistribution, since gonum's
// network.PageRank only supports the uniform-teleport variant (the gap
// the teacher's port left unfixed).
func personalizedPageRank(g *multi.WeightedDirectedGraph, nodeByFile map[string]int64, personalization map[string]float64, damping, tol float64) map[int64]float64 {
	n := g.Nodes().Len()
	if n == 0 {
		return nil
	}

	ids := make([]int64, 0, n)
	nodesIter := g.Nodes()
	for nodesIter.Next() {
		ids = append(ids, nodesIter.Node().ID())
	}

	pers := make(map[int64]float64, n)
	var total float64
	for f, id := range nodeByFile {
		if w, ok := personalization[f]; ok {
			pers[id] = w
			total += w
		}
	}
	if total == 0 {
		uniform := 1.0 / float64(n)
		for _, id := range ids {
			pers[id] = uniform
		}
	} else {
		for _, id := range ids {
			pers[id] /= total
		}
	}

	rank := make(map[int64]float64, n)
	for _, id := range ids {
		rank[id] = pers[id]
	}

	outWeight := make(map[int64]float64, n)
	for _, id := range ids {
		var w float64
		to := g.From(id)
		for to.Next() {
			dstID := to.Node().ID()
			lines := g.WeightedLines(id, dstID)
			for lines.Next() {
				w += lines.WeightedLine().(graph.WeightedLine).Weight()
			}
		}
		outWeight[id] = w
	}

	for iter := 0; iter < 100; iter++ {
		next := make(map[int64]float64, n)
		var danglingMass float64
		for _, id := range ids {
			next[id] = (1 - damping) * pers[id]
			if outWeight[id] == 0 {
				danglingMass += damping * rank[id]
			}
		}
		for _, id := range ids {
			if outWeight[id] == 0 {
				continue
			}
			to := g.From(id)
			for to.Next() {
				dstID := to.Node().ID()
				lines := g.WeightedLines(id, dstID)
				for lines.Next() {
					w := lines.WeightedLine().(graph.WeightedLine).Weight()
					next[dstID] += damping * rank[id] * (w / outWeight[id])
				}
			}
		}
		for _, id := range ids {
			next[id] += danglingMass * pers[id]
		}

		var delta float64
		for _, id := range ids {
			delta += math.Abs(next[id] - rank[id])
		}
		rank = next
		if delta < tol {
			break
		}
	}

	return rank
}
