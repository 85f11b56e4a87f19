package germ

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/graph/multi"
)

// tagNode adapts a *Tag to gonum's graph.Node interface.
type tagNode struct {
	id  int64
	tag *Tag
}

func (n tagNode) ID() int64 { return n.id }

// edgeAttrs carries per-line metadata gonum's multigraph doesn't have a
// native slot for.
type edgeAttrs struct {
	includeInSummary bool
}

// TagGraph is a directed multigraph of Tags: edges run from references
// to the definitions they might resolve to, and from parent definitions
// to the child definitions/references they enclose. Grounded on
// motleycoder's codemap/graph.py TagGraph (a networkx MultiDiGraph),
// realized here on gonum's graph/multi since gonum nodes must be
// int64-identified rather than arbitrary hashable values.
type TagGraph struct {
	g         *multi.DirectedGraph
	nodeOf    map[*Tag]int64
	tagOf     map[int64]*Tag
	nextID    int64
	edgeAttrs map[int64]edgeAttrs
	codeMap   map[string]string
}

// NewTagGraph creates an empty TagGraph.
func NewTagGraph() *TagGraph {
	return &TagGraph{
		g:         multi.NewDirectedGraph(),
		nodeOf:    make(map[*Tag]int64),
		tagOf:     make(map[int64]*Tag),
		edgeAttrs: make(map[int64]edgeAttrs),
	}
}

// addNode ensures tag has a node in the graph and returns its gonum ID.
func (tg *TagGraph) addNode(tag *Tag) int64 {
	if id, ok := tg.nodeOf[tag]; ok {
		return id
	}
	id := tg.nextID
	tg.nextID++
	tg.nodeOf[tag] = id
	tg.tagOf[id] = tag
	tg.g.AddNode(tagNode{id: id, tag: tag})
	return id
}

// addEdge adds a directed edge from -> to, marked includeInSummary.
func (tg *TagGraph) addEdge(from, to *Tag, includeInSummary bool) {
	fromID := tg.addNode(from)
	toID := tg.addNode(to)
	line := tg.g.NewLine(tagNode{id: fromID, tag: from}, tagNode{id: toID, tag: to})
	tg.g.SetLine(line)
	tg.edgeAttrs[line.ID()] = edgeAttrs{includeInSummary: includeInSummary}
}

// Nodes returns every tag in the graph.
func (tg *TagGraph) Nodes() []*Tag {
	out := make([]*Tag, 0, len(tg.tagOf))
	for _, t := range tg.tagOf {
		out = append(out, t)
	}
	return out
}

// Filenames returns the set of distinct file names represented in the graph.
func (tg *TagGraph) Filenames() map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range tg.tagOf {
		out[t.FName] = struct{}{}
	}
	return out
}

// outEdges returns (target, includeInSummary) pairs for tag's out-edges.
func (tg *TagGraph) outEdges(tag *Tag) []struct {
	to      *Tag
	include bool
} {
	id, ok := tg.nodeOf[tag]
	if !ok {
		return nil
	}
	var out []struct {
		to      *Tag
		include bool
	}
	to := tg.g.From(id)
	for to.Next() {
		toID := to.Node().ID()
		lines := tg.g.Lines(id, toID)
		for lines.Next() {
			l := lines.Line()
			out = append(out, struct {
				to      *Tag
				include bool
			}{to: tg.tagOf[toID], include: tg.edgeAttrs[l.ID()].includeInSummary})
		}
	}
	return out
}

// predecessors returns tags with an edge pointing at tag.
func (tg *TagGraph) predecessors(tag *Tag) []*Tag {
	id, ok := tg.nodeOf[tag]
	if !ok {
		return nil
	}
	var out []*Tag
	from := tg.g.To(id)
	for from.Next() {
		out = append(out, tg.tagOf[from.Node().ID()])
	}
	return out
}

// SuccessorsWithAttribute returns successors of node reached via an edge
// whose includeInSummary flag equals value.
func (tg *TagGraph) SuccessorsWithAttribute(tag *Tag, value bool) []*Tag {
	var out []*Tag
	for _, e := range tg.outEdges(tag) {
		if e.include == value {
			out = append(out, e.to)
		}
	}
	return out
}

// GetParents returns the chain of enclosing definitions for tag, eg the
// class def for a method. If tag claims parent names but no parent def
// can be found in the graph, a warning is logged and nil is returned.
func (tg *TagGraph) GetParents(tag *Tag) []*Tag {
	if len(tag.ParentNames) == 0 {
		return nil
	}

	var parents []*Tag
	for _, p := range tg.predecessors(tag) {
		if p.Kind == KindDef {
			parents = append(parents, p)
		}
	}
	if len(parents) == 0 {
		log.Warn().Str("tag", tag.QualifiedName()).Msg("no parent found for tag with nonempty parent names")
		return nil
	}
	parent := parents[0]

	var ancestors []*Tag
	if len(parent.ParentNames) > 0 {
		ancestors = tg.GetParents(parent)
	}
	return append(ancestors, parent)
}

// BuildTagGraph constructs a TagGraph from a flat tag list, following
// motleycoder's build_tag_graph:
//  1. index every def by name
//  2. add file-kind tags as standalone nodes
//  3. add every tag as a node
//  4. for each def, edge to every ref textually nested inside it
//  5. for each ref, edge to every def candidate sharing its name, and
//     bump Tag.NDefs for each candidate
//  6. for each tag with parent names, edge from the matching parent def
func BuildTagGraph(tags []Tag, codeMap map[string]string) *TagGraph {
	tg := NewTagGraph()
	tg.codeMap = codeMap

	defMap := make(map[string][]*Tag)
	tagPtrs := make([]*Tag, len(tags))
	for i := range tags {
		tagPtrs[i] = &tags[i]
	}

	for _, t := range tagPtrs {
		switch t.Kind {
		case KindDef:
			defMap[t.Name] = append(defMap[t.Name], t)
		case KindFile:
			tg.addNode(t)
		}
	}

	for _, t := range tagPtrs {
		tg.addNode(t)

		switch t.Kind {
		case KindDef:
			for _, ref := range tagPtrs {
				if ref.Kind != KindRef || ref.FName != t.FName {
					continue
				}
				if ref.ByteRange[0] >= t.ByteRange[0] && ref.ByteRange[1] <= t.ByteRange[1] {
					tg.addEdge(t, ref, false)
				}
			}
		case KindRef:
			for _, def := range defMap[t.Name] {
				tg.addEdge(t, def, false)
				t.NDefs++
			}
		}

		if len(t.ParentNames) > 0 {
			parentName := t.ParentNames[len(t.ParentNames)-1]
			for _, c := range defMap[parentName] {
				if c.FName == t.FName && parentNamesEqual(c.ParentNames, t.ParentNames[:len(t.ParentNames)-1]) {
					tg.addEdge(c, t, false)
				}
			}
		}
	}

	return tg
}

func parentNamesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OnlyDefs projects a tag graph down to def nodes and def-to-def edges,
// promoting every def->ref->def two-hop path into a direct def->def
// edge, marked includeInSummary only when the intermediate ref has at
// most 2 candidate definitions (NDefs <= 2), matching motleycoder's
// only_defs.
func OnlyDefs(tagGraph *TagGraph) *TagGraph {
	out := NewTagGraph()
	out.codeMap = tagGraph.codeMap

	for _, t := range tagGraph.Nodes() {
		if t.Kind == KindDef {
			out.addNode(t)
		}
	}

	for _, u := range tagGraph.Nodes() {
		if u.Kind != KindDef {
			continue
		}
		for _, e := range tagGraph.outEdges(u) {
			if e.to.Kind == KindDef {
				out.addEdge(u, e.to, true)
			}
		}
	}

	// Two-hop def -> ref -> def promotion.
	for _, u := range tagGraph.Nodes() {
		if u.Kind != KindDef {
			continue
		}
		for _, e := range tagGraph.outEdges(u) {
			v := e.to
			if v.Kind == KindDef {
				continue
			}
			for _, e2 := range tagGraph.outEdges(v) {
				vDesc := e2.to
				if vDesc.Kind == KindDef && vDesc != u {
					out.addEdge(u, vDesc, v.NDefs <= 2)
				}
			}
		}
	}

	return out
}

// SearchLineInTags returns the tag among tags (assumed same file) whose
// [Line, EndLine] span contains line, or nil.
func SearchLineInTags(tags []*Tag, line int) *Tag {
	for _, t := range tags {
		if t.Line <= line && line <= t.EndLine {
			return t
		}
	}
	return nil
}

// GetTagFromFilenameLineno finds the tag in the graph starting at
// lineNo (1-based) within a file whose name contains fname, retrying on
// the next line once if nothing matches on the first attempt.
func (tg *TagGraph) GetTagFromFilenameLineno(fname string, lineNo int) (*Tag, error) {
	return tg.getTagFromFilenameLineno(fname, lineNo, true)
}

func (tg *TagGraph) getTagFromFilenameLineno(fname string, lineNo int, tryNextLine bool) (*Tag, error) {
	var files []string
	for f := range tg.Filenames() {
		if strings.Contains(f, fname) {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("file %s not found in the file group", fname)
	}

	fileSet := make(map[string]struct{}, len(files))
	for _, f := range files {
		fileSet[f] = struct{}{}
	}

	for _, t := range tg.Nodes() {
		if _, ok := fileSet[t.FName]; !ok {
			continue
		}
		if t.Line == lineNo-1 {
			return t, nil
		}
	}

	if tryNextLine {
		return tg.getTagFromFilenameLineno(fname, lineNo+1, false)
	}
	return nil, nil
}

// GetTagsFromEntityName resolves a (possibly dotted) entity name to the
// matching definition tags, optionally scoped to a file, per
// motleycoder's get_tags_from_entity_name + match_entity_name.
func (tg *TagGraph) GetTagsFromEntityName(entityName, fileName string) []*Tag {
	if entityName == "" {
		var out []*Tag
		for _, t := range tg.Nodes() {
			if fileName != "" && strings.Contains(t.FName, fileName) {
				out = append(out, t)
			}
		}
		return out
	}

	parts := strings.Split(entityName, ".")
	minName := parts[len(parts)-1]

	preselection := tg.Nodes()
	if fileName != "" {
		var scoped []*Tag
		for _, t := range preselection {
			if strings.Contains(t.FName, fileName) {
				scoped = append(scoped, t)
			}
		}
		var hasMatch bool
		for _, t := range scoped {
			if t.Name == minName && t.Kind == KindDef {
				hasMatch = true
				break
			}
		}
		if hasMatch {
			preselection = scoped
		} else {
			log.Warn().Str("entity", entityName).Str("file", fileName).
				Msg("definition not found in file, searching globally")
		}
	}

	var candidates []*Tag
	for _, t := range preselection {
		if t.Name == minName && t.Kind == KindDef {
			candidates = append(candidates, t)
		}
	}

	var matches []*Tag
	for _, t := range candidates {
		if matchEntityName(entityName, t) {
			matches = append(matches, t)
		}
	}

	if len(matches) > 1 {
		log.Warn().Str("entity", entityName).Int("count", len(matches)).Msg("multiple definitions found")
	}
	return matches
}

// matchEntityName checks whether tag could plausibly be what entityName
// refers to, per motleycoder's match_entity_name.
func matchEntityName(entityName string, tag *Tag) bool {
	parts := strings.Split(entityName, ".")
	if parts[len(parts)-1] != tag.Name {
		return false
	}
	if len(parts) == 1 || len(tag.ParentNames) == 0 {
		return true
	}

	dotted := parts[:len(parts)-1]
	if len(tag.ParentNames) <= len(dotted) {
		tail := dotted[len(dotted)-len(tag.ParentNames):]
		if parentNamesEqual(tag.ParentNames, tail) {
			return true
		}
	}

	fnParts := strings.Split(tag.FName, "/")
	if n := len(fnParts); n > 0 {
		fnParts[n-1] = strings.TrimSuffix(fnParts[n-1], extOf(tag.FName))
	}
	potentialParents := append(append([]string{}, fnParts...), tag.ParentNames...)
	need := len(parts) - 1
	if len(potentialParents) < need {
		return false
	}
	clipped := potentialParents[len(potentialParents)-need:]
	return parentNamesEqual(clipped, dotted)
}

func extOf(fname string) string {
	if i := strings.LastIndex(fname, "."); i >= 0 {
		return fname[i:]
	}
	return ""
}

// GetTagRepresentation renders a single tag's summary: its own text
// (or, if too long, a tree-rendered outline), plus a short summary of
// the children it references, matching motleycoder's
// get_tag_representation.
func (tg *TagGraph) GetTagRepresentation(tag *Tag, parentDetails bool, maxLines int, forceIncludeFullText bool) string {
	if tag == nil {
		return ""
	}

	renderer := NewRenderer(tg.codeMap)

	var tagRepr []string
	tagRepr = append(tagRepr, tag.RelFName+":")
	if !parentDetails {
		if len(tag.ParentNames) > 0 {
			tagRepr = append(tagRepr, strings.Join(tag.ParentNames, ".")+"."+tag.Name+":")
		}
	} else {
		parents := tg.GetParents(tag)
		if len(parents) > 0 {
			tagRepr = []string{renderer.ToTree(parents)}
		}
	}
	tagRepr = append(tagRepr, TextWithLineNumbers(tag))
	full := strings.Join(tagRepr, "\n")
	nLines := len(strings.Split(full, "\n"))

	if forceIncludeFullText || nLines <= maxLines {
		var children []*Tag
		for _, e := range tg.outEdges(tag) {
			c := e.to
			if c.FName == tag.FName && c.ByteRange[0] >= tag.ByteRange[0] && c.ByteRange[1] <= tag.ByteRange[1] {
				continue
			}
			if !e.include {
				continue
			}
			if IsBuiltin(c.Language, c.Name) {
				continue
			}
			children = append(children, c)
		}

		out := []string{full}
		if len(children) > 0 {
			summary := renderer.ToTree(children)
			if nLines+len(strings.Split(summary, "\n")) < maxLines {
				out = append(out, "Referenced entities summary:", summary)
			}
		}
		return strings.Join(out, "\n")
	}

	children := tg.SuccessorsWithAttribute(tag, true)
	var filtered []*Tag
	filtered = append(filtered, tag)
	for _, c := range children {
		if !IsBuiltin(c.Language, c.Name) {
			filtered = append(filtered, c)
		}
	}
	return renderer.ToTree(filtered)
}

// GetFileRepresentation renders a whole-file summary: tagged top-level
// spans rendered via ToTree, with any untagged lines interspersed,
// matching motleycoder's get_file_representation.
func (tg *TagGraph) GetFileRepresentation(fileName, fileContent string, maxLines int) (string, error) {
	var tags []*Tag
	for _, t := range tg.Nodes() {
		if t.FName == fileName {
			tags = append(tags, t)
		}
	}

	if len(tags) == 0 {
		if fileContent == "" {
			return "", fmt.Errorf("no tags found for file %s and no content provided", fileName)
		}
		lines := strings.Split(fileContent, "\n")
		limit := len(lines)
		if limit > maxLines {
			limit = maxLines
		}
		var rendered []string
		for i := 0; i < limit; i++ {
			rendered = append(rendered, renderLine(lines[i], i+1))
		}
		repr := strings.Join(rendered, "\n")
		if len(lines) > maxLines+1 {
			repr += fmt.Sprintf("\n... and %d more lines", len(lines)-maxLines)
		}
		return repr, nil
	}

	var rootTags []*Tag
	for _, t := range tags {
		if len(t.ParentNames) == 0 {
			rootTags = append(rootTags, t)
		}
	}

	lines := strings.Split(fileContent, "\n")
	var toDisplay []int
	for i := 0; i < len(lines); {
		tag := SearchLineInTags(rootTags, i)
		if tag != nil {
			i = tag.EndLine + 1
		} else {
			toDisplay = append(toDisplay, i)
			i++
		}
	}

	renderer := NewRenderer(tg.codeMap)
	return renderer.ToTreeWithAdditional(tags, map[string][]int{tags[0].RelFName: toDisplay}), nil
}

// sortedDefKeys returns the keys of a map[DefKey]... collection in a
// stable (file, name) order.
func sortedDefKeys(m map[DefKey][]*Tag) []DefKey {
	keys := make([]DefKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].RelFName != keys[j].RelFName {
			return keys[i].RelFName < keys[j].RelFName
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}
