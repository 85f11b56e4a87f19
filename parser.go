package germ

import (
	"errors"
	"fmt"
	"os"
	"strings"

	queries "github.com/cyber-nic/germ/queries"
	grepast "github.com/cyber-nic/grep-ast"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// TagFilter is a function that accepts the name of a capture and returns
// false if it should be skipped (eg too short, a common word).
type TagFilter func(name string) bool

// LoadQuery loads the embedded tree-sitter tag query text for langID and
// compiles it against lang.
func LoadQuery(lang *sitter.Language, langID string) (*sitter.Query, error) {
	querySource, err := queries.GetSitterQuery(queries.SitterLanguage(langID))
	if err != nil {
		return nil, fmt.Errorf("failed to obtain query (%s): %w", langID, err)
	}
	if len(querySource) == 0 {
		return nil, fmt.Errorf("empty query file: %s", langID)
	}

	q, qErr := sitter.NewQuery(lang, string(querySource))
	if qErr != nil {
		var queryErr *sitter.QueryError
		if errors.As(qErr, &queryErr) && queryErr != nil {
			return nil, fmt.Errorf(
				"query error: %s at row: %d, column: %d, offset: %d, kind: %v",
				queryErr.Message, queryErr.Row, queryErr.Column, queryErr.Offset, queryErr.Kind,
			)
		}
		return nil, fmt.Errorf("failed to create query: %w", qErr)
	}
	return q, nil
}

func readSourceCode(fname string) ([]byte, error) {
	sourceCode, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("failed to read file (%s): %w", fname, err)
	}
	if len(sourceCode) == 0 {
		return nil, fmt.Errorf("empty file: %s", fname)
	}
	return sourceCode, nil
}

// roleCapture groups a name capture with its enclosing role capture
// (the @definition.* / @reference.* node from the same query match).
type roleCapture struct {
	kind       string // KindDef or KindRef
	nameNode   *sitter.Node
	roleNode   *sitter.Node // enclosing node, falls back to nameNode
	captureIdx uint32
}

// GetTagsFromQueryCapture runs q against tree/sourceCode and turns the
// resulting captures into Tags, partitioning by the "name.definition."/
// "name.reference." capture-name convention (grounded on the teacher's
// GetTagsFromQueryCapture, extended with parent-chain and byte-range
// resolution per motleycoder's ast_to_tags).
func GetTagsFromQueryCapture(relFname, fname, language string, q *sitter.Query, tree *sitter.Tree, sourceCode []byte, filter TagFilter) []Tag {
	qc := sitter.NewQueryCursor()
	defer qc.Close()

	captures := qc.Captures(q, tree.RootNode(), sourceCode)

	var roles []roleCapture
	// seen dedupes repeated captures.Next() calls against the same
	// underlying match (the cursor yields one (match, index) pair per
	// capture, but match.Captures holds every capture in that match) by
	// the byte range of its first capture, which is stable per match.
	seen := make(map[[2]uint]bool)

	for match, index := captures.Next(); match != nil; match, index = captures.Next() {
		if len(match.Captures) == 0 {
			continue
		}
		first := match.Captures[0].Node
		matchKey := [2]uint{uint(first.StartByte()), uint(first.EndByte())}
		if seen[matchKey] {
			continue
		}
		seen[matchKey] = true

		names := q.CaptureNames()

		var nameNode, roleNode *sitter.Node
		var kind string

		for _, c := range match.Captures {
			capName := names[c.Index]
			node := c.Node
			switch {
			case strings.HasPrefix(capName, "name.definition."):
				nameNode = &node
				kind = KindDef
			case strings.HasPrefix(capName, "name.reference."):
				nameNode = &node
				kind = KindRef
			case strings.HasPrefix(capName, "definition."):
				roleNode = &node
				kind = KindDef
			case strings.HasPrefix(capName, "reference."):
				roleNode = &node
				kind = KindRef
			}
		}
		_ = index

		if nameNode == nil {
			continue
		}
		if roleNode == nil {
			roleNode = nameNode
		}

		name := string(nameNode.Utf8Text(sourceCode))
		if filter != nil && !filter(name) {
			continue
		}

		roles = append(roles, roleCapture{kind: kind, nameNode: nameNode, roleNode: roleNode})
	}

	// Resolve parent chains: a def's parents are the enclosing defs
	// whose role-node byte range strictly contains this def's name node.
	defs := make([]roleCapture, 0, len(roles))
	for _, r := range roles {
		if r.kind == KindDef {
			defs = append(defs, r)
		}
	}

	tags := make([]Tag, 0, len(roles))
	for _, r := range roles {
		parentNames := enclosingDefNames(r.nameNode, defs, sourceCode)
		tags = append(tags, Tag{
			Kind:        r.kind,
			Name:        name(r.nameNode, sourceCode),
			ParentNames: parentNames,
			FName:       fname,
			RelFName:    relFname,
			Line:        int(r.nameNode.StartPosition().Row),
			EndLine:     int(r.roleNode.EndPosition().Row),
			ByteRange:   [2]int{int(r.roleNode.StartByte()), int(r.roleNode.EndByte())},
			Text:        string(r.roleNode.Utf8Text(sourceCode)),
			Docstring:   docstringFor(r, language, sourceCode),
			Language:    language,
		})
	}

	return tags
}

func name(n *sitter.Node, src []byte) string {
	return string(n.Utf8Text(src))
}

// enclosingDefNames finds the chain of definitions whose role node
// strictly contains node's byte range, narrowest-first ordering reversed
// to outermost-first, matching motleycoder's parent_names convention.
func enclosingDefNames(node *sitter.Node, defs []roleCapture, src []byte) []string {
	start, end := node.StartByte(), node.EndByte()

	var enclosing []roleCapture
	for _, d := range defs {
		if d.nameNode == node {
			continue
		}
		ds, de := d.roleNode.StartByte(), d.roleNode.EndByte()
		if ds <= start && end <= de && (ds < start || de > end) {
			enclosing = append(enclosing, d)
		}
	}
	if len(enclosing) == 0 {
		return nil
	}

	// Narrowest range = closest ancestor; sort by shrinking span, then
	// reverse so the outermost ancestor comes first.
	for i := 1; i < len(enclosing); i++ {
		for j := i; j > 0; j-- {
			a, b := enclosing[j], enclosing[j-1]
			spanA := a.roleNode.EndByte() - a.roleNode.StartByte()
			spanB := b.roleNode.EndByte() - b.roleNode.StartByte()
			if spanA < spanB {
				enclosing[j], enclosing[j-1] = enclosing[j-1], enclosing[j]
			} else {
				break
			}
		}
	}

	names := make([]string, 0, len(enclosing))
	for i := len(enclosing) - 1; i >= 0; i-- {
		names = append(names, name(enclosing[i].nameNode, src))
	}
	return names
}

// docstringFor extracts the docstring of a Python definition: the first
// statement of its body, when that statement is a string literal.
// Leading comments are not collected, and definitions in other
// languages get an empty docstring.
func docstringFor(r roleCapture, language string, src []byte) string {
	if r.kind != KindDef || language != "python" {
		return ""
	}
	body := r.roleNode.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	for i := uint(0); i < uint(body.NamedChildCount()); i++ {
		child := body.NamedChild(uint32(i))
		if child == nil {
			continue
		}
		if child.Type() == "expression_statement" && child.NamedChildCount() > 0 {
			inner := child.NamedChild(0)
			if inner != nil && inner.Type() == "string" {
				return string(inner.Utf8Text(src))
			}
		}
		break
	}
	return ""
}

// GetTagsRaw parses fname with tree-sitter and extracts tags, falling
// back to a lexical tokenizer for languages whose query only yields
// definitions (matching motleycoder's get_tags_raw defs-without-refs
// fallback).
func GetTagsRaw(fname, relFname string, filter TagFilter) ([]Tag, error) {
	lang, langID, err := grepast.GetLanguageFromFileName(fname)
	if err != nil || lang == nil {
		return nil, grepast.ErrorUnsupportedLanguage
	}

	sourceCode, err := readSourceCode(fname)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree := parser.Parse(sourceCode, nil)
	if tree == nil || tree.RootNode() == nil {
		return nil, fmt.Errorf("failed to parse file: %s", fname)
	}

	q, err := LoadQuery(lang, langID)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file (%s): %w", langID, err)
	}
	defer q.Close()

	tags := GetTagsFromQueryCapture(relFname, fname, langID, q, tree, sourceCode, filter)

	saw := make(map[string]bool)
	for _, t := range tags {
		saw[t.Kind] = true
	}
	if saw[KindRef] || !saw[KindDef] {
		return tags, nil
	}

	// Defs without refs: some tag queries (eg C) only emit definitions.
	// Backfill references lexically.
	refs := RefsFromLexer(relFname, fname, string(sourceCode), langID)
	return append(tags, refs...), nil
}
