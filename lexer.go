package germ

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// RefsFromLexer extracts reference tags from raw source using a lexical
// tokenizer rather than a syntax tree. It backfills references for
// languages whose tag query only emits definitions (eg C, grounded on
// motleycoder's parse.py refs_from_lexer, using chroma in place of
// pygments).
func RefsFromLexer(relFname, fname, code, language string) []Tag {
	lexer := lexers.Match(fname)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return nil
	}

	iter, err := lexer.Tokenise(nil, code)
	if err != nil {
		return nil
	}

	var out []Tag
	for _, tok := range iter.Tokens() {
		if !tok.Type.InCategory(chroma.Name) {
			continue
		}
		name := strings.TrimSpace(tok.Value)
		if name == "" {
			continue
		}
		out = append(out, Tag{
			Kind:      KindRef,
			Name:      name,
			FName:     fname,
			RelFName:  relFname,
			Line:      -1,
			EndLine:   -1,
			ByteRange: [2]int{0, 0},
			Language:  language,
		})
	}
	return out
}
