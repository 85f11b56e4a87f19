package germ

import "strings"

// Tag kinds, per spec: a def introduces a symbol, a ref names one, and
// a file tag is a standalone root node with no name.
const (
	KindDef  = "def"
	KindRef  = "ref"
	KindFile = "file"
)

// Tag is the atomic unit produced by the parser: a definition, a
// reference, or a whole-file node. It is immutable after construction
// except for NDefs, which the graph builder populates as it resolves
// reference candidates.
type Tag struct {
	Kind        string
	Name        string
	ParentNames []string
	FName       string // absolute path, forward slashes
	RelFName    string // repository-relative path, forward slashes
	Line        int    // 0-based
	EndLine     int    // 0-based
	ByteRange   [2]int // half-open [start, end)
	Text        string
	Docstring   string
	Language    string
	NDefs       int
}

// FullName mirrors motleycoder's Tag.full_name: for a ref it is the
// bare name, for a def it is the parent chain plus the name.
func (t *Tag) FullName() []string {
	if t.Kind == KindRef {
		return []string{t.Name}
	}
	out := make([]string, 0, len(t.ParentNames)+1)
	out = append(out, t.ParentNames...)
	out = append(out, t.Name)
	return out
}

// QualifiedName joins FullName with dots, eg "Outer.Inner.method".
func (t *Tag) QualifiedName() string {
	return strings.Join(t.FullName(), ".")
}

// TagKey is a comparable projection of a Tag's identifying fields, for
// map keys where *Tag pointer identity isn't appropriate. The tags cache
// does not use it: its entries are keyed on "<path>::<key>" strings.
type TagKey struct {
	Kind        string
	Name        string
	RelFName    string
	Line        int
	ByteStart   int
	ByteEnd     int
	ParentNames string
}

// Key returns the comparable key for this tag.
func (t *Tag) Key() TagKey {
	return TagKey{
		Kind:        t.Kind,
		Name:        t.Name,
		RelFName:    t.RelFName,
		Line:        t.Line,
		ByteStart:   t.ByteRange[0],
		ByteEnd:     t.ByteRange[1],
		ParentNames: strings.Join(t.ParentNames, "\x1f"),
	}
}

// DefKey identifies a (file, symbol) pair, used to group definitions
// for ranking and rendering.
type DefKey struct {
	RelFName string
	Name     string
}
