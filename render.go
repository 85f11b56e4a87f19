package germ

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	grepast "github.com/cyber-nic/grep-ast"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

const defaultTreeCacheSize = 512

// renderCacheKey is the memoization key for a rendered per-file tree
// excerpt: the file plus its sorted lines of interest.
type renderCacheKey struct {
	relFname string
	lois     string
}

// Renderer produces textual excerpts of tagged code, using grep-ast's
// TreeContext to expand each line of interest to its enclosing scope,
// memoized per (file, lines-of-interest) via an in-process LRU,
// grounded on motleycoder's codemap/render.py RenderCode and the
// teacher's toTree/renderTree.
type Renderer struct {
	codeMap map[string]string
	cache   *lru.Cache[renderCacheKey, string]
}

// NewRenderer creates a Renderer backed by codeMap (absolute filename ->
// full source text).
func NewRenderer(codeMap map[string]string) *Renderer {
	cache, err := lru.New[renderCacheKey, string](defaultTreeCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which defaultTreeCacheSize never is.
		panic(err)
	}
	return &Renderer{codeMap: codeMap, cache: cache}
}

// ToTree renders a sorted, grouped excerpt of tags: one heading per
// file, each followed by its expanded lines of interest.
func (r *Renderer) ToTree(tags []*Tag) string {
	return r.ToTreeWithAdditional(tags, nil)
}

// ToTreeWithAdditional is ToTree, plus extra line numbers to treat as
// interesting per relative filename (used for whole-file rendering).
func (r *Renderer) ToTreeWithAdditional(tags []*Tag, additionalLines map[string][]int) string {
	if len(tags) == 0 {
		return ""
	}
	if additionalLines == nil {
		additionalLines = map[string][]int{}
	}

	sorted := make([]*Tag, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool {
		return tagSortKey(sorted[i]) < tagSortKey(sorted[j])
	})

	var out strings.Builder
	var curFname, curAbsFname string
	var lois []int
	haveCurrent := false

	flush := func() {
		if !haveCurrent {
			return
		}
		out.WriteString("\n" + curFname + ":\n")
		lines := append(append([]int{}, lois...), additionalLines[curFname]...)
		rendered, err := r.renderTree(curFname, curAbsFname, lines)
		if err != nil {
			log.Warn().Err(err).Str("file", curFname).Msg("failed to render tree")
		}
		out.WriteString(rendered)
	}

	for _, t := range append(sorted, &Tag{RelFName: ""}) { // sentinel flush
		if t.RelFName != curFname {
			flush()
			if t.RelFName == "" && t.Name == "" && t.FName == "" {
				break
			}
			curFname = t.RelFName
			curAbsFname = t.FName
			lois = nil
			haveCurrent = true
		}
		lois = append(lois, t.Line)
	}

	lines := strings.Split(out.String(), "\n")
	for i, ln := range lines {
		if len(ln) > 100 {
			lines[i] = ln[:100]
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func tagSortKey(t *Tag) string {
	return fmt.Sprintf("%s\x00%08d", t.RelFName, t.Line)
}

func (r *Renderer) renderTree(relFname, absFname string, lois []int) (string, error) {
	sortedLois := append([]int{}, lois...)
	sort.Ints(sortedLois)
	key := renderCacheKey{relFname: relFname, lois: joinInts(sortedLois)}
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	code, ok := r.codeMap[absFname]
	if !ok {
		code = ""
	}
	if code != "" && !strings.HasSuffix(code, "\n") {
		code += "\n"
	}

	tc, err := grepast.NewTreeContext(
		relFname, []byte(code),
		grepast.WithColor(false),
		grepast.WithChildContext(false),
		grepast.WithLastLineContext(false),
		grepast.WithTopMargin(0),
		grepast.WithLinesOfInterestMarked(false),
		grepast.WithLinesOfInterestPadding(0),
		grepast.WithTopOfFileParentScope(false),
	)
	if err != nil {
		if err == grepast.ErrorUnsupportedLanguage || err == grepast.ErrorUnrecognizedFiletype {
			return "", nil
		}
		return "", fmt.Errorf("failed to create tree context: %w", err)
	}

	loiMap := make(map[int]struct{}, len(sortedLois))
	for _, ln := range sortedLois {
		loiMap[ln] = struct{}{}
	}
	tc.AddLinesOfInterest(loiMap)
	tc.AddContext()

	res := tc.Format()
	r.cache.Add(key, res)
	return res, nil
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// TextWithLineNumbers renders a tag's own text with a per-line gutter,
// matching motleycoder's RenderCode.text_with_line_numbers.
func TextWithLineNumbers(t *Tag) string {
	lines := strings.Split(t.Text, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = renderLine(line, i+1+t.Line)
	}
	return strings.Join(out, "\n")
}

// renderLine formats a single numbered source line.
func renderLine(line string, number int) string {
	return fmt.Sprintf("%3d│%s", number, line)
}
