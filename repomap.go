// Package germ contains the core logic for the germ tool: parsing a
// repository into tags, ranking them, and rendering a token-budgeted
// map of the most relevant code.
package germ

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	goignore "github.com/cyber-nic/go-gitignore"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RepoMap default options
const (
	defaultGlobIgnoreEnabled    = true
	defaultMaxCtxFileMultiplier = 8
	defaultMaxCtxWindow         = 16000
	defaultMaxMapTokens         = 1024
	defaultRepoContentPrefix    = ""
	defaultVerbose              = false
	defaultDiffusionMult        = 0.5
)

// TokenCounter estimates the number of model tokens a string costs,
// standing in for the real tokenizer used by whatever model consumes
// the map (motleycoder calls out to tiktoken; here it's pluggable so
// callers can wire a real one in).
type TokenCounter interface {
	TokenCount(text string) float64
}

// NaiveTokenCounter approximates 1 token per 4 characters, for callers
// that don't wire a real tokenizer.
type NaiveTokenCounter struct{}

// TokenCount implements TokenCounter.
func (NaiveTokenCounter) TokenCount(text string) float64 {
	return float64(len(text)) / 4
}

// RepoMap is the top-level orchestrator: it parses a repository's files
// into tags, ranks them against the caller's interests, and packs as
// many as fit into a token budget into a rendered tree. Grounded on the
// teacher's RepoMap and motleycoder's codemap/repomap.py RepoMap.
type RepoMap struct {
	globIgnoreEnabled    bool
	globIgnoreFilePath   string
	globIgnorePatterns   *goignore.GitIgnore
	lastMap              string
	tokenCounter         TokenCounter
	maxMapTokens         int
	maxCtxWindow         int
	maxCtxFileMultiplier int
	totalProcessingTime  float64
	contentPrefix        string
	root                 string
	verbose              bool
	refreshAlways        bool
	diffusionMult        float64
	useLegacyRanker      bool

	fileGroup *FileGroup
	cache     *TagsCache
}

// NewRepoMap is the RepoMap constructor.
func NewRepoMap(root string, tokenCounter TokenCounter, options ...func(*RepoMap)) *RepoMap {
	if root == "" {
		cwd, err := os.Getwd()
		if err == nil {
			root = cwd
		}
	}
	if tokenCounter == nil {
		tokenCounter = NaiveTokenCounter{}
	}

	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	rm := &RepoMap{
		globIgnoreEnabled:    defaultGlobIgnoreEnabled,
		globIgnorePatterns:   &goignore.GitIgnore{},
		contentPrefix:        defaultRepoContentPrefix,
		tokenCounter:         tokenCounter,
		maxMapTokens:         defaultMaxMapTokens,
		maxCtxFileMultiplier: defaultMaxCtxFileMultiplier,
		maxCtxWindow:         defaultMaxCtxWindow,
		root:                 root,
		verbose:              defaultVerbose,
		diffusionMult:        defaultDiffusionMult,
	}

	for _, o := range options {
		o(rm)
	}

	patterns, err := loadIgnorePatterns(rm.root, rm.globIgnoreFilePath)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load ignore patterns, proceeding without them")
	} else {
		rm.globIgnorePatterns = patterns
	}
	if !rm.globIgnoreEnabled {
		rm.globIgnorePatterns = goignore.CompileIgnoreLines()
	}

	vcs, vcsErr := NewGitTrackedFileLister(rm.root)
	var lister TrackedFileLister
	if vcsErr == nil {
		lister = vcs
	}
	filter := func(name string) bool {
		if rm.globIgnorePatterns == nil {
			return true
		}
		return !rm.globIgnorePatterns.MatchesPath(name)
	}
	rm.fileGroup = NewFileGroup(rm.root, lister, rm.globIgnorePatterns, filter)

	if cache, err := OpenTagsCache(rm.root); err == nil {
		rm.cache = cache
		rm.fileGroup.SetCache(cache)
	} else {
		log.Debug().Err(err).Msg("tags cache unavailable, proceeding uncached")
	}

	return rm
}

// WithLogLevel sets the log level for the RepoMap.
func WithLogLevel(value int) func(*RepoMap) {
	return func(_ *RepoMap) {
		zerolog.SetGlobalLevel(zerolog.Level(value))
		log.Debug().Int("level", value).Msg("RepoMap Log Level Set")
	}
}

// WithGlobIgnoreFilePath sets the glob ignore file path. Ignored if DisableGlobIgnore is set.
func WithGlobIgnoreFilePath(value string) func(*RepoMap) {
	return func(o *RepoMap) {
		o.globIgnoreFilePath = value
	}
}

// DisableGlobIgnore disables the global ignore file.
func DisableGlobIgnore() func(*RepoMap) {
	return func(o *RepoMap) {
		o.globIgnoreEnabled = false
	}
}

// WithMaxContextWindow sets the maximum context window.
func WithMaxContextWindow(value int) func(*RepoMap) {
	return func(o *RepoMap) {
		o.maxCtxWindow = value
	}
}

// WithMapMulNoFiles sets the file multiplier applied when no chat files are open.
func WithMapMulNoFiles(value int) func(*RepoMap) {
	return func(o *RepoMap) {
		o.maxCtxFileMultiplier = value
	}
}

// WithMaxTokens sets the map's maximum number of tokens.
func WithMaxTokens(value int) func(*RepoMap) {
	return func(o *RepoMap) {
		o.maxMapTokens = value
	}
}

// WithContentPrefix sets the repository content prefix; "{other}" is
// substituted with "other " when chat files are already open.
func WithContentPrefix(value string) func(*RepoMap) {
	return func(o *RepoMap) {
		o.contentPrefix = value
	}
}

// WithDiffusionMultiplier tunes how much of a def's rank weight spreads
// to its neighbors under the default ranker.
func WithDiffusionMultiplier(value float64) func(*RepoMap) {
	return func(o *RepoMap) {
		o.diffusionMult = value
	}
}

// WithLegacyRanker switches to the personalized-PageRank ranker instead
// of the default weight-and-diffuse ranker.
func WithLegacyRanker(value bool) func(*RepoMap) {
	return func(o *RepoMap) {
		o.useLegacyRanker = value
	}
}

// Verbose enables verbose output for debugging.
func Verbose(value bool) func(*RepoMap) {
	return func(o *RepoMap) {
		o.verbose = value
	}
}

// TokenCount delegates to the configured TokenCounter.
func (r *RepoMap) TokenCount(text string) float64 {
	return r.tokenCounter.TokenCount(text)
}

// GetRelFname returns fname relative to r.root. If that fails, returns fname as-is.
func (r *RepoMap) GetRelFname(fname string) string {
	rel, err := filepath.Rel(r.root, fname)
	if err != nil {
		return fname
	}
	return rel
}

// Close releases the RepoMap's resources (the tags cache).
func (r *RepoMap) Close() error {
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}

// FileGroup exposes the RepoMap's underlying file set, for callers (the
// tools package) that need to admit/list files directly.
func (r *RepoMap) FileGroup() *FileGroup {
	return r.fileGroup
}

// Root returns the repository root this RepoMap was constructed with.
func (r *RepoMap) Root() string {
	return r.root
}

// BuildTagGraphForFiles parses fnames (absolute paths) and builds a
// TagGraph over them, for callers that need direct symbol lookups
// (inspect_entity, get_full_text) rather than a rendered, ranked map.
// Because tag extraction goes through the mtime-keyed tags cache, a
// prior edit_file call that rewrote one of fnames is automatically
// reflected here: the file's new mtime busts its cache entry.
func (r *RepoMap) BuildTagGraphForFiles(fnames []string) (*TagGraph, map[string]string) {
	tags := r.getTagsFromFiles(fnames)
	codeMap := make(map[string]string, len(fnames))
	for _, fname := range fnames {
		if b, err := os.ReadFile(fname); err == nil {
			codeMap[fname] = string(b)
		}
	}
	return BuildTagGraph(tags, codeMap), codeMap
}

// GetFileTags returns the tags for fname, using the tags cache when available.
func (r *RepoMap) GetFileTags(fname, relFname string, filter TagFilter) ([]Tag, error) {
	return r.fileGroup.CachedTags(fname, func(fname string) ([]Tag, error) {
		return GetTagsRaw(fname, relFname, filter)
	})
}

func (r *RepoMap) getTagsFromFiles(allFnames []string) []Tag {
	var out []Tag
	for _, fname := range allFnames {
		rel := r.GetRelFname(fname)
		tags, err := r.GetFileTags(fname, rel, func(name string) bool {
			if _, common := commonWords[name]; common {
				return false
			}
			return true
		})
		if err != nil {
			log.Debug().Err(err).Str("file", fname).Msg("skipping file")
			continue
		}
		out = append(out, tags...)
	}
	return out
}

// GetRankedTagsMap ranks every tag reachable from chatFnames/otherFnames
// against the given mentions and binary-searches for the largest prefix
// of ranked tags whose rendered tree fits within maxMapTokens. Grounded
// on motleycoder's codemap/repomap.py find_best_tag_tree.
func (r *RepoMap) GetRankedTagsMap(
	chatFnames, otherFnames []string,
	maxMapTokens int,
	mentionedFnames, mentionedIdents map[string]struct{},
) string {
	startTime := time.Now()
	defer func() { r.totalProcessingTime = time.Since(startTime).Seconds() }()

	allFnames := uniqueElements(chatFnames, otherFnames)
	allTags := r.getTagsFromFiles(allFnames)
	if len(allTags) == 0 {
		return ""
	}

	codeMap := make(map[string]string, len(allFnames))
	for _, fname := range allFnames {
		if b, err := os.ReadFile(fname); err == nil {
			codeMap[fname] = string(b)
		}
	}

	chatSet := toSet(chatFnames)
	otherRelSet := make(map[string]struct{})
	for _, f := range otherFnames {
		otherRelSet[r.GetRelFname(f)] = struct{}{}
	}

	renderer := NewRenderer(codeMap)

	var entries []RankedEntry
	if r.useLegacyRanker {
		var otherRel []string
		for rel := range otherRelSet {
			otherRel = append(otherRel, rel)
		}
		entries = RankTagsLegacy(allTags, RepoMapArgs{
			ChatFnames:      chatSet,
			MentionedFnames: mentionedFnames,
			MentionedIdents: mentionedIdents,
		}, otherRel)
	} else {
		tg := BuildTagGraph(allTags, codeMap)
		defGraph := OnlyDefs(tg)
		ranked := RankTagsNew(defGraph, RepoMapArgs{
			ChatFnames:      chatSet,
			MentionedFnames: mentionedFnames,
			MentionedIdents: mentionedIdents,
		}, r.diffusionMult)
		entries = make([]RankedEntry, len(ranked))
		for i, t := range ranked {
			entries[i] = RankedEntry{Tag: t}
		}
	}

	if len(entries) == 0 {
		return ""
	}

	render := func(n int) string {
		if n > len(entries) {
			n = len(entries)
		}
		var tags []*Tag
		for _, e := range entries[:n] {
			if e.Tag != nil {
				tags = append(tags, e.Tag)
			}
		}
		return renderer.ToTree(tags)
	}

	bestTree := findBestTagTree(entries, maxMapTokens, r.TokenCount, render)

	r.lastMap = bestTree
	return bestTree
}

// findBestTagTree binary-searches the number of top-ranked entries to
// include and returns the largest rendering probed whose token count is
// strictly under maxMapTokens. The best observation is kept (rather than
// the last one) because rendered size need not grow monotonically with
// the entry count; "" is returned when no probed rendering fits.
func findBestTagTree(entries []RankedEntry, maxMapTokens int, tokenCount func(string) float64, render func(n int) string) string {
	lb, ub := 0, len(entries)
	middle := maxMapTokens / 25
	if middle > ub {
		middle = ub
	}

	bestTree := ""
	bestTreeTokens := 0.0

	for lb <= ub {
		tree := render(middle)
		numTokens := tokenCount(tree)

		if numTokens < float64(maxMapTokens) && numTokens > bestTreeTokens {
			bestTree = tree
			bestTreeTokens = numTokens
		}

		if numTokens < float64(maxMapTokens) {
			lb = middle + 1
		} else {
			ub = middle - 1
		}
		middle = (lb + ub) / 2
	}

	return bestTree
}

func toSet(vals []string) map[string]struct{} {
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}

// Generate is the top-level entry point that produces a rendered repo
// map honoring the configured token budget, matching motleycoder's
// RepoMap.get_repo_map.
func (r *RepoMap) Generate(
	chatFiles, otherFiles []string,
	mentionedFnames map[string]struct{},
	mentionedIdents map[string]struct{},
) string {
	if r.maxMapTokens <= 0 {
		log.Warn().Int("maxMapTokens", r.maxMapTokens).Msg("repo map disabled by max_map_tokens")
		return ""
	}
	if mentionedFnames == nil {
		mentionedFnames = make(map[string]struct{})
	}
	if mentionedIdents == nil {
		mentionedIdents = make(map[string]struct{})
	}

	maxMapTokens := r.maxMapTokens
	padding := 4096
	var target int
	if maxMapTokens > 0 && r.maxCtxWindow > 0 {
		t := maxMapTokens * r.maxCtxFileMultiplier
		t2 := r.maxCtxWindow - padding
		if t2 < 0 {
			t2 = 0
		}
		if t < t2 {
			target = t
		} else {
			target = t2
		}
	}
	if len(chatFiles) == 0 && r.maxCtxWindow > 0 && target > 0 {
		maxMapTokens = target
	}

	filesListing := r.GetRankedTagsMap(chatFiles, otherFiles, maxMapTokens, mentionedFnames, mentionedIdents)
	if filesListing == "" {
		return ""
	}

	if r.verbose {
		numTokens := r.TokenCount(filesListing)
		fmt.Printf("Repo-map: %.1f k-tokens\n", numTokens/1024.0)
	}

	other := ""
	if len(chatFiles) > 0 {
		other = "other "
	}

	var repoContent string
	if r.contentPrefix != "" {
		repoContent = strings.ReplaceAll(r.contentPrefix, "{other}", other)
	}

	repoContent += filesListing
	return repoContent
}

// GetRepoFiles gathers all files under path (or the file itself),
// alongside an ASCII tree-view listing, honoring the configured ignore
// patterns.
func (r *RepoMap) GetRepoFiles(path string) ([]string, string) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ""
	}

	if !info.IsDir() {
		fileName := filepath.Base(path)
		treeMap := fmt.Sprintf("└── %s\n", fileName)
		return []string{path}, treeMap
	}

	tree, files := r.buildTree(path, "")
	return files, tree
}

// buildTree constructs a tree-like string for the directory at path,
// collecting non-ignored file paths recursively.
func (r *RepoMap) buildTree(path, prefix string) (string, []string) {
	var (
		treeBuilder strings.Builder
		filePaths   []string
	)

	entries, err := os.ReadDir(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("unable to read directory")
		return "", nil
	}

	filtered := make([]os.DirEntry, 0, len(entries))
	for _, entry := range entries {
		fullPath := filepath.Join(path, entry.Name())
		if r.globIgnorePatterns.MatchesPath(fullPath) {
			continue
		}
		filtered = append(filtered, entry)
	}

	for i, entry := range filtered {
		connector := "├──"
		subPrefix := prefix + "│   "

		isLast := i == len(filtered)-1
		if isLast {
			connector = "└──"
			subPrefix = prefix + "    "
		}

		treeBuilder.WriteString(fmt.Sprintf("%s%s %s\n", prefix, connector, entry.Name()))
		fullPath := filepath.Join(path, entry.Name())

		if entry.IsDir() {
			subtree, subFiles := r.buildTree(fullPath, subPrefix)
			treeBuilder.WriteString(subtree)
			filePaths = append(filePaths, subFiles...)
		} else {
			filePaths = append(filePaths, fullPath)
		}
	}

	return treeBuilder.String(), filePaths
}

// FindGitRoot walks upward from start until it finds a directory
// containing a ".git" folder.
func FindGitRoot(start string) (string, error) {
	current, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("could not get absolute path of %q: %w", start, err)
	}

	for {
		gitPath := filepath.Join(current, ".git")
		info, err := os.Stat(gitPath)
		if err == nil && info.IsDir() {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", fmt.Errorf("no .git folder found starting from %q and up", start)
}
