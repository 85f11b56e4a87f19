package germ

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	goignore "github.com/cyber-nic/go-gitignore"
	"github.com/rs/zerolog/log"
)

// FilenameFilter decides whether fname belongs in the group.
type FilenameFilter func(fname string) bool

// FileGroup is the collection of files germ parses and monitors, backed
// either by a VCS's tracked-file list or a plain directory walk,
// grounded on motleycoder's FileGroup.
type FileGroup struct {
	root        string
	vcs         TrackedFileLister // nil => walk the directory
	ignore      *goignore.GitIgnore
	filter      FilenameFilter
	cache       *TagsCache
	warnedFiles map[string]struct{}

	// filesForModification holds the absolute paths of files the agent
	// has explicitly added to its working set (motleycoder's chat_fnames).
	filesForModification map[string]struct{}
}

// NewFileGroup constructs a FileGroup rooted at root. If vcs is nil,
// files are discovered via a plain recursive directory walk.
func NewFileGroup(root string, vcs TrackedFileLister, ignore *goignore.GitIgnore, filter FilenameFilter) *FileGroup {
	if filter == nil {
		filter = func(string) bool { return true }
	}
	return &FileGroup{
		root:                 root,
		vcs:                  vcs,
		ignore:               ignore,
		filter:               filter,
		warnedFiles:          make(map[string]struct{}),
		filesForModification: make(map[string]struct{}),
	}
}

// AbsRootPath resolves path relative to the group's root.
func (g *FileGroup) AbsRootPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(g.root, path)
}

// GetRelFname returns fname relative to the group's root, forward-slashed.
func (g *FileGroup) GetRelFname(fname string) string {
	rel, err := filepath.Rel(g.root, fname)
	if err != nil {
		return filepath.ToSlash(fname)
	}
	return filepath.ToSlash(rel)
}

// GetAllFilenames returns every file in the group, sorted and deduped,
// as absolute forward-slash paths, per motleycoder's get_all_filenames.
func (g *FileGroup) GetAllFilenames() ([]string, error) {
	var files []string

	if g.vcs != nil {
		tracked, err := g.vcs.TrackedFiles()
		if err != nil {
			return nil, err
		}
		for _, rel := range tracked {
			abs := g.AbsRootPath(rel)
			if info, err := os.Stat(abs); err == nil && !info.IsDir() {
				files = append(files, abs)
			}
		}
	} else {
		err := filepath.Walk(g.root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				if g.ignore != nil && g.ignore.MatchesPath(p) {
					return filepath.SkipDir
				}
				return nil
			}
			if g.ignore != nil && g.ignore.MatchesPath(p) {
				return nil
			}
			files = append(files, p)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		f = filepath.ToSlash(f)
		if !g.filter(f) {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// ValidateFnames filters fnames down to those that pass the filter and
// still exist as regular files, logging (once per file) when one doesn't.
func (g *FileGroup) ValidateFnames(fnames []string) []string {
	cleaned := make([]string, 0, len(fnames))
	for _, fname := range fnames {
		if !g.filter(fname) {
			continue
		}
		info, err := os.Stat(fname)
		if err == nil && !info.IsDir() {
			cleaned = append(cleaned, fname)
			continue
		}
		if _, warned := g.warnedFiles[fname]; warned {
			continue
		}
		g.warnedFiles[fname] = struct{}{}
		if err == nil {
			log.Error().Str("file", fname).Msg("repo-map can't include it, it is not a normal file")
		} else {
			log.Error().Str("file", fname).Msg("repo-map can't include it, it doesn't exist (anymore?)")
		}
	}
	return cleaned
}

// AddForModification marks relFname as part of the agent's active
// working set (motleycoder's add_for_modification / chat_fnames).
func (g *FileGroup) AddForModification(relFname string) {
	g.filesForModification[g.AbsRootPath(relFname)] = struct{}{}
}

// FilesForModification returns the absolute paths currently marked for
// modification.
func (g *FileGroup) FilesForModification() map[string]struct{} {
	return g.filesForModification
}

var punctuationTrim = regexp.MustCompile(`[,.!;:]+$`)

// GetFileMentions scans free-text content for filenames/basenames that
// look like they refer to files outside the active working set, per
// motleycoder's get_file_mentions. The result holds repository-relative
// paths.
func (g *FileGroup) GetFileMentions(content string) (map[string]struct{}, error) {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(content) {
		w = punctuationTrim.ReplaceAllString(w, "")
		w = strings.Trim(w, `"'`+"`")
		if w != "" {
			words[w] = struct{}{}
		}
	}

	allFiles, err := g.GetAllFilenames()
	if err != nil {
		return nil, err
	}

	var addable []string
	for _, f := range allFiles {
		if _, inChat := g.filesForModification[f]; inChat {
			continue
		}
		addable = append(addable, g.GetRelFname(f))
	}

	mentioned := make(map[string]struct{})
	fnameToRel := make(map[string][]string)
	for _, rel := range addable {
		if _, ok := words[rel]; ok {
			mentioned[rel] = struct{}{}
		}
		base := filepath.Base(rel)
		if strings.ContainsAny(base, "/._-") {
			fnameToRel[base] = append(fnameToRel[base], rel)
		}
	}
	for base, rels := range fnameToRel {
		if len(rels) == 1 {
			if _, ok := words[base]; ok {
				mentioned[rels[0]] = struct{}{}
			}
		}
	}

	return g.CleanMentionedFilenames(mentioned)
}

// CleanMentionedFilenames resolves a set of loosely-mentioned names
// (which may be partial paths) against the full file list, returning
// the repository-relative path of the first file containing each name.
func (g *FileGroup) CleanMentionedFilenames(mentioned map[string]struct{}) (map[string]struct{}, error) {
	allFiles, err := g.GetAllFilenames()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for name := range mentioned {
		for _, f := range allFiles {
			if strings.Contains(f, name) {
				out[g.GetRelFname(f)] = struct{}{}
				break
			}
		}
	}
	return out, nil
}

// GetRelFnamesInDirectory lists the relative filenames whose absolute
// path starts with absDir and sits exactly level path separators
// deeper, or at any depth when level is nil, per motleycoder's
// get_rel_fnames_in_directory.
func (g *FileGroup) GetRelFnamesInDirectory(absDir string, level *int) ([]string, error) {
	absDir = strings.TrimRight(filepath.ToSlash(absDir), "/")
	allFiles, err := g.GetAllFilenames()
	if err != nil {
		return nil, err
	}
	baseDepth := strings.Count(absDir, "/")
	var out []string
	for _, f := range allFiles {
		if !strings.HasPrefix(f, absDir) {
			continue
		}
		if level != nil && strings.Count(f, "/") != baseDepth+*level {
			continue
		}
		out = append(out, g.GetRelFname(f))
	}
	return out, nil
}

// CachedTags returns fname's parsed tags, using the group's TagsCache (if
// any) keyed on fname's mtime, falling back to a direct parse otherwise.
func (g *FileGroup) CachedTags(fname string, parse func(fname string) ([]Tag, error)) ([]Tag, error) {
	if g.cache == nil {
		return parse(fname)
	}
	return g.cache.CachedFunctionCall(fname, "tags_from_filename", parse)
}

// SetCache attaches a persistent tags cache to the group.
func (g *FileGroup) SetCache(cache *TagsCache) {
	g.cache = cache
}
