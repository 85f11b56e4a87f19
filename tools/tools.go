// Package tools provides thin, typed wrappers over the germ core for an
// agent loop to call: admitting files, applying patches, inspecting
// symbols, and a terminal test-and-return handshake. The agent loop
// itself, prompt templates, and confirmation UI are out of scope; only
// these call contracts and the interfaces they go through
// (Confirmer, TestsRunner) are implemented here.
package tools

import (
	"container/ring"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cyber-nic/germ"
)

// Confirmer gates admission of a new file into the modifiable set,
// matching spec.md's "after confirmation" requirement for add_files.
type Confirmer interface {
	Confirm(path string) bool
}

// TestsRunner is injected so return_to_user can verify the working tree
// before handing control back, matching spec.md §6's "invokes the
// injected tests runner and escalates failure" requirement.
type TestsRunner interface {
	RunTests() (passed bool, output string)
}

// AlwaysConfirm is a Confirmer that admits every path without asking,
// useful for tests and non-interactive embeddings.
type AlwaysConfirm struct{}

// Confirm implements Confirmer.
func (AlwaysConfirm) Confirm(string) bool { return true }

const (
	defaultInspectHistorySize  = 8
	defaultMaxReturnAttempts   = 3
	defaultRepresentationLines = 60
)

// Tools bundles the agent-facing operations over a single RepoMap. Each
// instance mints a session ID so repeat-suppression diagnostics can be
// correlated across an embedding's own logs.
type Tools struct {
	repoMap           *germ.RepoMap
	editEngine        *germ.EditEngine
	confirmer         Confirmer
	testsRunner       TestsRunner
	recentRequests    *ring.Ring
	maxReturnAttempts int
	returnAttempts    int
	sessionID         string
}

// New constructs a Tools instance bound to repoMap.
func New(repoMap *germ.RepoMap, confirmer Confirmer, testsRunner TestsRunner) *Tools {
	if confirmer == nil {
		confirmer = AlwaysConfirm{}
	}
	return &Tools{
		repoMap:           repoMap,
		editEngine:        germ.NewEditEngine(),
		confirmer:         confirmer,
		testsRunner:       testsRunner,
		recentRequests:    ring.New(defaultInspectHistorySize),
		maxReturnAttempts: defaultMaxReturnAttempts,
		sessionID:         uuid.NewString(),
	}
}

// SessionID returns this Tools instance's diagnostic correlation ID.
func (t *Tools) SessionID() string {
	return t.sessionID
}

// AddFiles admits paths into the modifiable set after confirmation,
// returning which were admitted and which were rejected (either by the
// confirmer or because they don't exist).
func (t *Tools) AddFiles(paths []string) (admitted, rejected []string) {
	fg := t.repoMap.FileGroup()
	for _, p := range paths {
		abs := fg.AbsRootPath(p)
		if _, err := os.Stat(abs); err != nil {
			rejected = append(rejected, p)
			continue
		}
		if !t.confirmer.Confirm(abs) {
			rejected = append(rejected, p)
			continue
		}
		fg.AddForModification(p)
		admitted = append(admitted, p)
	}
	return admitted, rejected
}

// GetModifiableFiles lists the files currently admitted for editing.
func (t *Tools) GetModifiableFiles() []string {
	fg := t.repoMap.FileGroup()
	files := fg.FilesForModification()
	out := make([]string, 0, len(files))
	for f := range files {
		out = append(out, fg.GetRelFname(f))
	}
	return out
}

// EditResult is the structured outcome returned to the agent loop.
type EditResult struct {
	Applied    bool
	CloseMatch string
}

// EditFile applies a search/replace patch to path, matching spec.md
// §4.7's edit_file contract. language is accepted but not used (the
// engine itself is language-agnostic). A successful
// edit rewrites the file on disk; since tag extraction is mtime-keyed,
// this alone invalidates any cached tags/graph that included path.
func (t *Tools) EditFile(path, language, search, replace string) (EditResult, error) {
	fg := t.repoMap.FileGroup()
	abs := fg.AbsRootPath(path)

	if _, ok := fg.FilesForModification()[abs]; !ok {
		return EditResult{}, fmt.Errorf("%s is not in the modifiable set; call add_files first", path)
	}

	var content string
	if b, err := os.ReadFile(abs); err == nil {
		content = string(b)
	} else if !os.IsNotExist(err) {
		return EditResult{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if !strings.HasSuffix(content, "\n") && content != "" {
		content += "\n"
	}
	if search != "" && !strings.HasSuffix(search, "\n") {
		search += "\n"
	}
	if replace != "" && !strings.HasSuffix(replace, "\n") {
		replace += "\n"
	}

	result := t.editEngine.Apply(content, search, replace)
	if !result.Applied {
		return EditResult{Applied: false, CloseMatch: result.CloseMatch}, nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return EditResult{}, fmt.Errorf("creating parent dir for %s: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(result.Text), 0o644); err != nil {
		return EditResult{}, fmt.Errorf("writing %s: %w", path, err)
	}

	return EditResult{Applied: true}, nil
}

// InspectEntity renders a symbol (by entity name) or a whole file (by
// file name), suppressing identical repeat requests within a short
// history window, per spec.md §6.
func (t *Tools) InspectEntity(entityName, fileName string) (string, error) {
	reqKey := entityName + "\x00" + fileName
	if t.isRecentRequest(reqKey) {
		return "", fmt.Errorf("[session %s] you already requested %q recently; use get_full_text if you need the complete body", t.sessionID, reqKey)
	}
	t.recordRequest(reqKey)

	files, err := t.filesForInspection()
	if err != nil {
		return "", err
	}
	tg, codeMap := t.repoMap.BuildTagGraphForFiles(files)

	if entityName == "" && fileName != "" {
		abs := t.repoMap.FileGroup().AbsRootPath(fileName)
		return tg.GetFileRepresentation(abs, codeMap[abs], defaultRepresentationLines)
	}

	matches := tg.GetTagsFromEntityName(entityName, fileName)
	if len(matches) == 0 {
		return "", fmt.Errorf("no definition found for %q", entityName)
	}

	var out []string
	for _, m := range matches {
		out = append(out, tg.GetTagRepresentation(m, false, defaultRepresentationLines, false))
	}
	return strings.Join(out, "\n\n"), nil
}

// GetFullText returns one symbol's complete body with line numbers, per
// spec.md §6's get_full_text contract. firstLine, when >= 0, disambiguates
// among same-named matches by picking the one starting closest to it.
func (t *Tools) GetFullText(entityName, fileName string, firstLine int) (string, error) {
	files, err := t.filesForInspection()
	if err != nil {
		return "", err
	}
	tg, _ := t.repoMap.BuildTagGraphForFiles(files)

	matches := tg.GetTagsFromEntityName(entityName, fileName)
	if len(matches) == 0 {
		return "", fmt.Errorf("no definition found for %q", entityName)
	}

	best := matches[0]
	if firstLine >= 0 {
		bestDist := abs(best.Line - firstLine)
		for _, m := range matches[1:] {
			if d := abs(m.Line - firstLine); d < bestDist {
				best, bestDist = m, d
			}
		}
	}

	return germ.TextWithLineNumbers(best), nil
}

// ReturnToUserResult is the outcome of the terminal test-and-return
// handshake.
type ReturnToUserResult struct {
	Passed  bool
	Output  string
	Attempt int
}

// ReturnToUser invokes the injected tests runner; on failure it
// escalates up to maxReturnAttempts times before giving up, matching
// spec.md §6's return_to_user contract.
func (t *Tools) ReturnToUser() (ReturnToUserResult, error) {
	if t.testsRunner == nil {
		return ReturnToUserResult{Passed: true}, nil
	}

	t.returnAttempts++
	passed, output := t.testsRunner.RunTests()
	result := ReturnToUserResult{Passed: passed, Output: output, Attempt: t.returnAttempts}

	if !passed && t.returnAttempts >= t.maxReturnAttempts {
		return result, fmt.Errorf("tests still failing after %d attempts, giving up", t.returnAttempts)
	}
	return result, nil
}

func (t *Tools) filesForInspection() ([]string, error) {
	fg := t.repoMap.FileGroup()
	all, err := fg.GetAllFilenames()
	if err != nil {
		return nil, err
	}
	return all, nil
}

func (t *Tools) isRecentRequest(key string) bool {
	found := false
	t.recentRequests.Do(func(v interface{}) {
		if v != nil && v.(string) == key {
			found = true
		}
	})
	return found
}

func (t *Tools) recordRequest(key string) {
	t.recentRequests.Value = key
	t.recentRequests = t.recentRequests.Next()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
