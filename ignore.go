package germ

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	goignore "github.com/cyber-nic/go-gitignore"
)

//go:embed .astignore
var defaultGlobIgnore string

// loadIgnorePatterns resolves the glob-ignore file the same way the
// original CLI did: an explicit path (tried as given, then relative to
// the git root), falling back to the bundled default ignore list.
func loadIgnorePatterns(root, globIgnoreFilePath string) (*goignore.GitIgnore, error) {
	if globIgnoreFilePath == "" {
		return goignore.CompileIgnoreLines(strings.Split(defaultGlobIgnore, "\n")...), nil
	}

	if _, err := os.Stat(globIgnoreFilePath); err == nil {
		return goignore.CompileIgnoreFile(globIgnoreFilePath)
	}

	gitRoot, err := FindGitRoot(root)
	if err != nil {
		return nil, fmt.Errorf("finding git root to resolve ignore file %q: %w", globIgnoreFilePath, err)
	}

	p := filepath.Join(gitRoot, globIgnoreFilePath)
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("ignore file not found: %s", globIgnoreFilePath)
	}
	return goignore.CompileIgnoreFile(p)
}
