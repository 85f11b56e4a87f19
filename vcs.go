package germ

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// TrackedFileLister enumerates the files a VCS considers tracked, as
// repository-relative, forward-slash paths.
type TrackedFileLister interface {
	TrackedFiles() ([]string, error)
}

// GitTrackedFileLister lists the files tracked by a git repository's
// HEAD commit, mirroring motleycoder's GitRepo.get_tracked_files.
type GitTrackedFileLister struct {
	root string
}

// NewGitTrackedFileLister opens the git repository containing root
// (searching parent directories, as GitPython's search_parent_directories
// does) and returns a lister rooted at the repository's working dir.
func NewGitTrackedFileLister(root string) (*GitTrackedFileLister, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repo at %s: %w", root, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("resolving worktree: %w", err)
	}
	return &GitTrackedFileLister{root: wt.Filesystem.Root()}, nil
}

// TrackedFiles returns HEAD's tracked blobs plus anything staged in the
// index, normalized to forward-slash paths relative to the repo root.
func (g *GitTrackedFileLister) TrackedFiles() ([]string, error) {
	repo, err := git.PlainOpen(g.root)
	if err != nil {
		return nil, fmt.Errorf("opening git repo at %s: %w", g.root, err)
	}

	seen := make(map[string]struct{})
	var out []string

	head, err := repo.Head()
	if err == nil {
		commit, err := repo.CommitObject(head.Hash())
		if err == nil {
			tree, err := commit.Tree()
			if err == nil {
				walker := tree.Files()
				for {
					f, err := walker.Next()
					if err == io.EOF {
						break
					}
					if err != nil {
						return nil, fmt.Errorf("walking commit tree: %w", err)
					}
					p := filepath.ToSlash(f.Name)
					if _, ok := seen[p]; !ok {
						seen[p] = struct{}{}
						out = append(out, p)
					}
				}
			}
		}
	}

	idx, err := repo.Storer.Index()
	if err == nil {
		for _, e := range idx.Entries {
			p := filepath.ToSlash(e.Name)
			if strings.TrimSpace(p) == "" {
				continue
			}
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}

	return out, nil
}
