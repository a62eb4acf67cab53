package gitx

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrInvalidRange is returned when the from commit is after the to commit
var ErrInvalidRange = errors.New("from commit is after to commit")

// IsRepo reports whether path lies inside a git working tree.
func IsRepo(path string) bool {
	_, _, err := Open(path)
	return err == nil
}

// Open opens the repository containing path, searching parent directories,
// and returns it with the root of its working tree.
func Open(path string) (*git.Repository, string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, "", err
	}
	return repo, wt.Filesystem.Root(), nil
}

// ChangedFiles returns the files changed between since and HEAD. With an
// empty since it returns every file in HEAD.
func ChangedFiles(repoPath string, since string) ([]string, error) {
	repo, _, err := Open(repoPath)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, err
	}

	currentCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, err
	}

	if since == "" {
		return allFiles(currentCommit)
	}

	sinceCommit, err := resolve(repo, since)
	if err != nil {
		return nil, err
	}

	patch, err := sinceCommit.Patch(currentCommit)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, fp := range patch.FilePatches() {
		// Deleted files have no "to" side and nothing left to analyse.
		_, to := fp.Files()
		if to != nil {
			files = append(files, to.Path())
		}
	}

	return files, nil
}

// FilesInRange returns the files touched by commits reachable from to but
// not from from. The result has no duplicates.
func FilesInRange(repoPath, from, to string) ([]string, error) {
	repo, _, err := Open(repoPath)
	if err != nil {
		return nil, err
	}

	fromCommit, err := resolve(repo, from)
	if err != nil {
		return nil, err
	}
	toCommit, err := resolve(repo, to)
	if err != nil {
		return nil, err
	}

	if fromCommit.Committer.When.After(toCommit.Committer.When) {
		return nil, ErrInvalidRange
	}

	patch, err := fromCommit.Patch(toCommit)
	if err != nil {
		return nil, err
	}

	var files []string
	seen := make(map[string]bool)
	for _, fp := range patch.FilePatches() {
		_, f := fp.Files()
		if f == nil || seen[f.Path()] {
			continue
		}
		seen[f.Path()] = true
		files = append(files, f.Path())
	}

	return files, nil
}

// Scope turns paths relative to the worktree root into the slash-separated
// paths a walk of root produces. root may be the worktree itself or any
// directory inside it; files outside root are dropped.
func Scope(worktree, root string, files []string) (map[string]bool, error) {
	absTree, err := canonical(worktree)
	if err != nil {
		return nil, err
	}
	absRoot, err := canonical(root)
	if err != nil {
		return nil, err
	}
	prefix, err := filepath.Rel(absTree, absRoot)
	if err != nil {
		return nil, err
	}
	if outside(prefix) {
		return nil, fmt.Errorf("%s is outside the working tree %s", root, worktree)
	}

	out := make(map[string]bool, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(prefix, filepath.FromSlash(f))
		if err != nil || outside(rel) {
			continue
		}
		out[filepath.ToSlash(filepath.Join(root, rel))] = true
	}
	return out, nil
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func outside(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func resolve(repo *git.Repository, rev string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, err
	}
	return repo.CommitObject(*hash)
}

func allFiles(commit *object.Commit) ([]string, error) {
	var files []string
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}

	err = tree.Files().ForEach(func(f *object.File) error {
		files = append(files, f.Name)
		return nil
	})

	return files, err
}
