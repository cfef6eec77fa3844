// Package pathresolver validates user-supplied paths against the vault root.
package pathresolver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/starford/vaultkeep/internal/apperr"
)

// Resolved is a path that is known to live inside the vault.
type Resolved struct {
	// Abs is the canonical absolute filesystem path.
	Abs string
	// Rel is the slash-separated path relative to the canonical root.
	Rel string
}

// Resolver canonicalizes paths relative to a vault root.
type Resolver struct {
	root string // canonical absolute root, symlinks evaluated
}

// New creates a Resolver rooted at dir. The directory must exist.
func New(dir string) (*Resolver, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("pathresolver: resolve root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("pathresolver: eval root: %w", err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("pathresolver: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pathresolver: root is not a directory: %s", canon)
	}
	return &Resolver{root: canon}, nil
}

// Root returns the canonical vault root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve validates p and returns its canonical location. p may be relative to
// the root or absolute; either way the result must stay inside the root.
func (r *Resolver) Resolve(p string) (Resolved, error) {
	if err := checkInput(p); err != nil {
		return Resolved{}, err
	}

	var abs string
	if filepath.IsAbs(p) {
		abs = filepath.Clean(p)
	} else {
		cleaned := filepath.Clean(filepath.FromSlash(p))
		if escapes(cleaned) {
			return Resolved{}, apperr.E(apperr.KindPathTraversal, "resolve", p, nil)
		}
		abs = filepath.Join(r.root, cleaned)
	}

	canon, err := evalExisting(abs)
	if err != nil {
		return Resolved{}, apperr.E(apperr.KindIO, "resolve", p, err)
	}
	if !r.contains(canon) {
		return Resolved{}, apperr.E(apperr.KindPathTraversal, "resolve", p, nil)
	}
	if canon == r.root {
		return Resolved{}, apperr.Errorf(apperr.KindInvalidPath, "resolve", p, "path refers to the vault root")
	}

	rel, err := filepath.Rel(r.root, canon)
	if err != nil {
		return Resolved{}, apperr.E(apperr.KindInvalidPath, "resolve", p, err)
	}
	return Resolved{Abs: canon, Rel: filepath.ToSlash(rel)}, nil
}

// Rel converts an absolute path that is already known to be under the root
// (for example one produced by a directory walk) into its vault-relative form.
func (r *Resolver) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", err
	}
	if escapes(rel) {
		return "", apperr.E(apperr.KindPathTraversal, "rel", abs, nil)
	}
	return filepath.ToSlash(rel), nil
}

func (r *Resolver) contains(canon string) bool {
	return canon == r.root || strings.HasPrefix(canon, r.root+string(os.PathSeparator))
}

func checkInput(p string) error {
	switch {
	case strings.TrimSpace(p) == "":
		return apperr.Errorf(apperr.KindInvalidPath, "resolve", p, "empty path")
	case strings.ContainsRune(p, 0):
		return apperr.Errorf(apperr.KindInvalidPath, "resolve", p, "path contains NUL byte")
	case !utf8.ValidString(p):
		return apperr.Errorf(apperr.KindInvalidPath, "resolve", p, "path is not valid UTF-8")
	}
	return nil
}

// escapes reports whether a cleaned relative path climbs out of its base.
func escapes(cleaned string) bool {
	return cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator))
}

// evalExisting evaluates symlinks on the longest existing prefix of abs and
// re-appends the components that do not exist yet.
func evalExisting(abs string) (string, error) {
	var missing []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}
