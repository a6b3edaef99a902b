// Package walkwalk provides a deterministic, filterable filesystem walker
// used to discover manifests, rule files and mod archives under a directory.
package walkwalk

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo is a minimal, deterministic descriptor of a collected file.
type FileInfo struct {
	RelPath string // root-relative path with forward slashes
	AbsPath string // absolute filesystem path
}

// Skip reasons.
const (
	ReasonExcluded  = "excluded directory"
	ReasonSymlink   = "symlink not followed"
	ReasonIrregular = "not a regular file"
)

// Skipped records a matching file or an excluded directory that was not
// collected, so callers can report it.
type Skipped struct {
	RelPath string
	AbsPath string
	Reason  string
}

// Options selects which files are collected. A file matches when its base
// name is in Names or its lowercase extension is in Exts.
type Options struct {
	Names map[string]struct{}
	Exts  map[string]struct{}
	// Exclude lists directory base names, or path.Match patterns such as
	// "build*", whose subtrees are skipped. Files are never excluded.
	Exclude        []string
	FollowSymlinks bool
}

type walkState struct {
	opts    Options
	files   []FileInfo
	skipped []Skipped
	// visited holds the resolved paths of walked directories; it stops
	// symlink cycles.
	visited map[string]struct{}
}

// Collect walks root and returns the matching regular files and the skipped
// entries, both sorted by relative path. Any error below root aborts the
// walk.
func Collect(root string, opts Options) ([]FileInfo, []Skipped, error) {
	for _, p := range opts.Exclude {
		if _, err := path.Match(p, ""); err != nil {
			return nil, nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, err
	}
	ws := &walkState{opts: opts, visited: map[string]struct{}{}}
	if err := ws.walk(abs, ""); err != nil {
		return nil, nil, err
	}
	sort.Slice(ws.files, func(i, j int) bool { return ws.files[i].RelPath < ws.files[j].RelPath })
	sort.Slice(ws.skipped, func(i, j int) bool { return ws.skipped[i].RelPath < ws.skipped[j].RelPath })
	return ws.files, ws.skipped, nil
}

// walk visits dir, reporting paths relative to the collection root as
// relBase joined with the path inside dir.
func (ws *walkState) walk(dir, relBase string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if _, seen := ws.visited[resolved]; seen {
		return nil
	}
	ws.visited[resolved] = struct{}{}

	// WalkDir does not descend into a symlinked root, so walk the resolved
	// directory and report paths under dir.
	return filepath.WalkDir(resolved, func(rp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if rp == resolved {
			return nil
		}
		inner, err := filepath.Rel(resolved, rp)
		if err != nil {
			return err
		}
		p := filepath.Join(dir, inner)
		rel := path.Join(relBase, filepath.ToSlash(inner))
		if d.IsDir() {
			if ws.excluded(d.Name()) {
				ws.skip(rel, p, ReasonExcluded)
				return filepath.SkipDir
			}
			return nil
		}
		return ws.handleEntry(p, rel, d)
	})
}

func (ws *walkState) excluded(base string) bool {
	for _, p := range ws.opts.Exclude {
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

func (ws *walkState) handleEntry(p, rel string, d fs.DirEntry) error {
	if d.Type()&fs.ModeSymlink != 0 {
		return ws.handleSymlink(p, rel)
	}
	if !ws.matches(p) {
		return nil
	}
	if !d.Type().IsRegular() {
		ws.skip(rel, p, ReasonIrregular)
		return nil
	}
	ws.files = append(ws.files, FileInfo{RelPath: rel, AbsPath: p})
	return nil
}

func (ws *walkState) handleSymlink(p, rel string) error {
	if !ws.opts.FollowSymlinks {
		ws.skip(rel, p, ReasonSymlink)
		return nil
	}
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("follow symlink %s: %w", p, err)
	}
	switch {
	case info.IsDir():
		if ws.excluded(filepath.Base(p)) {
			ws.skip(rel, p, ReasonExcluded)
			return nil
		}
		return ws.walk(p, rel)
	case !ws.matches(p):
		return nil
	case !info.Mode().IsRegular():
		ws.skip(rel, p, ReasonIrregular)
		return nil
	}
	ws.files = append(ws.files, FileInfo{RelPath: rel, AbsPath: p})
	return nil
}

func (ws *walkState) skip(rel, p, reason string) {
	ws.skipped = append(ws.skipped, Skipped{RelPath: rel, AbsPath: p, Reason: reason})
}

func (ws *walkState) matches(p string) bool {
	if _, ok := ws.opts.Names[filepath.Base(p)]; ok {
		return true
	}
	_, ok := ws.opts.Exts[strings.ToLower(filepath.Ext(p))]
	return ok
}
