package manifest

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"class-widener/internal/walkwalk"
	"class-widener/internal/ziputil"
)

// RuleExt is the extension of standalone rule files picked up from
// directories.
const RuleExt = ".accesswidener"

var archiveExts = map[string]struct{}{".jar": {}, ".zip": {}}

// Options controls source discovery.
type Options struct {
	// Name is the manifest file name; DefaultName when empty.
	Name           string
	FollowSymlinks bool
	// Exclude lists directory base names or path.Match patterns skipped
	// while walking directories.
	Exclude []string
}

// Loaded is a decoded manifest and the label it was read from.
type Loaded struct {
	Path     string
	Manifest Manifest
}

// RuleSource is the raw content of one rule file.
type RuleSource struct {
	Label string
	Data  []byte
}

// Sources is everything discovered from a set of input paths, each list
// sorted by label. Skipped lists what directory walks passed over.
type Sources struct {
	Manifests []Loaded
	RuleFiles []RuleSource
	Skipped   []walkwalk.Skipped
}

// Load discovers manifests and rule files. Each path may be a manifest file,
// a rule file, a mod archive or a directory that is searched recursively for
// all three. Rule files referenced by manifests are read too. A rule file
// reachable through several paths is loaded once.
func Load(paths []string, opts Options) (*Sources, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	l := &loader{opts: opts, seenRules: map[string]struct{}{}, seenManifests: map[string]struct{}{}}
	for _, p := range paths {
		if err := l.load(p); err != nil {
			return nil, err
		}
	}
	sort.Slice(l.out.Manifests, func(i, j int) bool { return l.out.Manifests[i].Path < l.out.Manifests[j].Path })
	sort.Slice(l.out.RuleFiles, func(i, j int) bool { return l.out.RuleFiles[i].Label < l.out.RuleFiles[j].Label })
	return &l.out, nil
}

type loader struct {
	opts          Options
	out           Sources
	seenRules     map[string]struct{}
	seenManifests map[string]struct{}
}

func (l *loader) load(p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return &Error{Path: p, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return &Error{Path: p, Err: err}
	}
	if !info.IsDir() {
		return l.loadFile(abs)
	}
	exts := map[string]struct{}{RuleExt: {}}
	for e := range archiveExts {
		exts[e] = struct{}{}
	}
	files, skipped, err := walkwalk.Collect(abs, walkwalk.Options{
		Names:          map[string]struct{}{l.opts.Name: {}},
		Exts:           exts,
		Exclude:        l.opts.Exclude,
		FollowSymlinks: l.opts.FollowSymlinks,
	})
	if err != nil {
		return &Error{Path: p, Err: err}
	}
	l.out.Skipped = append(l.out.Skipped, skipped...)
	for _, f := range files {
		if err := l.loadFile(f.AbsPath); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) loadFile(abs string) error {
	ext := strings.ToLower(filepath.Ext(abs))
	if _, ok := archiveExts[ext]; ok {
		return l.loadArchive(abs)
	}
	if ext == RuleExt {
		return l.loadRuleFile(abs)
	}
	if _, dup := l.seenManifests[abs]; dup {
		return nil
	}
	l.seenManifests[abs] = struct{}{}
	data, err := os.ReadFile(abs)
	if err != nil {
		return &Error{Path: abs, Err: err}
	}
	m, err := Decode(data, abs)
	if err != nil {
		return err
	}
	l.out.Manifests = append(l.out.Manifests, Loaded{Path: abs, Manifest: m})
	if m.AccessWidener == "" {
		return nil
	}
	ref := filepath.FromSlash(m.AccessWidener)
	if !filepath.IsAbs(ref) {
		ref = filepath.Join(filepath.Dir(abs), ref)
	}
	if err := l.loadRuleFile(filepath.Clean(ref)); err != nil {
		return &Error{Path: abs, Err: fmt.Errorf("accessWidener %q: %w", m.AccessWidener, err)}
	}
	return nil
}

func (l *loader) loadRuleFile(abs string) error {
	if _, dup := l.seenRules[abs]; dup {
		return nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	l.seenRules[abs] = struct{}{}
	l.out.RuleFiles = append(l.out.RuleFiles, RuleSource{Label: abs, Data: data})
	return nil
}

// loadArchive reads the manifest at the archive root, if any, and the rule
// file it references from inside the same archive.
func (l *loader) loadArchive(abs string) error {
	zr, err := zip.OpenReader(abs)
	if err != nil {
		return &Error{Path: abs, Err: err}
	}
	defer zr.Close()

	mf := ziputil.Find(&zr.Reader, l.opts.Name)
	if mf == nil {
		return nil
	}
	label := abs + "!/" + mf.Name
	if _, dup := l.seenManifests[label]; dup {
		return nil
	}
	l.seenManifests[label] = struct{}{}
	data, err := ziputil.ReadAll(mf)
	if err != nil {
		return &Error{Path: label, Err: err}
	}
	m, err := Decode(data, label)
	if err != nil {
		return err
	}
	l.out.Manifests = append(l.out.Manifests, Loaded{Path: label, Manifest: m})
	if m.AccessWidener == "" {
		return nil
	}
	entry := ziputil.SanitizePath(m.AccessWidener)
	rf := ziputil.Find(&zr.Reader, entry)
	if rf == nil {
		return &Error{Path: label, Err: fmt.Errorf("accessWidener %q: no such entry in %s", m.AccessWidener, abs)}
	}
	ruleLabel := abs + "!/" + entry
	if _, dup := l.seenRules[ruleLabel]; dup {
		return nil
	}
	rdata, err := ziputil.ReadAll(rf)
	if err != nil {
		return &Error{Path: label, Err: err}
	}
	l.seenRules[ruleLabel] = struct{}{}
	l.out.RuleFiles = append(l.out.RuleFiles, RuleSource{Label: ruleLabel, Data: rdata})
	return nil
}
