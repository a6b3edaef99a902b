// Package archive applies resolved widening rules and interface injections to
// every class in a JAR/ZIP archive, writing a new archive with the same entry
// order. Entries that need no change are copied raw.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"regexp"
	"runtime"
	"slices"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"class-widener/internal/classfile"
	"class-widener/internal/fsutil"
	"class-widener/internal/manifest"
	"class-widener/internal/resolve"
	"class-widener/internal/rules"
	"class-widener/internal/ziputil"
)

// Options tunes a rewrite.
type Options struct {
	// Workers bounds concurrent class mutations; <= 0 means GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// Stats summarises a rewrite.
type Stats struct {
	Entries   int // all entries, directories included
	Classes   int // class entries
	Targeted  int // class entries with rules, injections or widened nested classes
	Rewritten int // class entries whose bytes changed
	// Missing lists targeted class names with no entry in the archive.
	Missing []string
}

// IOError reports an archive-level failure. Entry is empty when the failure
// is not tied to one entry.
type IOError struct {
	Op    string
	Path  string
	Entry string
	Err   error
}

func (e *IOError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s!/%s: %v", e.Op, e.Path, e.Entry, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ClassError reports a class entry whose bytes could not be rewritten. Err is
// usually a *classfile.StructuralError.
type ClassError struct {
	Path  string
	Entry string
	Err   error
}

func (e *ClassError) Error() string {
	return fmt.Sprintf("rewrite %s!/%s: %v", e.Path, e.Entry, e.Err)
}

func (e *ClassError) Unwrap() error { return e.Err }

// Change is the before/after description of one rewritten class.
type Change struct {
	Entry  string
	Before string
	After  string
}

// versionedPrefix matches multi-release class locations.
var versionedPrefix = regexp.MustCompile(`^META-INF/versions/[0-9]+/`)

// ClassName maps an entry name to the class it holds, looking through
// multi-release directories.
func ClassName(entry string) (string, bool) {
	name, ok := ziputil.ClassName(entry)
	if !ok {
		return "", false
	}
	if loc := versionedPrefix.FindStringIndex(name); loc != nil {
		name = name[loc[1]:]
	}
	if name == "module-info" || name == "" {
		return "", false
	}
	return name, true
}

type job struct {
	set    resolve.Set
	ifaces manifest.InterfaceMap
	opts   Options
	path   string
	// enclosing holds the outer classes of nested classes with a class
	// modifier; their InnerClasses records must be widened too.
	enclosing map[string]struct{}
}

func newJob(in string, set resolve.Set, ifaces manifest.InterfaceMap, opts Options) *job {
	return &job{set: set, ifaces: ifaces, opts: opts, path: in, enclosing: enclosing(set)}
}

// enclosing returns every outer class name of the nested classes in set
// that carry a class modifier: a/B$C$D yields a/B and a/B$C.
func enclosing(set resolve.Set) map[string]struct{} {
	out := make(map[string]struct{})
	for name, cr := range set {
		if cr == nil || cr.Access == rules.None {
			continue
		}
		for i := len(name) - 1; i > 0; i-- {
			if name[i] == '$' && name[i-1] != '/' {
				out[name[:i]] = struct{}{}
			}
		}
	}
	return out
}

type result struct {
	data    []byte
	changed bool
}

// Rewrite reads the archive at in and writes the widened archive to out.
// The output appears only if every entry was processed; in and out may be
// the same path.
func Rewrite(ctx context.Context, in, out string, set resolve.Set, ifaces manifest.InterfaceMap, opts Options) (Stats, error) {
	zr, err := zip.OpenReader(in)
	if err != nil {
		return Stats{}, &IOError{Op: "open", Path: in, Err: err}
	}
	defer zr.Close()

	j := newJob(in, set, ifaces, opts)
	results, st, err := j.transform(ctx, &zr.Reader)
	if err != nil {
		return st, err
	}
	perm := os.FileMode(0o644)
	if fi, err := os.Stat(in); err == nil {
		perm = fi.Mode().Perm()
	}
	err = fsutil.WriteAtomic(out, perm, func(w io.Writer) error {
		return j.write(w, &zr.Reader, results)
	})
	if err != nil {
		var ae *IOError
		var ce *ClassError
		if errors.As(err, &ae) || errors.As(err, &ce) {
			return st, err
		}
		return st, &IOError{Op: "write", Path: out, Err: err}
	}
	opts.logger().Info("archive rewritten",
		zap.String("input", in),
		zap.String("output", out),
		zap.Int("entries", st.Entries),
		zap.Int("classes", st.Classes),
		zap.Int("rewritten", st.Rewritten),
	)
	return st, nil
}

// Plan runs the same transformation as Rewrite without writing anything and
// describes every class that would change.
func Plan(ctx context.Context, in string, set resolve.Set, ifaces manifest.InterfaceMap, opts Options) ([]Change, Stats, error) {
	zr, err := zip.OpenReader(in)
	if err != nil {
		return nil, Stats{}, &IOError{Op: "open", Path: in, Err: err}
	}
	defer zr.Close()

	j := newJob(in, set, ifaces, opts)
	results, st, err := j.transform(ctx, &zr.Reader)
	if err != nil {
		return nil, st, err
	}
	var changes []Change
	for i, f := range zr.File {
		r := results[i]
		if r == nil || !r.changed {
			continue
		}
		orig, err := ziputil.ReadAll(f)
		if err != nil {
			return nil, st, &IOError{Op: "read", Path: in, Entry: f.Name, Err: err}
		}
		before, err := classfile.Describe(orig)
		if err != nil {
			return nil, st, &ClassError{Path: in, Entry: f.Name, Err: err}
		}
		after, err := classfile.Describe(r.data)
		if err != nil {
			return nil, st, &ClassError{Path: in, Entry: f.Name, Err: err}
		}
		changes = append(changes, Change{Entry: f.Name, Before: before, After: after})
	}
	return changes, st, nil
}

// transform mutates every targeted class concurrently. results is indexed
// like zr.File; nil means the entry is copied through untouched.
func (j *job) transform(ctx context.Context, zr *zip.Reader) ([]*result, Stats, error) {
	log := j.opts.logger()
	results := make([]*result, len(zr.File))
	st := Stats{Entries: len(zr.File)}
	seen := make(map[string]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.workers())
	for i, f := range zr.File {
		name, ok := ClassName(f.Name)
		if !ok {
			continue
		}
		st.Classes++
		cr := j.set[name]
		ifaces := j.ifaces[name]
		_, outer := j.enclosing[name]
		if cr.Empty() && len(ifaces) == 0 && !outer {
			continue
		}
		st.Targeted++
		seen[name] = struct{}{}
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			orig, err := ziputil.ReadAll(f)
			if err != nil {
				return &IOError{Op: "read", Path: j.path, Entry: f.Name, Err: err}
			}
			data, err := classfile.Mutate(orig, ifaces, j.set)
			if err != nil {
				return &ClassError{Path: j.path, Entry: f.Name, Err: err}
			}
			changed := !bytes.Equal(orig, data)
			results[i] = &result{data: data, changed: changed}
			if changed {
				log.Debug("class widened", zap.String("entry", f.Name))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, st, err
	}
	for _, r := range results {
		if r != nil && r.changed {
			st.Rewritten++
		}
	}
	st.Missing = missing(j.set, j.ifaces, seen)
	return results, st, nil
}

// write emits the entries in input order.
func (j *job) write(w io.Writer, zr *zip.Reader, results []*result) error {
	zw := zip.NewWriter(w)
	if zr.Comment != "" {
		if err := zw.SetComment(zr.Comment); err != nil {
			return &IOError{Op: "write", Path: j.path, Err: err}
		}
	}
	for i, f := range zr.File {
		r := results[i]
		if r == nil || !r.changed {
			if err := zw.Copy(f); err != nil {
				return &IOError{Op: "copy", Path: j.path, Entry: f.Name, Err: err}
			}
			continue
		}
		if err := writeEntry(zw, f, r.data); err != nil {
			return &IOError{Op: "write", Path: j.path, Entry: f.Name, Err: err}
		}
	}
	if err := zw.Close(); err != nil {
		return &IOError{Op: "write", Path: j.path, Err: err}
	}
	return nil
}

// writeEntry writes a rewritten class under the original entry's header, so
// extra fields, comments and name encoding survive. Stored entries are
// written raw with precomputed sizes, since JVM stream readers reject stored
// entries that use a data descriptor.
func writeEntry(zw *zip.Writer, f *zip.File, data []byte) error {
	hdr := f.FileHeader
	if f.Method == zip.Store {
		hdr.Flags &^= 0x8
		hdr.Extra = dropExtra(hdr.Extra, zip64ExtraID)
		hdr.CRC32 = crc32.ChecksumIEEE(data)
		hdr.CompressedSize64 = uint64(len(data))
		hdr.UncompressedSize64 = uint64(len(data))
		hdr.CompressedSize = uint32(len(data))
		hdr.UncompressedSize = uint32(len(data))
		ew, err := zw.CreateRaw(&hdr)
		if err != nil {
			return err
		}
		_, err = ew.Write(data)
		return err
	}
	hdr.Method = zip.Deflate
	// The writer emits its own zip64 and timestamp fields.
	hdr.Extra = dropExtra(hdr.Extra, zip64ExtraID, timestampExtraID)
	hdr.CRC32 = 0
	hdr.CompressedSize64 = 0
	hdr.UncompressedSize64 = 0
	hdr.CompressedSize = 0
	hdr.UncompressedSize = 0
	ew, err := zw.CreateHeader(&hdr)
	if err != nil {
		return err
	}
	_, err = ew.Write(data)
	return err
}

const (
	zip64ExtraID     = 0x0001
	timestampExtraID = 0x5455
)

// dropExtra returns extra without the fields whose header IDs are listed.
// A malformed tail is kept as is.
func dropExtra(extra []byte, ids ...uint16) []byte {
	var out []byte
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra)
		size := int(binary.LittleEndian.Uint16(extra[2:]))
		if 4+size > len(extra) {
			break
		}
		if !slices.Contains(ids, id) {
			out = append(out, extra[:4+size]...)
		}
		extra = extra[4+size:]
	}
	return append(out, extra...)
}

func missing(set resolve.Set, ifaces manifest.InterfaceMap, seen map[string]struct{}) []string {
	var out []string
	for name, cr := range set {
		if _, ok := seen[name]; !ok && !cr.Empty() {
			out = append(out, name)
		}
	}
	for name := range ifaces {
		if _, ok := seen[name]; ok {
			continue
		}
		if _, inSet := set[name]; inSet && !set[name].Empty() {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
