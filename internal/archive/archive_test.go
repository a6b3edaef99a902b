package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"class-widener/internal/classfile"
	"class-widener/internal/manifest"
	"class-widener/internal/resolve"
	"class-widener/internal/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type entry struct {
	name   string
	data   []byte
	method uint16
}

var stamp = time.Date(2020, 1, 2, 3, 4, 6, 0, time.UTC)

func classBytes(t *testing.T, name string, access uint16) []byte {
	t.Helper()
	c, err := classfile.New(name, "java/lang/Object", access)
	require.NoError(t, err)
	require.NoError(t, c.AddField(classfile.AccPrivate|classfile.AccFinal, "count", "I"))
	require.NoError(t, c.AddMethod(classfile.AccPrivate, "run", "()V"))
	b, err := c.Bytes()
	require.NoError(t, err)
	return b
}

func writeJar(t *testing.T, path string, entries []entry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		method := e.method
		if method == 0 && e.data != nil {
			method = zip.Deflate
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: method, Modified: stamp})
		require.NoError(t, err)
		if e.data != nil {
			_, err = w.Write(e.data)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func readJar(t *testing.T, path string) []entry {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	var out []entry
	for _, f := range zr.File {
		out = append(out, entry{name: f.Name, data: readEntry(t, f), method: f.Method})
	}
	return out
}

func readEntry(t *testing.T, f *zip.File) []byte {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return b
}

func fixture(t *testing.T) (string, []entry) {
	t.Helper()
	entries := []entry{
		{name: "META-INF/"},
		{name: "META-INF/MANIFEST.MF", data: []byte("Manifest-Version: 1.0\n")},
		{name: "a/"},
		{name: "a/B.class", data: classBytes(t, "a/B", classfile.AccPrivate|classfile.AccFinal|classfile.AccSuper)},
		{name: "a/C.class", data: classBytes(t, "a/C", classfile.AccPublic|classfile.AccSuper), method: zip.Store},
		{name: "assets/readme.txt", data: []byte("hello")},
	}
	path := filepath.Join(t.TempDir(), "in.jar")
	writeJar(t, path, entries)
	return path, entries
}

func names(es []entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.name
	}
	return out
}

func TestRewriteWithoutRulesIsIdentity(t *testing.T) {
	in, entries := fixture(t)
	out := filepath.Join(t.TempDir(), "out.jar")

	st, err := Rewrite(context.Background(), in, out, resolve.Set{}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 6, st.Entries)
	assert.Equal(t, 2, st.Classes)
	assert.Zero(t, st.Targeted)
	assert.Zero(t, st.Rewritten)

	got := readJar(t, out)
	require.Equal(t, names(entries), names(got))
	for i := range entries {
		assert.Equal(t, len(entries[i].data), len(got[i].data), entries[i].name)
		assert.Equal(t, string(entries[i].data), string(got[i].data), entries[i].name)
	}
}

func TestRewriteExtendableClass(t *testing.T) {
	in, entries := fixture(t)
	out := filepath.Join(t.TempDir(), "out.jar")
	set := resolve.Resolve([]rules.Rule{rules.ClassRule(rules.Extendable, "a/B")})

	st, err := Rewrite(context.Background(), in, out, set, nil, Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Targeted)
	assert.Equal(t, 1, st.Rewritten)
	assert.Empty(t, st.Missing)

	got := readJar(t, out)
	require.Equal(t, names(entries), names(got))
	for i := range entries {
		if entries[i].name == "a/B.class" {
			c, err := classfile.Parse(got[i].data)
			require.NoError(t, err)
			assert.Equal(t, uint16(classfile.AccPublic|classfile.AccSuper), c.Access)
			continue
		}
		assert.Equal(t, string(entries[i].data), string(got[i].data), entries[i].name)
	}
}

func TestRewriteStoredEntryStaysStored(t *testing.T) {
	in, _ := fixture(t)
	out := filepath.Join(t.TempDir(), "out.jar")
	set := resolve.Resolve([]rules.Rule{rules.FieldRule(rules.Mutable, "a/C", "count", "I")})

	_, err := Rewrite(context.Background(), in, out, set, nil, Options{})
	require.NoError(t, err)

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != "a/C.class" {
			continue
		}
		assert.Equal(t, zip.Store, f.Method)
		assert.Zero(t, f.Flags&0x8, "stored entries must not use a data descriptor")
		assert.Equal(t, stamp, f.Modified.UTC())
		c, err := classfile.Parse(readEntry(t, f))
		require.NoError(t, err)
		assert.Equal(t, uint16(classfile.AccPublic), c.Fields[0].Access)
	}
}

func TestRewriteInjectsInterfacesSorted(t *testing.T) {
	in, _ := fixture(t)
	out := filepath.Join(t.TempDir(), "out.jar")
	ifaces := manifest.InterfaceMap{"a/C": {"x/Alpha", "x/Beta"}}

	_, err := Rewrite(context.Background(), in, out, nil, ifaces, Options{})
	require.NoError(t, err)
	for _, e := range readJar(t, out) {
		if e.name != "a/C.class" {
			continue
		}
		c, err := classfile.Parse(e.data)
		require.NoError(t, err)
		got, err := c.InterfaceNames()
		require.NoError(t, err)
		assert.Equal(t, []string{"x/Alpha", "x/Beta"}, got)
	}
}

func TestRewriteInPlace(t *testing.T) {
	in, _ := fixture(t)
	set := resolve.Resolve([]rules.Rule{rules.MethodRule(rules.Accessible, "a/B", "run", "()V")})
	_, err := Rewrite(context.Background(), in, in, set, nil, Options{})
	require.NoError(t, err)
	for _, e := range readJar(t, in) {
		if e.name == "a/B.class" {
			c, err := classfile.Parse(e.data)
			require.NoError(t, err)
			assert.Equal(t, uint16(classfile.AccPublic), c.Methods[0].Access)
		}
	}
}

func TestRewriteMalformedClassFailsWithoutOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jar")
	writeJar(t, in, []entry{
		{name: "a/Good.class", data: classBytes(t, "a/Good", classfile.AccPublic)},
		{name: "a/Bad.class", data: []byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0}},
	})
	out := filepath.Join(dir, "out.jar")
	set := resolve.Resolve([]rules.Rule{
		rules.ClassRule(rules.Accessible, "a/Good"),
		rules.ClassRule(rules.Accessible, "a/Bad"),
	})

	_, err := Rewrite(context.Background(), in, out, set, nil, Options{})
	require.Error(t, err)
	var ce *ClassError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "a/Bad.class", ce.Entry)
	var se *classfile.StructuralError
	assert.True(t, errors.As(err, &se))
	var ae *IOError
	assert.False(t, errors.As(err, &ae), "malformed classes are not I/O failures")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRewriteKeepsDeflatedEntryHeader(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jar")
	extra := []byte{0xFE, 0xCA, 0x00, 0x00} // jar marker, empty payload
	f, err := os.Create(in)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     "a/B.class",
		Comment:  "kept",
		Method:   zip.Deflate,
		Modified: stamp,
		Extra:    extra,
	})
	require.NoError(t, err)
	_, err = w.Write(classBytes(t, "a/B", classfile.AccPrivate|classfile.AccSuper))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	out := filepath.Join(dir, "out.jar")
	set := resolve.Resolve([]rules.Rule{rules.ClassRule(rules.Accessible, "a/B")})
	st, err := Rewrite(context.Background(), in, out, set, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, st.Rewritten)

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	got := zr.File[0]
	assert.Equal(t, zip.Deflate, got.Method)
	assert.Equal(t, "kept", got.Comment)
	assert.Equal(t, stamp, got.Modified.UTC())
	assert.True(t, bytes.HasPrefix(got.Extra, extra), "extra fields must survive: %x", got.Extra)
	c, err := classfile.Parse(readEntry(t, got))
	require.NoError(t, err)
	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccSuper), c.Access)
}

func TestRewriteWidensEnclosingClassRecords(t *testing.T) {
	outer, err := classfile.New("a/Outer", "java/lang/Object", classfile.AccPublic|classfile.AccSuper)
	require.NoError(t, err)
	inner, err := outer.Pool.AddClass("a/Outer$Inner")
	require.NoError(t, err)
	simple, err := outer.Pool.AddUtf8("Inner")
	require.NoError(t, err)
	info := []byte{0, 1}
	info = binary.BigEndian.AppendUint16(info, inner)
	info = binary.BigEndian.AppendUint16(info, outer.This)
	info = binary.BigEndian.AppendUint16(info, simple)
	info = binary.BigEndian.AppendUint16(info, classfile.AccPrivate|classfile.AccStatic)
	require.NoError(t, outer.AddAttribute(classfile.NamedAttribute{Name: "InnerClasses", Info: info}))
	outerBytes, err := outer.Bytes()
	require.NoError(t, err)

	dir := t.TempDir()
	in := filepath.Join(dir, "in.jar")
	writeJar(t, in, []entry{
		{name: "a/Outer.class", data: outerBytes},
		{name: "a/Outer$Inner.class", data: classBytes(t, "a/Outer$Inner", classfile.AccSuper)},
	})
	out := filepath.Join(dir, "out.jar")
	set := resolve.Resolve([]rules.Rule{rules.ClassRule(rules.Accessible, "a/Outer$Inner")})
	st, err := Rewrite(context.Background(), in, out, set, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Targeted)
	assert.Equal(t, 2, st.Rewritten)

	for _, e := range readJar(t, out) {
		if e.name != "a/Outer.class" {
			continue
		}
		c, err := classfile.Parse(e.data)
		require.NoError(t, err)
		desc, err := classfile.Describe(e.data)
		require.NoError(t, err)
		assert.Equal(t, uint16(classfile.AccPublic|classfile.AccSuper), c.Access)
		assert.Contains(t, desc, "  inner a/Outer$Inner : public static\n")
	}
}

func TestEnclosing(t *testing.T) {
	set := resolve.Resolve([]rules.Rule{
		rules.ClassRule(rules.Accessible, "a/B$C$D"),
		rules.FieldRule(rules.Accessible, "x/Y$Z", "f", "I"),
		rules.MethodRule(rules.Accessible, "p/$Q", "m", "()V"),
	})
	got := enclosing(set)
	assert.Equal(t, map[string]struct{}{"a/B": {}, "a/B$C": {}, "x/Y": {}}, got)
}

func TestRewriteReportsMissingTargets(t *testing.T) {
	in, _ := fixture(t)
	out := filepath.Join(t.TempDir(), "out.jar")
	set := resolve.Resolve([]rules.Rule{
		rules.ClassRule(rules.Accessible, "a/B"),
		rules.ClassRule(rules.Accessible, "z/Gone"),
	})
	st, err := Rewrite(context.Background(), in, out, set, manifest.InterfaceMap{"y/Absent": {"x/I"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"y/Absent", "z/Gone"}, st.Missing)
}

func TestRewriteCancelled(t *testing.T) {
	in, _ := fixture(t)
	out := filepath.Join(t.TempDir(), "out.jar")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	set := resolve.Resolve([]rules.Rule{rules.ClassRule(rules.Accessible, "a/B")})
	_, err := Rewrite(ctx, in, out, set, nil, Options{})
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPlanDescribesChanges(t *testing.T) {
	in, _ := fixture(t)
	set := resolve.Resolve([]rules.Rule{rules.ClassRule(rules.Extendable, "a/B")})
	changes, st, err := Plan(context.Background(), in, set, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Rewritten)
	require.Len(t, changes, 1)
	assert.Equal(t, "a/B.class", changes[0].Entry)
	assert.Contains(t, changes[0].Before, "  flags private final super\n")
	assert.Contains(t, changes[0].After, "  flags public super\n")
}

func TestClassName(t *testing.T) {
	cases := map[string]string{
		"a/B.class":                      "a/B",
		"META-INF/versions/17/a/B.class": "a/B",
		"module-info.class":              "",
		"a/":                             "",
		"a/B.txt":                        "",
	}
	for entry, want := range cases {
		got, ok := ClassName(entry)
		assert.Equal(t, want != "", ok, entry)
		assert.Equal(t, want, got, entry)
	}
}
