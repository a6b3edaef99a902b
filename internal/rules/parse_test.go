package rules

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseString(t *testing.T, src string) ([]Rule, error) {
	t.Helper()
	return Parse(strings.NewReader(src), "test.accesswidener")
}

func TestParseAllKinds(t *testing.T) {
	src := "accessWidener v2 named\n" +
		"# comment\n" +
		"\n" +
		"accessible class a/B\n" +
		"extendable\tmethod  a/B run ()V\n" +
		"  mutable field a/B count I  \n"
	got, err := parseString(t, src)
	require.NoError(t, err)
	want := []Rule{
		ClassRule(Accessible, "a/B"),
		MethodRule(Extendable, "a/B", "run", "()V"),
		FieldRule(Mutable, "a/B", "count", "I"),
	}
	assert.Equal(t, want, got)
}

func TestParseHeaderThenCommentsOnly(t *testing.T) {
	got, err := parseString(t, "accessWidener v2 named\n# nothing here\n\n")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseHeaderOnlyRejected(t *testing.T) {
	for _, src := range []string{"accessWidener v2 named", "accessWidener v2 named\n"} {
		_, err := parseString(t, src)
		var fe *FormatError
		require.ErrorAs(t, err, &fe, "source %q", src)
		assert.Contains(t, fe.Error(), "no content after")
	}
}

func TestParseEmptySource(t *testing.T) {
	for _, src := range []string{"", "\n\n  \n"} {
		_, err := parseString(t, src)
		var fe *FormatError
		require.ErrorAs(t, err, &fe)
		assert.Contains(t, fe.Error(), "empty")
	}
}

func TestParseLeadingBlankLinesBeforeHeader(t *testing.T) {
	got, err := parseString(t, "\n\naccessWidener v2 named\naccessible class a/B\n")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestParseHeaderErrors(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"accessWidener v2", `"accessWidener v2 named"`},
		{"widener v2 named", `expected "accessWidener"`},
		{"accessWidener v1 named", `expected "v2"`},
		{"accessWidener v2 intermediary", `expected "named"`},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			_, err := parseString(t, tc.header+"\naccessible class a/B\n")
			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, 1, fe.Line)
			assert.Contains(t, fe.Error(), tc.want)
		})
	}
}

func TestParseLineErrors(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"accessible class a/B extra", "expected 3 fields but got 4"},
		{"accessible method a/B run", "expected 5 fields but got 4"},
		{"mutable field a/B x I extra", "expected 5 fields but got 6"},
		{"accessible interface a/B", "unknown target kind"},
		{"public class a/B", "invalid modifier"},
		{"accessible", "malformed rule"},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			src := "accessWidener v2 named\n# c\n" + tc.line + "\n"
			got, err := parseString(t, src)
			assert.Nil(t, got)
			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, 3, fe.Line)
			assert.Equal(t, tc.line, fe.Text)
			assert.Equal(t, "test.accesswidener", fe.Source)
			assert.Contains(t, fe.Error(), tc.want)
			assert.Contains(t, fe.Error(), "test.accesswidener:3")
		})
	}
}

func TestParsePermissionErrors(t *testing.T) {
	cases := []struct {
		line     string
		kind     Kind
		modifier Modifier
	}{
		{"extendable field a/B x I", KindField, Extendable},
		{"mutable method a/B run ()V", KindMethod, Mutable},
		{"mutable class a/B", KindClass, Mutable},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			_, err := parseString(t, "accessWidener v2 named\n"+tc.line+"\n")
			var pe *PermissionError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.kind, pe.Kind)
			assert.Equal(t, tc.modifier, pe.Modifier)
			assert.Equal(t, 2, pe.Line)
			assert.Contains(t, pe.Error(), tc.kind.String())
			assert.Contains(t, pe.Error(), tc.modifier.String())
		})
	}
}

func TestParseFailsAtomically(t *testing.T) {
	src := "accessWidener v2 named\naccessible class a/B\nbogus class a/C\naccessible class a/D\n"
	got, err := parseString(t, src)
	require.Error(t, err)
	assert.Nil(t, got)
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Line)
}

func TestParseCRLF(t *testing.T) {
	got, err := parseString(t, "accessWidener v2 named\r\naccessible field a/B x I\r\n")
	require.NoError(t, err)
	assert.Equal(t, []Rule{FieldRule(Accessible, "a/B", "x", "I")}, got)
}

func TestRuleStringRoundTrip(t *testing.T) {
	lines := []string{
		"accessible class a/b/C",
		"extendable class a/b/C$Inner",
		"accessible method a/B <init> (ILjava/lang/String;)V",
		"extendable method a/B tick ()V",
		"accessible field a/B items Ljava/util/List;",
		"mutable field a/B count I",
	}
	for _, l := range lines {
		got, err := parseString(t, "accessWidener v2 named\n"+l+"\n")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, l, got[0].String())
	}
}

func TestWriteParsesBack(t *testing.T) {
	rs := []Rule{
		ClassRule(Extendable, "a/B"),
		MethodRule(Accessible, "a/B", "m", "()V"),
		FieldRule(Mutable, "a/B", "f", "J"),
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rs))
	got, err := Parse(&buf, "written")
	require.NoError(t, err)
	assert.Equal(t, rs, got)

	buf.Reset()
	require.NoError(t, Write(&buf, nil))
	got, err = Parse(&buf, "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKindAllowedTable(t *testing.T) {
	assert.Equal(t, []Modifier{Accessible, Extendable}, KindClass.Allowed())
	assert.Equal(t, []Modifier{Accessible, Extendable}, KindMethod.Allowed())
	assert.Equal(t, []Modifier{Accessible, Mutable}, KindField.Allowed())
	assert.False(t, KindField.Allows(Extendable))
	assert.True(t, KindField.Allows(Mutable))

	_, ok := ParseModifier("none")
	assert.False(t, ok)
}
