package sidecar

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<?xml version="1.0" encoding="utf-8"?>
<Project ToolsVersion="4.0" xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
  <ItemGroup>
    <Filter Include="Src">
      <UniqueIdentifier>{4FC737F1-C7A5-4376-A066-2A32D752A2FF}</UniqueIdentifier>
      <Extensions>cpp;c</Extensions>
    </Filter>
    <Filter Include="Src\Module">
      <UniqueIdentifier>{93995380-89BD-4b04-88EB-625FBE52EBFB}</UniqueIdentifier>
    </Filter>
  </ItemGroup>
  <ItemGroup>
    <ClCompile Include="src\x.cpp">
      <Filter>Src</Filter>
    </ClCompile>
    <ClCompile Include="src\module\foo.cpp">
      <Filter>Src\Module</Filter>
    </ClCompile>
    <ClCompile Include="main.cpp" />
  </ItemGroup>
</Project>
`

func mustDecode(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := Decode([]byte(s))
	require.NoError(t, err)
	return doc
}

func TestDecode(t *testing.T) {
	doc := mustDecode(t, sample)

	filters := doc.Filters()
	require.Len(t, filters, 2)
	assert.Equal(t, "Src", filters[0].Include)
	assert.Equal(t, "{4FC737F1-C7A5-4376-A066-2A32D752A2FF}", filters[0].UniqueIdentifier)
	assert.Equal(t, `Src\Module`, filters[1].Include)

	files := doc.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "ClCompile", files[0].Type)
	assert.Equal(t, `src\x.cpp`, files[0].Include)
	assert.Equal(t, "Src", files[0].Filter)
	assert.Equal(t, "", files[2].Filter)
	assert.False(t, doc.Changed())
}

func TestRoundTripPreservesPairsAndIdentifiers(t *testing.T) {
	doc := mustDecode(t, sample)
	out, err := doc.Encode()
	require.NoError(t, err)

	again := mustDecode(t, string(out))
	require.Len(t, again.Filters(), 2)
	for i, f := range doc.Filters() {
		assert.Equal(t, f.Include, again.Filters()[i].Include)
		assert.Equal(t, f.UniqueIdentifier, again.Filters()[i].UniqueIdentifier)
	}
	require.Len(t, again.Files(), 3)
	for i, f := range doc.Files() {
		assert.Equal(t, f.Include, again.Files()[i].Include)
		assert.Equal(t, f.Filter, again.Files()[i].Filter)
	}
	assert.Contains(t, string(out), "<Extensions>cpp;c</Extensions>")
	assert.True(t, strings.HasPrefix(string(out), `<?xml version="1.0" encoding="utf-8"?>`))
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`<Project><ItemGroup></Project>`))
	require.Error(t, err)
	var pe *ParseError
	assert.True(t, errors.As(err, &pe))

	_, err = Decode([]byte(`<Solution/>`))
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, errNoProject)
}

func TestDecode_LastFilterWins(t *testing.T) {
	doc := mustDecode(t, `<Project>
  <ItemGroup>
    <ClInclude Include="a.h">
      <Filter>First</Filter>
      <Filter>Second</Filter>
    </ClInclude>
  </ItemGroup>
</Project>`)
	assert.Equal(t, "Second", doc.Files()[0].Filter)

	doc.Files()[0].SetFilter("Third")
	out, err := doc.Encode()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "<Filter>"))
	assert.Contains(t, string(out), "<Filter>Third</Filter>")
}

func TestSetFilter_EmptyRemovesReference(t *testing.T) {
	doc := mustDecode(t, sample)
	doc.Files()[0].SetFilter("")
	assert.True(t, doc.Changed())

	out, err := doc.Encode()
	require.NoError(t, err)
	again := mustDecode(t, string(out))
	assert.Equal(t, "", again.Files()[0].Filter)
	assert.NotContains(t, string(out), "<Filter></Filter>")
	assert.NotContains(t, string(out), "<Filter/>")
}

func TestSetFilter_SameValueIsNoChange(t *testing.T) {
	doc := mustDecode(t, sample)
	doc.Files()[0].SetFilter("Src")
	doc.Files()[0].SetInclude(`src\x.cpp`)
	assert.False(t, doc.Changed())
}

func TestEncode_DropsEmptiedGroup(t *testing.T) {
	doc := mustDecode(t, sample)
	for _, f := range doc.Files() {
		doc.Remove(f)
	}
	out, err := doc.Encode()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "<ItemGroup>"))
	assert.Len(t, doc.Groups, 1)
}

func TestEncode_KeepsUntouchedEmptyGroup(t *testing.T) {
	doc := mustDecode(t, Skeleton)
	out, err := doc.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(out), "<ItemGroup")
	assert.Len(t, doc.Groups, 1)
}

func TestAddFilter_UsesFilterGroup(t *testing.T) {
	doc := mustDecode(t, sample)
	doc.AddFilter("Docs", NewUniqueIdentifier())
	assert.Len(t, doc.Groups[0].Entries, 3)
	assert.NotNil(t, doc.FindFilter("Docs"))
	assert.Nil(t, doc.FindFilter("docs"))
}

func TestAddFile_IntoSkeleton(t *testing.T) {
	doc := mustDecode(t, Skeleton)
	doc.AddFile("ClInclude", `inc\a.h`, "Headers")
	doc.AddFile("Text", "readme.txt", "")

	out, err := doc.Encode()
	require.NoError(t, err)
	again := mustDecode(t, string(out))
	files := again.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "Headers", files[0].Filter)
	assert.Equal(t, "readme.txt", files[1].Include)
	assert.Equal(t, "", files[1].Filter)
}

func TestFindFiles_IgnoresCaseAndSeparator(t *testing.T) {
	doc := mustDecode(t, sample)
	assert.Len(t, doc.FindFiles("SRC/X.cpp"), 1)
	assert.Empty(t, doc.FindFiles("src/y.cpp"))
}

func TestEncode_PreservesBOMAndLineEndings(t *testing.T) {
	in := "\xEF\xBB\xBF" + strings.ReplaceAll(sample, "\n", "\r\n")
	doc := mustDecode(t, in)
	doc.AddFilter("Extra", NewUniqueIdentifier())

	out, err := doc.Encode()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "\xEF\xBB\xBF<?xml"))
	assert.Contains(t, string(out), "\r\n")
	assert.NotContains(t, strings.ReplaceAll(string(out), "\r\n", ""), "\n")
}

func TestNewUniqueIdentifier(t *testing.T) {
	re := regexp.MustCompile(`^\{[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\}$`)
	seen := map[string]bool{}
	for range 50 {
		id := NewUniqueIdentifier()
		assert.Regexp(t, re, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestEntryType(t *testing.T) {
	tests := map[string]string{
		"a.cpp":         "ClCompile",
		`dir\b.C`:       "ClCompile",
		"c.cc":          "ClCompile",
		"d.hpp":         "ClInclude",
		"e.h":           "ClInclude",
		"app.rc":        "ResourceCompile",
		"README.md":     "Text",
		"Makefile":      "Text",
		"weird.cpp.bak": "Text",
	}
	for name, want := range tests {
		assert.Equal(t, want, EntryType(name), name)
	}
}
