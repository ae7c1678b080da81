package bodytext

import (
	"strings"
	"testing"
)

func TestCleanControlCharacters(t *testing.T) {
	in := "he\x00llo\x01\x02 wor\x7fld"
	got := Clean(in)
	if got != "hello world" {
		t.Errorf("Clean = %q, want %q", got, "hello world")
	}
}

func TestCleanPreservesStructure(t *testing.T) {
	in := "line one\nline two\ttabbed"
	if got := Clean(in); got != in {
		t.Errorf("Clean = %q, want unchanged", got)
	}
}

func TestCleanPreservesReplacementChar(t *testing.T) {
	// U+FFFD is data (a possibly-real character), not noise.
	in := "partial � text"
	if got := Clean(in); !strings.ContainsRune(got, '�') {
		t.Errorf("Clean = %q, replacement character removed", got)
	}
}

func TestCleanLeakedAttributeNames(t *testing.T) {
	in := "__kIMMessagePartAttributeNamehello there"
	if got := Clean(in); got != "hello there" {
		t.Errorf("Clean = %q, want %q", got, "hello there")
	}
}

func TestCleanHexArtifactLines(t *testing.T) {
	in := "00\nreal message\n1a2b\nmore text"
	got := Clean(in)
	if got != "real message\nmore text" {
		t.Errorf("Clean = %q", got)
	}
}

func TestCleanTrimsWhitespace(t *testing.T) {
	if got := Clean("  padded  "); got != "padded" {
		t.Errorf("Clean = %q", got)
	}
}

func TestCleanAttributeNameSplitByControl(t *testing.T) {
	// A control byte inside an attribute name must not shield it from
	// removal: stripping the byte first keeps one pass sufficient.
	in := "hi kIM\x01MessagePartAttributeName there"
	got := Clean(in)
	if strings.Contains(got, "kIM") {
		t.Errorf("Clean = %q, attribute name survived", got)
	}
	if got != Clean(got) {
		t.Errorf("Clean not idempotent: first %q, second %q", got, Clean(got))
	}
}

func TestCleanNestedAttributeNames(t *testing.T) {
	// Removing one occurrence can splice the bytes around it into another.
	in := "kIMkIMMessagePartAttributeNameMessagePartAttributeName body"
	got := Clean(in)
	if strings.Contains(got, "AttributeName") {
		t.Errorf("Clean = %q, nested attribute name survived", got)
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"clean text already",
		"he\x00llo\nworld",
		"00\nmessage",
		"with � marker",
		"__kIMMessagePartAttributeName leak",
		"  \x01\x9f mixed \n 2b4f \n tail  ",
		"hi kIM\x02MessagePartAttributeName there",
		"kIMkIMFileTransferGUIDAttributeNameFileTransferGUIDAttributeName",
	}
	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		if once != twice {
			t.Errorf("Clean not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
