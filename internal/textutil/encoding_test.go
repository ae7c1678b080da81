package textutil

import (
	"strings"
	"testing"
)

func TestEnsureUTF8Valid(t *testing.T) {
	inputs := []string{"", "hello", "héllo wörld", "日本語", "emoji 🎉"}
	for _, in := range inputs {
		if got := EnsureUTF8(in); got != in {
			t.Errorf("EnsureUTF8(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestEnsureUTF8Latin1(t *testing.T) {
	// "café" encoded as Latin-1: é = 0xE9, invalid as UTF-8.
	in := "caf\xe9"
	got := EnsureUTF8(in)
	if !strings.Contains(got, "caf") {
		t.Errorf("EnsureUTF8(%q) = %q, lost ASCII prefix", in, got)
	}
	if strings.ContainsRune(got, '�') {
		t.Errorf("EnsureUTF8(%q) = %q, contains replacement char", in, got)
	}
}

func TestSanitizeUTF8(t *testing.T) {
	in := "ok\xff\xfeok"
	got := SanitizeUTF8(in)
	if got != "ok��ok" {
		t.Errorf("SanitizeUTF8(%q) = %q", in, got)
	}
}

func TestGetEncodingByName(t *testing.T) {
	known := []string{"windows-1252", "ISO-8859-1", "Shift_JIS", "EUC-KR", "GBK", "Big5", "KOI8-R"}
	for _, name := range known {
		if GetEncodingByName(name) == nil {
			t.Errorf("GetEncodingByName(%q) = nil", name)
		}
	}
	if GetEncodingByName("no-such-charset") != nil {
		t.Error("GetEncodingByName(unknown) should be nil")
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"one\ntwo", "one"},
		{"\r\n\nleading", "leading"},
		{"single", "single"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FirstLine(tt.in); got != tt.want {
			t.Errorf("FirstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
