package bodytext

import (
	"testing"
)

func TestDecodeBodyEmpty(t *testing.T) {
	for _, buf := range [][]byte{nil, {}} {
		res := DecodeBody(buf, ScanLimits{})
		if res.Text != "" || res.Format != FormatUnknown {
			t.Errorf("DecodeBody(%v) = %+v, want empty unknown", buf, res)
		}
	}
}

func TestDecodeBodyBplist(t *testing.T) {
	buf := archiveFixture(t, "NSKeyedArchiver", []any{
		"$null",
		"decoded from a keyed archive",
		"NSMutableString",
	})
	res := DecodeBody(buf, ScanLimits{})
	if res.Text != "decoded from a keyed archive" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Strategy != "bplist" || res.Format != FormatBplist {
		t.Errorf("Strategy = %q, Format = %v", res.Strategy, res.Format)
	}
}

// A confirmed binary plist that is not a keyed archive yields nothing:
// re-decoding proven-binary data as text would only fabricate garbage.
func TestDecodeBodyBplistWithoutArchiver(t *testing.T) {
	buf := append([]byte("bplist00"), 0xd0, 0x08, 0x09)
	res := DecodeBody(buf, ScanLimits{})
	if res.Text != "" {
		t.Errorf("Text = %q, want empty", res.Text)
	}
	if res.Format != FormatBplist {
		t.Errorf("Format = %v, want FormatBplist", res.Format)
	}
}

func TestDecodeBodyTypedstream(t *testing.T) {
	buf := tsFixture(tsString(regularStringPreamble, "scanned typedstream body"))
	res := DecodeBody(buf, ScanLimits{})
	if res.Text != "scanned typedstream body" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Strategy != "typedstream" {
		t.Errorf("Strategy = %q", res.Strategy)
	}
}

// When the scanner's output carries replacement characters the raw buffer is
// re-decoded; here the whole stream is UTF-16LE so the fallback recovers it.
func TestDecodeBodyTypedstreamEncodingMismatch(t *testing.T) {
	inner := tsString(regularStringPreamble, "\xff\xfe\xff")
	buf := tsFixture(inner)
	res := DecodeBody(buf, ScanLimits{})
	if res.Strategy == "typedstream" {
		t.Errorf("scanner output with replacement chars was accepted: %+v", res)
	}
}

func TestDecodeBodyUnknownFallsBack(t *testing.T) {
	res := DecodeBody([]byte("just some plain text that was never archived"), ScanLimits{})
	if res.Text != "just some plain text that was never archived" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Strategy != "utf-8" {
		t.Errorf("Strategy = %q", res.Strategy)
	}
	if res.Format != FormatUnknown {
		t.Errorf("Format = %v", res.Format)
	}
}
