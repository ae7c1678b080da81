package bodytext

import "strings"

// Result is the outcome of decoding one attributedBody buffer.
type Result struct {
	// Text is the cleaned recovered text. Empty means nothing usable was
	// recovered.
	Text string

	// Strategy names the decoder that produced Text: "bplist",
	// "typedstream", or a fallback encoding name.
	Strategy string

	// Format is the detected buffer format.
	Format Format
}

// DecodeBody is the single dispatch point from a raw attributedBody buffer
// to recovered text. The detected format's extractor runs first; on a miss —
// or when the typedstream scanner's output contains the Unicode replacement
// character, which signals an encoding mismatch rather than absent content —
// the multi-encoding fallback chain re-decodes the raw buffer.
//
// A confirmed binary plist that fails extraction is terminal: the magic
// bytes prove the buffer is binary plist data, so re-decoding it as text
// could only fabricate garbage.
//
// DecodeBody never panics on malformed input and never reads past the
// buffer; the worst outcome is an empty Result.
func DecodeBody(buf []byte, limits ScanLimits) Result {
	res := Result{Format: DetectFormat(buf)}
	if len(buf) == 0 {
		return res
	}

	switch res.Format {
	case FormatBplist:
		if s, ok := ExtractBplist(buf); ok {
			res.Text = Clean(s)
			res.Strategy = "bplist"
		}
		return res
	case FormatTypedstream:
		if s, ok := ExtractTypedstream(buf, limits); ok && !strings.ContainsRune(s, '�') {
			res.Text = Clean(s)
			res.Strategy = "typedstream"
			return res
		}
	}

	text, strategy, _ := decodeWithFallback(buf)
	if cleaned := Clean(text); cleaned != "" {
		res.Text = cleaned
		res.Strategy = strategy
	}
	return res
}
