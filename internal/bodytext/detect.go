// Package bodytext decodes the binary attributedBody blobs that Apple
// Messages stores alongside (or instead of) plain message text.
//
// Two serializations appear in the wild: an NSKeyedArchiver binary plist
// (newer messages) and the legacy typedstream encoding of NSAttributedString
// (older messages, with at least two incompatible sub-dialects). Neither has
// a public specification, so decoding is deliberately tolerant: every entry
// point returns a miss instead of panicking on malformed input.
package bodytext

import "bytes"

// Format classifies an attributedBody buffer.
type Format int

const (
	FormatUnknown Format = iota
	FormatBplist
	FormatTypedstream
)

func (f Format) String() string {
	switch f {
	case FormatBplist:
		return "bplist"
	case FormatTypedstream:
		return "typedstream"
	default:
		return "unknown"
	}
}

var bplistMagic = []byte("bplist00")

var typedstreamMarker = []byte("streamtyped")

// detectWindow bounds how far into the buffer the typedstream marker is
// searched for. The marker sits after 1-4 preamble bytes in practice.
const detectWindow = 50

// DetectFormat classifies a buffer by magic bytes. The plist magic is
// checked first: its binary prefix can otherwise be misread as text by the
// typedstream marker scan. Absent or undersized buffers are unknown.
func DetectFormat(buf []byte) Format {
	if bytes.HasPrefix(buf, bplistMagic) {
		return FormatBplist
	}
	window := buf
	if len(window) > detectWindow {
		window = window[:detectWindow]
	}
	if bytes.Contains(window, typedstreamMarker) {
		return FormatTypedstream
	}
	return FormatUnknown
}
