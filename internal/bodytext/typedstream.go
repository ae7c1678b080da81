package bodytext

import (
	"bytes"
	"encoding/binary"

	"github.com/chatvault/chatvault/internal/textutil"
)

// ScanLimits bounds what the typedstream scanner will accept. The zero value
// uses DefaultMaxStringLen.
type ScanLimits struct {
	// MaxStringLen is the plausibility ceiling for a single recovered
	// string. Lengths beyond it are treated as corrupt, not read.
	MaxStringLen int
}

// DefaultMaxStringLen is the default ceiling for a recovered string field.
const DefaultMaxStringLen = 10000

func (l ScanLimits) maxStringLen() int {
	if l.MaxStringLen > 0 {
		return l.MaxStringLen
	}
	return DefaultMaxStringLen
}

var nsStringToken = []byte("NSString")

// Five-byte sequences that follow the NSString class token before the length
// field. Regular immutable strings use one; mutable strings (links, calendar
// invites and other rich content) use the other. Some historical variants
// omit the preamble entirely.
var (
	regularStringPreamble = []byte{0x01, 0x94, 0x84, 0x01, 0x2b}
	mutableStringPreamble = []byte{0x01, 0x95, 0x84, 0x01, 0x2b}
)

// lengthEscape marks a 2-byte little-endian length field in place of the
// usual single length byte.
const lengthEscape = 0x81

// ExtractTypedstream recovers message text from a legacy typedstream buffer.
//
// This is a linear scanner, not a grammar parser: the format has no public
// specification and historical messages exhibit incompatible sub-dialects, so
// a tolerant scan that validates lengths defensively recovers more than a
// strict parser that would reject legitimate variants. Each occurrence of the
// NSString token is probed for an optional preamble and a length-prefixed
// string; the longest non-metadata candidate across all occurrences wins.
func ExtractTypedstream(buf []byte, limits ScanLimits) (string, bool) {
	var best string
	base := 0
	for {
		idx := bytes.Index(buf[base:], nsStringToken)
		if idx < 0 {
			break
		}
		tokenAt := base + idx
		pos := tokenAt + len(nsStringToken)

		rest := buf[pos:]
		if bytes.HasPrefix(rest, regularStringPreamble) || bytes.HasPrefix(rest, mutableStringPreamble) {
			pos += len(regularStringPreamble)
		}

		if s, ok := readLengthPrefixedString(buf, pos, limits.maxStringLen()); ok && !isArchiverMetadata(s) {
			if len(s) > len(best) {
				best = s
			}
		}

		// Advance one byte past the token occurrence, not past the
		// consumed field, so overlapping and adjacent strings are seen.
		base = tokenAt + 1
	}

	if best == "" {
		return "", false
	}
	return best, true
}

// readLengthPrefixedString reads a length-prefixed UTF-8 string at pos.
// The length is one byte, unless that byte is the 0x81 escape, in which case
// a 2-byte little-endian length follows. Lengths that are non-positive,
// exceed the remaining buffer, or exceed maxLen are decode failures — never
// out-of-bounds reads. Invalid UTF-8 surfaces as replacement characters so
// callers can detect encoding mismatches.
func readLengthPrefixedString(buf []byte, pos, maxLen int) (string, bool) {
	if pos >= len(buf) {
		return "", false
	}
	length := int(buf[pos])
	pos++
	if length == lengthEscape {
		if pos+2 > len(buf) {
			return "", false
		}
		length = int(binary.LittleEndian.Uint16(buf[pos : pos+2]))
		pos += 2
	}
	if length <= 0 || length > maxLen || pos+length > len(buf) {
		return "", false
	}
	return textutil.SanitizeUTF8(string(buf[pos : pos+length])), true
}
