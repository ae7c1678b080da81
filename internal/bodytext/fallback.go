package bodytext

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	encunicode "golang.org/x/text/encoding/unicode"

	"github.com/chatvault/chatvault/internal/textutil"
)

// fallbackStrategy is one named re-decoding of the raw buffer. The chain is
// an explicit ordered list so its ordering and exit conditions are testable
// on their own, instead of being buried in nested conditionals.
type fallbackStrategy struct {
	name   string
	decode func([]byte) string
}

var fallbackChain = []fallbackStrategy{
	{"utf-8", func(buf []byte) string {
		return textutil.SanitizeUTF8(string(buf))
	}},
	{"utf-16le", func(buf []byte) string {
		dec := encunicode.UTF16(encunicode.LittleEndian, encunicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(buf)
		if err != nil {
			return ""
		}
		return string(out)
	}},
	{"latin-1", func(buf []byte) string {
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(buf)
		if err != nil {
			return ""
		}
		return string(out)
	}},
}

// decodeWithFallback re-decodes the raw original buffer (not any previously
// decoded text) under each strategy in order, accepting the first result
// that looks usable: it carries the NSString token pattern or, absent that
// marker, a readable-character run of at least 5 runes — and contains no
// replacement characters.
//
// If no strategy produces a clean result, the UTF-8 result is returned with
// ok=false: replacement markers may stand for real characters, and data
// preservation beats cosmetic cleanliness.
func decodeWithFallback(buf []byte) (text, strategy string, ok bool) {
	var utf8Result string
	for _, s := range fallbackChain {
		decoded := s.decode(buf)
		if s.name == "utf-8" {
			utf8Result = decoded
		}
		if usableFallbackText(decoded) {
			return decoded, s.name, true
		}
	}
	return utf8Result, "utf-8", false
}

// usableFallbackText is the uniform "did this decoding succeed cleanly"
// predicate applied to every strategy in the chain.
func usableFallbackText(s string) bool {
	if s == "" || strings.ContainsRune(s, '�') {
		return false
	}
	if bytes.Contains([]byte(s), nsStringToken) {
		return true
	}
	return longestReadableRun(s) >= 5
}

// longestReadableRun returns the length in runes of the longest run of
// printable characters (letters, digits, punctuation, symbols, spaces).
func longestReadableRun(s string) int {
	best, cur := 0, 0
	for _, r := range s {
		if unicode.IsGraphic(r) && r != '�' {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}
