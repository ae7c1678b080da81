package bodytext

import "regexp"
import "strings"

// Substrings that identify archiver bookkeeping rather than message text.
var metadataSubstrings = []string{
	"AttributeName",
	"MessagePart",
	"$class",
}

// Matches short two-segment dotted accessors such as "NS.string" or
// "NS.objects" that NSKeyedArchiver uses as field keys.
var dottedAccessorRE = regexp.MustCompile(`^[A-Za-z$]{1,12}\.[A-Za-z]{1,16}$`)

// isArchiverMetadata reports whether a recovered string is serialization
// bookkeeping (class names, attribute keys, placeholders) rather than
// candidate message text. Both extractors must apply this identically so the
// two formats cannot diverge on what counts as a candidate.
func isArchiverMetadata(s string) bool {
	if s == "" || s == "$null" {
		return true
	}
	if strings.HasPrefix(s, "NS") {
		return true
	}
	if strings.HasPrefix(s, "kIM") || strings.HasPrefix(s, "__kIM") {
		return true
	}
	for _, sub := range metadataSubstrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return dottedAccessorRE.MatchString(s)
}
