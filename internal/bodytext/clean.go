package bodytext

import (
	"regexp"
	"strings"
)

// Attribute names that occasionally leak into decoded output when a scan
// picks up bookkeeping bytes adjacent to the real string.
var leakedAttributeNames = []string{
	"__kIMMessagePartAttributeName",
	"kIMMessagePartAttributeName",
	"kIMFileTransferGUIDAttributeName",
	"kIMBaseWritingDirectionAttributeName",
}

// Bare 2-4 digit hex token lines (including the conventional "00" prefix
// line) are leftovers from earlier parsing stages.
var hexArtifactLineRE = regexp.MustCompile(`^[0-9a-fA-F]{2,4}$`)

// Clean strips decoding noise from recovered text: null bytes and C0/C1
// control characters (keeping tab and newline, which are message content,
// and U+FFFD, which is data rather than noise), leaked attribute names, and
// bare hex artifact lines. Cleaning already-clean text is a no-op.
func Clean(s string) string {
	// Controls go first: a control byte inside an attribute name would
	// otherwise hide it from removal, and stripping it later would
	// reassemble the name in the output.
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if isStrippedControl(r) {
			continue
		}
		sb.WriteRune(r)
	}
	s = sb.String()

	// Removing one name can splice surrounding bytes into another
	// occurrence, so repeat until stable.
	for {
		prev := s
		for _, name := range leakedAttributeNames {
			s = strings.ReplaceAll(s, name, "")
		}
		if s == prev {
			break
		}
	}

	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if hexArtifactLineRE.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")

	return strings.TrimSpace(s)
}

// isStrippedControl reports whether r is a control character removed by
// Clean: NUL, C0 controls other than tab/newline/carriage return, DEL, and
// the C1 range. U+FFFD is explicitly not a control and is preserved.
func isStrippedControl(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	if r < 0x20 || r == 0x7f {
		return true
	}
	return r >= 0x80 && r <= 0x9f
}
