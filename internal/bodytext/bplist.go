package bodytext

import "howett.net/plist"

// archivePayload is the top-level shape of an NSKeyedArchiver binary plist:
// a flat $objects array indexed by UID references, plus archiver metadata.
type archivePayload struct {
	Archiver string `plist:"$archiver"`
	Objects  []any  `plist:"$objects"`
}

// ExtractBplist recovers message text from an NSKeyedArchiver binary plist.
// Candidate strings come from plain entries in $objects and from NS.string /
// NSString fields of object entries; the longest candidate that is not
// archiver bookkeeping wins. Message bodies are reliably the longest string
// in the graph, while class names and attribute keys are short and
// formulaic. Returns false for non-archiver plists and parse failures.
func ExtractBplist(buf []byte) (string, bool) {
	var payload archivePayload
	if _, err := plist.Unmarshal(buf, &payload); err != nil {
		return "", false
	}
	if payload.Archiver != "NSKeyedArchiver" || len(payload.Objects) == 0 {
		return "", false
	}

	var best string
	consider := func(s string) {
		if !isArchiverMetadata(s) && len(s) > len(best) {
			best = s
		}
	}

	for _, obj := range payload.Objects {
		switch v := obj.(type) {
		case string:
			consider(v)
		case map[string]any:
			if s, ok := v["NS.string"].(string); ok {
				consider(s)
			}
			if s, ok := v["NSString"].(string); ok {
				consider(s)
			}
		}
	}

	if best == "" {
		return "", false
	}
	return best, true
}
