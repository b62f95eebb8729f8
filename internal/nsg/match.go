package nsg

import "strings"

// MatchResult classifies a lookup against the requested direction.
type MatchResult int

const (
	NotFound MatchResult = iota
	FoundMatching
	// FoundMismatch is a same-named rule in the other direction. It is left
	// untouched and never treated as absent.
	FoundMismatch
)

func (m MatchResult) String() string {
	switch m {
	case NotFound:
		return "not-found"
	case FoundMatching:
		return "found"
	case FoundMismatch:
		return "direction-mismatch"
	}
	return "unknown"
}

// MarshalText renders the result for JSON output.
func (m MatchResult) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Match classifies existing (nil when absent) against direction.
func Match(existing *ExistingRule, direction Direction) MatchResult {
	if existing == nil {
		return NotFound
	}
	if !strings.EqualFold(string(existing.Direction), string(direction)) {
		return FoundMismatch
	}
	return FoundMatching
}
