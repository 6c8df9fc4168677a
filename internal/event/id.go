package event

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// numericID matches ids that are integers possibly written as a float with
// a zero fraction ("123", "00123", "123.0", "-5.0").
var numericID = regexp.MustCompile(`^-?[0-9]+(\.0+)?$`)

// NormalizeID returns the canonical string form of an event id and whether
// the id is valid.
//
// Numeric-looking variants collapse to one form: "123", 123, 123.0 and
// "123.0" all become "123". Full-width digits are narrowed first. Any other
// non-empty string passes through trimmed. Empty or unsupported values are
// invalid. NormalizeID is idempotent.
func NormalizeID(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return normalizeString(x)
	case json.Number:
		return normalizeString(string(x))
	case int:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	default:
		return "", false
	}
}

func normalizeString(s string) (string, bool) {
	s = strings.TrimSpace(width.Narrow.String(s))
	if s == "" {
		return "", false
	}
	if numericID.MatchString(s) {
		digits, _, _ := strings.Cut(s, ".")
		neg := strings.HasPrefix(digits, "-")
		digits = strings.TrimLeft(strings.TrimPrefix(digits, "-"), "0")
		if digits == "" {
			return "0", true
		}
		if neg {
			return "-" + digits, true
		}
		return digits, true
	}
	return s, true
}

func normalizeFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10), true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// SentinelID is never shown, whichever source supplies it.
const SentinelID = "12151"

// ExcludedSet returns the ids to drop: SentinelID plus any extra ids.
func ExcludedSet(extra ...string) IDSet {
	set := NewIDSet(extra...)
	set[SentinelID] = struct{}{}
	return set
}

// IDSet is a set of normalized event ids.
type IDSet map[string]struct{}

// NewIDSet normalizes ids into a set; invalid ids are dropped.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, raw := range ids {
		if id, ok := NormalizeID(raw); ok {
			set[id] = struct{}{}
		}
	}
	return set
}

// Has reports whether id (already normalized) is in the set. A nil set is
// empty.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
