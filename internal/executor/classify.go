package executor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultRateLimitSignals is the default configurable list of
// case-insensitive substrings that mark output as rate-limited, per
// spec §4.2. The exact list is loose in the original source; this
// implementation keeps it overridable (spec §9 Open Question).
var DefaultRateLimitSignals = []string{"rate limit", "quota", "too many requests", "retry after"}

var retryAfterPattern = regexp.MustCompile(`(?i)retry.after[:\s]+(\d+)`)

// iso8601Pattern matches a reasonably permissive ISO-8601 timestamp
// embedded anywhere in free-form CLI output.
var iso8601Pattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)

// Classify is a pure function over captured output: it scans for rate-limit
// signals and, if found, tries to extract a reset time. If no reset time
// can be parsed, limited is still true and reset is the zero time — the
// caller supplies the default backoff window.
func Classify(output string, signals []string) (limited bool, reset time.Time, message string) {
	if len(signals) == 0 {
		signals = DefaultRateLimitSignals
	}

	lower := strings.ToLower(output)
	var matched string
	for _, sig := range signals {
		if strings.Contains(lower, strings.ToLower(sig)) {
			matched = sig
			break
		}
	}
	if matched == "" {
		return false, time.Time{}, ""
	}

	if t, ok := parseResetTime(output, time.Now()); ok {
		return true, t, matched
	}
	return true, time.Time{}, matched
}

// parseResetTime looks for an ISO-8601 timestamp or a relative
// "retry-after: <seconds>" marker in output.
func parseResetTime(output string, now time.Time) (time.Time, bool) {
	if m := iso8601Pattern.FindString(output); m != "" {
		for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, m); err == nil {
				return t, true
			}
		}
	}
	if m := retryAfterPattern.FindStringSubmatch(output); len(m) == 2 {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			return now.Add(time.Duration(secs) * time.Second), true
		}
	}
	return time.Time{}, false
}
