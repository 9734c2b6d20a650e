package dialogue

import (
	"math"
	"strings"
	"unicode"

	"github.com/BTreeMap/LeadPipe/internal/flow"
)

// normalize lower-cases and trims a reply before keyword matching.
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// containsAny reports whether text contains any of the keywords as a substring.
// Keywords are normalized at load.
func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// matchChoice returns the value of the first choice, in document order, with a matching keyword.
func matchChoice(text string, choices []flow.Choice) (string, bool) {
	for _, c := range choices {
		if containsAny(text, c.Keywords) {
			return c.Value, true
		}
	}
	return "", false
}

// firstNumber parses the first run of decimal digits in text. Digits from any
// script count, so "٧٥٠٠" reads as 7500. A run too long for an int saturates
// at math.MaxInt.
func firstNumber(text string) (int, bool) {
	n, found := 0, false
	for _, r := range text {
		d, ok := digitValue(r)
		if !ok {
			if found {
				break
			}
			continue
		}
		found = true
		if n > (math.MaxInt-d)/10 {
			n = math.MaxInt
		} else {
			n = n*10 + d
		}
	}
	return n, found
}

// digitValue returns the value of a Unicode decimal digit. Decimal digits are
// encoded in contiguous ascending runs of ten starting at zero, so the value is
// the offset from the start of the run, modulo ten.
func digitValue(r rune) (int, bool) {
	if r >= '0' && r <= '9' {
		return int(r - '0'), true
	}
	if !unicode.IsDigit(r) {
		return 0, false
	}
	start := r
	for unicode.IsDigit(start - 1) {
		start--
	}
	return int(r-start) % 10, true
}
