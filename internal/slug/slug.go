// Package slug derives URL-safe event identifiers from display names.
package slug

import (
	"strconv"
	"strings"
	"unicode"
)

// Fallback is used when a name contains nothing slug-worthy.
const Fallback = "event"

// Slugify lowercases name, drops everything except letters, digits, whitespace and
// hyphens, and joins the remaining words with single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			pendingSep = true
		}
	}
	return b.String()
}

// NextAvailable returns base if no entry in existing is base or base-N, otherwise
// base-(max N + 1). A bare base counts as N=0.
func NextAvailable(base string, existing []string) string {
	max := -1
	for _, s := range existing {
		n, ok := suffix(base, s)
		if ok && n > max {
			max = n
		}
	}
	if max < 0 {
		return base
	}
	return base + "-" + strconv.Itoa(max+1)
}

func suffix(base, s string) (int, bool) {
	if s == base {
		return 0, true
	}
	rest, ok := strings.CutPrefix(s, base+"-")
	if !ok || rest == "" {
		return 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
