package domain

import "strings"

// defaultCountryCode absorbs the dominant provider format difference: stored
// numbers carry the country code while some telephony events deliver only the
// local part.
const defaultCountryCode = "55"

// PhoneCandidates normalizes a sender identifier into the small set of forms
// it may be stored under: bare digits, "+"-prefixed, country-code-stripped and
// country-code-prefixed. Providers disagree on formatting, so matching is done
// against the whole set rather than a single canonical form.
func PhoneCandidates(raw string) []string {
	digits := normalizeDigits(raw)
	if digits == "" {
		return nil
	}

	seen := map[string]bool{}
	candidates := make([]string, 0, 4)
	add := func(value string) {
		if value != "" && !seen[value] {
			seen[value] = true
			candidates = append(candidates, value)
		}
	}

	add(digits)
	add("+" + digits)
	if strings.HasPrefix(digits, defaultCountryCode) && len(digits) >= 12 {
		add(strings.TrimPrefix(digits, defaultCountryCode))
	} else {
		add(defaultCountryCode + digits)
	}

	return candidates
}

func normalizeDigits(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
