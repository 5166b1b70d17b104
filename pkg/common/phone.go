package common

import "strings"

// NormalizeDigits strips every non-numeric character from a phone string.
// Empty input yields empty output, which callers treat as "no identity".
func NormalizeDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeE164 prefixes + when absent. Country-code correctness is not
// validated here; the gateway and the platform both validate on their side.
func NormalizeE164(phone string) string {
	digits := NormalizeDigits(phone)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// PhoneSuffixMatch reports whether two phone strings refer to the same
// number, tolerating country-code presence mismatches. Both sides are
// reduced to digits and matched by suffix in either direction.
func PhoneSuffixMatch(a, b string) bool {
	da := NormalizeDigits(a)
	db := NormalizeDigits(b)
	if da == "" || db == "" {
		return false
	}
	return strings.HasSuffix(da, db) || strings.HasSuffix(db, da)
}

// PhoneLast4 returns the last four digits of a phone string, used for
// placeholder contact names.
func PhoneLast4(phone string) string {
	digits := NormalizeDigits(phone)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// JidPhone extracts the phone portion of a chat id such as
// "15551234567@s.whatsapp.net".
func JidPhone(jid string) string {
	if idx := strings.Index(jid, "@"); idx >= 0 {
		return jid[:idx]
	}
	return jid
}
