// Package identity turns raw contact fields into the canonical keys used to
// recognise the same company across imports and cleanup runs.
package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minPhoneDigits = 6
	minNameLength  = 2
)

// publicDomains are consumer mailbox providers. Staff of unrelated companies
// share them, so they never identify a company.
var publicDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"live.com":       {},
	"msn.com":        {},
	"yahoo.com":      {},
	"icloud.com":     {},
	"me.com":         {},
	"mac.com":        {},
	"gmx.ch":         {},
	"gmx.de":         {},
	"gmx.net":        {},
	"gmx.at":         {},
	"bluewin.ch":     {},
	"sunrise.ch":     {},
	"hispeed.ch":     {},
	"protonmail.com": {},
	"proton.me":      {},
	"aol.com":        {},
}

// PhoneDigits strips everything but digits. Numbers shorter than six digits
// are too weak a signal and yield "".
//
// A national trunk prefix ("079...") is not reconciled with the country code
// form ("4179..."), so the same number written both ways does not match.
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() < minPhoneDigits {
		return ""
	}
	return b.String()
}

// EmailDomain returns the lowercased part after the last "@", or "".
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

// NormalizedName collapses inner whitespace, trims and lowercases. Names
// shorter than two characters yield "".
func NormalizedName(name string) string {
	normalized := strings.ToLower(strings.Join(strings.FieldsFunc(name, unicode.IsSpace), " "))
	if utf8.RuneCountInString(normalized) < minNameLength {
		return ""
	}
	return normalized
}

func IsPublicDomain(domain string) bool {
	_, ok := publicDomains[strings.ToLower(domain)]
	return ok
}

// MatchableDomain is the email domain when it may be used for matching,
// otherwise "".
func MatchableDomain(email string) string {
	domain := EmailDomain(email)
	if domain == "" || IsPublicDomain(domain) {
		return ""
	}
	return domain
}
