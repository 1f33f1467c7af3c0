// internal/service/phone.go
package service

import (
	"strings"

	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
)

// PhoneFormat describes the home country numbering plan.
type PhoneFormat struct {
	// CountryPrefix includes the leading plus, e.g. "+48"
	CountryPrefix string
	// NationalLength is the national significant number length, e.g. 9
	NationalLength int
}

var PolishPhones = PhoneFormat{CountryPrefix: "+48", NationalLength: 9}

// minInternationalDigits counts digits only, not the leading plus.
const minInternationalDigits = 10

// Normalize turns a user-entered number into the canonical international form
// used as the ledger key.
func (f PhoneFormat) Normalize(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" || clean == "+" {
		return "", appErrors.NewInvalidAddress(raw)
	}

	countryDigits := strings.TrimPrefix(f.CountryPrefix, "+")
	fullLength := len(f.CountryPrefix) + f.NationalLength

	switch {
	case strings.HasPrefix(clean, f.CountryPrefix) && len(clean) == fullLength:
		return clean, nil
	case strings.HasPrefix(clean, countryDigits) && len(clean) == fullLength-1:
		return "+" + clean, nil
	case !strings.HasPrefix(clean, "+") && len(clean) == f.NationalLength:
		return f.CountryPrefix + clean, nil
	case strings.HasPrefix(clean, "+") && len(clean)-1 >= minInternationalDigits:
		return clean, nil
	}
	return "", appErrors.NewInvalidAddress(raw)
}
