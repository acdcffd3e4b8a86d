package calls

import (
	"regexp"

	"github.com/nyaruka/phonenumbers"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

func validE164(phone string) bool { return e164Pattern.MatchString(phone) }

// regionOf returns the ISO region for an E.164 number, or "" when libphonenumber cannot place it.
// Informational only; it never blocks placement.
func regionOf(phone string) string {
	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(num)
}
