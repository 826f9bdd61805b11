// Package passport normalizes traveller identity data captured at registration.
package passport

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/greenpass/greenpass/internal/shared"
)

// DateLayout is the canonical date format for passport dates.
const DateLayout = "2006-01-02"

// Sex markers accepted on the travel document.
const (
	SexMale        = "M"
	SexFemale      = "F"
	SexUnspecified = "X"
	SexUnknown     = "U"
)

// Passport is the explicit value bound to a voucher.
type Passport struct {
	Number       string `json:"passport_number"`
	Surname      string `json:"surname"`
	GivenName    string `json:"given_name"`
	Nationality  string `json:"nationality,omitempty"`
	DateOfBirth  string `json:"date_of_birth,omitempty"`
	Sex          string `json:"sex"`
	DateOfExpiry string `json:"date_of_expiry,omitempty"`
}

// FullName renders "SURNAME, GIVEN".
func (p Passport) FullName() string {
	return p.Surname + ", " + p.GivenName
}

// Masked returns the passport number with all but the last three characters hidden.
func (p Passport) Masked() string {
	n := len(p.Number)
	if n <= 3 {
		return strings.Repeat("*", n)
	}
	return strings.Repeat("*", n-3) + p.Number[n-3:]
}

// Validate checks the passport is structurally complete.
func (p Passport) Validate() error {
	switch {
	case p.Number == "":
		return shared.Invalid("passport number is required")
	case len(p.Number) < 5 || len(p.Number) > 20:
		return shared.Invalid("passport number must be 5-20 characters")
	case p.Surname == "":
		return shared.Invalid("surname is required")
	case p.GivenName == "":
		return shared.Invalid("given name is required")
	}
	switch p.Sex {
	case SexMale, SexFemale, SexUnspecified, SexUnknown:
	default:
		return shared.Invalid("sex must be one of M, F, X, U")
	}
	if p.DateOfBirth != "" {
		if _, err := time.Parse(DateLayout, p.DateOfBirth); err != nil {
			return shared.Invalid("date of birth must be YYYY-MM-DD")
		}
	}
	if p.DateOfExpiry != "" {
		if _, err := time.Parse(DateLayout, p.DateOfExpiry); err != nil {
			return shared.Invalid("date of expiry must be YYYY-MM-DD")
		}
	}
	return nil
}

var fieldAliases = map[string]string{
	"passportnumber":  "number",
	"passportno":      "number",
	"passport":        "number",
	"number":          "number",
	"documentnumber":  "number",
	"surname":         "surname",
	"lastname":        "surname",
	"familyname":      "surname",
	"givenname":       "given",
	"givennames":      "given",
	"firstname":       "given",
	"nationality":     "nationality",
	"nationalitycode": "nationality",
	"dateofbirth":     "dob",
	"dob":             "dob",
	"birthdate":       "dob",
	"sex":             "sex",
	"gender":          "sex",
	"dateofexpiry":    "expiry",
	"expirydate":      "expiry",
	"passportexpiry":  "expiry",
}

func canonicalKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(k) {
		if r == '_' || r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FromFields builds a Passport from a loosely keyed payload, accepting
// snake_case and camelCase variants, then normalizes it.
func FromFields(fields map[string]any) Passport {
	var p Passport
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch fieldAliases[canonicalKey(k)] {
		case "number":
			p.Number = s
		case "surname":
			p.Surname = s
		case "given":
			p.GivenName = s
		case "nationality":
			p.Nationality = s
		case "dob":
			p.DateOfBirth = s
		case "sex":
			p.Sex = s
		case "expiry":
			p.DateOfExpiry = s
		}
	}
	return p.Normalize()
}

// Normalize upper-cases names and numbers, strips diacritics, maps nationality
// codes to names and canonicalizes dates.
func (p Passport) Normalize() Passport {
	out := Passport{
		Number:       cleanNumber(p.Number),
		Surname:      cleanName(p.Surname),
		GivenName:    cleanName(p.GivenName),
		Nationality:  NationalityName(p.Nationality),
		DateOfBirth:  cleanDate(p.DateOfBirth),
		Sex:          cleanSex(p.Sex),
		DateOfExpiry: cleanDate(p.DateOfExpiry),
	}
	return out
}

func cleanNumber(s string) string {
	var b strings.Builder
	for _, r := range cases.Upper(language.Und).String(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cleanName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Upper(language.Und).String(strings.Join(strings.Fields(stripped), " "))
}

var dateLayouts = []string{DateLayout, "02/01/2006", "2006/01/02", "20060102"}

func cleanDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}
	return s
}

func cleanSex(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M", "MALE":
		return SexMale
	case "F", "FEMALE":
		return SexFemale
	case "X":
		return SexUnspecified
	case "", "U", "UNKNOWN":
		return SexUnknown
	default:
		return strings.ToUpper(strings.TrimSpace(s))
	}
}
