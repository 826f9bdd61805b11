package money

import (
	"bytes"
	"strconv"
	"strings"
)

// MarshalJSON renders the amount as a major-unit string, e.g. "450.00".
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

// UnmarshalJSON accepts a major-unit string or number. Negative values are
// allowed so stored variances survive a round trip.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	neg := strings.HasPrefix(s, "-")
	v, err := Parse(strings.TrimPrefix(s, "-"))
	if err != nil {
		return err
	}
	if neg {
		v = -v
	}
	*a = v
	return nil
}

// MarshalJSON renders the rate as a percentage string, e.g. "10.00".
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strings.TrimSuffix(r.String(), "%"))), nil
}

// UnmarshalJSON accepts a percentage string or number.
func (r *Rate) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	v, err := ParseRate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
