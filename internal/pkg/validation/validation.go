package validation

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var ErrInvalidDate = errors.New("Date must be YYYY-MM-DD")

// UK postcode area: one or two letters ("W", "RG").
var postcodeAreaRe = regexp.MustCompile(`^[A-Za-z]{1,2}$`)

// Session ids come from the conversational front-end and become redis key suffixes.
var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)

// Layouts accepted for catalogue and request dates, ISO first.
var dateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339, "2006-01-02 15:04:05"}

func IsValidPostcodeArea(area string) bool {
	return postcodeAreaRe.MatchString(area)
}

func IsValidSessionID(id string) bool {
	return sessionIDRe.MatchString(id)
}

// ParseDate accepts ISO dates, UK day-first dates and RFC 3339 timestamps, and
// returns midnight UTC of the calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
