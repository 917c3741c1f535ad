package ptypes

import (
	"strconv"
	"time"
)

const monthDayPrefixLayoutConstant = "01-02-"

// MinimumAdultBirthdate returns the latest birthdate, formatted MM-DD-YYYY,
// of a patron who is at least adultAge years old on the given day. Month and
// day are kept as-is, so February 29 stays February 29 in the target year.
func MinimumAdultBirthdate(referenceTime time.Time, adultAge int) string {
	return referenceTime.Format(monthDayPrefixLayoutConstant) + strconv.Itoa(referenceTime.Year()-adultAge)
}
