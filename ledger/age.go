package ledger

import "strconv"

// AgeNotAvailable is the label shown when the date of birth is missing or bad.
const AgeNotAvailable = "N/A"

// AgeOn returns the age in whole years on today. ok is false when dateOfBirth
// is empty or cannot be parsed as YYYY-MM-DD.
func AgeOn(dateOfBirth string, today Date) (years int, ok bool) {
	if dateOfBirth == "" {
		return 0, false
	}
	dob, err := ParseISODate(dateOfBirth)
	if err != nil {
		return 0, false
	}
	years = today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		years--
	}
	return years, true
}

// AgeLabel formats AgeOn for display.
func AgeLabel(dateOfBirth string, today Date) string {
	years, ok := AgeOn(dateOfBirth, today)
	if !ok {
		return AgeNotAvailable
	}
	return strconv.Itoa(years)
}
