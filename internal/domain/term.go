package domain

import "strconv"

const UnknownTerm = "Unknown"

// TermCodeToString converts a registrar term code into "<Season> <Year>".
//
// The code is (year-1900)*10 + season digit, where year is the calendar year
// the academic year ends in. Fall belongs to the previous calendar year:
// 1252 is Fall 2024, 1254 Spring 2025, 1256 Summer 2025. Any other season
// digit maps to UnknownTerm.
func TermCodeToString(code int) string {
	if code <= 0 {
		return UnknownTerm
	}
	baseYear := code/10 + 1900
	switch code % 10 {
	case 2:
		return "Fall " + strconv.Itoa(baseYear-1)
	case 4:
		return "Spring " + strconv.Itoa(baseYear)
	case 6:
		return "Summer " + strconv.Itoa(baseYear)
	default:
		return UnknownTerm
	}
}
