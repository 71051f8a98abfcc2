package utils

import (
	"os"
	"regexp"
	"strings"
)

func countryCode() string {
	if cc := os.Getenv("DEFAULT_COUNTRY_CODE"); cc != "" {
		return cc
	}
	return "1"
}

// FormatPhoneNumber strips all non-digit characters and prefixes the default
// country code when missing.
func FormatPhoneNumber(phoneNumber string) string {
	re := regexp.MustCompile(`\D`)
	digits := re.ReplaceAllString(phoneNumber, "")

	cc := countryCode()
	if len(digits) > 0 && !strings.HasPrefix(digits, cc) {
		digits = strings.TrimLeft(digits, "0")
		digits = cc + digits
	}

	return digits
}

// ValidatePhoneNumber checks the national number length (7-12 digits).
func ValidatePhoneNumber(phoneNumber string) bool {
	re := regexp.MustCompile(`\D`)
	cleaned := re.ReplaceAllString(phoneNumber, "")
	cleaned = strings.TrimPrefix(cleaned, countryCode())
	return len(cleaned) >= 7 && len(cleaned) <= 12
}

// NormalizePhoneNumber normalizes phone number for database storage
func NormalizePhoneNumber(phoneNumber string) string {
	return FormatPhoneNumber(phoneNumber)
}
