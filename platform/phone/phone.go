// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalize reduces a phone number in any formatting to a canonical
// digits-only string. countryCode is the expected leading country digit
// (e.g. "7"); when set to "7", a leading trunk "8" on an 11-digit number
// is rewritten to "7" so differently dialed forms of one number compare
// equal. Unparseable input degrades to its bare digits.
func Normalize(input, countryCode string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	digits := onlyDigits(trimmed)

	if region := regionForCode(countryCode); region != "" {
		if number, err := phonenumbers.Parse(trimmed, region); err == nil && phonenumbers.IsValidNumber(number) {
			return onlyDigits(phonenumbers.Format(number, phonenumbers.E164))
		}
	}

	if countryCode == "7" && len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}

	return digits
}

// Variants generates plausible alternate formattings of a normalized
// digits-only phone number, covering however the CRM may have indexed it.
// The normalized form itself is always the first variant.
func Variants(normalized, countryCode string) []string {
	normalized = onlyDigits(normalized)
	if normalized == "" {
		return nil
	}

	variants := []string{normalized, "+" + normalized}

	if countryCode != "" && strings.HasPrefix(normalized, countryCode) {
		national := normalized[len(countryCode):]
		if national != "" {
			variants = append(variants, national)
		}
		if countryCode == "7" && len(normalized) == 11 {
			variants = append(variants, "8"+national)
		}
	}

	if region := regionForCode(countryCode); region != "" {
		if number, err := phonenumbers.Parse("+"+normalized, region); err == nil && phonenumbers.IsValidNumber(number) {
			variants = append(variants, phonenumbers.Format(number, phonenumbers.INTERNATIONAL))
		}
	}

	return dedupe(variants)
}

func onlyDigits(value string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, value)
}

func regionForCode(countryCode string) string {
	code, err := strconv.Atoi(countryCode)
	if err != nil || code <= 0 {
		return ""
	}
	return phonenumbers.GetRegionCodeForCountryCode(code)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
