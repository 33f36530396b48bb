package config

import (
	"regexp"
	"strings"
)

var zipcodePattern = regexp.MustCompile(`^\d{5}$`)

// NormalizeZipcode trims surrounding whitespace from a zipcode.
func NormalizeZipcode(zipcode string) string {
	return strings.TrimSpace(zipcode)
}

// ValidZipcode reports whether zipcode is exactly five digits.
func ValidZipcode(zipcode string) bool {
	return zipcodePattern.MatchString(zipcode)
}

// TrackedZipcodesList returns the normalized, valid, de-duplicated zipcodes
// from the refresh configuration, preserving their order.
func (c RefreshConfig) TrackedZipcodesList() []string {
	seen := make(map[string]bool)
	zipcodes := make([]string, 0, len(c.TrackedZipcodes))
	for _, raw := range c.TrackedZipcodes {
		zipcode := NormalizeZipcode(raw)
		if !ValidZipcode(zipcode) || seen[zipcode] {
			continue
		}
		seen[zipcode] = true
		zipcodes = append(zipcodes, zipcode)
	}
	return zipcodes
}
