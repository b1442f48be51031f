package utils

import "regexp"

var (
	tabletPattern = regexp.MustCompile(`(?i)tablet|ipad`)
	mobilePattern = regexp.MustCompile(`(?i)mobile|android|iphone|ipad|ipod`)
)

const (
	DeviceTablet  = "tablet"
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
)

// DeviceType classifies a user agent. Tablets win over phones since iPad
// agents match both patterns.
func DeviceType(userAgent string) string {
	switch {
	case tabletPattern.MatchString(userAgent):
		return DeviceTablet
	case mobilePattern.MatchString(userAgent):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
