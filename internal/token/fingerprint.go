package token

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeviceInfo is what the delivery layer knows about the caller. The
// fingerprint derived from it distinguishes one logical device from
// another for the same user; it is deliberately stable across requests
// from the same browser and address.
type DeviceInfo struct {
	UserAgent string
	IP        string
}

func (d DeviceInfo) Fingerprint() string {
	sum := sha256.Sum256([]byte(d.UserAgent + "|" + d.IP))
	return hex.EncodeToString(sum[:])[:16]
}

func (d DeviceInfo) Browser() string {
	ua := strings.ToLower(d.UserAgent)
	switch {
	case strings.Contains(ua, "edg/"):
		return "Edge"
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari"):
		return "Safari"
	case ua == "":
		return "Unknown"
	default:
		return "Other"
	}
}

func (d DeviceInfo) OS() string {
	ua := strings.ToLower(d.UserAgent)
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "iOS"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}
