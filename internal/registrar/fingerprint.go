package registrar

import (
	"crypto/sha256"
	"encoding/hex"
)

// minFingerprintLength is the shortest fingerprint string accepted from a
// client.
const minFingerprintLength = 10

// HashFingerprint returns the hex-encoded SHA-256 of a fingerprint string.
func HashFingerprint(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}

// ValidateFingerprint checks the fingerprint format.
func ValidateFingerprint(fingerprint string) bool {
	return len(fingerprint) >= minFingerprintLength
}

// DeviceInfo is the normalized shape of client-supplied device metadata.
type DeviceInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
}

// NormalizeDeviceInfo extracts browser, OS and device type from the nested
// structure browsers report, defaulting each field to "Unknown".
func NormalizeDeviceInfo(raw map[string]any) DeviceInfo {
	info := DeviceInfo{Browser: "Unknown", OS: "Unknown", Device: "Unknown"}
	if raw == nil {
		return info
	}
	if name := nestedString(raw, "browser", "name"); name != "" {
		info.Browser = name
	}
	if name := nestedString(raw, "os", "name"); name != "" {
		info.OS = name
	}
	if typ := nestedString(raw, "device", "type"); typ != "" {
		info.Device = typ
	}
	return info
}

func nestedString(raw map[string]any, outer, inner string) string {
	obj, ok := raw[outer].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := obj[inner].(string)
	return s
}
