package foreman

import "strings"

// Verify is the server certificate verification mode.
type Verify struct {
	// Enabled turns server certificate verification on.
	Enabled bool
	// CABundle is an optional PEM bundle used instead of the system roots.
	CABundle string
}

// ParseVerify interprets a verification setting.
// Boolean spellings (1/0, true/false, yes/no, on/off, y/n, t/f) toggle
// verification; anything else is taken as a CA bundle path. Empty means
// verify with the system roots.
func ParseVerify(s string) Verify {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1", "true", "yes", "on", "y", "t":
		return Verify{Enabled: true}
	case "0", "false", "no", "off", "n", "f":
		return Verify{Enabled: false}
	default:
		return Verify{Enabled: true, CABundle: strings.TrimSpace(s)}
	}
}

// String renders the mode the way it would be configured.
func (v Verify) String() string {
	switch {
	case v.CABundle != "":
		return v.CABundle
	case v.Enabled:
		return "1"
	default:
		return "0"
	}
}
