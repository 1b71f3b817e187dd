package models

import "strings"

// BuzzerMode is the actuator mode polled by the signaling device
type BuzzerMode string

const (
	BuzzerOff    BuzzerMode = "OFF"
	BuzzerWarn   BuzzerMode = "WARN"
	BuzzerDanger BuzzerMode = "DANGER"
)

// BuzzerModes lists every accepted mode
var BuzzerModes = []BuzzerMode{BuzzerOff, BuzzerWarn, BuzzerDanger}

// ParseBuzzerMode accepts a mode in any case; ok is false for unknown modes
func ParseBuzzerMode(s string) (BuzzerMode, bool) {
	mode := BuzzerMode(strings.ToUpper(strings.TrimSpace(s)))
	for _, m := range BuzzerModes {
		if m == mode {
			return mode, true
		}
	}
	return "", false
}
