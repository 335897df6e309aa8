package protocol

import (
	"net/netip"
	"regexp"
	"strings"
)

// addressPattern matches the discovery reply line, e.g. "TCP/IP Address = 10.0.0.5".
var addressPattern = regexp.MustCompile(`TCP/IP Address = ([\d.]+)`)

// pinStatesPattern matches the GET_PINS reply, e.g. "Pins States = 00100000".
var pinStatesPattern = regexp.MustCompile(`Pins States = (\d+)`)

// ParseAddress extracts the controller's IPv4 address from a GET_IP_ADDRESS
// reply. It returns false if the marker is missing or the value is not a
// valid dotted-quad IPv4 address.
func ParseAddress(body string) (string, bool) {
	match := addressPattern.FindStringSubmatch(body)
	if match == nil {
		return "", false
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(match[1]))
	if err != nil || !addr.Is4() {
		return "", false
	}
	return addr.String(), true
}

// ParsePinStates extracts the binary pin string from a GET_PINS reply.
// Character i (0-based) is '1' when pin i+1 is high.
func ParsePinStates(body string) (string, bool) {
	match := pinStatesPattern.FindStringSubmatch(body)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Status is a parsed GET_STATUS reply.
type Status struct {
	// Fields holds the general settings section (network, Wi-Fi, timers).
	Fields map[string]string `json:"fields"`

	// Thermostat holds the "ESP Thermostat State:" section.
	Thermostat map[string]string `json:"thermostat"`

	// Pins maps GPIO number (as reported, e.g. "4") to its state.
	Pins map[string]string `json:"pins"`
}

// Section headers in a GET_STATUS reply.
const (
	thermostatHeader = "ESP Thermostat State:"
	pinsHeader       = "ESP Pin States:"
)

type statusSection int

const (
	sectionMain statusSection = iota
	sectionThermostat
	sectionPins
)

// statusKeyNames renames reply keys that do not normalise cleanly.
var statusKeyNames = map[string]string{
	"TCP/IP Address": "ip_address",
	"TCP/IP Port":    "port",
	"WIFI SSID":      "wifi_ssid",
	"WIFI PASSWORD":  "wifi_password",
	"Ping Watchdog":  "ping_watchdog",
	"Pump/Valve":     "pump_valve",
	"EMA Filter":     "ema_filter",
	"TIMERON":        "timer_on",
	"TIMEROFF":       "timer_off",
}

// ParseStatus parses a GET_STATUS reply into its sections.
//
// The reply is a list of "Key = Value" lines, optionally split into sections
// by header lines. Separator lines starting with "----" and lines without '='
// are ignored. Temperature ("*C") and minute ("min") suffixes are stripped
// from values. In the pin section only "GPIOn" keys are kept.
func ParseStatus(body string) Status {
	status := Status{
		Fields:     make(map[string]string),
		Thermostat: make(map[string]string),
		Pins:       make(map[string]string),
	}

	section := sectionMain
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "----") {
			continue
		}

		switch {
		case strings.HasPrefix(line, thermostatHeader):
			section = sectionThermostat
			continue
		case strings.HasPrefix(line, pinsHeader):
			section = sectionPins
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name := normaliseKey(strings.TrimSpace(key))
		value = stripUnit(strings.TrimSpace(value))

		switch section {
		case sectionThermostat:
			status.Thermostat[name] = value
		case sectionPins:
			if pin, found := strings.CutPrefix(name, "gpio"); found {
				status.Pins[pin] = value
			}
		default:
			status.Fields[name] = value
		}
	}

	return status
}

func normaliseKey(key string) string {
	if name, ok := statusKeyNames[key]; ok {
		return name
	}
	name := strings.ToLower(key)
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, "/", "_")
}

func stripUnit(value string) string {
	if before, _, found := strings.Cut(value, "*C"); found {
		value = strings.TrimSpace(before)
	}
	if before, _, found := strings.Cut(value, "min"); found {
		value = strings.TrimSpace(before)
	}
	return value
}
