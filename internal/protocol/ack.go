package protocol

import "strings"

// Acknowledgements maps a command kind to the phrase a controller includes in
// its reply when it accepted the command. Kinds without an entry are treated
// as accepted on any successful HTTP response.
type Acknowledgements map[string]string

// DefaultAcknowledgements returns the phrases shipped controller firmware
// replies with. The returned map is a fresh copy.
func DefaultAcknowledgements() Acknowledgements {
	return Acknowledgements{
		CmdSetPassword: "Password set OK",
		CmdESPSetPin:   "PIN set HIGH",
		CmdESPResetPin: "PIN set LOW",
		CmdRestart:     "Restart in 3s",
		CmdSetTime:     "RTC Date & Time Set OK",
	}
}

// Merge returns a new table with overrides applied on top of a.
// An override with an empty phrase removes validation for that kind.
func (a Acknowledgements) Merge(overrides map[string]string) Acknowledgements {
	merged := make(Acknowledgements, len(a)+len(overrides))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range overrides {
		if v == "" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}

// Expected returns the acknowledgement phrase for kind, if one is defined.
func (a Acknowledgements) Expected(kind string) (string, bool) {
	phrase, ok := a[kind]
	return phrase, ok
}

// Accepted reports whether body acknowledges a command of the given kind.
func (a Acknowledgements) Accepted(kind, body string) bool {
	phrase, ok := a[kind]
	if !ok {
		return true
	}
	return strings.Contains(body, phrase)
}
