package protocol

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint is the CGI path every controller serves commands on.
const Endpoint = "sysctrl.cgi"

// ParamCommand is the query parameter carrying the command kind.
const ParamCommand = "CMD"

// Command kinds used by the gateway itself. Collaborators may send any other
// kind; unknown kinds are passed through unvalidated.
const (
	CmdGetIPAddress = "GET_IP_ADDRESS"
	CmdGetStatus    = "GET_STATUS"
	CmdGetPins      = "GET_PINS"
	CmdSetPassword  = "SET_PASSWORD"
	CmdESPSetPin    = "ESP_SET_PIN"
	CmdESPResetPin  = "ESP_RESET_PIN"
	CmdRestart      = "RESTART"
	CmdSetTime      = "SET_TIME"
)

// Command is the set of query parameters sent to a controller.
// The command kind is stored under ParamCommand.
type Command map[string]string

// NewCommand returns a Command of the given kind with optional extra
// parameters supplied as key/value pairs.
//
// Example:
//
//	cmd := protocol.NewCommand(protocol.CmdESPSetPin, "PIN", "4")
func NewCommand(kind string, kv ...string) Command {
	cmd := Command{ParamCommand: kind}
	for i := 0; i+1 < len(kv); i += 2 {
		cmd[kv[i]] = kv[i+1]
	}
	return cmd
}

// Kind returns the command kind, or "" if none is set.
func (c Command) Kind() string {
	return c[ParamCommand]
}

// Clone returns an independent copy of the command.
func (c Command) Clone() Command {
	if c == nil {
		return nil
	}
	cpy := make(Command, len(c))
	for k, v := range c {
		cpy[k] = v
	}
	return cpy
}

// Query encodes the command as a URL query string. Keys are sorted so the
// result is stable.
func (c Command) Query() string {
	values := make(url.Values, len(c))
	for k, v := range c {
		values.Set(k, v)
	}
	return values.Encode()
}

// String implements fmt.Stringer for logging.
func (c Command) String() string {
	return c.Query()
}

// URL builds the full request URL for a command sent to host:port.
// host may be a hostname or an IP address.
func URL(host string, port int, cmd Command) string {
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + Endpoint,
		RawQuery: cmd.Query(),
	}
	return u.String()
}

// ValidatePort reports whether port is a usable TCP port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", port)
	}
	return nil
}

// ValidateHostname performs a light sanity check on a discovery hostname.
func ValidateHostname(hostname string) error {
	if strings.TrimSpace(hostname) == "" {
		return fmt.Errorf("hostname is empty")
	}
	if strings.ContainsAny(hostname, "/?#@ ") {
		return fmt.Errorf("hostname %q contains invalid characters", hostname)
	}
	return nil
}
