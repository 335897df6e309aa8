// Package protocol describes the text-over-HTTP command protocol spoken by
// RoomGate room controllers.
//
// Every request is an HTTP GET to a single CGI endpoint on the controller:
//
//	http://<address>:<port>/sysctrl.cgi?CMD=<KIND>&<PARAM>=<value>...
//
// Replies are plain text. A controller signals that it accepted a command by
// including a fixed acknowledgement phrase for that command kind (for example
// "Password set OK" for SET_PASSWORD). Discovery uses the GET_IP_ADDRESS
// command, whose reply carries the controller's current address as
// "TCP/IP Address = 10.0.0.5".
//
// This package holds only the wire contract: URL building, the default
// acknowledgement table and reply parsers. It performs no I/O.
package protocol
