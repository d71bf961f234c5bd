// Package protocol implements the line protocol spoken with the
// companion microcontroller over the serial link.
package protocol

// Every message is a single line of ASCII text terminated by '\n'.
// Surrounding whitespace (including '\r') is ignored and empty lines
// are dropped.
//
// Inbound (companion -> controller):
//
//	ping                          handshake and liveness probe
//	battery_level=<motor>,<compute>
//	picture_start                 the next line carries a base64 frame
//	mode_change:<toy|guard>       companion requests a mode change
//
// Outbound (controller -> companion):
//
//	pong                          reply to ping
//	mode_change:<toy|guard>       sent when the mode actually changes
//	READY                         optional, once both links are up
