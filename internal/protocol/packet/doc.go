// Package packet splits an RSP byte stream into frames.
//
// Wire forms:
// - '+' ack
// - '-' nack
// - '$' payload '#' hh, where hh is the checksum in hex
//
// Binary escaping and run-length encoding are not interpreted; the payload
// ends at the first '#'.
package packet
