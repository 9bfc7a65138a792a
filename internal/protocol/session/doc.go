// Package session runs the RSP responder loop over one transport.
//
// Ownership boundary:
// - buffering and packet extraction from the transport
// - checksum verification and ack/nack emission
// - command decode and backend dispatch
// - framing of backend replies
//
// A session has no state that crosses packet boundaries beyond its read
// buffer. Commands are handled one at a time, in arrival order.
package session
