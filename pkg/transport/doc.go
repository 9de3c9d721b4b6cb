// Package transport defines the connection interfaces used by the network
// driver and a few concrete implementations (tcp, quic, udp, mem, winpipe).
//
// Key concepts:
// - Transport: dials/listens for Sessions of a specific Kind
// - Session: one bidirectional connection carrying opaque frames
// - Manager: the table of live sessions, indexed by a connection number
package transport
