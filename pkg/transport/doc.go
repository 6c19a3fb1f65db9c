// Package transport defines how a host reaches its build nodes and provides
// the implementations (unix sockets, Windows named pipes, tcp, quic and an
// in-process transport for tests).
//
// Key concepts:
// - Transport: dials/listens for connections of a specific Kind
// - Endpoint: kind://address string handed to a node on its command line
// - Listener: context-aware accept used by the node side
//
// Every connection is a plain net.Conn carrying the handshake followed by
// framed packets.
package transport
