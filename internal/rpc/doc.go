// Package rpc implements the daemon's local-socket transport: a length
// framed JSON-RPC 2.0 server over a Unix domain socket. Server owns the
// listener and accepted connections; Daemon wires the RPC method table to
// the engine, manager, and store.
//
// Wire format: a 4-byte big-endian length prefix followed by that many
// bytes of JSON-RPC 2.0 body. Each accepted connection is serviced
// sequentially (one request, one response, then the next); multiple
// connections proceed concurrently, bounded by a worker pool.
package rpc
