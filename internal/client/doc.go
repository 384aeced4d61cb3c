// Package client is the Go counterpart to the daemon's RPC server: a
// thin wrapper around connect/send/receive that exposes one method per
// RPC call over a persistent connection, plus package-level convenience
// functions that fall back to an in-process search when no daemon socket
// is present.
package client
