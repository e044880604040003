package mcp

import "errors"

var (
	// ErrServiceUnreachable marks a transport, handshake or call failure against one service.
	ErrServiceUnreachable = errors.New("service unreachable")
	// ErrToolNotFound marks a tool absent from the catalog, or one that failed on every owning service.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolRejected marks a call the service answered with a JSON-RPC error,
	// such as invalid params.
	ErrToolRejected = errors.New("tool call rejected")
)
