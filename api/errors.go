// Package api is the vocabulary exchanged with the host application: room creation parameters,
// media sources, notifications and observer adapters. Every error handed to the host is a
// *ClientError.
package api

import "github.com/matrix-org/sliding-sync-client/internal"

// ClientError is the only error type the host sees. It carries a message and nothing else.
type ClientError = internal.ClientError

// ToClientError collapses any engine error into a *ClientError. Returns nil if err is nil, so
// check err before assigning the result to an error interface.
func ToClientError(err error) *ClientError {
	return internal.Collapse(err)
}
