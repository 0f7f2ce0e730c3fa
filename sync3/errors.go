package sync3

import "errors"

// ErrCodeUnknownPos is the errcode the proxy answers with when it has expired the connection.
const ErrCodeUnknownPos = "M_UNKNOWN_POS"

// ErrUnknownPos is returned by transports when the server no longer knows the pos it was sent.
// The session must start again without a pos.
var ErrUnknownPos = errors.New("sliding sync: unknown pos")
