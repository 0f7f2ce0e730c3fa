package internal

import (
	"context"

	"github.com/rs/zerolog"
)

type ctx string

var (
	ctxData ctx = "syncv3_client_data"
)

// logging metadata for a single sync cycle
type data struct {
	connID   string
	pos      string
	nextPos  string
	numLists int
	numRooms int
	txnID    string
}

// prepare a cycle context so it can contain sync cycle info
func RequestContext(ctx context.Context) context.Context {
	d := &data{
		numLists: -1,
		numRooms: -1,
	}
	return context.WithValue(ctx, ctxData, d)
}

// add the connection ID to this cycle context. Need to have called RequestContext first.
func SetRequestContextConnID(ctx context.Context, connID string) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	da := d.(*data)
	da.connID = connID
}

func SetRequestContextResponseInfo(ctx context.Context, pos, nextPos string, numLists, numRooms int, txnID string) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	da := d.(*data)
	da.pos = pos
	da.nextPos = nextPos
	da.numLists = numLists
	da.numRooms = numRooms
	da.txnID = txnID
}

func DecorateLogger(ctx context.Context, l *zerolog.Event) *zerolog.Event {
	d := ctx.Value(ctxData)
	if d == nil {
		return l
	}
	da := d.(*data)
	if da.connID != "" {
		l = l.Str("c", da.connID)
	}
	if da.pos != "" {
		l = l.Str("p", da.pos)
	}
	if da.nextPos != "" {
		l = l.Str("q", da.nextPos)
	}
	if da.txnID != "" {
		l = l.Str("t", da.txnID)
	}
	if da.numLists >= 0 {
		l = l.Int("l", da.numLists)
	}
	if da.numRooms >= 0 {
		l = l.Int("r", da.numRooms)
	}
	return l
}
