// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"sync/atomic"
	"time"
)

// Context contains metadata about one forwarding session.
// It is passed to Handler methods and must not be copied after first use.
type Context struct {
	// SessionID is a unique identifier for this session
	SessionID string

	// RemoteAddr is the client's network address, or "<unknown>"
	RemoteAddr string

	// TargetAddress is the destination the session forwards to
	TargetAddress string

	// StartedAt is the time the inbound connection was accepted
	StartedAt time.Time

	// BytesUpstream counts bytes written from client to destination
	BytesUpstream atomic.Int64

	// BytesDownstream counts bytes written from destination to client
	BytesDownstream atomic.Int64

	// OptionErrors counts socket option failures on either connection
	OptionErrors atomic.Int32
}

// Handler defines notification callbacks for the session lifecycle.
//
// Callbacks are observers: the forwarder logs an error returned by a
// Handler and carries on, it never aborts or alters a session because of it.
type Handler interface {
	// OnConnect is called after a client connection is accepted and before
	// the destination is dialed.
	OnConnect(ctx context.Context, hctx *Context) error

	// OnDisconnect is called once both connections of the session are closed.
	// err is the session result: nil for a clean end of stream, otherwise
	// the dial or I/O error that ended the session.
	OnDisconnect(ctx context.Context, hctx *Context, err error) error
}

// NoopHandler is a Handler implementation that ignores all events.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context, err error) error {
	return nil
}
