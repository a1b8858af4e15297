// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package stream provides the byte-copy primitives of a forwarding session.
//
// # Split Ownership
//
// A connection is handed to the two directions of a session as separate
// capabilities:
//
//	rd, wr := stream.Split(conn)
//
// ReadHalf only reads and WriteHalf only writes. Neither can close the
// connection, so the session that owns conn stays the single place where
// teardown happens and a copy goroutine never observes a half that was
// released behind its back.
//
// # Directions
//
//   - Upstream: client read half → destination write half
//   - Downstream: destination read half → client write half
//
// # Copying
//
// Copier.Copy runs until the source half reports end of stream (nil error)
// or an I/O error occurs (that error). Buffers come from a sync.Pool sized by
// NewCopier.
package stream
