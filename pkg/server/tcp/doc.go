// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements a byte-transparent TCP port forwarder.
//
// # Overview
//
// The server listens on one address and forwards every accepted connection
// to one fixed destination. Bytes are relayed unchanged in both directions.
//
// # Architecture
//
//	┌─────────┐         ┌─────────┐         ┌─────────────┐
//	│ Client  │ ←─TCP─→ │  Server │ ←─TCP─→ │ Destination │
//	└─────────┘         └─────────┘         └─────────────┘
//	                         ↓
//	                    ┌─────────┐
//	                    │ Handler │
//	                    └─────────┘
//
// # Connection Flow
//
//  1. Server accepts a connection (after the admission gate, if configured)
//  2. Server applies socket options to it
//  3. Server dials the destination and applies socket options
//  4. Both connections are split into read and write halves
//  5. Server spawns two goroutines:
//     - Upstream: Client → Destination
//     - Downstream: Destination → Client
//  6. The first goroutine to return ends the session
//  7. Both connections closed, handler.OnDisconnect called
//
// # Completion
//
// A session is a race, not a join. As soon as one direction reaches end of
// stream or fails, both connections are closed and the other direction is
// abandoned. Its goroutine unblocks on the closed connection, reports into a
// buffered channel and exits. Bytes still in flight in the abandoned
// direction may be lost.
//
// The session result is the result of the first direction: nil for a clean
// end of stream, the I/O error otherwise. A failed dial ends the session
// with an error wrapping errors.ErrBackendUnavailable.
//
// # Socket Options
//
// Keepalive and TCP_NODELAY are applied to both connections via sockopt.
// Failures are logged at error level and ignored.
//
// # Concurrency Limit
//
// MaxSessions of zero (the default) places no bound on concurrent sessions.
// A positive value installs a weighted semaphore that is acquired before
// each Accept and released when the session ends, so the listener stops
// accepting while the ceiling is reached.
//
// # Stopping
//
// When the context passed to Listen is cancelled:
//
//  1. The listener is closed
//  2. Live sessions are closed immediately, without draining
//  3. Serve waits up to ShutdownTimeout for their goroutines
//  4. Returns ErrShutdownTimeout if that wait timed out, nil otherwise
//
// # Logging
//
//   - "connected": remote, session
//   - "disconnected": remote, session
//   - "disconnected with error": error, remote, session
//   - "failed to set socket options": session, side, error
//
// # Example
//
//	cfg := tcp.Config{
//		Address:       "127.0.0.1:9000",
//		TargetAddress: "127.0.0.1:9001",
//		SocketOptions: sockopt.FromSeconds(true, 30),
//	}
//
//	server := tcp.New(cfg, &handler.NoopHandler{})
//	if err := server.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package tcp
