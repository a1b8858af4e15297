// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides lifecycle hooks for forwarding sessions.
//
// # Handler Methods
//
//   - OnConnect: a client connection was accepted
//   - OnDisconnect: the session ended, with its result
//
// # Context
//
// The Context struct carries session metadata across handler calls:
//   - SessionID: Unique identifier for this session
//   - RemoteAddr: Client's network address
//   - TargetAddress: Destination address
//   - StartedAt: Accept time
//   - BytesUpstream, BytesDownstream: Relayed byte counts
//   - OptionErrors: Socket option failures
//
// The byte counters are advanced by the copy goroutines while the session
// runs, so OnDisconnect sees the totals of both directions up to teardown.
//
// # Example
//
//	type AuditHandler struct {
//		log *slog.Logger
//	}
//
//	func (h *AuditHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
//		return nil
//	}
//
//	func (h *AuditHandler) OnDisconnect(ctx context.Context, hctx *handler.Context, err error) error {
//		h.log.Info("session",
//			slog.String("id", hctx.SessionID),
//			slog.Int64("up", hctx.BytesUpstream.Load()),
//			slog.Int64("down", hctx.BytesDownstream.Load()))
//		return nil
//	}
package handler
