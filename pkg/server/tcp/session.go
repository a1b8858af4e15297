// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	perrors "github.com/YushiOMOTE/tpx/pkg/errors"
	"github.com/YushiOMOTE/tpx/pkg/handler"
	"github.com/YushiOMOTE/tpx/pkg/sockopt"
	"github.com/YushiOMOTE/tpx/pkg/stream"
	"github.com/google/uuid"
)

// result is what one copy direction reports when it stops.
type result struct {
	dir stream.Direction
	err error
}

// serveConn runs one session and reports its outcome.
func (s *Server) serveConn(ctx context.Context, inbound net.Conn) {
	s.active.Add(1)
	defer s.active.Add(-1)

	hctx := &handler.Context{
		SessionID:     uuid.New().String(),
		RemoteAddr:    peerAddr(inbound),
		TargetAddress: s.config.TargetAddress,
		StartedAt:     time.Now(),
	}

	s.config.Logger.Info("connected",
		slog.String("remote", hctx.RemoteAddr),
		slog.String("session", hctx.SessionID))

	if err := s.handler.OnConnect(ctx, hctx); err != nil {
		s.config.Logger.Error("connect handler error",
			slog.String("session", hctx.SessionID),
			slog.String("error", err.Error()))
	}

	err := s.forward(ctx, inbound, hctx)
	if err != nil {
		s.config.Logger.Error("disconnected with error",
			slog.String("error", err.Error()),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("session", hctx.SessionID))
	} else {
		s.config.Logger.Info("disconnected",
			slog.String("remote", hctx.RemoteAddr),
			slog.String("session", hctx.SessionID))
	}

	if herr := s.handler.OnDisconnect(context.Background(), hctx, err); herr != nil {
		s.config.Logger.Error("disconnect handler error",
			slog.String("session", hctx.SessionID),
			slog.String("error", herr.Error()))
	}
}

// forward owns inbound for the lifetime of the session:
//  1. apply socket options to inbound
//  2. dial the destination
//  3. apply socket options to outbound
//  4. split both connections and copy in both directions
//  5. return as soon as either direction stops
//
// Both connections are closed on every return path. The direction that did
// not finish first is unblocked by the close and its result is dropped.
func (s *Server) forward(ctx context.Context, inbound net.Conn, hctx *handler.Context) error {
	defer inbound.Close()

	s.applyOptions(inbound, "inbound", hctx)

	outbound, err := s.dialer(ctx, "tcp", s.config.TargetAddress)
	if err != nil {
		err = perrors.Join(perrors.ErrBackendUnavailable, fmt.Errorf("failed to dial %s: %w", s.config.TargetAddress, err))
		return perrors.New("dial", hctx.SessionID, hctx.RemoteAddr, err)
	}
	defer outbound.Close()

	s.applyOptions(outbound, "outbound", hctx)

	s.config.Logger.Debug("session established",
		slog.String("session", hctx.SessionID),
		slog.String("client", hctx.RemoteAddr),
		slog.String("local", outbound.LocalAddr().String()),
		slog.String("target", s.config.TargetAddress))

	inRd, inWr := stream.Split(inbound)
	outRd, outWr := stream.Split(outbound)

	// Buffered so the abandoned direction can always report and exit.
	results := make(chan result, 2)

	// Upstream: client → destination
	go func() {
		err := s.copier.Copy(outWr, inRd, &hctx.BytesUpstream)
		results <- result{dir: stream.Upstream, err: err}
	}()

	// Downstream: destination → client
	go func() {
		err := s.copier.Copy(inWr, outRd, &hctx.BytesDownstream)
		results <- result{dir: stream.Downstream, err: err}
	}()

	select {
	case first := <-results:
		s.config.Logger.Debug("direction finished first",
			slog.String("session", hctx.SessionID),
			slog.String("direction", first.dir.String()))
		return perrors.New(first.dir.String(), hctx.SessionID, hctx.RemoteAddr, first.err)
	case <-ctx.Done():
		return perrors.New("session", hctx.SessionID, hctx.RemoteAddr,
			perrors.Join(perrors.ErrConnectionClosed, context.Cause(ctx)))
	}
}

// applyOptions sets socket options on conn. Failures are logged and never
// end the session.
func (s *Server) applyOptions(conn net.Conn, side string, hctx *handler.Context) {
	if err := sockopt.Apply(conn, s.config.SocketOptions); err != nil {
		hctx.OptionErrors.Add(1)
		s.config.Logger.Error("failed to set socket options",
			slog.String("session", hctx.SessionID),
			slog.String("side", side),
			slog.String("remote", hctx.RemoteAddr),
			slog.String("error", err.Error()))
	}
}
