// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"

	perrors "github.com/YushiOMOTE/tpx/pkg/errors"
	"github.com/YushiOMOTE/tpx/pkg/handler"
	"github.com/YushiOMOTE/tpx/pkg/metrics"
)

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	handler handler.Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ handler.Handler = (*InstrumentedHandler)(nil)

// OnConnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	h.metrics.ActiveSessions.Inc()

	err := h.handler.OnConnect(ctx, hctx)
	if err != nil {
		h.metrics.HookErrors.WithLabelValues("connect").Inc()
	}
	return err
}

// OnDisconnect implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context, sessionErr error) error {
	h.metrics.ActiveSessions.Dec()
	h.metrics.ObserveSession(hctx.StartedAt, hctx.BytesUpstream.Load(), hctx.BytesDownstream.Load(), sessionErr)

	if errors.Is(sessionErr, perrors.ErrBackendUnavailable) {
		h.metrics.DialErrors.Inc()
	}
	if n := hctx.OptionErrors.Load(); n > 0 {
		h.metrics.OptionErrors.Add(float64(n))
	}

	h.logger.Debug("session stats",
		slog.String("session", hctx.SessionID),
		slog.Int64("bytes_upstream", hctx.BytesUpstream.Load()),
		slog.Int64("bytes_downstream", hctx.BytesDownstream.Load()))

	err := h.handler.OnDisconnect(ctx, hctx, sessionErr)
	if err != nil {
		h.metrics.HookErrors.WithLabelValues("disconnect").Inc()
	}
	return err
}
