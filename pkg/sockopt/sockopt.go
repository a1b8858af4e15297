// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package sockopt applies TCP tuning options to forwarded connections.
//
// Options are best-effort hints. Apply attempts every option and reports the
// combined failure, leaving it to the caller to log it and carry on.
package sockopt

import (
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

// ErrUnsupported is returned for connections that do not expose TCP options.
var ErrUnsupported = errors.New("connection does not support TCP options")

// Options holds the socket options applied to both ends of a session.
type Options struct {
	// NoDelay sets TCP_NODELAY.
	NoDelay bool

	// KeepAlive is the keepalive probe interval. Zero disables keepalive.
	KeepAlive time.Duration
}

// FromSeconds builds Options from the keepalive interval in whole seconds.
// Intervals too large for a time.Duration saturate to the maximum duration.
func FromSeconds(nodelay bool, keepalive uint) Options {
	d := time.Duration(math.MaxInt64)
	if uint64(keepalive) <= uint64(math.MaxInt64/int64(time.Second)) {
		d = time.Duration(keepalive) * time.Second
	}
	return Options{
		NoDelay:   nodelay,
		KeepAlive: d,
	}
}

// Conn is the subset of *net.TCPConn used to tune a connection.
type Conn interface {
	SetKeepAlive(keepalive bool) error
	SetKeepAliveConfig(config net.KeepAliveConfig) error
	SetNoDelay(noDelay bool) error
}

var _ Conn = (*net.TCPConn)(nil)

// Apply sets keepalive and TCP_NODELAY on conn.
func Apply(conn net.Conn, opts Options) error {
	tc, ok := conn.(Conn)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupported, conn)
	}

	return errors.Join(setKeepAlive(tc, opts.KeepAlive), setNoDelay(tc, opts.NoDelay))
}

func setKeepAlive(c Conn, interval time.Duration) error {
	if interval <= 0 {
		if err := c.SetKeepAlive(false); err != nil {
			return fmt.Errorf("failed to disable keepalive: %w", err)
		}
		return nil
	}

	cfg := net.KeepAliveConfig{
		Enable:   true,
		Idle:     interval,
		Interval: interval,
		Count:    -1,
	}
	if err := c.SetKeepAliveConfig(cfg); err != nil {
		return fmt.Errorf("failed to set keepalive %s: %w", interval, err)
	}
	return nil
}

func setNoDelay(c Conn, noDelay bool) error {
	if err := c.SetNoDelay(noDelay); err != nil {
		return fmt.Errorf("failed to set nodelay=%t: %w", noDelay, err)
	}
	return nil
}
