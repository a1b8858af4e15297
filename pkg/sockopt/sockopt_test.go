// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package sockopt

import (
	"errors"
	"math"
	"net"
	"testing"
	"time"
)

type mockConn struct {
	net.Conn

	keepAlive    *bool
	keepAliveCfg *net.KeepAliveConfig
	noDelay      *bool
	keepAliveErr error
	noDelayErr   error
}

func (m *mockConn) SetKeepAlive(v bool) error {
	if m.keepAliveErr != nil {
		return m.keepAliveErr
	}
	m.keepAlive = &v
	return nil
}

func (m *mockConn) SetKeepAliveConfig(cfg net.KeepAliveConfig) error {
	if m.keepAliveErr != nil {
		return m.keepAliveErr
	}
	m.keepAliveCfg = &cfg
	return nil
}

func (m *mockConn) SetNoDelay(v bool) error {
	if m.noDelayErr != nil {
		return m.noDelayErr
	}
	m.noDelay = &v
	return nil
}

func TestFromSeconds(t *testing.T) {
	opts := FromSeconds(true, 30)
	if !opts.NoDelay {
		t.Error("expected NoDelay to be true")
	}
	if opts.KeepAlive != 30*time.Second {
		t.Errorf("expected KeepAlive 30s, got %v", opts.KeepAlive)
	}

	if FromSeconds(false, 0).KeepAlive != 0 {
		t.Error("expected zero keepalive")
	}

	if got := FromSeconds(false, 1<<34).KeepAlive; got != time.Duration(math.MaxInt64) {
		t.Errorf("expected oversized keepalive to saturate, got %v", got)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name         string
		opts         Options
		wantDisabled bool
		wantInterval time.Duration
		wantNoDelay  bool
	}{
		{
			name:         "keepalive disabled with nodelay",
			opts:         Options{NoDelay: true, KeepAlive: 0},
			wantDisabled: true,
			wantNoDelay:  true,
		},
		{
			name:         "keepalive enabled without nodelay",
			opts:         Options{NoDelay: false, KeepAlive: 30 * time.Second},
			wantInterval: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mockConn{}
			if err := Apply(conn, tt.opts); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantDisabled {
				if conn.keepAlive == nil || *conn.keepAlive {
					t.Error("expected keepalive to be disabled")
				}
				if conn.keepAliveCfg != nil {
					t.Error("expected keepalive config to be untouched")
				}
			} else {
				if conn.keepAliveCfg == nil {
					t.Fatal("expected keepalive config to be set")
				}
				if !conn.keepAliveCfg.Enable {
					t.Error("expected keepalive to be enabled")
				}
				if conn.keepAliveCfg.Idle != tt.wantInterval || conn.keepAliveCfg.Interval != tt.wantInterval {
					t.Errorf("expected idle and interval %v, got %v/%v",
						tt.wantInterval, conn.keepAliveCfg.Idle, conn.keepAliveCfg.Interval)
				}
			}

			if conn.noDelay == nil || *conn.noDelay != tt.wantNoDelay {
				t.Errorf("expected nodelay=%t", tt.wantNoDelay)
			}
		})
	}
}

func TestApply_ReportsEveryFailure(t *testing.T) {
	errKeepAlive := errors.New("keepalive failed")
	errNoDelay := errors.New("nodelay failed")

	conn := &mockConn{keepAliveErr: errKeepAlive, noDelayErr: errNoDelay}
	err := Apply(conn, Options{NoDelay: true, KeepAlive: time.Second})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errKeepAlive) {
		t.Error("expected keepalive failure to be reported")
	}
	if !errors.Is(err, errNoDelay) {
		t.Error("expected nodelay failure to be reported")
	}
}

func TestApply_NoDelayStillSetWhenKeepAliveFails(t *testing.T) {
	conn := &mockConn{keepAliveErr: errors.New("boom")}
	if err := Apply(conn, Options{NoDelay: true}); err == nil {
		t.Fatal("expected error")
	}
	if conn.noDelay == nil || !*conn.noDelay {
		t.Error("expected nodelay to be applied despite keepalive failure")
	}
}

func TestApply_Unsupported(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	err := Apply(a, Options{NoDelay: true})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
