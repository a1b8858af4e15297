// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHandler(t *testing.T) {
	handler := &NoopHandler{}
	ctx := context.Background()
	hctx := &Context{
		SessionID:     "test-session",
		RemoteAddr:    "127.0.0.1:1234",
		TargetAddress: "127.0.0.1:9001",
		StartedAt:     time.Now(),
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{
			name: "OnConnect",
			fn:   func() error { return handler.OnConnect(ctx, hctx) },
		},
		{
			name: "OnDisconnect",
			fn:   func() error { return handler.OnDisconnect(ctx, hctx, nil) },
		},
		{
			name: "OnDisconnectWithError",
			fn:   func() error { return handler.OnDisconnect(ctx, hctx, errors.New("reset")) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Errorf("%s() returned error: %v", tt.name, err)
			}
		})
	}
}

// MockHandler is a mock implementation for testing.
type MockHandler struct {
	OnConnectErr    error
	OnDisconnectErr error

	OnConnectCalled    bool
	OnDisconnectCalled bool
	LastErr            error
}

func (m *MockHandler) OnConnect(ctx context.Context, hctx *Context) error {
	m.OnConnectCalled = true
	return m.OnConnectErr
}

func (m *MockHandler) OnDisconnect(ctx context.Context, hctx *Context, err error) error {
	m.OnDisconnectCalled = true
	m.LastErr = err
	return m.OnDisconnectErr
}

func TestMockHandler(t *testing.T) {
	mock := &MockHandler{
		OnConnectErr: errors.New("hook error"),
	}

	ctx := context.Background()
	hctx := &Context{SessionID: "test"}

	if err := mock.OnConnect(ctx, hctx); err == nil {
		t.Error("Expected error from OnConnect")
	}
	if !mock.OnConnectCalled {
		t.Error("Expected OnConnectCalled to be true")
	}

	sessionErr := errors.New("broken pipe")
	if err := mock.OnDisconnect(ctx, hctx, sessionErr); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !mock.OnDisconnectCalled {
		t.Error("Expected OnDisconnectCalled to be true")
	}
	if !errors.Is(mock.LastErr, sessionErr) {
		t.Errorf("Expected session error to be passed through, got %v", mock.LastErr)
	}
}

func TestContext_Counters(t *testing.T) {
	hctx := &Context{}

	hctx.BytesUpstream.Add(4)
	hctx.BytesDownstream.Add(8)
	hctx.OptionErrors.Add(1)

	if got := hctx.BytesUpstream.Load(); got != 4 {
		t.Errorf("Expected 4 upstream bytes, got %d", got)
	}
	if got := hctx.BytesDownstream.Load(); got != 8 {
		t.Errorf("Expected 8 downstream bytes, got %d", got)
	}
	if got := hctx.OptionErrors.Load(); got != 1 {
		t.Errorf("Expected 1 option error, got %d", got)
	}
}
