// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_Independent(t *testing.T) {
	// Separate registries must not collide on registration.
	a := New("")
	b := New("")

	a.ActiveSessions.Inc()
	if got := testutil.ToFloat64(b.ActiveSessions); got != 0 {
		t.Errorf("Expected independent gauges, got %v", got)
	}
	if got := testutil.ToFloat64(a.ActiveSessions); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}
}

func TestObserveSession(t *testing.T) {
	m := New("test")

	m.ObserveSession(time.Now().Add(-time.Second), 10, 20, nil)
	m.ObserveSession(time.Now(), 1, 2, errors.New("reset"))

	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful session, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed session, got %v", got)
	}
	if got := testutil.ToFloat64(m.BytesTotal.WithLabelValues("upstream")); got != 11 {
		t.Errorf("Expected 11 upstream bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.BytesTotal.WithLabelValues("downstream")); got != 22 {
		t.Errorf("Expected 22 downstream bytes, got %v", got)
	}
	if got := testutil.CollectAndCount(m.SessionDuration); got != 1 {
		t.Errorf("Expected duration histogram to be collected, got %d", got)
	}
}

func TestHandler(t *testing.T) {
	m := New("tpx")
	m.DialErrors.Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Failed to scrape: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "tpx_dial_errors_total 1") {
		t.Error("Expected dial error counter in scrape output")
	}
}
