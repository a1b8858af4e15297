// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// Direction indicates the direction of byte flow within a session.
type Direction int

const (
	// Upstream represents bytes flowing from client to destination.
	Upstream Direction = iota

	// Downstream represents bytes flowing from destination to client.
	Downstream
)

// String returns a string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// DefaultBufferSize is the copy buffer size used when none is configured.
const DefaultBufferSize = 32 * 1024

// ReadHalf is the readable capability of a connection.
// It cannot close the connection it was split from.
type ReadHalf struct {
	conn net.Conn
}

// Read implements io.Reader.
func (r ReadHalf) Read(p []byte) (int, error) {
	return r.conn.Read(p)
}

// WriteHalf is the writable capability of a connection.
// It cannot close the connection it was split from.
type WriteHalf struct {
	conn net.Conn
}

// Write implements io.Writer.
func (w WriteHalf) Write(p []byte) (int, error) {
	return w.conn.Write(p)
}

// Split divides conn into independently owned read and write halves.
// The caller keeps ownership of conn itself and is the only party that may close it.
func Split(conn net.Conn) (ReadHalf, WriteHalf) {
	return ReadHalf{conn: conn}, WriteHalf{conn: conn}
}

// Copier copies bytes between halves using pooled buffers.
type Copier struct {
	pool sync.Pool
}

// NewCopier creates a Copier whose buffers hold size bytes.
func NewCopier(size int) *Copier {
	if size <= 0 {
		size = DefaultBufferSize
	}
	c := &Copier{}
	c.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return c
}

// Copy copies from src to dst until src reports end of stream or an error occurs.
// It returns nil on clean end of stream. When written is non-nil it is
// advanced after every successful write, so a concurrent observer sees
// progress even if the copy is abandoned.
func (c *Copier) Copy(dst WriteHalf, src ReadHalf, written *atomic.Int64) error {
	bufPtr := c.pool.Get().(*[]byte)
	defer c.pool.Put(bufPtr)

	_, err := io.CopyBuffer(&countingWriter{w: dst, n: written}, onlyReader{src}, *bufPtr)
	return err
}

// onlyReader hides WriterTo so the pooled buffer is always the one used.
type onlyReader struct{ io.Reader }

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if cw.n != nil && n > 0 {
		cw.n.Add(int64(n))
	}
	return n, err
}
