package gizmosql

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/flight"

	"github.com/flightbridge/flightbridge/pkg/core"
)

// batchStream lazily reads a query result endpoint by endpoint, record by
// record. It is finite and forward-only; reissuing the operation produces a
// fresh stream. The stream owns its connection until Close, which returns it
// to the pool (or closes it, when the stream died mid-flight).
type batchStream struct {
	ctx  context.Context
	c    *conn
	info *flight.FlightInfo

	// release returns the owning connection when the stream is closed. It is
	// nil for streams running inside a transaction scope, where the scope
	// owns the connection.
	release func(*conn)

	epIdx  int
	rdr    *flight.Reader
	cur    *core.Batch
	err    error
	closed bool
}

func newBatchStream(ctx context.Context, c *conn, info *flight.FlightInfo, release func(*conn)) *batchStream {
	return &batchStream{ctx: ctx, c: c, info: info, release: release}
}

// Next advances to the next batch, opening result endpoints as needed.
func (s *batchStream) Next() bool {
	if s.err != nil || s.closed {
		return false
	}

	for {
		if s.rdr == nil {
			if s.epIdx >= len(s.info.Endpoint) {
				return false
			}
			rdr, err := s.c.cl.DoGet(s.ctx, s.info.Endpoint[s.epIdx].Ticket)
			if err != nil {
				s.c.noteFailure(s.ctx, err)
				s.err = &core.ConnectionError{Endpoint: s.c.desc.URI(), Op: "read result stream", Err: err}
				return false
			}
			s.epIdx++
			s.rdr = rdr
		}

		if s.rdr.Next() {
			batch, err := recordToBatch(s.rdr.Record())
			if err != nil {
				s.err = err
				return false
			}
			s.cur = batch
			return true
		}

		if err := s.rdr.Err(); err != nil {
			s.c.noteFailure(s.ctx, err)
			s.err = &core.ConnectionError{Endpoint: s.c.desc.URI(), Op: "read result stream", Err: err}
			s.rdr.Release()
			s.rdr = nil
			return false
		}

		s.rdr.Release()
		s.rdr = nil
	}
}

// Batch returns the current batch.
func (s *batchStream) Batch() *core.Batch { return s.cur }

// Err returns the first error encountered while streaming.
func (s *batchStream) Err() error { return s.err }

// Close releases the reader and hands the connection back.
func (s *batchStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.rdr != nil {
		s.rdr.Release()
		s.rdr = nil
	}
	if s.ctx.Err() != nil {
		// The read was abandoned mid-flight; protocol state is unknown.
		s.c.broken = true
	}
	if s.release != nil {
		s.release(s.c)
	}
	return s.err
}
