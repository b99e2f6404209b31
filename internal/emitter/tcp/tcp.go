// Package tcp serves certificate update streams over a raw TCP socket: the
// client's first byte selects a projection, then every subsequent message
// is written newline-delimited.
package tcp

import (
	"bufio"
	"io"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/ctfanout/ctstream/internal/bus"
	"github.com/ctfanout/ctstream/internal/certrecord"
	"github.com/ctfanout/ctstream/internal/metrics"
)

var newline = []byte("\n")

const firstByteTimeout = 5 * time.Second

var connectionCount atomic.Int64

// Server accepts TCP connections and streams envelopes to each.
type Server struct {
	Hub *bus.Hub
}

// ListenAndServe binds addr and accepts connections until the listener
// fails or is closed. Each connection is handled on its own goroutine.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer listener.Close()

	log.Printf("tcp: server started on %s", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("tcp: accept failed: %v", err)
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	peer := conn.RemoteAddr().String()

	connectionCount.Add(1)
	publishConnectionCount()
	defer func() {
		connectionCount.Add(-1)
		publishConnectionCount()
	}()

	log.Printf("tcp: client connected peer=%s total=%d", peer, connectionCount.Load())
	defer log.Printf("tcp: client disconnected peer=%s total=%d", peer, connectionCount.Load())

	projection := readProjectionSelector(conn)

	sub := s.Hub.Subscribe()
	defer sub.Unsubscribe()

	writer := bufio.NewWriter(conn)

	// The client sends nothing after the selector byte; a read that ends
	// means the client closed the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		io.Copy(io.Discard, conn)
	}()

	for {
		var env *certrecord.Envelope
		select {
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			env = e
		case <-closed:
			return
		}

		if lagged := sub.Lagged(); lagged > 0 {
			log.Printf("tcp: client %s lagged, dropped %d messages", peer, lagged)
		}

		if _, err := writer.Write(env.Bytes(projection)); err != nil {
			return
		}
		if _, err := writer.Write(newline); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

// readProjectionSelector reads a single byte within firstByteTimeout and
// maps it to a projection: 'f'/'F' selects Full, 'd'/'D' selects Domains,
// anything else (including a timeout) falls back to Lite.
func readProjectionSelector(conn net.Conn) certrecord.Projection {
	conn.SetReadDeadline(time.Now().Add(firstByteTimeout))
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if err != nil || n != 1 {
		return certrecord.Lite
	}

	switch buf[0] {
	case 'f', 'F':
		return certrecord.Full
	case 'd', 'D':
		return certrecord.Domains
	default:
		return certrecord.Lite
	}
}

func publishConnectionCount() {
	metrics.SetActiveSubscribers("tcp", float64(connectionCount.Load()))
}
