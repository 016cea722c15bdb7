// Package transport implements the datagram TransportSink over UDP.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"arcrtc/internal/core/ports"
	"arcrtc/pkg/errors"
	"arcrtc/pkg/optimize"
)

// UDPSink sends and receives datagrams on one socket. Writes to the same
// remote endpoint are serialized through a small per-endpoint FIFO so
// datagram order is preserved.
type UDPSink struct {
	conn    *net.UDPConn
	handler ports.DatagramHandler
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	writers map[string]chan outgoing
	closed  bool

	writeQueue int
	done       chan struct{}
	wg         sync.WaitGroup
}

type outgoing struct {
	payload []byte
	result  chan error
}

// NewUDPSink binds the listen address and starts the read loop. Inbound
// datagrams are handed to handler; the buffer is pooled and only valid for
// the duration of the call.
func NewUDPSink(listenAddr string, writeQueue int, handler ports.DatagramHandler, log *zap.SugaredLogger) (*UDPSink, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "resolve listen address")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "bind udp socket")
	}
	if writeQueue <= 0 {
		writeQueue = 64
	}

	s := &UDPSink{
		conn:       conn,
		handler:    handler,
		logger:     log,
		writers:    make(map[string]chan outgoing),
		writeQueue: writeQueue,
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

// LocalAddr returns the bound socket address.
func (s *UDPSink) LocalAddr() string {
	return s.conn.LocalAddr().String()
}

// WriteTo queues one datagram for the endpoint and waits for the write
// result or context expiry.
func (s *UDPSink) WriteTo(ctx context.Context, b []byte, endpoint string) error {
	ch, err := s.writer(endpoint)
	if err != nil {
		return err
	}

	out := outgoing{payload: append([]byte(nil), b...), result: make(chan error, 1)}
	select {
	case ch <- out:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "write queue full")
	}

	select {
	case err := <-out.result:
		return err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "write deadline")
	}
}

// Close stops the read loop and all endpoint writers.
func (s *UDPSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, ch := range s.writers {
		close(ch)
	}
	s.mu.Unlock()

	close(s.done)
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *UDPSink) writer(endpoint string) (chan outgoing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New(errors.ErrCodeWriteFailed, "transport closed")
	}
	if ch, ok := s.writers[endpoint]; ok {
		return ch, nil
	}

	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWriteFailed, fmt.Sprintf("resolve %s", endpoint))
	}

	ch := make(chan outgoing, s.writeQueue)
	s.writers[endpoint] = ch
	s.wg.Add(1)
	go s.writeLoop(addr, ch)
	return ch, nil
}

func (s *UDPSink) writeLoop(addr *net.UDPAddr, ch chan outgoing) {
	defer s.wg.Done()
	for out := range ch {
		_, err := s.conn.WriteToUDP(out.payload, addr)
		if err != nil {
			err = errors.Wrap(err, errors.ErrCodeWriteFailed, "udp write")
		}
		out.result <- err
	}
}

func (s *UDPSink) readLoop() {
	defer s.wg.Done()
	for {
		buf := optimize.DatagramPool.Get()
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			optimize.DatagramPool.Put(buf)
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warnw("udp read failed", "error", err)
			continue
		}
		if s.handler != nil {
			s.handler(buf[:n], from.String())
		}
		optimize.DatagramPool.Put(buf)
	}
}
