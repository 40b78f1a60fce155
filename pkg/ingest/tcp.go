package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/ridha-boughediri/mys3/pkg/engine"
)

// maxFrameSize bounds one newline-delimited event.
const maxFrameSize = 64 * 1024

// TCPIngestor accepts newline-delimited JSON completion events from external
// request libraries and pushes each line into the buffer.
type TCPIngestor struct {
	addr   string
	buffer *engine.RingBuffer
	log    *slog.Logger

	mu        sync.Mutex
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once
}

func NewTCPIngestor(addr string, buffer *engine.RingBuffer, log *slog.Logger) *TCPIngestor {
	if log == nil {
		log = slog.Default()
	}
	return &TCPIngestor{
		addr:   addr,
		buffer: buffer,
		log:    log,
		ready:  make(chan struct{}),
	}
}

// Addr returns the bound address once Start is listening, or nil when Start
// failed to bind.
func (t *TCPIngestor) Addr() net.Addr {
	<-t.ready
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Start listens until ctx is done. Blocking call.
func (t *TCPIngestor) Start(ctx context.Context) error {
	defer t.readyOnce.Do(func() { close(t.ready) })

	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()
	t.readyOnce.Do(func() { close(t.ready) })
	t.log.Info("tcp ingestor listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			t.log.Warn("accept failed", "operation", "tcp_accept", "error", err)
			continue
		}
		go t.handleConnection(ctx, conn)
	}
}

func (t *TCPIngestor) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// scanner reuses its buffer
		frame := make([]byte, len(line))
		copy(frame, line)

		// tail drop when full; logging each drop would flood
		_ = t.buffer.Push(frame)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		t.log.Warn("read failed", "operation", "tcp_read", "remote", conn.RemoteAddr().String(), "error", err)
	}
}
