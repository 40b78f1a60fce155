package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/ridha-boughediri/mys3/pkg/engine"
)

// UDPIngestor takes one completion event per datagram.
type UDPIngestor struct {
	addr   string
	buffer *engine.RingBuffer
	log    *slog.Logger

	mu        sync.Mutex
	conn      *net.UDPConn
	ready     chan struct{}
	readyOnce sync.Once
}

func NewUDPIngestor(addr string, buffer *engine.RingBuffer, log *slog.Logger) *UDPIngestor {
	if log == nil {
		log = slog.Default()
	}
	return &UDPIngestor{
		addr:   addr,
		buffer: buffer,
		log:    log,
		ready:  make(chan struct{}),
	}
}

// Addr returns the bound address once Start is listening, or nil when Start
// failed to bind.
func (u *UDPIngestor) Addr() net.Addr {
	<-u.ready
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Start reads datagrams until ctx is done. Blocking call.
func (u *UDPIngestor) Start(ctx context.Context) error {
	defer u.readyOnce.Do(func() { close(u.ready) })

	addr, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	u.readyOnce.Do(func() { close(u.ready) })
	u.log.Info("udp ingestor listening", "addr", conn.LocalAddr().String())

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			u.log.Warn("udp read failed", "operation", "udp_read", "error", err)
			continue
		}

		payload := bytes.TrimSpace(buf[:n])
		if len(payload) == 0 {
			continue
		}
		// buf is reused on the next read
		frame := make([]byte, len(payload))
		copy(frame, payload)

		_ = u.buffer.Push(frame)
	}
}
