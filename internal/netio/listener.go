package netio

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/dantte-lp/bfdd/internal/bfd"
)

// -------------------------------------------------------------------------
// ListenerConfig — BFD packet listener configuration
// -------------------------------------------------------------------------

// ListenerConfig holds configuration for the shared single-hop BFD packet
// listener (RFC 5881). One listener serves every configured session: BFD
// demultiplexes by discriminator/source address at the protocol layer, not
// by opening one socket per peer.
type ListenerConfig struct {
	// Addr is the local IP address to bind to.
	Addr netip.Addr

	// IfName is the network interface name for SO_BINDTODEVICE, required
	// for single-hop sessions (RFC 5881 Section 4).
	IfName string
}

// -------------------------------------------------------------------------
// Listener — High-level BFD packet receive loop
// -------------------------------------------------------------------------

// Listener wraps a PacketConn and provides a context-aware receive loop
// for BFD Control packets, feeding each one to a bfd.Dispatcher. It runs
// on its own goroutine: the blocking socket read happens here, but every
// byte it hands off is only ever touched by the dispatcher goroutine that
// receives it from Deliver.
type Listener struct {
	conn PacketConn
}

// NewListener creates a Listener from the given configuration. Returns an
// error if the underlying socket cannot be created.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	conn, err := NewSingleHopListener(context.Background(), cfg.Addr, cfg.IfName)
	if err != nil {
		return nil, fmt.Errorf("create single-hop listener: %w", err)
	}
	return &Listener{conn: conn}, nil
}

// NewListenerFromConn creates a Listener from an existing PacketConn. Used
// by tests to exercise Serve/Recv without CAP_NET_RAW.
func NewListenerFromConn(conn PacketConn) *Listener {
	return &Listener{conn: conn}
}

// Serve reads packets until ctx is cancelled, delivering each one (after a
// GTSM TTL check) to d. It is meant to run on its own goroutine, separate
// from d.Run: the dispatcher goroutine is the only one that ever mutates
// session state, but the actual blocking recvfrom() happens here.
func (l *Listener) Serve(ctx context.Context, d *bfd.Dispatcher) error {
	for {
		bufp, n, meta, err := l.recvOne()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("listener serve: %w", err)
		}

		if ValidateTTL(meta) != nil {
			bfd.PacketPool.Put(bufp)
			continue
		}

		d.Deliver(bfd.InboundPacket{
			Buf: (*bufp)[:n],
			Meta: bfd.PacketMeta{
				SrcAddr: meta.SrcAddr,
				TTL:     meta.TTL,
			},
			Release: func() { bfd.PacketPool.Put(bufp) },
		})
	}
}

// recvOne performs a single read from the underlying connection using a
// pooled buffer. Returns the pool's buffer pointer (callers must eventually
// Put it back), the byte count, and transport metadata.
func (l *Listener) recvOne() (bufp *[]byte, n int, meta PacketMeta, err error) {
	b, ok := bfd.PacketPool.Get().(*[]byte)
	if !ok {
		return nil, 0, PacketMeta{}, fmt.Errorf("listener recv: %w", ErrPoolType)
	}

	n, meta, err = l.conn.ReadPacket(*b)
	if err != nil {
		bfd.PacketPool.Put(b)
		return nil, 0, PacketMeta{}, fmt.Errorf("listener read: %w", err)
	}

	return b, n, meta, nil
}

// Close closes the underlying PacketConn.
func (l *Listener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}
