// Package bfd implements the core of a Bidirectional Forwarding Detection
// engine (RFC 5880, single-hop transport per RFC 5881). It has no
// dependency on sockets, configuration files, or process plumbing — those
// live in internal/netio, internal/config, and cmd/gobfd respectively.
//
// The package is organized around four pieces:
//
//   - packet.go: the 24-byte wire codec (encode/decode/validate).
//   - fsm.go: the pure Down/Init/Up/AdminDown transition table.
//   - session.go: per-session protocol state, derived intervals, and the
//     Poll/Final sequence.
//   - store.go and dispatcher.go: the session collection and the
//     single-threaded event loop that owns every session's timers.
//
// Authentication, Echo, Demand-mode origination, multipoint BFD, and
// multi-hop BFD are not implemented.
package bfd
