// Package bfd implements the core BFD protocol (RFC 5880): the wire codec,
// the finite state machine, session data model, discriminator allocation,
// and the single-threaded dispatcher that drives sessions through their
// timers. Authentication, Echo, Demand-mode origination, multipoint, and
// multi-hop are not implemented (see doc.go for scope).
package bfd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// -------------------------------------------------------------------------
// Protocol Constants — RFC 5880 Section 4.1
// -------------------------------------------------------------------------

// Version is the BFD protocol version (RFC 5880 Section 4.1).
// This document defines protocol version 1.
const Version uint8 = 1

// HeaderSize is the mandatory BFD Control packet header size in bytes
// (RFC 5880 Section 4.1: 6 x 32-bit words = 24 bytes). There is no
// authentication section in this build, so HeaderSize is also the only
// valid packet size.
const HeaderSize = 24

// MaxPacketSize is the buffer size handed out by PacketPool. It is padded
// slightly past HeaderSize so a stray oversized datagram still lands in a
// pooled buffer rather than forcing an allocation; anything beyond
// HeaderSize is never interpreted.
const MaxPacketSize = 32

// unknownFmt is the format string for unrecognized enum values with numeric code.
const unknownFmt = "Unknown(%d)"

// -------------------------------------------------------------------------
// Diagnostic Codes — RFC 5880 Section 4.1
// -------------------------------------------------------------------------

// Diag represents the BFD Diagnostic code (RFC 5880 Section 4.1).
// This is a 5-bit field (values 0-8 defined, 9-31 reserved).
type Diag uint8

const (
	// DiagNone indicates no diagnostic (RFC 5880 Section 4.1: value 0).
	DiagNone Diag = 0

	// DiagControlTimeExpired indicates the control detection time expired
	// (RFC 5880 Section 4.1: value 1).
	DiagControlTimeExpired Diag = 1

	// DiagEchoFailed indicates the echo function failed
	// (RFC 5880 Section 4.1: value 2). Unreachable in this build since the
	// echo function is never enabled, kept only so Diag.String covers the
	// full defined range.
	DiagEchoFailed Diag = 2

	// DiagNeighborDown indicates the neighbor signaled session down
	// (RFC 5880 Section 4.1: value 3).
	DiagNeighborDown Diag = 3

	// DiagForwardingPlaneReset indicates the forwarding plane was reset
	// (RFC 5880 Section 4.1: value 4).
	DiagForwardingPlaneReset Diag = 4

	// DiagPathDown indicates the path is down
	// (RFC 5880 Section 4.1: value 5).
	DiagPathDown Diag = 5

	// DiagConcatPathDown indicates a concatenated path is down
	// (RFC 5880 Section 4.1: value 6).
	DiagConcatPathDown Diag = 6

	// DiagAdminDown indicates the session is administratively down
	// (RFC 5880 Section 4.1: value 7).
	DiagAdminDown Diag = 7

	// DiagReverseConcatPathDown indicates a reverse concatenated path is down
	// (RFC 5880 Section 4.1: value 8).
	DiagReverseConcatPathDown Diag = 8
)

// diagNames maps diagnostic codes to human-readable strings.
var diagNames = [9]string{
	"None",
	"Control Detection Time Expired",
	"Echo Function Failed",
	"Neighbor Signaled Session Down",
	"Forwarding Plane Reset",
	"Path Down",
	"Concatenated Path Down",
	"Administratively Down",
	"Reverse Concatenated Path Down",
}

// String returns the human-readable name for the diagnostic code.
func (d Diag) String() string {
	if int(d) < len(diagNames) {
		return diagNames[d]
	}
	return fmt.Sprintf(unknownFmt, d)
}

// -------------------------------------------------------------------------
// Session State — RFC 5880 Section 4.1
// -------------------------------------------------------------------------

// State represents the BFD session state (RFC 5880 Section 4.1, Section 6.2).
// This is a 2-bit field in the wire format.
type State uint8

const (
	// StateAdminDown indicates the session is administratively down
	// (RFC 5880 Section 4.1: value 0).
	StateAdminDown State = 0

	// StateDown indicates the session is down or has just been created
	// (RFC 5880 Section 4.1: value 1).
	StateDown State = 1

	// StateInit indicates the remote session is down but local session is up
	// (RFC 5880 Section 4.1: value 2).
	StateInit State = 2

	// StateUp indicates the session is fully established
	// (RFC 5880 Section 4.1: value 3).
	StateUp State = 3
)

// stateNames maps state values to human-readable strings.
var stateNames = [4]string{
	"AdminDown",
	"Down",
	"Init",
	"Up",
}

// String returns the human-readable name for the session state.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf(unknownFmt, s)
}

// -------------------------------------------------------------------------
// ControlPacket — RFC 5880 Section 4.1
// -------------------------------------------------------------------------

// ControlPacket represents a decoded BFD Control packet (RFC 5880 Section 4.1).
// There is no Auth field: a packet with the A bit set fails validation before
// any attempt to locate an authentication section, since this build never
// supports authentication (see Non-goals).
//
// Field names match the RFC terminology. All interval fields are in
// MICROSECONDS as specified in the wire format. Callers convert to
// time.Duration at the boundary:
//
//	interval := time.Duration(pkt.DesiredMinTxInterval) * time.Microsecond
type ControlPacket struct {
	// Version is the protocol version (3 bits). MUST be 1.
	Version uint8

	// Diag is the diagnostic code (5 bits) indicating the reason for
	// the last session state change.
	Diag Diag

	// State is the current BFD session state (2 bits).
	State State

	// Poll indicates the transmitting system is requesting verification
	// of connectivity or a parameter change (P bit).
	Poll bool

	// Final indicates the transmitting system is responding to a received
	// Poll (F bit).
	Final bool

	// ControlPlaneIndependent indicates BFD does not share fate with the
	// control plane (C bit). Always false on transmit in this build.
	ControlPlaneIndependent bool

	// AuthPresent indicates the Authentication Section is present (A bit).
	// Any inbound packet with this set is dropped (see Non-goals); always
	// false on transmit.
	AuthPresent bool

	// Demand indicates Demand mode is active in the transmitting system
	// (D bit). Always false on transmit: we honor a remote Demand bit but
	// never originate it ourselves.
	Demand bool

	// Multipoint is reserved for point-to-multipoint extensions.
	// MUST be zero on both transmit and receipt (M bit).
	Multipoint bool

	// DetectMult is the detection time multiplier. The negotiated transmit
	// interval multiplied by this value provides the Detection Time for the
	// receiving system.
	DetectMult uint8

	// Length is the total packet length in bytes. Always 24 in this build.
	Length uint8

	// MyDiscriminator is a unique, nonzero discriminator value generated
	// by the transmitting system. Offset: bytes 4-7.
	MyDiscriminator uint32

	// YourDiscriminator reflects back the received My Discriminator from
	// the remote system, or zero if unknown. Offset: bytes 8-11.
	YourDiscriminator uint32

	// DesiredMinTxInterval is the minimum TX interval in MICROSECONDS.
	// Offset: bytes 12-15.
	DesiredMinTxInterval uint32

	// RequiredMinRxInterval is the minimum acceptable RX interval in
	// MICROSECONDS. Zero means "don't send me periodic packets."
	// Offset: bytes 16-19.
	RequiredMinRxInterval uint32

	// RequiredMinEchoRxInterval is always zero on transmit (Echo is a
	// Non-goal); on receipt it is decoded but never acted upon.
	// Offset: bytes 20-23.
	RequiredMinEchoRxInterval uint32
}

// -------------------------------------------------------------------------
// Codec Errors
// -------------------------------------------------------------------------

// Sentinel errors for packet validation failures, corresponding to the
// header validation steps of RFC 5880 Section 6.8.6, scoped to the fields
// this build actually supports (no authentication section).
var (
	ErrInvalidVersion        = errors.New("invalid BFD version")
	ErrPacketTooShort        = errors.New("packet too short")
	ErrInvalidLength         = errors.New("invalid length field")
	ErrLengthExceedsPayload  = errors.New("length exceeds payload")
	ErrZeroDetectMult        = errors.New("detect multiplier is zero")
	ErrMultipointSet         = errors.New("multipoint bit is set")
	ErrZeroMyDiscriminator   = errors.New("my discriminator is zero")
	ErrZeroYourDiscriminator = errors.New("your discriminator is zero in non-Down state")
	ErrAuthPresent           = errors.New("authentication bit set, authentication unsupported")
	ErrInvalidDiag           = errors.New("diagnostic code out of range")
	ErrPollAndFinal          = errors.New("poll and final bits both set")
	ErrBufTooSmall           = errors.New("buffer too small for BFD control packet")
)

// unmarshalErrPrefix is the common error prefix for packet decoding failures.
const unmarshalErrPrefix = "unmarshal control packet"

// -------------------------------------------------------------------------
// MarshalControlPacket — RFC 5880 Section 4.1
// -------------------------------------------------------------------------

// MarshalControlPacket serializes a ControlPacket into buf. The buffer MUST
// be at least HeaderSize bytes (24). Returns the number of bytes written
// (always HeaderSize), or an error if the buffer is too small.
//
// Zero-allocation: uses encoding/binary.BigEndian directly on the buffer.
// Caller owns the buffer, typically drawn from PacketPool.
//
// Wire format (RFC 5880 Section 4.1, auth section omitted per Non-goals):
//
//	Byte 0:    Version(3 bits) | Diag(5 bits)
//	Byte 1:    State(2 bits) | P | F | C | A | D | M
//	Byte 2:    Detect Mult
//	Byte 3:    Length
//	Bytes 4-7: My Discriminator (big-endian uint32)
//	Bytes 8-11: Your Discriminator (big-endian uint32)
//	Bytes 12-15: Desired Min TX Interval (big-endian uint32, microseconds)
//	Bytes 16-19: Required Min RX Interval (big-endian uint32, microseconds)
//	Bytes 20-23: Required Min Echo RX Interval (big-endian uint32, microseconds)
func MarshalControlPacket(pkt *ControlPacket, buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf("marshal control packet: need %d bytes, got %d: %w",
			HeaderSize, len(buf), ErrBufTooSmall)
	}

	// Byte 0: Version(3 bits high) | Diag(5 bits low).
	buf[0] = (pkt.Version << 5) | (uint8(pkt.Diag) & 0x1F)

	// Byte 1: State(2 bits) | P | F | C | A | D | M.
	flags := uint8(pkt.State) << 6
	if pkt.Poll {
		flags |= 1 << 5
	}
	if pkt.Final {
		flags |= 1 << 4
	}
	if pkt.ControlPlaneIndependent {
		flags |= 1 << 3
	}
	if pkt.AuthPresent {
		flags |= 1 << 2
	}
	if pkt.Demand {
		flags |= 1 << 1
	}
	if pkt.Multipoint {
		flags |= 1 << 0
	}
	buf[1] = flags

	buf[2] = pkt.DetectMult
	buf[3] = HeaderSize

	binary.BigEndian.PutUint32(buf[4:8], pkt.MyDiscriminator)
	binary.BigEndian.PutUint32(buf[8:12], pkt.YourDiscriminator)
	binary.BigEndian.PutUint32(buf[12:16], pkt.DesiredMinTxInterval)
	binary.BigEndian.PutUint32(buf[16:20], pkt.RequiredMinRxInterval)
	binary.BigEndian.PutUint32(buf[20:24], pkt.RequiredMinEchoRxInterval)

	return HeaderSize, nil
}

// -------------------------------------------------------------------------
// UnmarshalControlPacket — RFC 5880 Section 4.1, Section 6.8.6
// -------------------------------------------------------------------------

// UnmarshalControlPacket decodes a BFD Control packet from buf into pkt.
// The buffer must contain at least HeaderSize bytes.
//
// Zero-allocation: pkt is filled in-place.
//
// Validation performed, in order (reject on first failure):
//
//  1. len(buf) >= HeaderSize.
//  2. Version == 1.
//  3. Length == HeaderSize == len(buf) (the caller passes exactly the
//     received datagram, so an oversized Length field is caught here too).
//  4. DetectMult != 0.
//  5. Multipoint == 0.
//  6. AuthPresent == 0 (authentication unsupported, see Non-goals).
//  7. Diag is a defined code (0-8).
//  8. Poll and Final are not both set.
//  9. MyDiscriminator != 0.
//  10. YourDiscriminator != 0 unless State is Down or AdminDown.
func UnmarshalControlPacket(buf []byte, pkt *ControlPacket) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("%s: received %d bytes, minimum %d: %w",
			unmarshalErrPrefix, len(buf), HeaderSize, ErrPacketTooShort)
	}

	decodeHeader(buf, pkt)

	if err := validateHeader(buf, pkt); err != nil {
		return err
	}

	decodeBody(buf, pkt)

	return validateDiscriminators(pkt)
}

// decodeHeader extracts the fixed 4-byte header fields from buf into pkt.
func decodeHeader(buf []byte, pkt *ControlPacket) {
	pkt.Version = buf[0] >> 5
	pkt.Diag = Diag(buf[0] & 0x1F)

	flags := buf[1]
	pkt.State = State(flags >> 6)
	pkt.Poll = flags&(1<<5) != 0
	pkt.Final = flags&(1<<4) != 0
	pkt.ControlPlaneIndependent = flags&(1<<3) != 0
	pkt.AuthPresent = flags&(1<<2) != 0
	pkt.Demand = flags&(1<<1) != 0
	pkt.Multipoint = flags&(1<<0) != 0

	pkt.DetectMult = buf[2]
	pkt.Length = buf[3]
}

// validateHeader checks version, length, detect-mult, multipoint, auth, the
// diag range (RFC 5880 defines codes 0-8), and that Poll and Final are not
// both set.
func validateHeader(buf []byte, pkt *ControlPacket) error {
	if pkt.Version != Version {
		return fmt.Errorf("%s: version %d: %w",
			unmarshalErrPrefix, pkt.Version, ErrInvalidVersion)
	}

	if pkt.Length < HeaderSize {
		return fmt.Errorf("%s: length field %d below minimum %d: %w",
			unmarshalErrPrefix, pkt.Length, HeaderSize, ErrInvalidLength)
	}

	if int(pkt.Length) > len(buf) {
		return fmt.Errorf("%s: length field %d exceeds payload %d: %w",
			unmarshalErrPrefix, pkt.Length, len(buf), ErrLengthExceedsPayload)
	}

	if pkt.Length != HeaderSize || int(pkt.Length) != len(buf) {
		return fmt.Errorf("%s: length field %d, payload %d, want both %d: %w",
			unmarshalErrPrefix, pkt.Length, len(buf), HeaderSize, ErrInvalidLength)
	}

	if pkt.DetectMult == 0 {
		return fmt.Errorf("%s: %w", unmarshalErrPrefix, ErrZeroDetectMult)
	}

	if pkt.Multipoint {
		return fmt.Errorf("%s: %w", unmarshalErrPrefix, ErrMultipointSet)
	}

	if pkt.AuthPresent {
		return fmt.Errorf("%s: %w", unmarshalErrPrefix, ErrAuthPresent)
	}

	if pkt.Diag > DiagReverseConcatPathDown {
		return fmt.Errorf("%s: diag %d: %w", unmarshalErrPrefix, uint8(pkt.Diag), ErrInvalidDiag)
	}

	if pkt.Poll && pkt.Final {
		return fmt.Errorf("%s: %w", unmarshalErrPrefix, ErrPollAndFinal)
	}

	return nil
}

// decodeBody extracts the 20-byte body (discriminators + intervals) from buf.
func decodeBody(buf []byte, pkt *ControlPacket) {
	pkt.MyDiscriminator = binary.BigEndian.Uint32(buf[4:8])
	pkt.YourDiscriminator = binary.BigEndian.Uint32(buf[8:12])
	pkt.DesiredMinTxInterval = binary.BigEndian.Uint32(buf[12:16])
	pkt.RequiredMinRxInterval = binary.BigEndian.Uint32(buf[16:20])
	pkt.RequiredMinEchoRxInterval = binary.BigEndian.Uint32(buf[20:24])
}

// validateDiscriminators checks RFC 5880 Section 6.8.6 steps 6-7.
func validateDiscriminators(pkt *ControlPacket) error {
	if pkt.MyDiscriminator == 0 {
		return fmt.Errorf("%s: %w", unmarshalErrPrefix, ErrZeroMyDiscriminator)
	}

	if pkt.YourDiscriminator == 0 && pkt.State != StateDown && pkt.State != StateAdminDown {
		return fmt.Errorf("%s: state %s with zero your discriminator: %w",
			unmarshalErrPrefix, pkt.State, ErrZeroYourDiscriminator)
	}

	return nil
}

// -------------------------------------------------------------------------
// PacketPool — sync.Pool for zero-allocation I/O
// -------------------------------------------------------------------------

// PacketPool provides reusable buffers for BFD packet I/O. Callers Get() a
// *[]byte before receiving, and Put() it after processing.
//
// Pattern: pool stores *[]byte (pointer to slice) to avoid an interface
// allocation on Get()/Put().
var PacketPool = sync.Pool{
	New: func() any {
		buf := make([]byte, MaxPacketSize)
		return &buf
	},
}
