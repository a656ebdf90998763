package bfd

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"time"
)

// Sender abstracts transmission of a single already-encoded BFD Control
// packet to a neighbor. The dispatcher owns one Sender per session — the
// session's output socket, opened by the daemon at startup and reopened
// on reload. Implementations must set IP_TTL/IPV6_UNICAST_HOPS to 255
// (GTSM); the bfd package never touches sockets directly.
type Sender interface {
	Send(buf []byte, dst netip.Addr) error
	Close() error
}

// -------------------------------------------------------------------------
// Configuration — the fields an operator supplies per session.
// -------------------------------------------------------------------------

// Config holds the fields of a session that are immutable between reloads
// unless the reload's config text actually changes them.
type Config struct {
	// Name is the session's operator-chosen identity, truncated to 31 bytes
	// by the config loader before reaching this package.
	Name string

	// NeighborAddr is the peer's address. Required; a session with the zero
	// value is meaningless and must never be passed to NewSession.
	NeighborAddr netip.Addr

	// SourceAddr is the local address to bind the output socket to. The
	// zero value means "let the OS pick."
	SourceAddr netip.Addr

	// LocalMinRxInterval is local_min_rx_intv, 1-1000ms at the config
	// surface, stored here already converted to microsecond-resolution
	// time.Duration.
	LocalMinRxInterval time.Duration

	// LocalMinTxInterval is local_min_tx_intv.
	LocalMinTxInterval time.Duration

	// LocalIdleTxInterval is local_idle_tx_intv, 1000-10000ms at the
	// config surface; this is the slow rate used whenever the session is
	// not Up (RFC 5880 Section 6.8.3).
	LocalIdleTxInterval time.Duration

	// LocalDetectMult is local_detect_mult, 1-10.
	LocalDetectMult uint8

	// Disabled marks the session AdminDown at creation and keeps it there;
	// set by the config loader for malformed or duplicate instances.
	Disabled bool
}

// Sentinel errors for session construction.
var (
	ErrInvalidDetectMult    = errors.New("detect multiplier must be 1-10")
	ErrInvalidInterval      = errors.New("interval out of range")
	ErrInvalidDiscriminator = errors.New("local discriminator must be nonzero")
	ErrNoNeighborAddr       = errors.New("neighbor address is required")
)

const (
	minDetectMult = 1
	maxDetectMult = 10
)

// validate checks the invariants the config surface is supposed to have
// already enforced; NewSession re-checks because a Config can also arrive
// from a reconciled reload, not only from the text parser.
func (c Config) validate() error {
	if !c.NeighborAddr.IsValid() {
		return ErrNoNeighborAddr
	}
	if c.LocalDetectMult < minDetectMult || c.LocalDetectMult > maxDetectMult {
		return fmt.Errorf("detect mult %d: %w", c.LocalDetectMult, ErrInvalidDetectMult)
	}
	if c.LocalIdleTxInterval < time.Second {
		return fmt.Errorf("idle tx interval %s below 1s floor: %w", c.LocalIdleTxInterval, ErrInvalidInterval)
	}
	return nil
}

// -------------------------------------------------------------------------
// Session — protocol state and runtime handles.
// -------------------------------------------------------------------------

// timerKind enumerates the three timers a session owns.
type timerKind uint8

const (
	timerTransmit timerKind = iota
	timerExpire
	timerReset
	numTimerKinds
)

func (k timerKind) String() string {
	switch k {
	case timerTransmit:
		return "transmit"
	case timerExpire:
		return "expire"
	case timerReset:
		return "reset"
	default:
		return "unknown"
	}
}

// timerStatus is one of the three mutually-exclusive states invariant 7
// requires for every timer.
type timerStatus uint8

const (
	timerDiscarded timerStatus = iota
	timerScheduled
	timerSuspended
)

// timerSlot tracks one of the three timers. generation is bumped every time
// the timer is armed, cancelled or suspended, so a stale heap entry popped by the
// dispatcher can recognize itself as obsolete.
type timerSlot struct {
	status     timerStatus
	generation uint64
	deadline   time.Time     // valid only while status == timerScheduled
	sands      time.Duration // valid only while status == timerSuspended
}

// Session holds one peer's protocol state. All mutation happens on the
// dispatcher's single goroutine; Session itself holds no locks.
type Session struct {
	cfg Config

	localState  State
	remoteState State

	localDiscr  uint32
	remoteDiscr uint32

	localDiag  Diag
	remoteDiag Diag

	remoteMinTxIntv  time.Duration
	remoteMinRxIntv  time.Duration
	remoteDetectMult uint8
	remoteDemand     bool

	poll  bool
	final bool

	localTxIntv      time.Duration
	remoteTxIntv     time.Duration
	localDetectTime  time.Duration
	remoteDetectTime time.Duration

	lastSeen time.Time

	timers [numTimerKinds]timerSlot

	sender Sender

	// resetFired marks that the reset timer has already fired for the
	// current Down episode, so invariant 5 ("reset has not yet fired for
	// this Down episode") can be enforced without re-arming it forever.
	resetFired bool
}

// NewSession creates a session in its initial lifecycle state
// "Lifecycle"): Down (or AdminDown if cfg.Disabled), local_tx_intv set to
// the idle rate, and a freshly allocated local discriminator.
func NewSession(cfg Config, localDiscr uint32) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if localDiscr == 0 {
		return nil, ErrInvalidDiscriminator
	}

	s := &Session{
		cfg:         cfg,
		localState:  StateDown,
		remoteState: StateDown,
		localDiscr:  localDiscr,
		localTxIntv: cfg.LocalIdleTxInterval,
	}

	if cfg.Disabled {
		s.localState = StateAdminDown
		s.localDiag = DiagAdminDown
	}

	return s, nil
}

// Name returns the session's identity.
func (s *Session) Name() string { return s.cfg.Name }

// Config returns the session's immutable-between-reloads configuration.
func (s *Session) Config() Config { return s.cfg }

// LocalState returns the current local FSM state.
func (s *Session) LocalState() State { return s.localState }

// RemoteState returns the most recently observed remote FSM state.
func (s *Session) RemoteState() State { return s.remoteState }

// LocalDiscriminator returns local_discr.
func (s *Session) LocalDiscriminator() uint32 { return s.localDiscr }

// RemoteDiscriminator returns remote_discr.
func (s *Session) RemoteDiscriminator() uint32 { return s.remoteDiscr }

// LocalDiag returns the current local diagnostic code.
func (s *Session) LocalDiag() Diag { return s.localDiag }

// NeighborAddr returns the configured neighbor address.
func (s *Session) NeighborAddr() netip.Addr { return s.cfg.NeighborAddr }

// LocalTxInterval returns the current local_tx_intv (a derived value).
func (s *Session) LocalTxInterval() time.Duration { return s.localTxIntv }

// LocalDetectTime returns the current local_detect_time (derived).
func (s *Session) LocalDetectTime() time.Duration { return s.localDetectTime }

// RemoteDetectTime returns remote_detect_time, the detection timeout the
// remote peer is believed to apply to us: local_detect_mult * local_tx_intv.
func (s *Session) RemoteDetectTime() time.Duration { return s.remoteDetectTime }

// SetSender installs or replaces the session's output transport. Called at
// Start and after a reload re-opens output sockets.
func (s *Session) SetSender(sender Sender) { s.sender = sender }

// -------------------------------------------------------------------------
// Derived intervals
// -------------------------------------------------------------------------

// remoteTxIntvFrom computes remote_tx_intv = max(local_min_rx_intv,
// remote_min_tx_intv), the interval the remote side is believed to transmit
// at, which together with remote_detect_mult gives local_detect_time.
func (s *Session) remoteTxIntvFrom() time.Duration {
	return maxDuration(s.cfg.LocalMinRxInterval, s.remoteMinTxIntv)
}

// recomputeIntervals snapshots the old local_tx_intv, recomputes
// local_tx_intv/remote_tx_intv (conditionally) and local_detect_time;
// remote_detect_time is left to the caller. Returns whether local_tx_intv became smaller, which drives
// step 6 (reschedule the transmit timer sooner).
func (s *Session) recomputeIntervals(recompute bool) (txShrunk bool) {
	oldLocalTxIntv := s.localTxIntv

	if recompute {
		if s.localState == StateUp {
			s.localTxIntv = maxDuration(s.cfg.LocalMinTxInterval, s.remoteMinRxIntv)
		} else {
			s.localTxIntv = s.cfg.LocalIdleTxInterval
		}
		s.remoteTxIntv = s.remoteTxIntvFrom()
	}

	if s.remoteDetectMult > 0 {
		s.localDetectTime = time.Duration(s.remoteDetectMult) * s.remoteTxIntv
	}

	return s.localTxIntv < oldLocalTxIntv
}

// maxDuration returns the larger of a and b.
func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// -------------------------------------------------------------------------
// Jitter — RFC 5880 Section 6.8.7
// -------------------------------------------------------------------------

// ApplyJitter returns the jittered next transmit interval for the given
// base interval and detect multiplier, per RFC 5880 Section 6.8.7:
//
//	"the interval MUST be reduced by a random value of 0 to 25%... If
//	bfd.DetectMult is equal to 1, the interval between transmitted BFD
//	Control packets MUST be no more than 90%, and MUST be no less than 75%,
//	of the negotiated transmission interval."
//
// Randomness is sampled fresh per packet and does not need to be
// cryptographically secure, so math/rand/v2 is used rather than crypto/rand
// (contrast DiscriminatorAllocator, which does need crypto/rand).
func ApplyJitter(interval time.Duration, detectMult uint8) time.Duration {
	if interval <= 0 {
		return interval
	}

	if detectMult == 1 {
		// Reduce by 10-25%: keep 75-90% of the interval.
		//nolint:gosec // G404: jitter does not need cryptographic randomness.
		reductionPct := 10 + rand.IntN(16)
		return interval * time.Duration(100-reductionPct) / 100
	}

	// Reduce by 0-25%: keep 75-100% of the interval.
	//nolint:gosec // G404: jitter does not need cryptographic randomness.
	reductionPct := rand.IntN(26)
	return interval * time.Duration(100-reductionPct) / 100
}

// -------------------------------------------------------------------------
// Packet construction
// -------------------------------------------------------------------------

// buildControlPacket renders the session's current state into pkt, ready for
// MarshalControlPacket. This is the single call site that clears `final`
// (the reference implementation only clears bfd->final at the
// top of the sender).
func (s *Session) buildControlPacket(pkt *ControlPacket) {
	pkt.Version = Version
	pkt.Diag = s.localDiag
	pkt.State = s.localState
	pkt.Poll = s.poll
	pkt.Final = s.final
	pkt.ControlPlaneIndependent = false
	pkt.AuthPresent = false
	pkt.Demand = false // we never originate Demand mode (Non-goal).
	pkt.Multipoint = false
	pkt.DetectMult = s.cfg.LocalDetectMult
	pkt.MyDiscriminator = s.localDiscr
	pkt.YourDiscriminator = s.remoteDiscr
	pkt.DesiredMinTxInterval = uint32(s.cfg.LocalMinTxInterval.Microseconds())
	pkt.RequiredMinRxInterval = uint32(s.cfg.LocalMinRxInterval.Microseconds())
	pkt.RequiredMinEchoRxInterval = 0

	s.final = false
}

// setPoll requests a Poll sequence. This is a no-op while a Final is
// already pending (preserving the source's bfd_set_poll precedence: poll is
// refused while final is set).
func (s *Session) setPoll() {
	if s.final {
		return
	}
	s.poll = true
}
