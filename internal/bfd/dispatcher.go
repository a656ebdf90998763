package bfd

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"
)

// -------------------------------------------------------------------------
// Metrics and event sink seams
// -------------------------------------------------------------------------

// Metrics is the subset of counters the dispatcher reports on. Defined here
// rather than imported from internal/metrics so this package stays free of
// any dependency on Prometheus; internal/metrics.Collector satisfies it.
type Metrics interface {
	RegisterSession(name string)
	UnregisterSession(name string)
	IncPacketsSent(name string)
	IncPacketsReceived(name string)
	IncPacketsDropped(name string, reason string)
	RecordStateTransition(name string, from, to State)
}

type noopMetrics struct{}

func (noopMetrics) RegisterSession(string)                 {}
func (noopMetrics) UnregisterSession(string)                {}
func (noopMetrics) IncPacketsSent(string)                   {}
func (noopMetrics) IncPacketsReceived(string)                {}
func (noopMetrics) IncPacketsDropped(string, string)         {}
func (noopMetrics) RecordStateTransition(string, State, State) {}

// StateChangeEvent is one record of the byte-oriented event pipe: a
// session's name, its neighbor, the transition it just made, the local
// diagnostic explaining it, and the time the dispatcher applied it.
type StateChangeEvent struct {
	Name         string
	NeighborAddr netip.Addr
	OldState     State
	NewState     State
	Diag         Diag
	Time         time.Time
}

// EventSink receives state-change notifications. Emit must not block the
// dispatcher goroutine; implementations that front a real transport (a
// pipe, a unix socket) do so with a buffered, best-effort write and log a
// drop rather than stall ("best-effort ... log at debug and
// continue").
type EventSink interface {
	Emit(StateChangeEvent)
}

// discardSink is the default sink when none is configured: it drops every
// event. A daemon that cares about notifications always supplies a real
// EventSink (see internal/eventsink), but the dispatcher itself must not
// require one to function.
type discardSink struct{}

func (discardSink) Emit(StateChangeEvent) {}

// -------------------------------------------------------------------------
// Inbound packet plumbing
// -------------------------------------------------------------------------

// PacketMeta carries the transport metadata the dispatcher needs to
// validate and demultiplex an inbound datagram. This is a bfd-local type,
// distinct from internal/netio's richer PacketMeta, so this package never
// imports internal/netio (the core stays free of sockets, per doc.go).
type PacketMeta struct {
	// SrcAddr is the datagram's source address, used for demux-by-neighbor
	// when the incoming Your Discriminator is zero.
	SrcAddr netip.Addr

	// TTL is the observed IP TTL / IPv6 Hop Limit. Zero means "not
	// observed by the transport" (a real packet can never carry TTL 0
	// and still arrive), in which case the GTSM check is skipped rather
	// than failed closed.
	TTL uint8
}

// gtsmRequiredTTL is the TTL/Hop Limit every single-hop BFD packet must
// carry (RFC 5881 Section 5, the Generalized TTL Security Mechanism).
// Multi-hop's relaxed 254-minimum floor does not apply: multi-hop BFD is a
// Non-goal, so this build enforces the strict single-hop value only.
const gtsmRequiredTTL = 255

// InboundPacket is one datagram handed from the (separate-goroutine)
// receive loop to the dispatcher. The dispatcher is the only goroutine
// that ever reads Buf's contents or touches session state; Buf must not be
// reused by the sender after Deliver returns. Release, if non-nil, is
// called once the dispatcher is done reading Buf (e.g. to return a pooled
// buffer) — it must not be called by the sender itself, since the
// dispatcher processes packets asynchronously off of its own goroutine.
type InboundPacket struct {
	Buf     []byte
	Meta    PacketMeta
	Release func()
}

// -------------------------------------------------------------------------
// Timer heap
// -------------------------------------------------------------------------

// heapEntry is one pending wakeup. generation is copied from the session's
// timerSlot at arm time; a popped entry whose generation no longer matches
// the slot's current generation is stale (the timer was cancelled,
// suspended, or re-armed since) and is discarded without firing anything.
type heapEntry struct {
	deadline   time.Time
	session    *Session
	kind       timerKind
	generation uint64
	index      int // maintained by container/heap
}

type timerHeap []*heapEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*heapEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// -------------------------------------------------------------------------
// command — crossing from other goroutines (admin HTTP, signal handling)
// into the single dispatcher goroutine ("a single dispatcher goroutine
// owns all session state")
// -------------------------------------------------------------------------

type command struct {
	fn   func()
	done chan struct{}
}

// -------------------------------------------------------------------------
// Dispatcher
// -------------------------------------------------------------------------

// Dispatcher is the single-threaded event loop. Exactly one goroutine
// ever executes Run; every Session and Store mutation happens there. All
// other goroutines (the UDP receive loop, the admin HTTP server, signal
// handling) interact with the dispatcher only by sending to inboundCh or
// posting a command through Do.
type Dispatcher struct {
	store  *Store
	sink   EventSink
	metric Metrics
	logger *slog.Logger
	clock  func() time.Time

	inboundCh chan InboundPacket
	cmdCh     chan command

	heap  timerHeap
	timer *time.Timer
}

// NewDispatcher constructs a Dispatcher over store. sink and metric may be
// nil, in which case events are discarded and metrics are no-ops — useful
// for tests that only care about protocol behavior.
func NewDispatcher(store *Store, sink EventSink, metric Metrics, logger *slog.Logger) *Dispatcher {
	if sink == nil {
		sink = discardSink{}
	}
	if metric == nil {
		metric = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := time.NewTimer(time.Hour)
	t.Stop()

	return &Dispatcher{
		store:     store,
		sink:      sink,
		metric:    metric,
		logger:    logger,
		clock:     time.Now,
		inboundCh: make(chan InboundPacket, 64),
		cmdCh:     make(chan command, 16),
		timer:     t,
	}
}

// Deliver hands one received, still-unparsed datagram to the dispatcher.
// Called from the netio receive goroutine; blocks if the dispatcher is
// behind, which is the intended backpressure.
func (d *Dispatcher) Deliver(pkt InboundPacket) {
	d.inboundCh <- pkt
}

// Do runs fn on the dispatcher goroutine and waits for it to complete. Used
// by the admin surface (list sessions, trigger reload) to reach into
// dispatcher-owned state safely.
func (d *Dispatcher) Do(fn func()) {
	done := make(chan struct{})
	d.cmdCh <- command{fn: fn, done: done}
	<-done
}

func (d *Dispatcher) now() time.Time { return d.clock() }

// -------------------------------------------------------------------------
// Run — the event loop itself
// -------------------------------------------------------------------------

// Run blocks, processing inbound packets, commands, and timer expirations
// until ctx is cancelled. It is the sole goroutine permitted to mutate
// Session or Store state.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.resyncTimer()

	for {
		select {
		case <-ctx.Done():
			d.timer.Stop()
			return ctx.Err()

		case pkt := <-d.inboundCh:
			d.handleInboundPacket(pkt)

		case cmd := <-d.cmdCh:
			cmd.fn()
			close(cmd.done)

		case now := <-d.timer.C:
			d.fireTick(now)
			d.resyncTimer()
		}
	}
}

// -------------------------------------------------------------------------
// Timer arm / cancel / suspend / resume — the generation-counter mechanism
// -------------------------------------------------------------------------

// arm schedules kind to fire after delay, bumping the slot's generation so
// any previously-scheduled heap entry for this (session, kind) becomes
// stale.
func (d *Dispatcher) arm(sess *Session, kind timerKind, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	slot := &sess.timers[kind]
	slot.generation++
	slot.status = timerScheduled
	slot.deadline = d.now().Add(delay)

	heap.Push(&d.heap, &heapEntry{
		deadline:   slot.deadline,
		session:    sess,
		kind:       kind,
		generation: slot.generation,
	})
	d.resyncTimer()
}

// cancelTimer discards kind without saving remaining time ("owning
// handles whose destruction cancels").
func (d *Dispatcher) cancelTimer(sess *Session, kind timerKind) {
	slot := &sess.timers[kind]
	if slot.status == timerScheduled {
		slot.generation++
	}
	slot.status = timerDiscarded
}

// suspendTimer captures the remaining time into the slot's sands field and
// cancels the live heap entry, for reload.
func (d *Dispatcher) suspendTimer(sess *Session, kind timerKind) {
	slot := &sess.timers[kind]
	if slot.status != timerScheduled {
		return
	}
	slot.sands = slot.deadline.Sub(d.now())
	slot.generation++
	slot.status = timerSuspended
}

// resumeTimer re-arms a suspended timer from its saved sands value. A
// negative sands value (the deadline had already passed while suspended)
// fires on the very next tick.
func (d *Dispatcher) resumeTimer(sess *Session, kind timerKind) {
	slot := &sess.timers[kind]
	if slot.status != timerSuspended {
		return
	}
	d.arm(sess, kind, slot.sands)
}

// resyncTimer resets the single reused *time.Timer to the heap's earliest
// deadline, or stops it when the heap is empty.
func (d *Dispatcher) resyncTimer() {
	if !d.timer.Stop() {
		select {
		case <-d.timer.C:
		default:
		}
	}
	if d.heap.Len() == 0 {
		return
	}
	delay := d.heap[0].deadline.Sub(d.now())
	if delay < 0 {
		delay = 0
	}
	d.timer.Reset(delay)
}

// fireTick pops and processes every heap entry due at or before now,
// discarding stale entries along the way.
func (d *Dispatcher) fireTick(now time.Time) {
	for d.heap.Len() > 0 {
		top := d.heap[0]
		if top.deadline.After(now) {
			return
		}
		heap.Pop(&d.heap)

		slot := &top.session.timers[top.kind]
		if slot.status != timerScheduled || slot.generation != top.generation {
			continue // stale: cancelled, suspended, or re-armed since.
		}
		slot.status = timerDiscarded

		switch top.kind {
		case timerTransmit:
			d.handleTransmitFire(top.session)
		case timerExpire:
			d.handleExpireFire(top.session)
		case timerReset:
			d.handleResetFire(top.session)
		}
	}
}

// -------------------------------------------------------------------------
// Inbound packet processing: validation, demux, FSM
// -------------------------------------------------------------------------

func (d *Dispatcher) handleInboundPacket(in InboundPacket) {
	if in.Release != nil {
		defer in.Release()
	}

	if in.Meta.TTL != 0 && in.Meta.TTL != gtsmRequiredTTL {
		d.logger.Debug("dropping packet failing GTSM check", slog.Int("ttl", int(in.Meta.TTL)))
		d.metric.IncPacketsDropped("", "ttl")
		return
	}

	var pkt ControlPacket
	if err := UnmarshalControlPacket(in.Buf, &pkt); err != nil {
		d.logger.Debug("dropping malformed packet", slog.String("error", err.Error()))
		d.metric.IncPacketsDropped("", "malformed")
		return
	}

	sess, ok := d.store.Demux(pkt.YourDiscriminator, in.Meta.SrcAddr)
	if !ok {
		d.logger.Debug("dropping packet matching no session",
			slog.Uint64("your_discriminator", uint64(pkt.YourDiscriminator)),
			slog.String("src", in.Meta.SrcAddr.String()))
		d.metric.IncPacketsDropped("", "no_session")
		return
	}

	if sess.localState == StateAdminDown {
		// RFC 5880 Section 6.8.6: "If bfd.SessionState is AdminDown, discard
		// the packet" — silently: it is counted neither as received nor
		// as dropped.
		return
	}

	d.metric.IncPacketsReceived(sess.Name())
	d.handleIncoming(sess, &pkt)
}

// handleIncoming runs the full packet-reception sequence against an already-validated,
// already-demultiplexed packet.
func (d *Dispatcher) handleIncoming(sess *Session, pkt *ControlPacket) {
	// Step 1: copy remote fields.
	sess.remoteState = pkt.State
	sess.remoteDiag = pkt.Diag
	sess.remoteDiscr = pkt.MyDiscriminator
	sess.remoteMinTxIntv = time.Duration(pkt.DesiredMinTxInterval) * time.Microsecond
	sess.remoteMinRxIntv = time.Duration(pkt.RequiredMinRxInterval) * time.Microsecond
	sess.remoteDemand = pkt.Demand
	sess.remoteDetectMult = pkt.DetectMult

	// Step 2: an inbound Final clears our own outstanding Poll.
	if pkt.Final {
		sess.poll = false
	}

	// Steps 3-5: recompute derived intervals whenever not yet Up, or the
	// packet carries Poll or Final (a parameter renegotiation in flight).
	recompute := sess.localState != StateUp || pkt.Poll || pkt.Final
	txShrunk := sess.recomputeIntervals(recompute)
	sess.remoteDetectTime = time.Duration(sess.cfg.LocalDetectMult) * sess.localTxIntv

	// Step 6: local_tx_intv shrank — reschedule the transmit timer sooner
	// instead of waiting out the old, larger interval.
	if txShrunk {
		d.rescheduleTransmitSooner(sess)
	}

	// Step 7: drive the FSM from the received state and apply the result.
	event := RecvStateToEvent(pkt.State)
	result := ApplyEvent(sess.localState, event)
	d.applyFSMResult(sess, result)

	// Step 8: demand mode, honored only when both sides agree Up.
	if sess.remoteDemand && sess.localState == StateUp && sess.remoteState == StateUp {
		d.cancelTimer(sess, timerTransmit)
	} else {
		d.ensureTransmitScheduled(sess)
	}

	// Step 9: an inbound Poll gets an immediate, out-of-band Final reply —
	// the only one-shot dispatch outside the periodic cadence.
	if pkt.Poll {
		sess.final = true
		if err := d.transmitOnce(sess); err != nil {
			d.onSendFailure(sess, err)
		}
	}

	// Step 10: a valid packet always rearms (or leaves alone, if not
	// applicable) the expiry clock.
	sess.lastSeen = d.now()
	d.rearmExpire(sess)
}

// rescheduleTransmitSooner cancels and re-arms the transmit timer with the
// freshly-recomputed (smaller) local_tx_intv, jittered as usual. A no-op if
// the transmit timer is not currently scheduled (AdminDown, or demand mode
// suppressing it).
func (d *Dispatcher) rescheduleTransmitSooner(sess *Session) {
	if sess.timers[timerTransmit].status != timerScheduled {
		return
	}
	d.cancelTimer(sess, timerTransmit)
	d.arm(sess, timerTransmit, ApplyJitter(sess.localTxIntv, sess.cfg.LocalDetectMult))
}

// ensureTransmitScheduled arms the transmit timer if it is not already
// running and the session is enabled.
func (d *Dispatcher) ensureTransmitScheduled(sess *Session) {
	if sess.localState == StateAdminDown {
		return
	}
	if sess.timers[timerTransmit].status == timerScheduled {
		return
	}
	d.arm(sess, timerTransmit, ApplyJitter(sess.localTxIntv, sess.cfg.LocalDetectMult))
}

// -------------------------------------------------------------------------
// FSM result application — diagnostics, entry actions, notification
// -------------------------------------------------------------------------

// applyFSMResult executes the side effects of an FSM transition: setting
// the local diagnostic, running the state's entry actions, recording the
// transition for metrics, and emitting exactly one event per changed
// transition ("On every state entry ... push a record"). A self-loop
// or ignored event (Changed == false) has no side effects at all.
func (d *Dispatcher) applyFSMResult(sess *Session, result FSMResult) {
	if !result.Changed {
		return
	}

	oldState := sess.localState
	sess.localState = result.NewState

	for _, a := range result.Actions {
		switch a {
		case ActionSetDiagTimeExpired:
			sess.localDiag = DiagControlTimeExpired
		case ActionSetDiagNeighborDown:
			sess.localDiag = DiagNeighborDown
		case ActionSetDiagAdminDown:
			sess.localDiag = DiagAdminDown
		case ActionSendControl, ActionNotifyUp, ActionNotifyDown:
			// ActionSendControl is not executed: this build bounds
			// convergence to the periodic idle-rate cadence rather than
			// replying immediately on every rise (the only out-of-band
			// send is the Poll/Final fast path in step 9).
			// Notification is handled uniformly below via the event sink,
			// regardless of which transition triggered it.
		}
	}

	d.applyEntryActions(sess, result.NewState)

	d.metric.RecordStateTransition(sess.Name(), oldState, result.NewState)
	d.logger.Info("session state transition",
		slog.String("session", sess.Name()),
		slog.String("from", oldState.String()),
		slog.String("to", result.NewState.String()),
		slog.String("diag", sess.localDiag.String()))
	d.sink.Emit(StateChangeEvent{
		Name:         sess.Name(),
		NeighborAddr: sess.NeighborAddr(),
		OldState:     result.OldState,
		NewState:     result.NewState,
		Diag:         sess.LocalDiag(),
		Time:         d.now(),
	})
}

// applyEntryActions runs the per-state entry actions: rise clears
// the diagnostic and ensures the expiry clock is running; fall resets
// local_tx_intv to the idle rate, cancels the expiry clock, and arms the
// reset timer (except from AdminDown, which has no reset-timer behavior of
// its own beyond cancelling transmit).
func (d *Dispatcher) applyEntryActions(sess *Session, newState State) {
	switch newState {
	case StateInit, StateUp:
		sess.localDiag = DiagNone
		d.cancelTimer(sess, timerReset)
		sess.resetFired = false
		if sess.timers[timerExpire].status != timerScheduled {
			d.rearmExpire(sess)
		}
		d.ensureTransmitScheduled(sess)

	case StateDown:
		d.fallCommon(sess)
		sess.resetFired = false
		d.rearmReset(sess)
		d.ensureTransmitScheduled(sess)

	case StateAdminDown:
		d.fallCommon(sess)
		d.cancelTimer(sess, timerTransmit)
	}
}

// fallCommon implements the shared part of every transition into Down or
// AdminDown: slow back down to the idle rate and stop waiting for a
// detection-time expiry that no longer applies.
func (d *Dispatcher) fallCommon(sess *Session) {
	sess.localTxIntv = sess.cfg.LocalIdleTxInterval
	d.cancelTimer(sess, timerExpire)
}

// rearmExpire (re-)arms the detection-time expiry clock, using
// local_detect_time once the first remote parameters are known, or a
// conservative fallback (local idle rate times local detect mult) before
// that (armed iff local_state is Up or Init).
func (d *Dispatcher) rearmExpire(sess *Session) {
	if sess.localState != StateUp && sess.localState != StateInit {
		d.cancelTimer(sess, timerExpire)
		return
	}
	delay := sess.localDetectTime
	if delay <= 0 {
		delay = sess.cfg.LocalIdleTxInterval * time.Duration(sess.cfg.LocalDetectMult)
	}
	d.arm(sess, timerExpire, delay)
}

// rearmReset arms the reset timer once per Down episode (invariant 5).
func (d *Dispatcher) rearmReset(sess *Session) {
	if sess.resetFired {
		return
	}
	delay := sess.localDetectTime
	if delay <= 0 {
		delay = sess.cfg.LocalIdleTxInterval * time.Duration(sess.cfg.LocalDetectMult)
	}
	d.arm(sess, timerReset, delay)
}

// -------------------------------------------------------------------------
// Timer-fire handlers
// -------------------------------------------------------------------------

// handleTransmitFire sends one periodic Control packet and reschedules
// itself. A transmit I/O failure drives the session to AdminDown rather
// than retrying ("Transmit I/O failure: transition session to
// AdminDown").
func (d *Dispatcher) handleTransmitFire(sess *Session) {
	if err := d.transmitOnce(sess); err != nil {
		d.onSendFailure(sess, err)
		return
	}
	d.arm(sess, timerTransmit, ApplyJitter(sess.localTxIntv, sess.cfg.LocalDetectMult))
}

// handleExpireFire implements detection-time expiry (RFC 5880
// Section 6.8.4): the neighbor is presumed gone, remote_discr is cleared so
// a later packet can't be mistaken for a continuation of this episode, and
// the FSM is driven with TimerExpired.
func (d *Dispatcher) handleExpireFire(sess *Session) {
	sess.remoteDiscr = 0
	result := ApplyEvent(sess.localState, EventTimerExpired)
	d.applyFSMResult(sess, result)
}

// handleResetFire reinitializes a Down session's protocol state back to
// its startup template and rerolls its local discriminator, without
// touching local_state or configuration.
func (d *Dispatcher) handleResetFire(sess *Session) {
	sess.remoteState = StateDown
	sess.remoteDiag = DiagNone
	sess.remoteDiscr = 0
	sess.remoteMinTxIntv = 0
	sess.remoteMinRxIntv = 0
	sess.remoteDetectMult = 0
	sess.remoteDemand = false
	sess.poll = false
	sess.final = false
	sess.localTxIntv = sess.cfg.LocalIdleTxInterval
	sess.localDetectTime = 0
	sess.remoteDetectTime = 0
	sess.lastSeen = time.Time{}
	sess.resetFired = true

	if err := d.store.Reroll(sess); err != nil {
		d.logger.Warn("reset-timer discriminator reroll failed",
			slog.String("session", sess.Name()), slog.String("error", err.Error()))
	}
}

// onSendFailure drives a session to AdminDown after a transmit error,
// reusing the regular AdminDown entry actions (cancel transmit, reset
// local_tx_intv, etc.) via the FSM table's {state, EventAdminDown} entries.
func (d *Dispatcher) onSendFailure(sess *Session, err error) {
	d.logger.Warn("transmit failed, forcing session AdminDown",
		slog.String("session", sess.Name()), slog.String("error", err.Error()))
	result := ApplyEvent(sess.localState, EventAdminDown)
	d.applyFSMResult(sess, result)
}

// transmitOnce builds, encodes, and sends exactly one Control packet for
// sess using its currently-installed Sender.
func (d *Dispatcher) transmitOnce(sess *Session) error {
	if sess.sender == nil {
		return fmt.Errorf("session %q: no output socket installed", sess.Name())
	}

	bufp := PacketPool.Get().(*[]byte)
	defer PacketPool.Put(bufp)

	var pkt ControlPacket
	sess.buildControlPacket(&pkt)

	n, err := MarshalControlPacket(&pkt, *bufp)
	if err != nil {
		return fmt.Errorf("session %q: %w", sess.Name(), err)
	}

	if err := sess.sender.Send((*bufp)[:n], sess.cfg.NeighborAddr); err != nil {
		return fmt.Errorf("session %q: %w", sess.Name(), err)
	}

	d.metric.IncPacketsSent(sess.Name())
	return nil
}

// -------------------------------------------------------------------------
// Lifecycle
// -------------------------------------------------------------------------

// Start brings every non-disabled session in the store into its running
// state: a transmit timer armed at the idle rate. Must be called from
// outside Run's goroutine, before Run is started (or via Do once it is).
func (d *Dispatcher) Start() {
	for _, sess := range d.store.All() {
		d.metric.RegisterSession(sess.Name())
		if sess.localState != StateAdminDown {
			d.ensureTransmitScheduled(sess)
		}
	}
}

// Stop suspends every session's timers without discarding their remaining
// time, and detaches output sockets, in preparation for process shutdown
// or a Reload. The caller is responsible for cancelling the receive loop
// first ("cancel receive task").
func (d *Dispatcher) Stop() {
	for _, sess := range d.store.All() {
		d.suspendTimer(sess, timerTransmit)
		d.suspendTimer(sess, timerExpire)
		d.suspendTimer(sess, timerReset)
		if sess.sender != nil {
			_ = sess.sender.Close()
			sess.sender = nil
		}
		d.metric.UnregisterSession(sess.Name())
	}
}

// timingChanged reports whether next would change any of the three
// parameters RFC 5880 Section 6.8.3 requires a Poll sequence to renegotiate:
// local_min_tx_intv, local_min_rx_intv, or local_detect_mult.
func timingChanged(old, next Config) bool {
	return old.LocalMinTxInterval != next.LocalMinTxInterval ||
		old.LocalMinRxInterval != next.LocalMinRxInterval ||
		old.LocalDetectMult != next.LocalDetectMult
}

// Reload reconciles the store against newConfigs, matching sessions by
// name: an existing session's protocol state (discriminators, FSM state,
// suspended timer sands) survives untouched while its Config is swapped
// in; a name with no match in newConfigs is removed; a name with no
// existing session is created fresh. An Up session whose timing
// parameters change queues a Poll sequence (Section 6.8.3): the new
// values take effect only once Resume transmits them and the peer
// answers with Final (handleIncoming Steps 2-5). Call Stop first, then
// Reload, then Resume.
func (d *Dispatcher) Reload(newConfigs []Config) {
	seen := make(map[string]bool, len(newConfigs))

	for _, cfg := range newConfigs {
		if existing, ok := d.store.ByName(cfg.Name); ok {
			if existing.localState == StateUp && timingChanged(existing.cfg, cfg) {
				existing.setPoll()
			}
			existing.cfg = cfg
			seen[existing.Name()] = true
			continue
		}

		sess, err := d.store.Add(cfg)
		if err != nil {
			d.logger.Warn("reload: failed to add session",
				slog.String("name", cfg.Name), slog.String("error", err.Error()))
			continue
		}
		seen[sess.Name()] = true
	}

	for _, sess := range d.store.All() {
		if !seen[sess.Name()] {
			d.metric.UnregisterSession(sess.Name())
			d.store.Remove(sess.Name())
		}
	}
}

// Resume resumes every still-present session's suspended timers from their
// saved sands values, the second half of a Stop/Reload/Resume cycle. Call
// after installing fresh Senders on each session. A session left with a
// Poll queued by Reload sends it now, rather than waiting out the old
// transmit interval to announce the renegotiated parameters.
func (d *Dispatcher) Resume() {
	for _, sess := range d.store.All() {
		d.metric.RegisterSession(sess.Name())
		d.resumeTimer(sess, timerTransmit)
		d.resumeTimer(sess, timerExpire)
		d.resumeTimer(sess, timerReset)
		if sess.localState != StateAdminDown {
			d.ensureTransmitScheduled(sess)
		}
		if sess.poll {
			if err := d.transmitOnce(sess); err != nil {
				d.onSendFailure(sess, err)
			}
		}
	}
}

// SetAdminDown drives name administratively down, if present.
func (d *Dispatcher) SetAdminDown(name string) {
	sess, ok := d.store.ByName(name)
	if !ok {
		return
	}
	result := ApplyEvent(sess.localState, EventAdminDown)
	d.applyFSMResult(sess, result)
}

// SetAdminUp re-enables name, if present and currently AdminDown.
func (d *Dispatcher) SetAdminUp(name string) {
	sess, ok := d.store.ByName(name)
	if !ok {
		return
	}
	result := ApplyEvent(sess.localState, EventAdminUp)
	d.applyFSMResult(sess, result)
}

// Snapshot is a read-only view of one session for the admin surface.
type Snapshot struct {
	Name             string
	NeighborAddr     netip.Addr
	LocalState       State
	RemoteState      State
	LocalDiag        Diag
	LocalDiscr       uint32
	RemoteDiscr      uint32
	LocalTxIntv      time.Duration
	DetectTime       time.Duration
	RemoteDetectTime time.Duration
}

// Sessions returns a snapshot of every session in the store. Safe to call
// from any goroutine (internally routed through Do).
func (d *Dispatcher) Sessions() []Snapshot {
	var out []Snapshot
	d.Do(func() {
		for _, sess := range d.store.All() {
			out = append(out, Snapshot{
				Name:             sess.Name(),
				NeighborAddr:     sess.NeighborAddr(),
				LocalState:       sess.LocalState(),
				RemoteState:      sess.RemoteState(),
				LocalDiag:        sess.LocalDiag(),
				LocalDiscr:       sess.LocalDiscriminator(),
				RemoteDiscr:      sess.RemoteDiscriminator(),
				LocalTxIntv:      sess.LocalTxInterval(),
				DetectTime:       sess.LocalDetectTime(),
				RemoteDetectTime: sess.RemoteDetectTime(),
			})
		}
	})
	return out
}
