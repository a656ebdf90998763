package bfd

import (
	"fmt"
	"log/slog"
	"net/netip"
)

// maxNameBytes is the maximum session name length: "Name
// truncation to 31 bytes disables the instance."
const maxNameBytes = 31

// Store is the session collection: a mapping keyed by name, with
// auxiliary indexes by neighbor address and by local discriminator. It is
// owned and mutated exclusively by the dispatcher's loop goroutine — like
// every other piece of session state, there is no internal locking.
type Store struct {
	byName     map[string]*Session
	byNeighbor map[netip.Addr]*Session
	byDiscr    map[uint32]*Session
	alloc      *DiscriminatorAllocator
	logger     *slog.Logger

	// dupCounter tracks how many duplicate names have been seen for a given
	// original name, so renames are `<DUP-2>`, `<DUP-3>`, ... in the order
	// encountered, matching the "<DUP-N> (or
	// similar)" wording.
	dupCounter map[string]int
}

// NewStore creates an empty session store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		byName:     make(map[string]*Session),
		byNeighbor: make(map[netip.Addr]*Session),
		byDiscr:    make(map[uint32]*Session),
		alloc:      NewDiscriminatorAllocator(),
		logger:     logger,
		dupCounter: make(map[string]int),
	}
}

// Add allocates a discriminator and inserts a new session built from cfg,
// applying the following duplicate-handling rules:
//
//   - A name longer than 31 bytes is truncated and the instance disabled.
//   - A name colliding with an existing session is renamed `<DUP-n>` and
//     the instance is disabled.
//   - A neighbor address colliding with an existing session's neighbor
//     address disables the instance (the name is left alone).
//
// None of these conditions are errors: Add always succeeds and returns the
// (possibly disabled, possibly renamed) session, mirroring the
// "Configuration error ... mark instance disabled; never abort the process."
func (st *Store) Add(cfg Config) (*Session, error) {
	if len(cfg.Name) > maxNameBytes {
		st.logger.Warn("session name truncated, disabling instance",
			slog.String("original_name", cfg.Name))
		cfg.Name = cfg.Name[:maxNameBytes]
		cfg.Disabled = true
	}

	if _, exists := st.byName[cfg.Name]; exists {
		original := cfg.Name
		for {
			st.dupCounter[original]++
			cfg.Name = fmt.Sprintf("<DUP-%d>", st.dupCounter[original]+1)
			if _, taken := st.byName[cfg.Name]; !taken {
				break
			}
		}
		cfg.Disabled = true
		st.logger.Warn("duplicate session name, renamed and disabled",
			slog.String("original_name", original),
			slog.String("renamed_to", cfg.Name))
	}

	if cfg.NeighborAddr.IsValid() {
		if _, exists := st.byNeighbor[cfg.NeighborAddr]; exists {
			st.logger.Warn("duplicate neighbor address, disabling instance",
				slog.String("name", cfg.Name),
				slog.String("neighbor", cfg.NeighborAddr.String()))
			cfg.Disabled = true
		}
	}

	discr, err := st.alloc.Allocate()
	if err != nil {
		return nil, fmt.Errorf("add session %q: %w", cfg.Name, err)
	}

	sess, err := NewSession(cfg, discr)
	if err != nil {
		st.alloc.Release(discr)
		return nil, fmt.Errorf("add session %q: %w", cfg.Name, err)
	}

	st.byName[cfg.Name] = sess
	st.byDiscr[discr] = sess
	if cfg.NeighborAddr.IsValid() {
		if _, exists := st.byNeighbor[cfg.NeighborAddr]; !exists {
			st.byNeighbor[cfg.NeighborAddr] = sess
		}
	}

	return sess, nil
}

// Remove deletes a session from all indexes and releases its discriminator.
// Used only when a reload drops a session entirely (its name no longer
// appears in the reconciled config) — a reload does not call for removal on
// any other path.
func (st *Store) Remove(name string) {
	sess, ok := st.byName[name]
	if !ok {
		return
	}
	delete(st.byName, name)
	delete(st.byDiscr, sess.localDiscr)
	if sess.cfg.NeighborAddr.IsValid() {
		if cur, exists := st.byNeighbor[sess.cfg.NeighborAddr]; exists && cur == sess {
			delete(st.byNeighbor, sess.cfg.NeighborAddr)
		}
	}
	st.alloc.Release(sess.localDiscr)
}

// ByName looks up a session by its exact stored name (post-truncation,
// post-rename).
func (st *Store) ByName(name string) (*Session, bool) {
	sess, ok := st.byName[name]
	return sess, ok
}

// ByDiscriminator looks up a session by local_discr.
func (st *Store) ByDiscriminator(discr uint32) (*Session, bool) {
	sess, ok := st.byDiscr[discr]
	return sess, ok
}

// ByNeighbor looks up a session by configured neighbor address.
func (st *Store) ByNeighbor(addr netip.Addr) (*Session, bool) {
	sess, ok := st.byNeighbor[addr]
	return sess, ok
}

// Demux implements the lookup rule: "Lookup by (remote_discr) when the
// incoming 'your discriminator' is nonzero; otherwise lookup by source
// address." yourDiscr and srcAddr both come from the just-validated inbound
// packet and its transport metadata.
func (st *Store) Demux(yourDiscr uint32, srcAddr netip.Addr) (*Session, bool) {
	if yourDiscr != 0 {
		return st.ByDiscriminator(yourDiscr)
	}
	return st.ByNeighbor(srcAddr)
}

// All returns every session in the store. Order is unspecified.
func (st *Store) All() []*Session {
	out := make([]*Session, 0, len(st.byName))
	for _, sess := range st.byName {
		out = append(out, sess)
	}
	return out
}

// Reroll regenerates a session's local discriminator, keeping it globally
// unique across the store ("Reset timer ... reroll local_discr
// (globally unique)"). Used only by the dispatcher's reset-timer handler.
func (st *Store) Reroll(sess *Session) error {
	newDiscr, err := st.alloc.Allocate()
	if err != nil {
		return fmt.Errorf("reroll discriminator for %q: %w", sess.Name(), err)
	}
	delete(st.byDiscr, sess.localDiscr)
	st.alloc.Release(sess.localDiscr)
	sess.localDiscr = newDiscr
	st.byDiscr[newDiscr] = sess
	return nil
}
