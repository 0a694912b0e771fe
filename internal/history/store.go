// Package history holds the bounded ring of recently observed swaps used by
// the sandwich matcher.
package history

import (
	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/domain"
)

// Key identifies retained swaps by trader and unordered token pair.
// Opposite-direction trades by the same account on the same pair share a key.
type Key struct {
	Account   common.Address
	TokenLow  common.Address
	TokenHigh common.Address
}

// KeyFor builds the history key for an observation.
func KeyFor(obs *domain.SwapObservation) Key {
	low, high := obs.Pair()
	return Key{Account: obs.Account, TokenLow: low, TokenHigh: high}
}

// Entry is a retained swap.
type Entry struct {
	Observation *domain.SwapObservation
	Key         Key
	Slot        int    // ring position at insertion time
	Seq         uint64 // arrival sequence, strictly increasing across inserts
}

type ringSlot struct {
	key   Key
	entry *Entry
	used  bool
}

// Store is a fixed-capacity ring of swaps indexed by Key.
//
// The ring and the key index are only reachable through Store methods so they
// cannot drift apart. Store is not safe for concurrent use; the detector owns
// one instance and calls it sequentially.
type Store struct {
	slots   []ringSlot
	cursor  int
	nextSeq uint64
	cycles  uint64
	entries map[Key]*Entry
}

// NewStore creates a store with the given capacity (minimum 1).
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		slots:   make([]ringSlot, capacity),
		entries: make(map[Key]*Entry),
	}
}

// Capacity returns the number of ring slots.
func (s *Store) Capacity() int {
	return len(s.slots)
}

// Cursor returns the slot the next insert will write.
func (s *Store) Cursor() int {
	return s.cursor
}

// NextSeq returns the arrival sequence the next insert will receive.
func (s *Store) NextSeq() uint64 {
	return s.nextSeq
}

// Cycles returns how many times the cursor has wrapped back to zero.
func (s *Store) Cycles() uint64 {
	return s.cycles
}

// Len returns the number of indexed entries, including ones whose slot has
// since been overwritten but not yet swept.
func (s *Store) Len() int {
	return len(s.entries)
}

// Insert writes obs at the cursor, indexes it under key (replacing any
// previous entry for key) and advances the cursor. Returns the slot used.
func (s *Store) Insert(key Key, obs *domain.SwapObservation) int {
	slot := s.cursor
	e := &Entry{
		Observation: obs,
		Key:         key,
		Slot:        slot,
		Seq:         s.nextSeq,
	}

	s.slots[slot] = ringSlot{key: key, entry: e, used: true}
	s.entries[key] = e
	s.nextSeq++

	s.cursor = (s.cursor + 1) % len(s.slots)
	if s.cursor == 0 {
		s.cycles++
	}
	return slot
}

// Lookup returns the entry indexed under key.
func (s *Store) Lookup(key Key) (Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// LookupLive returns the entry indexed under key only while its ring slot
// still holds it. An entry whose slot has been overwritten is reported absent
// even before a sweep removes its key.
func (s *Store) LookupLive(key Key) (Entry, bool) {
	e, ok := s.entries[key]
	if !ok || s.slots[e.Slot].entry != e {
		return Entry{}, false
	}
	return *e, true
}

// Delete drops the index entry for key. The ring slot is left in place until
// it is overwritten.
func (s *Store) Delete(key Key) {
	delete(s.entries, key)
}

// LiveKeys returns the distinct keys recorded in written ring slots.
func (s *Store) LiveKeys() map[Key]struct{} {
	keys := make(map[Key]struct{}, len(s.slots))
	for _, sl := range s.slots {
		if sl.used {
			keys[sl.key] = struct{}{}
		}
	}
	return keys
}

// Live returns, in slot order, the entries whose ring slot still holds the
// entry currently indexed for its key. Superseded and deleted entries are
// skipped.
func (s *Store) Live() []Entry {
	live := make([]Entry, 0, len(s.slots))
	for _, sl := range s.slots {
		if !sl.used {
			continue
		}
		if cur, ok := s.entries[sl.key]; ok && cur == sl.entry {
			live = append(live, *cur)
		}
	}
	return live
}

// SweepUnreferenced removes index entries whose key no longer appears in any
// ring slot. Returns the number removed.
func (s *Store) SweepUnreferenced() int {
	live := s.LiveKeys()
	removed := 0
	for key := range s.entries {
		if _, ok := live[key]; !ok {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
