package history

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/domain"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func obs(account string, in, out common.Address, tx string) *domain.SwapObservation {
	return &domain.SwapObservation{
		Account:  common.HexToAddress(account),
		TokenIn:  in,
		TokenOut: out,
		TxRef:    tx,
	}
}

func TestKeyFor_DirectionIndependent(t *testing.T) {
	buy := obs("0x01", tokenA, tokenB, "tx1")
	sell := obs("0x01", tokenB, tokenA, "tx2")

	if KeyFor(buy) != KeyFor(sell) {
		t.Error("opposite directions on the same pair should share a key")
	}

	other := obs("0x02", tokenA, tokenB, "tx3")
	if KeyFor(buy) == KeyFor(other) {
		t.Error("different accounts should not share a key")
	}
}

func TestKeyFor_NoConcatenationCollision(t *testing.T) {
	// 0xAB + 0x0C would collide with 0x0A + 0xBC under string concatenation
	a := &domain.SwapObservation{
		Account:  common.HexToAddress("0xab"),
		TokenIn:  common.HexToAddress("0x0c"),
		TokenOut: common.HexToAddress("0x0d"),
	}
	b := &domain.SwapObservation{
		Account:  common.HexToAddress("0x0a"),
		TokenIn:  common.HexToAddress("0xbc"),
		TokenOut: common.HexToAddress("0x0d"),
	}
	if KeyFor(a) == KeyFor(b) {
		t.Error("distinct tuples must produce distinct keys")
	}
}

func TestStore_InsertLookup(t *testing.T) {
	s := NewStore(4)
	o := obs("0x01", tokenA, tokenB, "tx1")
	key := KeyFor(o)

	slot := s.Insert(key, o)
	if slot != 0 {
		t.Errorf("first insert slot = %d, want 0", slot)
	}
	if s.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", s.Cursor())
	}

	e, ok := s.Lookup(key)
	if !ok {
		t.Fatal("expected entry")
	}
	if e.Observation.TxRef != "tx1" || e.Slot != 0 || e.Seq != 0 {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestStore_InsertReplacesKey(t *testing.T) {
	s := NewStore(4)
	first := obs("0x01", tokenA, tokenB, "tx1")
	second := obs("0x01", tokenB, tokenA, "tx2")
	key := KeyFor(first)

	s.Insert(key, first)
	s.Insert(key, second)

	e, ok := s.Lookup(key)
	if !ok {
		t.Fatal("expected entry")
	}
	if e.Observation.TxRef != "tx2" || e.Slot != 1 {
		t.Errorf("expected replacement at slot 1, got %s at %d", e.Observation.TxRef, e.Slot)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}

	// Superseded slot 0 is not live
	live := s.Live()
	if len(live) != 1 || live[0].Observation.TxRef != "tx2" {
		t.Errorf("Live = %+v, want only tx2", live)
	}
}

func TestStore_DeleteOrphansSlot(t *testing.T) {
	s := NewStore(4)
	o := obs("0x01", tokenA, tokenB, "tx1")
	key := KeyFor(o)
	s.Insert(key, o)

	s.Delete(key)

	if _, ok := s.Lookup(key); ok {
		t.Error("entry should be gone after Delete")
	}
	if len(s.Live()) != 0 {
		t.Error("deleted entry should not be live")
	}
	if _, ok := s.LiveKeys()[key]; !ok {
		t.Error("slot still records the key until overwritten")
	}
	if s.Cursor() != 1 {
		t.Error("Delete must not move the cursor")
	}
}

func TestStore_WrapAndCycles(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 7; i++ {
		a := common.BytesToAddress([]byte{byte(i + 1)})
		o := &domain.SwapObservation{Account: a, TokenIn: tokenA, TokenOut: tokenB}
		s.Insert(KeyFor(o), o)
	}

	if s.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", s.Cursor())
	}
	if s.Cycles() != 2 {
		t.Errorf("cycles = %d, want 2", s.Cycles())
	}
	if s.NextSeq() != 7 {
		t.Errorf("next seq = %d, want 7", s.NextSeq())
	}
}

func TestStore_SweepUnreferenced(t *testing.T) {
	s := NewStore(2)
	o1 := obs("0x01", tokenA, tokenB, "tx1")
	o2 := obs("0x02", tokenA, tokenB, "tx2")
	o3 := obs("0x03", tokenA, tokenB, "tx3")

	s.Insert(KeyFor(o1), o1)
	s.Insert(KeyFor(o2), o2)
	s.Insert(KeyFor(o3), o3) // overwrites slot 0 (o1)

	if s.Len() != 3 {
		t.Fatalf("Len before sweep = %d, want 3", s.Len())
	}

	removed := s.SweepUnreferenced()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := s.Lookup(KeyFor(o1)); ok {
		t.Error("o1 should have been swept")
	}
	if _, ok := s.Lookup(KeyFor(o2)); !ok {
		t.Error("o2 should survive")
	}
	if _, ok := s.Lookup(KeyFor(o3)); !ok {
		t.Error("o3 should survive")
	}
}

func TestStore_LookupLiveAfterOverwrite(t *testing.T) {
	s := NewStore(2)
	o1 := obs("0x01", tokenA, tokenB, "tx1")
	o2 := obs("0x02", tokenA, tokenB, "tx2")
	o3 := obs("0x03", tokenA, tokenB, "tx3")

	s.Insert(KeyFor(o1), o1)
	if e, ok := s.LookupLive(KeyFor(o1)); !ok || e.Observation.TxRef != "tx1" {
		t.Fatalf("LookupLive before overwrite = %+v, %v", e, ok)
	}

	s.Insert(KeyFor(o2), o2)
	s.Insert(KeyFor(o3), o3) // overwrites slot 0 (o1)

	if _, ok := s.Lookup(KeyFor(o1)); !ok {
		t.Error("o1 stays indexed until a sweep")
	}
	if _, ok := s.LookupLive(KeyFor(o1)); ok {
		t.Error("o1 must not be live once its slot is overwritten")
	}
	if _, ok := s.LookupLive(KeyFor(o2)); !ok {
		t.Error("o2 should be live")
	}
}

func TestStore_LookupLiveAfterReinsert(t *testing.T) {
	s := NewStore(3)
	o1 := obs("0x01", tokenA, tokenB, "tx1")
	o2 := obs("0x01", tokenB, tokenA, "tx2") // same key as o1

	s.Insert(KeyFor(o1), o1)
	s.Insert(KeyFor(o2), o2)

	e, ok := s.LookupLive(KeyFor(o1))
	if !ok || e.Observation.TxRef != "tx2" || e.Slot != 1 {
		t.Errorf("LookupLive = %+v, %v; want tx2 at slot 1", e, ok)
	}

	s.Delete(KeyFor(o1))
	if _, ok := s.LookupLive(KeyFor(o1)); ok {
		t.Error("deleted key must not be live")
	}
}

func TestStore_LiveKeysDeduplicates(t *testing.T) {
	s := NewStore(4)
	o := obs("0x01", tokenA, tokenB, "tx1")
	s.Insert(KeyFor(o), o)
	s.Insert(KeyFor(o), o)
	s.Insert(KeyFor(o), o)

	if n := len(s.LiveKeys()); n != 1 {
		t.Errorf("LiveKeys size = %d, want 1", n)
	}
}

func TestNewStore_MinimumCapacity(t *testing.T) {
	s := NewStore(0)
	if s.Capacity() != 1 {
		t.Errorf("capacity = %d, want 1", s.Capacity())
	}
	o := obs("0x01", tokenA, tokenB, "tx1")
	s.Insert(KeyFor(o), o)
	if s.Cursor() != 0 || s.Cycles() != 1 {
		t.Errorf("single-slot store should wrap on every insert")
	}
}
