package reservation

import (
	"context"
	"sync"
)

// memUnit mirrors one row of the units table.
type memUnit struct {
	state  State
	saleID uint64
	lineNo uint32
}

// memSector holds the seeded units of one (event, venue, sector).
type memSector struct {
	info  SectorInfo
	units map[uint32]*memUnit
}

type memItem struct {
	saleID   uint64
	lineNo   uint32
	ref      SectorRef
	quantity uint32
}

// memStore is an in-memory Store used by the engine tests.  A single
// mutex held for the duration of InTx gives each transaction a fully
// serializable scope, and a deep snapshot taken on entry provides
// rollback when the transaction function fails.
type memStore struct {
	mu       sync.Mutex
	sectors  map[SectorRef]*memSector
	sales    map[uint64]uint64 // sale id -> client id
	items    []memItem
	nextSale uint64
}

func newMemStore() *memStore {
	return &memStore{
		sectors: make(map[SectorRef]*memSector),
		sales:   make(map[uint64]uint64),
	}
}

// addSector seeds a sector with capacity units, indices 1..capacity, all
// AVAILABLE.
func (s *memStore) addSector(ref SectorRef, typ SectorType, capacity uint32) {
	units := make(map[uint32]*memUnit, capacity)
	for i := uint32(1); i <= capacity; i++ {
		units[i] = &memUnit{state: StateAvailable}
	}
	s.sectors[ref] = &memSector{info: SectorInfo{Type: typ, Capacity: capacity}, units: units}
}

func (s *memStore) Sector(ctx context.Context, ref SectorRef) (SectorInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sectors[ref]
	if !ok {
		return SectorInfo{}, ErrSectorNotFound
	}
	return sec.info, nil
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	sectors  map[SectorRef]*memSector
	sales    map[uint64]uint64
	items    []memItem
	nextSale uint64
}

func (s *memStore) snapshot() memSnapshot {
	sectors := make(map[SectorRef]*memSector, len(s.sectors))
	for ref, sec := range s.sectors {
		units := make(map[uint32]*memUnit, len(sec.units))
		for idx, u := range sec.units {
			cp := *u
			units[idx] = &cp
		}
		sectors[ref] = &memSector{info: sec.info, units: units}
	}
	sales := make(map[uint64]uint64, len(s.sales))
	for id, cl := range s.sales {
		sales[id] = cl
	}
	items := append([]memItem(nil), s.items...)
	return memSnapshot{sectors: sectors, sales: sales, items: items, nextSale: s.nextSale}
}

func (s *memStore) restore(snap memSnapshot) {
	s.sectors = snap.sectors
	s.sales = snap.sales
	s.items = snap.items
	s.nextSale = snap.nextSale
}

// test helpers; callers must not hold a transaction open.

func (s *memStore) stateOf(ref SectorRef, idx uint32) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sectors[ref].units[idx].state
}

func (s *memStore) stampOf(ref SectorRef, idx uint32) (uint64, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.sectors[ref].units[idx]
	return u.saleID, u.lineNo
}

func (s *memStore) countState(ref SectorRef, st State) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.sectors[ref].units {
		if u.state == st {
			n++
		}
	}
	return n
}

func (s *memStore) saleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

// memTx implements Tx over the already-locked memStore.
type memTx struct {
	s *memStore
}

func (t *memTx) sector(ref SectorRef) (*memSector, error) {
	sec, ok := t.s.sectors[ref]
	if !ok {
		return nil, ErrSectorNotFound
	}
	return sec, nil
}

func (t *memTx) AvailableIndices(ctx context.Context, ref SectorRef, limit int) ([]uint32, error) {
	sec, err := t.sector(ref)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, limit)
	for idx := uint32(1); idx <= sec.info.Capacity && len(out) < limit; idx++ {
		if u, ok := sec.units[idx]; ok && u.state == StateAvailable {
			out = append(out, idx)
		}
	}
	return out, nil
}

func (t *memTx) Transition(ctx context.Context, ref SectorRef, indices []uint32, from, to State) (int64, error) {
	sec, err := t.sector(ref)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, idx := range indices {
		u, ok := sec.units[idx]
		if !ok || u.state != from {
			continue
		}
		u.state = to
		if from == StateReserved {
			u.saleID = 0
			u.lineNo = 0
		}
		n++
	}
	return n, nil
}

func (t *memTx) MarkSold(ctx context.Context, ref SectorRef, indices []uint32, saleID uint64, lineNo uint32) (int64, error) {
	sec, err := t.sector(ref)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, idx := range indices {
		u, ok := sec.units[idx]
		if !ok || u.state != StateReserved {
			continue
		}
		u.state = StateSold
		u.saleID = saleID
		u.lineNo = lineNo
		n++
	}
	return n, nil
}

func (t *memTx) SoldSale(ctx context.Context, ref SectorRef, indices []uint32) (uint64, bool, error) {
	sec, err := t.sector(ref)
	if err != nil {
		return 0, false, err
	}
	for _, idx := range indices {
		if u, ok := sec.units[idx]; ok && u.state == StateSold && u.saleID != 0 {
			return u.saleID, true, nil
		}
	}
	return 0, false, nil
}

func (t *memTx) SoldCountForClient(ctx context.Context, eventID, clientID uint64) (int, error) {
	n := 0
	for ref, sec := range t.s.sectors {
		if ref.EventID != eventID {
			continue
		}
		for _, u := range sec.units {
			if u.state == StateSold && t.s.sales[u.saleID] == clientID {
				n++
			}
		}
	}
	return n, nil
}

func (t *memTx) CreateSale(ctx context.Context, clientID uint64) (uint64, error) {
	t.s.nextSale++
	t.s.sales[t.s.nextSale] = clientID
	return t.s.nextSale, nil
}

func (t *memTx) AddSaleItem(ctx context.Context, saleID uint64, lineNo uint32, ref SectorRef, quantity uint32) error {
	t.s.items = append(t.s.items, memItem{saleID: saleID, lineNo: lineNo, ref: ref, quantity: quantity})
	return nil
}
