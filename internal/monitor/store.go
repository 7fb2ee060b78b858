// internal/monitor/store.go
package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

// entry guards the mutable fields of one position.
type entry struct {
	mu  sync.Mutex
	pos domain.Position
}

// Store is the single registry of tracked positions.
//
// The store-wide lock protects the map structure only; field updates take the
// per-position lock so the monitor loop and the trade coordinator never block
// each other on unrelated tokens. Every read hands out a deep copy.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	capacity int
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore creates an empty store keeping at most capacity history points per position.
func NewStore(capacity int, logger *zap.Logger) *Store {
	if capacity <= 0 {
		capacity = domain.DefaultHistoryCapacity
	}
	return &Store{
		entries:  make(map[string]*entry),
		capacity: capacity,
		logger:   logger.Named("store"),
		now:      time.Now,
	}
}

func (s *Store) lookup(tokenID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[tokenID]
	return e, ok
}

// Get returns a copy of the position for tokenID.
func (s *Store) Get(tokenID string) (domain.Position, bool) {
	e, ok := s.lookup(tokenID)
	if !ok {
		return domain.Position{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos.Clone(), true
}

// Upsert inserts p or replaces the tracked position with the same token.
func (s *Store) Upsert(p domain.Position) {
	p = p.Clone()
	p.History = s.trim(p.History)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[p.TokenID]; ok {
		e.mu.Lock()
		e.pos = p
		e.mu.Unlock()
		return
	}
	s.entries[p.TokenID] = &entry{pos: p}
	s.logger.Debug("Position tracked",
		zap.String("token", p.TokenID),
		zap.String("origin", string(p.Origin)),
		zap.Float64("entry", p.EntryValue))
}

// Remove drops the position. It reports whether anything was removed.
func (s *Store) Remove(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[tokenID]; !ok {
		return false
	}
	delete(s.entries, tokenID)
	s.logger.Debug("Position removed", zap.String("token", tokenID))
	return true
}

// ListActive returns copies of every position in StatusActive, ordered by token.
func (s *Store) ListActive() []domain.Position {
	return s.collect(func(p *domain.Position) bool { return p.Status == domain.StatusActive })
}

// Snapshot returns copies of every tracked position, ordered by token.
func (s *Store) Snapshot() []domain.Position {
	return s.collect(func(*domain.Position) bool { return true })
}

func (s *Store) collect(keep func(*domain.Position) bool) []domain.Position {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]domain.Position, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if keep(&e.pos) {
			out = append(out, e.pos.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// Len returns the number of tracked positions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// CountActive counts open positions of the given origin, including those with a sell in flight.
func (s *Store) CountActive(origin domain.Origin) int {
	n := 0
	for _, p := range s.Snapshot() {
		if p.Origin == origin && p.Status != domain.StatusClosed {
			n++
		}
	}
	return n
}

// ReconcileResult is the outcome of one ReconcileWallet call.
type ReconcileResult struct {
	Added   []string
	Removed []string
}

// ReconcileWallet aligns the store with the wallet's current token balances.
//
// Untracked holdings become pending WalletDiscovered positions. Discovered
// positions whose token left the wallet are removed unless a sell for them is
// in flight. Bot acquired positions are only ever updated, never added or removed.
func (s *Store) ReconcileWallet(holdings map[string]uint64) ReconcileResult {
	var res ReconcileResult
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for tokenID, amount := range holdings {
		if amount == 0 {
			continue
		}
		if e, ok := s.entries[tokenID]; ok {
			e.mu.Lock()
			e.pos.OwnedAmount = amount
			e.mu.Unlock()
			continue
		}
		s.entries[tokenID] = &entry{pos: domain.NewDiscoveredPosition(tokenID, amount, now)}
		res.Added = append(res.Added, tokenID)
	}

	for tokenID, e := range s.entries {
		if amount, held := holdings[tokenID]; held && amount > 0 {
			continue
		}
		e.mu.Lock()
		drop := e.pos.Origin == domain.OriginWalletDiscovered && e.pos.Status == domain.StatusActive
		e.mu.Unlock()
		if drop {
			delete(s.entries, tokenID)
			res.Removed = append(res.Removed, tokenID)
		}
	}

	sort.Strings(res.Added)
	sort.Strings(res.Removed)
	if len(res.Added) > 0 || len(res.Removed) > 0 {
		s.logger.Info("Wallet reconciled",
			zap.Strings("discovered", res.Added),
			zap.Strings("vanished", res.Removed))
	}
	return res
}

// Observe records a market snapshot: appends it to the bounded history and
// raises the peak. A pending position takes the snapshot as its entry.
func (s *Store) Observe(snap domain.MarketSnapshot) (domain.Position, error) {
	if snap.Value <= 0 {
		return domain.Position{}, fmt.Errorf("observe %s: non-positive value %v", snap.TokenID, snap.Value)
	}
	e, ok := s.lookup(snap.TokenID)
	if !ok {
		return domain.Position{}, fmt.Errorf("observe %s: %w", snap.TokenID, domain.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := &e.pos
	if p.Pending() {
		p.EntryValue = snap.Value
		p.PeakValue = snap.Value
		p.History = []float64{snap.Value}
		s.logger.Info("Discovered position entry recorded",
			zap.String("token", p.TokenID),
			zap.Float64("entry", snap.Value))
	} else {
		p.History = s.trim(append(p.History, snap.Value))
		if snap.Value > p.PeakValue {
			p.PeakValue = snap.Value
		}
	}
	if p.Name == "" {
		p.Name = snap.Name
	}
	p.UpdatedAt = snap.Timestamp
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	return p.Clone(), nil
}

// MarkSellPending moves an Active position to SellPending. It returns false
// when the position is missing or not Active.
func (s *Store) MarkSellPending(tokenID string) bool {
	return s.transition(tokenID, domain.StatusActive, domain.StatusSellPending)
}

// MarkActive reverts a SellPending position after a failed sell.
func (s *Store) MarkActive(tokenID string) bool {
	return s.transition(tokenID, domain.StatusSellPending, domain.StatusActive)
}

func (s *Store) transition(tokenID string, from, to domain.Status) bool {
	e, ok := s.lookup(tokenID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos.Status != from {
		return false
	}
	e.pos.Status = to
	return true
}

// Restore replaces the store contents with previously persisted positions.
// Sells cannot survive a restart, so SellPending comes back as Active.
func (s *Store) Restore(positions []domain.Position) {
	entries := make(map[string]*entry, len(positions))
	for _, p := range positions {
		if p.Status == domain.StatusClosed {
			continue
		}
		p = p.Clone()
		if p.Status == domain.StatusSellPending {
			p.Status = domain.StatusActive
		}
		p.History = s.trim(p.History)
		entries[p.TokenID] = &entry{pos: p}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.logger.Info("Positions restored", zap.Int("count", len(entries)))
}

// trim keeps the newest capacity points.
func (s *Store) trim(history []float64) []float64 {
	if len(history) <= s.capacity {
		return history
	}
	out := make([]float64, s.capacity)
	copy(out, history[len(history)-s.capacity:])
	return out
}
