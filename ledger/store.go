// Package ledger implements a client-side mirror of the server credit
// balance. The mirror serves reads instantly, applies optimistic
// deductions before the server confirms, and reconciles against the
// authoritative balance whenever one arrives.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInsufficientLocal is returned by DeductLocal when the mirrored
// balance cannot cover the amount. The caller should skip the server
// round-trip entirely.
var ErrInsufficientLocal = errors.New("insufficient credits in local ledger")

const defaultFreshFor = 30 * time.Second

// BalanceClient fetches the authoritative balance from the server.
type BalanceClient interface {
	FetchBalance(ctx context.Context) (int, error)
}

// DeductClient performs an authoritative deduction on the server and
// returns the balance after it.
type DeductClient interface {
	Deduct(ctx context.Context, amount int, description, referenceID string) (int, error)
}

type fetchCall struct {
	done    chan struct{}
	balance int
	err     error
}

// Store mirrors the server balance with a freshness window. Concurrent
// Fetch calls share one in-flight request. Optimistic deductions keep a
// single rollback snapshot: the first pending deduction wins the snapshot,
// later ones stack on top of it, so one rollback restores the pre-batch
// balance.
type Store struct {
	client   BalanceClient
	freshFor time.Duration
	now      func() time.Time

	mu        sync.Mutex
	balance   int
	fetchedAt time.Time
	inflight  *fetchCall
	snapshot  *int
	subs      map[int]func(int)
	nextSub   int
}

// NewStore creates a store around the given balance client.
func NewStore(client BalanceClient) *Store {
	return &Store{
		client:   client,
		freshFor: defaultFreshFor,
		now:      time.Now,
		subs:     make(map[int]func(int)),
	}
}

// Balance returns the current mirrored balance without fetching.
func (s *Store) Balance() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// Fetch returns the mirrored balance, refreshing from the server when the
// freshness window has lapsed or force is set. Concurrent callers during a
// refresh wait on the same request instead of issuing their own.
func (s *Store) Fetch(ctx context.Context, force bool) (int, error) {
	s.mu.Lock()
	if !force && !s.fetchedAt.IsZero() && s.now().Sub(s.fetchedAt) < s.freshFor {
		balance := s.balance
		s.mu.Unlock()
		return balance, nil
	}

	if s.inflight != nil {
		call := s.inflight
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.balance, call.err
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	call := &fetchCall{done: make(chan struct{})}
	s.inflight = call
	s.mu.Unlock()

	balance, err := s.client.FetchBalance(ctx)

	s.mu.Lock()
	s.inflight = nil
	call.balance = balance
	call.err = err
	if err == nil {
		s.applyServerLocked(balance)
		call.balance = s.balance
	}
	s.mu.Unlock()
	close(call.done)

	if err != nil {
		return 0, err
	}
	return call.balance, nil
}

// DeductLocal applies an optimistic deduction. It fails fast when the
// mirror cannot cover the amount, so callers avoid a doomed server call.
// Returns the balance after the deduction.
func (s *Store) DeductLocal(amount int) (int, error) {
	if amount <= 0 {
		return 0, errors.New("amount must be positive")
	}

	s.mu.Lock()
	if s.balance < amount {
		balance := s.balance
		s.mu.Unlock()
		return balance, ErrInsufficientLocal
	}
	if s.snapshot == nil {
		prev := s.balance
		s.snapshot = &prev
	}
	s.balance -= amount
	balance := s.balance
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	notify(subs, balance)
	return balance, nil
}

// Deduct runs the whole optimistic flow: fast-fail against the mirror,
// optimistic decrement, server deduct, then commit of the authoritative
// balance, or rollback and the server's error when the deduct fails. The
// store's client must also implement DeductClient.
func (s *Store) Deduct(ctx context.Context, amount int, description, referenceID string) (int, error) {
	dc, ok := s.client.(DeductClient)
	if !ok {
		return s.Balance(), errors.New("balance client does not support deductions")
	}

	if _, err := s.DeductLocal(amount); err != nil {
		return s.Balance(), err
	}

	serverBalance, err := dc.Deduct(ctx, amount, description, referenceID)
	if err != nil {
		s.Rollback()
		return s.Balance(), err
	}

	s.Commit(serverBalance)
	return s.Balance(), nil
}

// Commit reconciles a server-confirmed balance after an optimistic
// deduction. The authoritative value replaces the mirror and the rollback
// snapshot is discarded.
func (s *Store) Commit(serverBalance int) {
	s.mu.Lock()
	s.snapshot = nil
	s.applyServerLocked(serverBalance)
	balance := s.balance
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	notify(subs, balance)
}

// Rollback restores the balance captured before the first pending
// optimistic deduction. A rollback with no pending deduction is a no-op.
func (s *Store) Rollback() {
	s.mu.Lock()
	if s.snapshot == nil {
		s.mu.Unlock()
		return
	}
	s.balance = *s.snapshot
	s.snapshot = nil
	balance := s.balance
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	notify(subs, balance)
}

// Invalidate expires the freshness window so the next Fetch hits the
// server.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
}

// Subscribe registers a callback for balance changes. The returned
// function cancels the subscription.
func (s *Store) Subscribe(fn func(balance int)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// applyServerLocked installs an authoritative balance. While an optimistic
// deduction is pending the server value predates it, so the pending amount
// is re-applied on top.
func (s *Store) applyServerLocked(serverBalance int) {
	if s.snapshot != nil {
		pending := *s.snapshot - s.balance
		adjusted := serverBalance - pending
		if adjusted < 0 {
			adjusted = 0
		}
		prev := serverBalance
		s.snapshot = &prev
		s.balance = adjusted
	} else {
		s.balance = serverBalance
	}
	s.fetchedAt = s.now()
}

func (s *Store) snapshotSubsLocked() []func(int) {
	out := make([]func(int), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(int), balance int) {
	for _, fn := range subs {
		fn(balance)
	}
}
