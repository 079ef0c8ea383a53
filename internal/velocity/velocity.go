// Package velocity provides windowed event counting over a run snapshot.
// All windows are anchored on event timestamps, never on the wall clock,
// so identical snapshots always yield identical counts.
package velocity

import (
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Index holds sorted timestamps per key.
type Index struct {
	times  map[string][]time.Time
	sealed bool
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{times: make(map[string][]time.Time)}
}

// Add records an event for key. Add after Seal is not allowed.
func (ix *Index) Add(key string, at time.Time) {
	if ix.sealed {
		panic("velocity: Add on sealed index")
	}
	ix.times[key] = append(ix.times[key], at)
}

// Seal sorts every series; the index is read-only afterwards.
func (ix *Index) Seal() {
	for _, ts := range ix.times {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	}
	ix.sealed = true
}

// CountBetween counts events for key with from <= t <= to.
func (ix *Index) CountBetween(key string, from, to time.Time) int {
	ts := ix.times[key]
	lo := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(from) })
	hi := sort.Search(len(ts), func(i int) bool { return ts[i].After(to) })
	if hi < lo {
		return 0
	}
	return hi - lo
}

// CountBefore counts events for key with from <= t < to.
func (ix *Index) CountBefore(key string, from, to time.Time) int {
	ts := ix.times[key]
	lo := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(from) })
	hi := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(to) })
	if hi < lo {
		return 0
	}
	return hi - lo
}

// First returns the earliest event for key.
func (ix *Index) First(key string) (time.Time, bool) {
	ts := ix.times[key]
	if len(ts) == 0 {
		return time.Time{}, false
	}
	return ts[0], true
}

// Service answers the history questions the risk scorer asks.
type Service struct {
	byAccount    *Index
	byChannel    *Index
	byCustomer   *Index
	authFailures *Index
	deviceSeen   map[string]time.Time
}

// FromSnapshot builds a Service over every transaction and auth event in snap.
func FromSnapshot(snap *domain.Snapshot) *Service {
	owners := make(map[string]string, len(snap.Accounts))
	for _, a := range snap.Accounts {
		owners[a.ID] = a.CustomerID
	}

	s := &Service{
		byAccount:    NewIndex(),
		byChannel:    NewIndex(),
		byCustomer:   NewIndex(),
		authFailures: NewIndex(),
		deviceSeen:   make(map[string]time.Time, len(snap.Devices)),
	}

	for _, d := range snap.Devices {
		if !d.CreatedAt.IsZero() {
			s.deviceSeen[d.ID] = d.CreatedAt
		}
	}

	for _, tx := range snap.Transactions {
		s.byAccount.Add(tx.FromAccountID, tx.CreatedAt)
		if owner := owners[tx.FromAccountID]; owner != "" {
			s.byCustomer.Add(owner, tx.CreatedAt)
			s.byChannel.Add(channelKey(owner, tx.Channel), tx.CreatedAt)
		}
		if tx.DeviceID != nil {
			if seen, ok := s.deviceSeen[*tx.DeviceID]; !ok || tx.CreatedAt.Before(seen) {
				s.deviceSeen[*tx.DeviceID] = tx.CreatedAt
			}
		}
	}

	for _, e := range snap.AuthEvents {
		if e.Status == domain.AuthFailed {
			s.authFailures.Add(e.CustomerID, e.CreatedAt)
		}
	}

	s.byAccount.Seal()
	s.byChannel.Seal()
	s.byCustomer.Seal()
	s.authFailures.Seal()
	return s
}

func channelKey(customerID string, ch domain.Channel) string {
	return customerID + "|" + string(ch)
}

// TransactionCount returns how many other transactions the account made in
// the window ending at at, inclusive of both ends.
func (s *Service) TransactionCount(accountID string, at time.Time, window time.Duration) int {
	n := s.byAccount.CountBetween(accountID, at.Add(-window), at)
	if n > 0 {
		n-- // the transaction itself
	}
	return n
}

// FailedAuthCount returns failed authentications for the customer in [at-window, at].
func (s *Service) FailedAuthCount(customerID string, at time.Time, window time.Duration) int {
	return s.authFailures.CountBetween(customerID, at.Add(-window), at)
}

// ChannelHistory returns how often the customer used ch, and how many
// transactions they made in total, in [at-window, at).
func (s *Service) ChannelHistory(customerID string, ch domain.Channel, at time.Time, window time.Duration) (uses, total int) {
	from := at.Add(-window)
	return s.byChannel.CountBefore(channelKey(customerID, ch), from, at),
		s.byCustomer.CountBefore(customerID, from, at)
}

// DeviceFirstSeen returns when a device first appeared, by registration or use.
func (s *Service) DeviceFirstSeen(deviceID string) (time.Time, bool) {
	t, ok := s.deviceSeen[deviceID]
	return t, ok
}
