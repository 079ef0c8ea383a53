package rules

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Env is the read-only evaluation context shared by all checks of a run.
type Env struct {
	Snapshot *domain.Snapshot
	Now      time.Time
	Config   domain.QualityConfig

	customers map[string]*domain.Customer
	accounts  map[string]*domain.Account
	devices   map[string]*domain.Device

	issues map[string][]recordIssues
}

type recordIssues struct {
	id     string
	issues []domain.FieldIssue
}

// NewEnv indexes snap for lookups and validates every record once.
func NewEnv(snap *domain.Snapshot, now time.Time, cfg domain.QualityConfig) *Env {
	if snap == nil {
		snap = &domain.Snapshot{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	env := &Env{
		Snapshot:  snap,
		Now:       now,
		Config:    cfg,
		customers: make(map[string]*domain.Customer, len(snap.Customers)),
		accounts:  make(map[string]*domain.Account, len(snap.Accounts)),
		devices:   make(map[string]*domain.Device, len(snap.Devices)),
		issues:    make(map[string][]recordIssues, 5),
	}
	for _, c := range snap.Customers {
		env.customers[c.ID] = c
		env.collect(domain.CollectionCustomers, c.ID, c)
	}
	for _, a := range snap.Accounts {
		env.accounts[a.ID] = a
		env.collect(domain.CollectionAccounts, a.ID, a)
	}
	for _, d := range snap.Devices {
		env.devices[d.ID] = d
		env.collect(domain.CollectionDevices, d.ID, d)
	}
	for _, e := range snap.AuthEvents {
		env.collect(domain.CollectionAuthEvents, e.ID, e)
	}
	for _, tx := range snap.Transactions {
		env.collect(domain.CollectionTransactions, tx.ID, tx)
	}
	return env
}

func (e *Env) collect(collection, id string, record any) {
	if found := domain.RecordIssues(record); len(found) > 0 {
		e.issues[collection] = append(e.issues[collection], recordIssues{id: id, issues: found})
	}
}

// Customer looks a customer up by ID.
func (e *Env) Customer(id string) (*domain.Customer, bool) {
	c, ok := e.customers[id]
	return c, ok
}

// Account looks an account up by ID.
func (e *Env) Account(id string) (*domain.Account, bool) {
	a, ok := e.accounts[id]
	return a, ok
}

// Device looks a device up by ID.
func (e *Env) Device(id string) (*domain.Device, bool) {
	d, ok := e.devices[id]
	return d, ok
}

// Owner returns the customer ID owning accountID, or "".
func (e *Env) Owner(accountID string) string {
	if a, ok := e.accounts[accountID]; ok {
		return a.CustomerID
	}
	return ""
}

// Population returns the number of records in a collection.
func (e *Env) Population(collection string) int {
	switch collection {
	case domain.CollectionCustomers:
		return len(e.Snapshot.Customers)
	case domain.CollectionAccounts:
		return len(e.Snapshot.Accounts)
	case domain.CollectionDevices:
		return len(e.Snapshot.Devices)
	case domain.CollectionAuthEvents:
		return len(e.Snapshot.AuthEvents)
	case domain.CollectionTransactions:
		return len(e.Snapshot.Transactions)
	}
	return 0
}

// Day formats ts as a calendar day in the configured location.
func (e *Env) Day(ts time.Time) string {
	return domain.DayOf(ts, e.Config.Location)
}

// customerDay keys per-customer daily aggregates.
type customerDay struct {
	customerID string
	day        string
}

// dailyTotals recomputes the total amount per customer and day.
func (e *Env) dailyTotals() map[customerDay]decimal.Decimal {
	totals := make(map[customerDay]decimal.Decimal)
	for _, tx := range e.Snapshot.Transactions {
		owner := e.Owner(tx.FromAccountID)
		if owner == "" {
			continue
		}
		k := customerDay{customerID: owner, day: e.Day(tx.CreatedAt)}
		totals[k] = totals[k].Add(tx.AmountValue())
	}
	return totals
}
