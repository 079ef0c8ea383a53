package generate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func opts(seed uint64, defects float64) Options {
	return Options{Customers: 20, Days: 3, Seed: seed, DefectRate: defects, Now: now}
}

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(opts(7, 0.1))
	b := Generate(opts(7, 0.1))

	require.Equal(t, len(a.Transactions), len(b.Transactions))
	for i := range a.Transactions {
		assert.Equal(t, a.Transactions[i].ID, b.Transactions[i].ID)
		assert.True(t, a.Transactions[i].Amount.Equal(*b.Transactions[i].Amount))
		assert.Equal(t, a.Transactions[i].CreatedAt, b.Transactions[i].CreatedAt)
	}
	assert.Equal(t, a.Customers[0].PhoneNumber, b.Customers[0].PhoneNumber)

	c := Generate(opts(8, 0.1))
	assert.NotEqual(t, a.Transactions[0].ID, c.Transactions[0].ID)
}

func TestGenerateClean(t *testing.T) {
	ds := Generate(opts(1, 0))

	assert.Len(t, ds.Customers, 20)
	assert.NotEmpty(t, ds.Accounts)
	assert.NotEmpty(t, ds.Devices)
	assert.NotEmpty(t, ds.AuthEvents)

	for _, c := range ds.Customers {
		assert.True(t, rules.ValidCCCD(c.CCCDNumber), "cccd %s", c.CCCDNumber)
		assert.True(t, rules.ValidPhone(c.PhoneNumber), "phone %s", c.PhoneNumber)
		assert.True(t, rules.ValidEmail(c.Email), "email %s", c.Email)
		assert.Empty(t, domain.RecordIssues(c))
	}
	for _, d := range ds.Devices {
		assert.Equal(t, domain.DeviceVerified, d.VerificationStatus)
	}

	accounts := make(map[string]bool, len(ds.Accounts))
	for _, a := range ds.Accounts {
		accounts[a.ID] = true
		assert.False(t, a.Balance.IsNegative())
	}
	for _, tx := range ds.Transactions {
		assert.Empty(t, domain.RecordIssues(tx))
		assert.True(t, tx.CreatedAt.Before(now))
		assert.True(t, accounts[tx.FromAccountID])
		if tx.ToAccountID != nil {
			assert.True(t, accounts[*tx.ToAccountID], "transfer to unknown account %s", *tx.ToAccountID)
		}
		assert.NotEqual(t, domain.AuthPassword, tx.AuthMethod)
	}
}

func TestGenerateDefects(t *testing.T) {
	ds := Generate(opts(3, 1))

	weak := 0
	for _, tx := range ds.Transactions {
		if tx.AuthMethod == domain.AuthPassword {
			weak++
		}
	}
	assert.Equal(t, len(ds.Transactions), weak)

	for _, d := range ds.Devices {
		assert.NotEqual(t, domain.DeviceVerified, d.VerificationStatus)
	}

	failed := 0
	for _, e := range ds.AuthEvents {
		if e.Status == domain.AuthFailed {
			failed++
		}
	}
	assert.Positive(t, failed)
}

func TestSave(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel.db"),
	})
	require.NoError(t, err)
	defer repo.Close()

	ds := Generate(opts(5, 0.05))
	counts, err := ds.Save(context.Background(), repo)
	require.NoError(t, err)

	assert.Equal(t, len(ds.Customers), counts.Customers)
	assert.Equal(t, len(ds.Transactions), counts.Transactions)

	snap, err := repo.LoadSnapshot(context.Background(), domain.SnapshotOptions{})
	require.NoError(t, err)
	assert.Len(t, snap.Customers, len(ds.Customers))
	assert.Len(t, snap.Accounts, len(ds.Accounts))
	assert.Len(t, snap.Transactions, len(ds.Transactions))

	t.Run("saving twice upserts", func(t *testing.T) {
		_, err := ds.Save(context.Background(), repo)
		require.NoError(t, err)

		snap, err := repo.LoadSnapshot(context.Background(), domain.SnapshotOptions{})
		require.NoError(t, err)
		assert.Len(t, snap.Transactions, len(ds.Transactions))
	})
}
