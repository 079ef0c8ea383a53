// Package generate builds deterministic synthetic banking data for demos
// and load tests. The same Options always produce the same records.
package generate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// namespace seeds the name-based transaction IDs.
var namespace = uuid.MustParse("6f1f3c1e-8a63-4d59-9a55-4b2d3c6b7e10")

// Options controls the generated population.
type Options struct {
	Customers int
	// Days of transaction history ending at Now.
	Days int
	Seed uint64
	// DefectRate is the share of records carrying an injected data defect
	// or a risky pattern.
	DefectRate float64
	Now        time.Time
}

// DefaultOptions returns a small demo population.
func DefaultOptions(now time.Time) Options {
	return Options{
		Customers:  100,
		Days:       7,
		Seed:       42,
		DefectRate: 0.05,
		Now:        now,
	}
}

// Dataset is one generated population.
type Dataset struct {
	Customers    []*domain.Customer
	Accounts     []*domain.Account
	Devices      []*domain.Device
	AuthEvents   []*domain.AuthEvent
	Transactions []*domain.Transaction
}

var (
	familyNames = []string{"Nguyen", "Tran", "Le", "Pham", "Hoang", "Phan", "Vu", "Dang", "Bui", "Do"}
	middleNames = []string{"Van", "Thi", "Minh", "Ngoc", "Duc", "Thanh", "Quang", "Thu"}
	givenNames  = []string{"An", "Binh", "Chi", "Dung", "Hanh", "Khoa", "Linh", "Nam", "Phuong", "Tuan"}
	prefixes    = []string{"09", "08", "07", "05", "03"}
	channels    = []domain.Channel{domain.ChannelMobile, domain.ChannelOnline, domain.ChannelATM, domain.ChannelBranch, domain.ChannelCard}
	strongAuth  = []domain.AuthMethod{domain.AuthOTPSMS, domain.AuthOTPEmail, domain.AuthBiometric}
)

type generator struct {
	opts Options
	rng  *rand.Rand
	ds   *Dataset
	txN  int
}

// Generate builds a dataset from opts.
func Generate(opts Options) *Dataset {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	opts.Now = opts.Now.UTC()
	if opts.Days <= 0 {
		opts.Days = 1
	}

	g := &generator{
		opts: opts,
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		ds:   &Dataset{},
	}
	for i := 1; i <= opts.Customers; i++ {
		g.customer(i)
	}
	return g.ds
}

func (g *generator) defect() bool {
	return g.rng.Float64() < g.opts.DefectRate
}

func (g *generator) pick(n int) int {
	return g.rng.IntN(n)
}

func (g *generator) customer(i int) {
	now := g.opts.Now
	id := fmt.Sprintf("CUST%06d", i)
	dob := time.Date(1950+g.pick(55), time.Month(1+g.pick(12)), 1+g.pick(28), 0, 0, 0, 0, time.UTC)
	name := fmt.Sprintf("%s %s %s", familyNames[g.pick(len(familyNames))], middleNames[g.pick(len(middleNames))], givenNames[g.pick(len(givenNames))])

	c := &domain.Customer{
		ID:          id,
		CCCDNumber:  fmt.Sprintf("%03d%09d", 1+g.pick(96), i),
		FullName:    name,
		DateOfBirth: &dob,
		PhoneNumber: g.phone(),
		Email:       fmt.Sprintf("customer%06d@example.vn", i),
		KYCStatus:   domain.KYCVerified,
		RiskLevel:   domain.RiskLow,
		IsActive:    true,
		CreatedAt:   now.AddDate(0, -1-g.pick(24), 0),
	}

	if g.defect() {
		switch g.pick(4) {
		case 0:
			c.CCCDNumber = c.CCCDNumber[:11]
		case 1:
			c.Email = ""
		case 2:
			c.PhoneNumber = "12345"
		case 3:
			young := now.AddDate(-16, 0, 0)
			c.DateOfBirth = &young
		}
	}
	if g.defect() {
		c.KYCStatus = domain.KYCPending
		c.RiskLevel = domain.RiskHigh
	}
	g.ds.Customers = append(g.ds.Customers, c)

	var accounts []*domain.Account
	for j, n := 1, 1+g.pick(2); j <= n; j++ {
		accounts = append(accounts, g.account(c, i, j))
	}
	var devices []*domain.Device
	for j, n := 1, 1+g.pick(2); j <= n; j++ {
		devices = append(devices, g.device(c, i, j))
	}

	g.authEvents(c, devices)
	for day := 0; day < g.opts.Days; day++ {
		for n := g.pick(4); n > 0; n-- {
			g.transaction(accounts[g.pick(len(accounts))], devices[g.pick(len(devices))], day)
		}
	}
}

// phone returns a Vietnamese mobile number, a third of them in E.164 form.
func (g *generator) phone() string {
	national := fmt.Sprintf("%s%08d", prefixes[g.pick(len(prefixes))], g.rng.IntN(100_000_000))
	if g.pick(3) != 0 {
		return national
	}
	num, err := libphonenumber.Parse(national, "VN")
	if err != nil {
		return national
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}

func (g *generator) account(c *domain.Customer, i, j int) *domain.Account {
	daily := decimal.NewFromInt(int64(100+g.pick(400)) * 1_000_000)
	monthly := daily.Mul(decimal.NewFromInt(20))
	opened := c.CreatedAt

	types := []domain.AccountType{domain.AccountChecking, domain.AccountSavings, domain.AccountCredit}
	a := &domain.Account{
		ID:            fmt.Sprintf("ACC%06d%d", i, j),
		CustomerID:    c.ID,
		AccountNumber: fmt.Sprintf("%010d%d", i, j),
		AccountType:   types[g.pick(len(types))],
		Balance:       decimal.NewFromInt(int64(g.pick(500)) * 1_000_000),
		Currency:      "VND",
		Status:        domain.AccountActive,
		DailyLimit:    &daily,
		MonthlyLimit:  &monthly,
		OpenedAt:      &opened,
		CreatedAt:     c.CreatedAt,
	}
	if g.defect() {
		a.Balance = decimal.NewFromInt(-int64(1+g.pick(10)) * 1_000_000)
	}
	g.ds.Accounts = append(g.ds.Accounts, a)
	return a
}

func (g *generator) device(c *domain.Customer, i, j int) *domain.Device {
	types := []domain.DeviceType{domain.DeviceMobile, domain.DeviceWeb}
	d := &domain.Device{
		ID:                 fmt.Sprintf("DEV%06d%d", i, j),
		CustomerID:         c.ID,
		Fingerprint:        uuid.NewSHA1(namespace, []byte(fmt.Sprintf("fp-%d-%d", i, j))).String(),
		DeviceType:         types[g.pick(len(types))],
		IsTrusted:          true,
		VerificationStatus: domain.DeviceVerified,
		CreatedAt:          c.CreatedAt,
	}
	if g.defect() {
		d.IsTrusted = false
		d.VerificationStatus = domain.DeviceUnverified
		if g.pick(3) == 0 {
			d.VerificationStatus = domain.DeviceSuspicious
		}
		d.CreatedAt = g.opts.Now.Add(-time.Duration(1+g.pick(12)) * time.Hour)
	}
	g.ds.Devices = append(g.ds.Devices, d)
	return d
}

func (g *generator) authEvents(c *domain.Customer, devices []*domain.Device) {
	n := 1 + g.pick(3)
	burst := g.defect()
	if burst {
		n += 6
	}
	for k := 0; k < n; k++ {
		dev := devices[g.pick(len(devices))].ID
		e := &domain.AuthEvent{
			ID:         fmt.Sprintf("AUTH-%s-%03d", c.ID, k),
			CustomerID: c.ID,
			DeviceID:   &dev,
			Method:     strongAuth[g.pick(len(strongAuth))],
			Status:     domain.AuthSuccess,
			RiskScore:  g.pick(30),
			CreatedAt:  g.opts.Now.Add(-time.Duration(1+g.pick(50)) * time.Minute),
		}
		if burst && k > 0 {
			e.Method = domain.AuthPassword
			e.Status = domain.AuthFailed
			e.FailedAttempts = k
			e.RiskScore = 60 + g.pick(40)
		}
		g.ds.AuthEvents = append(g.ds.AuthEvents, e)
	}
}

func (g *generator) transaction(from *domain.Account, dev *domain.Device, day int) {
	g.txN++
	now := g.opts.Now
	at := now.AddDate(0, 0, -day).Add(-time.Minute - time.Duration(g.rng.IntN(int(23*time.Hour/time.Second)))*time.Second)

	amount := decimal.NewFromInt(int64(1+g.pick(5000)) * 1000)
	method := strongAuth[g.pick(len(strongAuth))]
	if g.pick(2) == 0 {
		method = domain.AuthPIN
	}
	if g.defect() {
		// high value behind a single factor
		amount = decimal.NewFromInt(int64(10+g.pick(40)) * 1_000_000)
		method = domain.AuthPassword
	}

	types := []domain.TransactionType{domain.TxTransfer, domain.TxPayment, domain.TxWithdrawal, domain.TxDeposit}
	txType := types[g.pick(len(types))]
	ref := fmt.Sprintf("REF%010d", g.txN)
	devID := dev.ID
	completed := at.Add(time.Duration(1+g.pick(30)) * time.Second)

	tx := &domain.Transaction{
		ID:              uuid.NewSHA1(namespace, []byte(fmt.Sprintf("tx-%d-%d", g.opts.Seed, g.txN))).String(),
		FromAccountID:   from.ID,
		Type:            txType,
		Amount:          &amount,
		Currency:        "VND",
		ReferenceNumber: &ref,
		Status:          domain.TxCompleted,
		Channel:         channels[g.pick(len(channels))],
		DeviceID:        &devID,
		AuthMethod:      method,
		CreatedAt:       at,
		CompletedAt:     &completed,
	}
	if txType == domain.TxTransfer {
		to := g.ds.Accounts[g.pick(len(g.ds.Accounts))].ID
		tx.ToAccountID = &to
	}
	if g.pick(50) == 0 {
		tx.Status = domain.TxFailed
		tx.CompletedAt = nil
	}
	if g.defect() && g.pick(2) == 0 {
		tx.ReferenceNumber = nil
	}
	g.ds.Transactions = append(g.ds.Transactions, tx)
}

// Sink receives generated records.
type Sink interface {
	SaveCustomer(ctx context.Context, c *domain.Customer) error
	SaveAccount(ctx context.Context, a *domain.Account) error
	SaveDevice(ctx context.Context, d *domain.Device) error
	SaveAuthEvent(ctx context.Context, e *domain.AuthEvent) error
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
}

// Counts reports how many records of each kind were saved.
type Counts struct {
	Customers    int `json:"customers"`
	Accounts     int `json:"accounts"`
	Devices      int `json:"devices"`
	AuthEvents   int `json:"authEvents"`
	Transactions int `json:"transactions"`
}

// Save writes the dataset to sink, parents before children.
func (d *Dataset) Save(ctx context.Context, sink Sink) (Counts, error) {
	var n Counts
	for _, c := range d.Customers {
		if err := sink.SaveCustomer(ctx, c); err != nil {
			return n, fmt.Errorf("save customer %s: %w", c.ID, err)
		}
		n.Customers++
	}
	for _, a := range d.Accounts {
		if err := sink.SaveAccount(ctx, a); err != nil {
			return n, fmt.Errorf("save account %s: %w", a.ID, err)
		}
		n.Accounts++
	}
	for _, dev := range d.Devices {
		if err := sink.SaveDevice(ctx, dev); err != nil {
			return n, fmt.Errorf("save device %s: %w", dev.ID, err)
		}
		n.Devices++
	}
	for _, e := range d.AuthEvents {
		if err := sink.SaveAuthEvent(ctx, e); err != nil {
			return n, fmt.Errorf("save auth event %s: %w", e.ID, err)
		}
		n.AuthEvents++
	}
	for _, tx := range d.Transactions {
		if err := sink.SaveTransaction(ctx, tx); err != nil {
			return n, fmt.Errorf("save transaction %s: %w", tx.ID, err)
		}
		n.Transactions++
	}
	return n, nil
}
