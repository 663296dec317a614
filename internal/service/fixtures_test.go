package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paytransfer/internal/config"
	"paytransfer/internal/infrastructure/database/dbtest"
	"paytransfer/internal/model"
	"paytransfer/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "amount: want %s, got %s", want, got)
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{Notification: "notification_topic"},
		},
		Business: config.BusinessConfig{
			DefaultCurrency: "INR",
			RPCTimeout:      time.Second,
			MaxRetryCount:   3,
			LockTTL:         5 * time.Second,
		},
	}
}

type notice struct {
	AccountID int64
	Message   string
	Category  string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Emit(_ context.Context, accountID int64, message, category string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{AccountID: accountID, Message: message, Category: category})
}

func (n *recordingNotifier) all() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = nil
}

// fakeVerifier 未登记密码的账户视为未设置
type fakeVerifier struct {
	secrets map[int64]string
	err     error
	calls   atomic.Int32
}

func (v *fakeVerifier) VerifyCredential(_ context.Context, accountID int64, secret string) error {
	v.calls.Add(1)
	if v.err != nil {
		return v.err
	}
	want, ok := v.secrets[accountID]
	if !ok {
		return ErrCredentialNotSet
	}
	if want != secret {
		return ErrCredentialMismatch
	}
	return nil
}

type fakeIdentities struct {
	byID    map[int64]*Identity
	idErr   error
	addrErr error
}

func newFakeIdentities(ids ...*Identity) *fakeIdentities {
	f := &fakeIdentities{byID: make(map[int64]*Identity)}
	for _, id := range ids {
		f.byID[id.ID] = id
	}
	return f
}

func (f *fakeIdentities) GetAccount(_ context.Context, accountID int64) (*Identity, error) {
	if f.idErr != nil {
		return nil, f.idErr
	}
	if id, ok := f.byID[accountID]; ok {
		return id, nil
	}
	return nil, ErrIdentityNotFound
}

func (f *fakeIdentities) GetAccountByAddress(_ context.Context, address string) (*Identity, error) {
	if f.addrErr != nil {
		return nil, f.addrErr
	}
	for _, id := range f.byID {
		if id.Email == address {
			return id, nil
		}
	}
	return nil, ErrIdentityNotFound
}

// countingLedger 统计账本调用次数，可注入入账/冲正失败
type countingLedger struct {
	inner      BalanceLedger
	creditErr  error
	reverseErr error
	debits     atomic.Int32
	credits    atomic.Int32
	reverses   atomic.Int32
}

func (l *countingLedger) Debit(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error {
	l.debits.Add(1)
	return l.inner.Debit(ctx, accountID, amount, reference)
}

func (l *countingLedger) Credit(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error {
	l.credits.Add(1)
	if l.creditErr != nil {
		return l.creditErr
	}
	return l.inner.Credit(ctx, accountID, amount, reference)
}

func (l *countingLedger) Reverse(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error {
	l.reverses.Add(1)
	if l.reverseErr != nil {
		return l.reverseErr
	}
	return l.inner.Reverse(ctx, accountID, amount, reference)
}

func (l *countingLedger) total() int32 {
	return l.debits.Load() + l.credits.Load() + l.reverses.Load()
}

var (
	alice = &Identity{ID: 1, Name: "Alice", Email: "alice@example.com"}
	bob   = &Identity{ID: 2, Name: "Bob", Email: "bob@example.com"}
)

type transferFixture struct {
	db         *gorm.DB
	ledger     *LedgerService
	counting   *countingLedger
	notifier   *recordingNotifier
	verifier   *fakeVerifier
	identities *fakeIdentities
	svc        *TransferService
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	db := dbtest.New(t)
	cfg := testConfig()
	notifier := &recordingNotifier{}
	ledger := NewLedgerService(db, cfg, notifier)
	counting := &countingLedger{inner: ledger}
	verifier := &fakeVerifier{secrets: map[int64]string{alice.ID: "1111", bob.ID: "2222"}}
	identities := newFakeIdentities(alice, bob)

	return &transferFixture{
		db:         db,
		ledger:     ledger,
		counting:   counting,
		notifier:   notifier,
		verifier:   verifier,
		identities: identities,
		svc: NewTransferService(db, cfg, TransferDeps{
			Verifier:   verifier,
			Identities: identities,
			Ledger:     counting,
			Notifier:   notifier,
		}),
	}
}

// fund 直接走仓储充值，不产生通知
func (f *transferFixture) fund(t *testing.T, accountID int64, amount string) {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewBalanceRepository(f.db)
	_, err := repo.GetOrCreate(ctx, accountID, "INR")
	require.NoError(t, err)
	if amount != "0" {
		_, err = repo.Credit(ctx, accountID, dec(amount), model.EntryTypeTopUp, "seed")
		require.NoError(t, err)
	}
}

func (f *transferFixture) balance(t *testing.T, accountID int64) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	return b.Amount
}

func (f *transferFixture) transactionCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Transaction{}).Count(&n).Error)
	return n
}
