package usecase

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"walletledger/internal/adapter/repository/memory"
	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	"walletledger/internal/domain/service"
	"walletledger/pkg/errors"
)

type completionFixture struct {
	payments  *memory.PaymentStore
	directory *memory.DirectoryStore
	wallets   *WalletUseCase
	notifier  *service.MockNotifier
	uc        *PaymentCompletionUseCase
}

func newCompletionFixture(t *testing.T) *completionFixture {
	t.Helper()
	f := &completionFixture{
		payments:  memory.NewPaymentStore(),
		directory: memory.NewDirectoryStore(),
		notifier:  service.NewMockNotifier(gomock.NewController(t)),
	}
	f.wallets = NewWalletUseCase(memory.NewWalletStore(), testLedgerConfig(), zap.NewNop())
	f.directory.AddUser(entity.User{ID: "seller-1", Username: "seller", Status: "active"})
	f.directory.AddUser(entity.User{ID: "buyer-1", Username: "buyer", Status: "active"})
	f.directory.AddProduct(entity.Product{ID: "product-1", SellerID: "seller-1", Title: "Level 80 account"})
	f.build(f.payments.Escrows())
	return f
}

func (f *completionFixture) build(escrows repository.EscrowRepository) {
	resolver := NewTransactionResolver(escrows, f.payments.Standard(), f.payments.Transactions(), f.payments.Orders(), time.Millisecond)
	f.uc = NewPaymentCompletionUseCase(
		resolver,
		f.wallets,
		escrows,
		f.payments.Standard(),
		f.payments.Transactions(),
		f.payments.Orders(),
		f.directory,
		f.directory.Products(),
		f.notifier,
		zap.NewNop(),
	)
}

func (f *completionFixture) balance(t *testing.T, userID, currency string) string {
	t.Helper()
	w, err := f.wallets.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance(currency).String()
}

func TestPaymentCompletion_IsIdempotent(t *testing.T) {
	f := newCompletionFixture(t)
	escrow := f.payments.AddEscrow(entity.EscrowTransaction{PaymentRecord: record("ESC-100", "pi_100", "ORD-100")})

	f.notifier.EXPECT().
		NotifyPaymentReceived(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p *entity.ResolvedPayment, buyer, seller *entity.User, product *entity.Product) error {
			assert.Equal(t, escrow.ID, p.ID)
			assert.Equal(t, "buyer-1", buyer.ID)
			assert.Equal(t, "seller-1", seller.ID)
			assert.Equal(t, "Level 80 account", product.Title)
			return nil
		}).
		Times(1)

	first, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "pi_100"})
	require.NoError(t, err)
	assert.True(t, first.WalletCredited)
	assert.False(t, first.AlreadyCompleted)
	assert.True(t, dec("95").Equal(first.SellerAmount))
	assert.Equal(t, entity.PaymentKindEscrow, first.Kind)
	assert.NotEmpty(t, first.EntryID)

	second, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "pi_100"})
	require.NoError(t, err)
	assert.False(t, second.WalletCredited)
	assert.True(t, second.AlreadyCompleted)

	assert.Equal(t, "95", f.balance(t, "seller-1", "USD"))
	assert.Equal(t, entity.PaymentStatusCompleted, f.payments.Escrow(escrow.ID).Status)

	orders := f.payments.OrderList()
	require.Len(t, orders, 1)
	assert.Equal(t, entity.PaymentStatusCompleted, orders[0].Status)
}

func TestPaymentCompletion_ConcurrentCallsCreditOnce(t *testing.T) {
	f := newCompletionFixture(t)
	f.payments.AddStandard(entity.StandardPayment{PaymentRecord: record("PAY-1", "", "")})
	f.notifier.EXPECT().NotifyPaymentReceived(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	credited := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "PAY-1"})
			if assert.NoError(t, err) && res.WalletCredited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
	assert.Equal(t, "95", f.balance(t, "seller-1", "USD"))
}

func TestPaymentCompletion_VirtualRecord(t *testing.T) {
	f := newCompletionFixture(t)
	order := f.payments.AddOrder(entity.Order{
		OrderNumber: "ORD-OLD-1",
		PaymentType: entity.OrderPaymentTypeEscrow,
		BuyerID:     "buyer-1",
		SellerID:    "seller-1",
		ProductID:   "product-1",
		Amount:      dec("50"),
		PlatformFee: dec("2.5"),
		Currency:    "EUR",
		Status:      entity.PaymentStatusPending,
	})
	f.notifier.EXPECT().NotifyPaymentReceived(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	res, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "ORD-OLD-1", TransactionType: entity.PaymentKindEscrow})
	require.NoError(t, err)
	assert.True(t, res.IsVirtual)
	assert.True(t, res.WalletCredited)
	assert.Equal(t, order.ID, res.PaymentID)
	assert.Equal(t, "47.5", f.balance(t, "seller-1", "EUR"))
	assert.Nil(t, f.payments.Escrow(order.ID), "no escrow record is written for a virtual payment")
}

func TestPaymentCompletion_ZeroSellerAmount(t *testing.T) {
	f := newCompletionFixture(t)
	rec := record("PAY-FREE", "", "")
	rec.GrossAmount = dec("5")
	rec.PlatformFee = dec("5")
	standard := f.payments.AddStandard(entity.StandardPayment{PaymentRecord: rec})

	res, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "PAY-FREE"})
	require.NoError(t, err)
	assert.False(t, res.WalletCredited)
	assert.False(t, res.AlreadyCompleted)
	assert.Equal(t, entity.PaymentStatusCompleted, f.payments.StandardPayment(standard.ID).Status)
	assert.Equal(t, "0", f.balance(t, "seller-1", "USD"))
}

func TestPaymentCompletion_ReleasedEscrowCountsAsCompleted(t *testing.T) {
	f := newCompletionFixture(t)
	rec := record("ESC-REL", "", "")
	rec.Status = entity.PaymentStatusReleased
	f.payments.AddEscrow(entity.EscrowTransaction{PaymentRecord: rec})

	res, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "ESC-REL"})
	require.NoError(t, err)
	assert.True(t, res.AlreadyCompleted)
	assert.False(t, res.WalletCredited)
}

func TestPaymentCompletion_RepairsLostCompletionMark(t *testing.T) {
	f := newCompletionFixture(t)
	escrow := f.payments.AddEscrow(entity.EscrowTransaction{PaymentRecord: record("ESC-200", "", "")})
	f.build(&failingMarkEscrows{EscrowRepository: f.payments.Escrows()})
	f.notifier.EXPECT().NotifyPaymentReceived(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	first, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "ESC-200"})
	require.NoError(t, err)
	assert.True(t, first.WalletCredited)
	assert.Equal(t, entity.PaymentStatusPending, f.payments.Escrow(escrow.ID).Status)

	f.build(f.payments.Escrows())
	second, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "ESC-200"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyCompleted)
	assert.False(t, second.WalletCredited)
	assert.Equal(t, entity.PaymentStatusCompleted, f.payments.Escrow(escrow.ID).Status)
	assert.Equal(t, "95", f.balance(t, "seller-1", "USD"))
}

func TestPaymentCompletion_CreditedPaymentSkipsLedgerWrite(t *testing.T) {
	f := newCompletionFixture(t)
	store := &countingWalletStore{WalletStore: memory.NewWalletStore()}
	f.wallets = NewWalletUseCase(store, testLedgerConfig(), zap.NewNop())
	escrow := f.payments.AddEscrow(entity.EscrowTransaction{PaymentRecord: record("ESC-300", "", "")})
	f.build(&failingMarkEscrows{EscrowRepository: f.payments.Escrows()})
	f.notifier.EXPECT().NotifyPaymentReceived(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	first, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "ESC-300"})
	require.NoError(t, err)
	assert.True(t, first.WalletCredited)
	assert.Equal(t, int32(1), store.saves.Load())

	credited, err := f.wallets.HasCredit(context.Background(), "seller-1", escrow.ID)
	require.NoError(t, err)
	assert.True(t, credited)

	f.build(f.payments.Escrows())
	second, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "ESC-300"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyCompleted)
	assert.Equal(t, int32(1), store.saves.Load(), "no second ledger write")
	assert.Equal(t, entity.PaymentStatusCompleted, f.payments.Escrow(escrow.ID).Status)
	assert.Equal(t, "95", f.balance(t, "seller-1", "USD"))
}

type countingWalletStore struct {
	*memory.WalletStore
	saves atomic.Int32
}

func (s *countingWalletStore) Save(ctx context.Context, wallet *entity.Wallet, expectedVersion int64, claimKey string) error {
	s.saves.Add(1)
	return s.WalletStore.Save(ctx, wallet, expectedVersion, claimKey)
}

func TestPaymentCompletion_NotificationFailureIsSwallowed(t *testing.T) {
	f := newCompletionFixture(t)
	f.payments.AddStandard(entity.StandardPayment{PaymentRecord: record("PAY-2", "", "")})
	f.notifier.EXPECT().
		NotifyPaymentReceived(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(stderrors.New("seller offline"))

	res, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "PAY-2"})
	require.NoError(t, err)
	assert.True(t, res.WalletCredited)
}

func TestPaymentCompletion_NotFound(t *testing.T) {
	f := newCompletionFixture(t)

	_, err := f.uc.CompletePayment(context.Background(), CompletePaymentInput{TransactionID: "missing"})
	assert.True(t, errors.Is(err, errors.CodeTransactionNotFound))
	assert.Equal(t, 404, err.(*errors.AppError).Status)
}

type failingMarkEscrows struct {
	repository.EscrowRepository
}

func (f *failingMarkEscrows) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	return stderrors.New("write timed out")
}
