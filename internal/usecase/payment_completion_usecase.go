package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	"walletledger/internal/domain/service"
	"walletledger/internal/infrastructure/metrics"
	"walletledger/pkg/errors"
	"walletledger/pkg/logger"
)

type CompletePaymentInput struct {
	TransactionID   string
	TransactionType entity.PaymentKind
}

type CompletionResult struct {
	PaymentID        string             `json:"payment_id"`
	Kind             entity.PaymentKind `json:"kind"`
	IsVirtual        bool               `json:"is_virtual"`
	WalletCredited   bool               `json:"wallet_credited"`
	AlreadyCompleted bool               `json:"already_completed"`
	SellerAmount     decimal.Decimal    `json:"seller_amount"`
	Currency         string             `json:"currency"`
	EntryID          string             `json:"entry_id,omitempty"`
}

// PaymentCompletionUseCase settles a captured payment into the seller's
// wallet. It is safe to call any number of times for the same payment.
type PaymentCompletionUseCase struct {
	resolver      *TransactionResolver
	walletUseCase *WalletUseCase
	escrows       repository.EscrowRepository
	standard      repository.StandardPaymentRepository
	transactions  repository.PaymentTransactionRepository
	orders        repository.OrderRepository
	userRepo      repository.UserRepository
	productRepo   repository.ProductRepository
	notifier      service.Notifier
	logger        *zap.Logger
	now           func() time.Time
}

func NewPaymentCompletionUseCase(
	resolver *TransactionResolver,
	walletUseCase *WalletUseCase,
	escrows repository.EscrowRepository,
	standard repository.StandardPaymentRepository,
	transactions repository.PaymentTransactionRepository,
	orders repository.OrderRepository,
	userRepo repository.UserRepository,
	productRepo repository.ProductRepository,
	notifier service.Notifier,
	log *zap.Logger,
) *PaymentCompletionUseCase {
	return &PaymentCompletionUseCase{
		resolver:      resolver,
		walletUseCase: walletUseCase,
		escrows:       escrows,
		standard:      standard,
		transactions:  transactions,
		orders:        orders,
		userRepo:      userRepo,
		productRepo:   productRepo,
		notifier:      notifier,
		logger:        logger.OrNop(log).Named("completion"),
		now:           time.Now,
	}
}

func (uc *PaymentCompletionUseCase) CompletePayment(ctx context.Context, input CompletePaymentInput) (*CompletionResult, error) {
	hint := input.TransactionType
	if hint == "" {
		hint = entity.PaymentKindAuto
	}

	payment, trace, err := uc.resolver.Resolve(ctx, input.TransactionID, hint)
	if err != nil {
		if errors.Is(err, errors.CodeTransactionNotFound) {
			metrics.PaymentCompletions.WithLabelValues("not_found").Inc()
			uc.logger.Warn("payment not found",
				zap.String("identifier", input.TransactionID),
				zap.Strings("strategies", trace.Strategies()))
		} else {
			metrics.PaymentCompletions.WithLabelValues("failed").Inc()
			uc.logger.Error("payment resolution failed",
				zap.String("identifier", input.TransactionID),
				zap.Any("trace", trace),
				zap.Error(err))
		}
		return nil, err
	}

	uc.logger.Debug("payment resolved",
		zap.String("identifier", input.TransactionID),
		zap.String("payment_id", payment.ID),
		zap.String("source", string(payment.Source)),
		zap.Bool("virtual", payment.IsVirtual),
		zap.Strings("strategies", trace.Strategies()))

	result := &CompletionResult{
		PaymentID:    payment.ID,
		Kind:         payment.Kind,
		IsVirtual:    payment.IsVirtual,
		SellerAmount: payment.SellerAmount(),
		Currency:     payment.Currency,
	}

	if payment.IsSettled() {
		metrics.PaymentCompletions.WithLabelValues("already_completed").Inc()
		result.AlreadyCompleted = true
		return result, nil
	}

	if !result.SellerAmount.IsPositive() {
		uc.markCompleted(ctx, payment)
		metrics.PaymentCompletions.WithLabelValues("zero_amount").Inc()
		uc.logger.Info("payment completed without credit",
			zap.String("payment_id", payment.ID),
			zap.String("seller_amount", result.SellerAmount.String()))
		return result, nil
	}

	credited, err := uc.walletUseCase.HasCredit(ctx, payment.SellerID, payment.ID)
	if err != nil {
		// the claimed write below still refuses a second credit
		uc.logger.Warn("credit claim lookup failed",
			zap.String("payment_id", payment.ID),
			zap.Error(err))
	}
	if credited {
		return uc.repairCompletion(ctx, payment, result), nil
	}

	product := uc.lookupProduct(ctx, payment.ProductID)

	credit, err := uc.walletUseCase.Credit(ctx, CreditInput{
		UserID:      payment.SellerID,
		Amount:      result.SellerAmount,
		Currency:    payment.Currency,
		Description: creditDescription(product),
		RelatedRef:  payment.ID,
		Kind:        entity.EntryKindCredit,
		Metadata: map[string]string{
			"buyerId":     payment.BuyerID,
			"productId":   payment.ProductID,
			"paymentKind": string(payment.Kind),
			"orderNumber": payment.OrderNumber,
		},
	})
	if err != nil {
		if errors.Is(err, errors.CodeDuplicateCredit) {
			return uc.repairCompletion(ctx, payment, result), nil
		}
		metrics.PaymentCompletions.WithLabelValues("failed").Inc()
		uc.logger.Error("failed to credit seller",
			zap.String("payment_id", payment.ID),
			zap.String("seller_id", payment.SellerID),
			zap.Error(err))
		return nil, err
	}

	result.WalletCredited = true
	result.EntryID = credit.Entry.ID
	metrics.PaymentCompletions.WithLabelValues("credited").Inc()

	uc.markCompleted(ctx, payment)
	uc.materializeOrder(ctx, payment)
	uc.notifySeller(ctx, payment, product)

	uc.logger.Info("payment completed",
		zap.String("payment_id", payment.ID),
		zap.String("seller_id", payment.SellerID),
		zap.String("amount", result.SellerAmount.String()),
		zap.String("currency", payment.Currency),
		zap.String("entry_id", result.EntryID))
	return result, nil
}

// repairCompletion handles a payment credited by an earlier attempt whose
// completion mark was lost.
func (uc *PaymentCompletionUseCase) repairCompletion(ctx context.Context, payment *entity.ResolvedPayment, result *CompletionResult) *CompletionResult {
	uc.markCompleted(ctx, payment)
	metrics.PaymentCompletions.WithLabelValues("duplicate").Inc()
	uc.logger.Warn("payment already credited, repaired completion mark",
		zap.String("payment_id", payment.ID),
		zap.String("seller_id", payment.SellerID))
	result.AlreadyCompleted = true
	return result
}

// markCompleted flips the source record. Virtual records have nowhere to be
// written to. A failure here is logged only: the credit is protected by its
// ref claim, so a retry repairs the mark.
func (uc *PaymentCompletionUseCase) markCompleted(ctx context.Context, payment *entity.ResolvedPayment) {
	if payment.IsVirtual {
		return
	}

	at := uc.now().UTC()
	var err error
	switch payment.Source {
	case entity.SourceEscrow:
		err = uc.escrows.MarkCompleted(ctx, payment.ID, at)
	case entity.SourceStandard:
		err = uc.standard.MarkCompleted(ctx, payment.ID, at)
	case entity.SourceTransaction:
		err = uc.transactions.MarkCompleted(ctx, payment.ID, at)
	}
	if err != nil {
		uc.logger.Error("failed to mark payment completed",
			zap.String("payment_id", payment.ID),
			zap.String("source", string(payment.Source)),
			zap.Error(err))
	}
}

func (uc *PaymentCompletionUseCase) materializeOrder(ctx context.Context, payment *entity.ResolvedPayment) {
	if uc.orders == nil {
		return
	}
	if _, err := uc.orders.UpsertForPayment(ctx, payment, entity.PaymentStatusCompleted); err != nil {
		uc.logger.Warn("failed to materialize order",
			zap.String("payment_id", payment.ID),
			zap.Error(err))
	}
}

func (uc *PaymentCompletionUseCase) notifySeller(ctx context.Context, payment *entity.ResolvedPayment, product *entity.Product) {
	if uc.notifier == nil {
		return
	}

	seller, err := uc.userRepo.GetByID(ctx, payment.SellerID)
	if err != nil {
		uc.logger.Debug("seller lookup failed, skipping notification", zap.String("seller_id", payment.SellerID), zap.Error(err))
		return
	}
	buyer, err := uc.userRepo.GetByID(ctx, payment.BuyerID)
	if err != nil {
		buyer = nil
	}

	if err := uc.notifier.NotifyPaymentReceived(ctx, payment, buyer, seller, product); err != nil {
		uc.logger.Warn("payment notification failed",
			zap.String("payment_id", payment.ID),
			zap.String("seller_id", payment.SellerID),
			zap.Error(err))
	}
}

func (uc *PaymentCompletionUseCase) lookupProduct(ctx context.Context, productID string) *entity.Product {
	if uc.productRepo == nil || productID == "" {
		return nil
	}
	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil
	}
	return product
}

func creditDescription(product *entity.Product) string {
	if product == nil || product.Title == "" {
		return "Payment received"
	}
	return "Payment received for " + product.Title
}
